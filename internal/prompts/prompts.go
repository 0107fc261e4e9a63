package prompts

import "fmt"

// ============================================================================
// Translation Prompts
// ============================================================================

// TranslationSystemPrompt defines the translator role for subtitle batches.
const TranslationSystemPrompt = `You are a professional subtitle translator for workplace safety training videos.
You receive subtitles in SRT format and return the same subtitles translated.

Rules:
- Translate only the subtitle text lines.
- Keep every index number and every timestamp line exactly as given.
- Keep the number and order of blocks unchanged; never merge or split blocks.
- Keep safety terminology precise and use plain language a site worker understands.
- Return SRT only: no explanations, no notes, no markdown.`

// translationUserTemplate wraps one batch of SRT blocks.
const translationUserTemplate = `Translate the following subtitles from English to %s.

%s`

// TranslationUserPrompt builds the user message for one SRT batch.
func TranslationUserPrompt(language, srtBatch string) string {
	return fmt.Sprintf(translationUserTemplate, language, srtBatch)
}
