package domain

import "strings"

// SubtitleExtension is appended to every stored subtitle file name.
const SubtitleExtension = ".srt"

// Slugify lowercases a title and joins its alphanumeric runs with underscores:
// "Working at Height: Part 2" becomes "working_at_height_part_2".
func Slugify(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "toolbox_talk"
	}
	return b.String()
}

// SubtitleFileName builds "{slug}_{code}.srt".
func SubtitleFileName(title, languageCode string) string {
	return Slugify(title) + "_" + languageCode + SubtitleExtension
}
