package domain

// Transcript entry types as reported by the speech-to-text backend.
const (
	WordTypeWord       = "word"
	WordTypeSpacing    = "spacing"
	WordTypeAudioEvent = "audio_event"
)

// TranscriptWord is one timed token of a transcript. Times are seconds from the
// start of the video.
type TranscriptWord struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
