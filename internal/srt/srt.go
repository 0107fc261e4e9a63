// Package srt generates, splits and parses SubRip subtitle text.
//
// A block is an index line, a "HH:MM:SS,mmm --> HH:MM:SS,mmm" line and one or
// more text lines. Blocks are separated by a blank line.
package srt

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/subtitles/internal/domain"
)

// ErrNoValidSegments is returned by Parse when no block could be read.
var ErrNoValidSegments = errors.New("srt: no valid subtitle segments")

var (
	blockSeparator = regexp.MustCompile(`\n[ \t]*\n`)
	timingLine     = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})`)
)

// Segment is one parsed subtitle block.
type Segment struct {
	Index               int           `json:"index"`
	Start               time.Duration `json:"start"`
	End                 time.Duration `json:"end"`
	Text                string        `json:"text"`
	PercentageIntoVideo float64       `json:"percentage_into_video"`
}

// Generate groups words into blocks of wordsPerBlock and serializes them. The
// last block may be shorter. wordsPerBlock below 1 is treated as 1.
func Generate(words []domain.TranscriptWord, wordsPerBlock int) string {
	if wordsPerBlock < 1 {
		wordsPerBlock = 1
	}

	var b strings.Builder
	index := 1
	for start := 0; start < len(words); start += wordsPerBlock {
		end := start + wordsPerBlock
		if end > len(words) {
			end = len(words)
		}
		block := words[start:end]

		texts := make([]string, 0, len(block))
		for _, w := range block {
			if t := strings.TrimSpace(w.Text); t != "" {
				texts = append(texts, t)
			}
		}
		text := strings.Join(texts, " ")
		if text == "" {
			// an empty text line would end the block early
			text = "..."
		}

		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			index,
			FormatTimestamp(block[0].Start),
			FormatTimestamp(block[len(block)-1].End),
			text,
		)
		index++
	}
	return b.String()
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// SplitIntoBlocks splits SRT text into trimmed block strings. Joining the result
// with "\n\n" reproduces the input modulo surrounding whitespace.
func SplitIntoBlocks(srt string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(srt, "\r\n", "\n"))
	if normalized == "" {
		return nil
	}

	parts := blockSeparator.Split(normalized, -1)
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

// JoinBlocks is the inverse of SplitIntoBlocks; the result ends with a blank line.
func JoinBlocks(blocks []string) string {
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n\n"
}

// CountBlocks returns the number of blocks in srt.
func CountBlocks(srt string) int {
	return len(SplitIntoBlocks(srt))
}

// Parse reads SRT text into ordered segments. Malformed blocks are skipped. When
// totalDuration is not positive the largest end time found is used to compute
// each segment's position.
func Parse(srt string, totalDuration time.Duration) ([]Segment, error) {
	var segments []Segment
	var maxEnd time.Duration

	for _, block := range SplitIntoBlocks(srt) {
		seg, ok := parseBlock(block)
		if !ok {
			continue
		}
		if seg.End > maxEnd {
			maxEnd = seg.End
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return nil, ErrNoValidSegments
	}

	total := totalDuration
	if total <= 0 {
		total = maxEnd
	}
	for i := range segments {
		segments[i].PercentageIntoVideo = percentage(segments[i].Start, total)
	}
	return segments, nil
}

func parseBlock(block string) (Segment, bool) {
	lines := strings.Split(block, "\n")
	if len(lines) < 3 {
		return Segment{}, false
	}

	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Segment{}, false
	}

	m := timingLine.FindStringSubmatch(strings.TrimSpace(lines[1]))
	if m == nil {
		return Segment{}, false
	}
	start, err := ParseTimestamp(m[1])
	if err != nil {
		return Segment{}, false
	}
	end, err := ParseTimestamp(m[2])
	if err != nil {
		return Segment{}, false
	}

	text := make([]string, 0, len(lines)-2)
	for _, l := range lines[2:] {
		text = append(text, strings.TrimSpace(l))
	}

	return Segment{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(text, "\n"),
	}, true
}

// ParseTimestamp reads HH:MM:SS,mmm or HH:MM:SS.mmm.
func ParseTimestamp(ts string) (time.Duration, error) {
	ts = strings.Replace(strings.TrimSpace(ts), ".", ",", 1)

	clock, frac, ok := strings.Cut(ts, ",")
	if !ok {
		return 0, fmt.Errorf("srt: timestamp %q has no fractional part", ts)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("srt: malformed timestamp %q", ts)
	}

	var hms [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("srt: malformed timestamp %q", ts)
		}
		hms[i] = v
	}
	if hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("srt: timestamp %q out of range", ts)
	}

	// "5" means 500ms, "05" means 50ms.
	for len(frac) < 3 {
		frac += "0"
	}
	ms, err := strconv.Atoi(frac[:3])
	if err != nil {
		return 0, fmt.Errorf("srt: malformed timestamp %q", ts)
	}

	return time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute +
		time.Duration(hms[2])*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

func percentage(start, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(start.Seconds()/total.Seconds()*100*100) / 100
}
