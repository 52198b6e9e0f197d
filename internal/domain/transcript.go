package domain

import (
	"fmt"
	"strings"
)

// Segment is a time-aligned portion of a transcript.
type Segment struct {
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
}

// TranscriptResult is the declared result shape of a Recognizer call.
type TranscriptResult struct {
	FullText string    `json:"fullText"`
	Segments []Segment `json:"segments,omitempty"`
}

// Rendered returns the persistable transcript text. When segments are
// available each line is prefixed with an HH:MM:SS start timestamp; otherwise
// the plain full text is returned.
func (t TranscriptResult) Rendered() string {
	if len(t.Segments) == 0 {
		return strings.TrimSpace(t.FullText)
	}

	var b strings.Builder
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", formatTimestamp(seg.StartSeconds), text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatTimestamp renders whole seconds as zero-padded HH:MM:SS.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
