// Package backend defines the capability interfaces the orchestration core
// consumes. Engines are black boxes: potentially slow, potentially failing,
// safe for sequential reuse but not for concurrent invocation.
package backend

import (
	"context"

	"speechflow/internal/domain"
)

// Engine is the common contract every loaded backend instance satisfies.
type Engine interface {
	// Name returns a short backend label for logs and status reporting.
	Name() string
	// IsAvailable probes whether the engine can currently serve calls.
	IsAvailable(ctx context.Context) bool
}

// Recognizer converts one audio file into a transcript.
type Recognizer interface {
	Engine
	Transcribe(ctx context.Context, audioPath string) (domain.TranscriptResult, error)
}

// Summarizer condenses text into a bounded summary.
type Summarizer interface {
	Engine
	Summarize(ctx context.Context, text string, maxLength int, language string) (string, error)
}
