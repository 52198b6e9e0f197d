package backend

import (
	"context"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
)

// UnavailableEngine stands in for a backend decided unusable at configuration
// time (missing sidecar URL, unsupported kind). Every call fails with a
// BACKEND_UNAVAILABLE fault carrying the configuration-time reason, instead of
// deferring the discovery to a runtime probe.
type UnavailableEngine struct {
	name   string
	reason string
}

// NewUnavailable creates an engine that declares itself unusable.
func NewUnavailable(name, reason string) *UnavailableEngine {
	return &UnavailableEngine{name: name, reason: reason}
}

// Name returns the configured backend label.
func (u *UnavailableEngine) Name() string { return u.name }

// IsAvailable always reports false.
func (u *UnavailableEngine) IsAvailable(context.Context) bool { return false }

// Transcribe fails with the configuration-time reason.
func (u *UnavailableEngine) Transcribe(context.Context, string) (domain.TranscriptResult, error) {
	return domain.TranscriptResult{}, faults.Unavailable("%s: %s", u.name, u.reason)
}

// Summarize fails with the configuration-time reason.
func (u *UnavailableEngine) Summarize(context.Context, string, int, string) (string, error) {
	return "", faults.Unavailable("%s: %s", u.name, u.reason)
}
