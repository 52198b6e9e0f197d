package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

// TestNewRespectsLogLevel verifies LOG_LEVEL drives the logger level.
func TestNewRespectsLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	log := New("test")
	if log.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %s, want debug", log.GetLevel())
	}
}

// TestNewInvalidLevelFallsBack verifies garbage input degrades to info.
func TestNewInvalidLevelFallsBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "shout")
	log := New("test")
	if log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s, want info", log.GetLevel())
	}
}
