package config

import (
	"os"
	"path/filepath"

	"speechflow/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		WhisperModelPath: filepath.Join(homeDir, ".speechflow", "models"),
		WhisperModelSize: "base",
		OutputDir:        filepath.Join(homeDir, "Documents", "Transcripts"),
		Language:         "auto",
		OllamaURL:        "http://localhost:11434",
		OllamaModel:      "llama3",
		SummaryMaxLength: 200,
		SummaryLanguage:  "chinese",
	}
}
