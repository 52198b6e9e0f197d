package domain

import (
	"fmt"
	"strings"
)

// BackendKind identifies a concrete recognition or summarization engine family.
type BackendKind string

const (
	BackendWhisper    BackendKind = "whisper"
	BackendFunASR     BackendKind = "funasr"
	BackendModelScope BackendKind = "modelscope"
	BackendOllama     BackendKind = "ollama"
	BackendCustomLLM  BackendKind = "customllm"
)

// IsRecognizer reports whether the kind is a speech-to-text engine family.
func (k BackendKind) IsRecognizer() bool {
	switch k {
	case BackendWhisper, BackendFunASR, BackendModelScope:
		return true
	default:
		return false
	}
}

// IsSummarizer reports whether the kind is a text summarization engine family.
func (k BackendKind) IsSummarizer() bool {
	switch k {
	case BackendOllama, BackendCustomLLM:
		return true
	default:
		return false
	}
}

// WhisperParams configures the whisper.cpp recognizer.
type WhisperParams struct {
	ModelPath string `json:"modelPath" validate:"required"`
	ModelSize string `json:"modelSize"`
	Language  string `json:"language"`
}

// FunASRParams configures the FunASR sidecar recognizer.
type FunASRParams struct {
	Model      string `json:"model" validate:"required"`
	Revision   string `json:"revision"`
	UseVAD     bool   `json:"useVad"`
	UsePunc    bool   `json:"usePunc"`
	UseSpeaker bool   `json:"useSpeaker"`
	Hub        string `json:"hub"`
	SidecarURL string `json:"sidecarUrl" validate:"omitempty,url"`
}

// ModelScopeParams configures the ModelScope sidecar recognizer.
type ModelScopeParams struct {
	ModelID    string `json:"modelId"`
	Device     string `json:"device"`
	SidecarURL string `json:"sidecarUrl" validate:"omitempty,url"`
}

// OllamaParams configures the Ollama summarizer.
type OllamaParams struct {
	URL   string `json:"url" validate:"omitempty,url"`
	Model string `json:"model"`
}

// CustomLLMParams configures an OpenAI-format chat-completions summarizer.
type CustomLLMParams struct {
	URL    string `json:"url" validate:"required,url"`
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}

// BackendConfig selects one engine family and its parameters. It is an
// immutable value: construct it once and never mutate it afterwards. Two
// configs are interchangeable for caching iff every field matches.
type BackendConfig struct {
	Kind       BackendKind      `json:"kind"`
	Whisper    WhisperParams    `json:"whisper,omitempty"`
	FunASR     FunASRParams     `json:"funasr,omitempty"`
	ModelScope ModelScopeParams `json:"modelscope,omitempty"`
	Ollama     OllamaParams     `json:"ollama,omitempty"`
	CustomLLM  CustomLLMParams  `json:"customllm,omitempty"`
}

// Fingerprint returns the canonical cache key for the config. Every declared
// field participates, so configs that differ in any parameter (different
// endpoint URL, different feature flag) never share an engine instance.
func (c BackendConfig) Fingerprint() string {
	switch c.Kind {
	case BackendWhisper:
		return fmt.Sprintf("whisper|path=%s|size=%s|lang=%s",
			c.Whisper.ModelPath, c.Whisper.ModelSize, c.Whisper.Language)
	case BackendFunASR:
		return fmt.Sprintf("funasr|model=%s|rev=%s|vad=%t|punc=%t|spk=%t|hub=%s|url=%s",
			c.FunASR.Model, c.FunASR.Revision, c.FunASR.UseVAD, c.FunASR.UsePunc,
			c.FunASR.UseSpeaker, c.FunASR.Hub, c.FunASR.SidecarURL)
	case BackendModelScope:
		return fmt.Sprintf("modelscope|model=%s|device=%s|url=%s",
			c.ModelScope.ModelID, c.ModelScope.Device, c.ModelScope.SidecarURL)
	case BackendOllama:
		return fmt.Sprintf("ollama|url=%s|model=%s", c.Ollama.URL, c.Ollama.Model)
	case BackendCustomLLM:
		return fmt.Sprintf("customllm|url=%s|model=%s|key=%s",
			c.CustomLLM.URL, c.CustomLLM.Model, c.CustomLLM.APIKey)
	default:
		return "unknown|" + string(c.Kind)
	}
}

// Describe returns a short human-readable backend label for logs and reports.
func (c BackendConfig) Describe() string {
	switch c.Kind {
	case BackendWhisper:
		size := c.Whisper.ModelSize
		if size == "" {
			size = "base"
		}
		return "whisper-" + size
	case BackendFunASR:
		return "funasr-" + c.FunASR.Model
	case BackendModelScope:
		return "modelscope-" + shortModelID(c.ModelScope.ModelID)
	case BackendOllama:
		return "ollama-" + c.Ollama.Model
	case BackendCustomLLM:
		return "custom-" + c.CustomLLM.Model
	default:
		return string(c.Kind)
	}
}

// shortModelID trims hub namespaces like "damo/" from ModelScope model IDs.
func shortModelID(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
