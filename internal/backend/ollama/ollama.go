// Package ollama summarizes text through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
)

const (
	defaultURL     = "http://localhost:11434"
	defaultModel   = "llama3"
	defaultTimeout = 5 * time.Minute
)

// Engine is a loaded Ollama summarizer bound to one server URL and model.
// The URL is part of the cache fingerprint, so switching endpoints creates a
// distinct engine rather than mutating this one.
type Engine struct {
	cfg    domain.OllamaParams
	client *http.Client
}

// Load verifies the Ollama server answers before caching the engine.
func Load(ctx context.Context, cfg domain.OllamaParams) (*Engine, error) {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	e := &Engine{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}
	if !e.IsAvailable(ctx) {
		return nil, faults.Load(nil, "ollama server unreachable at %s", cfg.URL)
	}
	return e, nil
}

// Name returns the backend label including the model name.
func (e *Engine) Name() string { return "ollama:" + e.cfg.Model }

// IsAvailable checks whether the Ollama server is reachable.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.URL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Summarize sends a non-streaming generate request and returns the response.
func (e *Engine) Summarize(ctx context.Context, text string, maxLength int, language string) (string, error) {
	payload := map[string]any{
		"model":  e.cfg.Model,
		"prompt": SummaryPrompt(text, maxLength, language),
		"stream": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", faults.Summarization(err, "encode generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", faults.Summarization(err, "create generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", faults.Cancelled("ollama request interrupted")
		}
		return "", faults.Summarization(err, "ollama request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", faults.Summarization(nil, "ollama error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", faults.Summarization(err, "decode ollama response")
	}

	return strings.TrimSpace(result.Response), nil
}

// SummaryPrompt builds the summarization prompt. The wording matches what the
// configured models were tuned against in production: Chinese instruction
// text with a character budget and a target-language marker.
func SummaryPrompt(text string, maxLength int, language string) string {
	if maxLength <= 0 {
		maxLength = 200
	}
	langText := "中文"
	if strings.EqualFold(language, "english") {
		langText = "English"
	}
	return fmt.Sprintf("请为以下文本生成一个简洁的%s摘要，不超过%d个字符:\n\n%s\n\n摘要:", langText, maxLength, text)
}
