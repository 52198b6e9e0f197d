// Package customllm summarizes text through an OpenAI-format chat-completions
// endpoint with an optional bearer key.
package customllm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"speechflow/internal/backend/ollama"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
)

const defaultTimeout = 5 * time.Minute

// Engine is a loaded custom-endpoint summarizer. The endpoint URL, model, and
// key are all part of the cache fingerprint.
type Engine struct {
	cfg    domain.CustomLLMParams
	client *http.Client
}

// Load validates the configuration. Unlike the local backends there is no
// cheap health probe contract for arbitrary endpoints, so load only fails on
// configuration mistakes and the first call surfaces connectivity problems.
func Load(cfg domain.CustomLLMParams) (*Engine, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, faults.Config("custom summarizer requires an API URL")
	}
	return &Engine{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}, nil
}

// Name returns the backend label including the model name.
func (e *Engine) Name() string { return "customllm:" + e.cfg.Model }

// IsAvailable sends a minimal completion request as a connection test.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	_, err := e.complete(ctx, "Hello, are you working?")
	return err == nil
}

// Summarize sends the summary prompt as a single user message.
func (e *Engine) Summarize(ctx context.Context, text string, maxLength int, language string) (string, error) {
	return e.complete(ctx, ollama.SummaryPrompt(text, maxLength, language))
}

// complete posts one chat message and extracts the reply, accepting both
// OpenAI and Ollama response shapes.
func (e *Engine) complete(ctx context.Context, content string) (string, error) {
	payload := map[string]any{
		"model": e.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", faults.Summarization(err, "encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", faults.Summarization(err, "create completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", faults.Cancelled("summarizer request interrupted")
		}
		return "", faults.Summarization(err, "summarizer request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", faults.Summarization(nil, "summarizer error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", faults.Summarization(err, "decode summarizer response")
	}

	if len(result.Choices) > 0 {
		return strings.TrimSpace(result.Choices[0].Message.Content), nil
	}
	return strings.TrimSpace(result.Response), nil
}
