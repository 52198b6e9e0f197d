package customllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
)

// TestLoadRequiresURL fails fast at configuration time.
func TestLoadRequiresURL(t *testing.T) {
	_, err := Load(domain.CustomLLMParams{Model: "gpt-4o-mini"})
	if !faults.Is(err, faults.KindConfig) {
		t.Fatalf("err = %v, want CONFIG_ERROR", err)
	}
}

// TestSummarizeOpenAIFormat parses choices[0].message.content and sends the key.
func TestSummarizeOpenAIFormat(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": " summary text "}},
			},
		})
	}))
	defer srv.Close()

	engine, err := Load(domain.CustomLLMParams{URL: srv.URL, Model: "m", APIKey: "secret"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	summary, err := engine.Summarize(context.Background(), "text", 100, "english")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "summary text" {
		t.Fatalf("summary = %q", summary)
	}
	if auth != "Bearer secret" {
		t.Fatalf("auth = %q", auth)
	}
}

// TestSummarizeOllamaFormatFallback accepts a bare response field.
func TestSummarizeOllamaFormatFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "fallback summary"})
	}))
	defer srv.Close()

	engine, err := Load(domain.CustomLLMParams{URL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	summary, err := engine.Summarize(context.Background(), "text", 100, "chinese")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "fallback summary" {
		t.Fatalf("summary = %q", summary)
	}
}

// TestSummarizeHTTPError maps non-200 to a summarization fault.
func TestSummarizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	engine, err := Load(domain.CustomLLMParams{URL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = engine.Summarize(context.Background(), "text", 100, "chinese")
	if !faults.Is(err, faults.KindSummarization) {
		t.Fatalf("err = %v, want SUMMARIZATION_ERROR", err)
	}
}
