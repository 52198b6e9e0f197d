// Package modelscope runs speech recognition through a ModelScope pipeline
// sidecar.
package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/media"
)

const (
	defaultModelID = "damo/speech_paraformer-large-vad-punc_asr_nat-zh-cn"
	defaultTimeout = 10 * time.Minute
)

// Engine is a loaded ModelScope recognizer bound to one sidecar and model ID.
type Engine struct {
	cfg        domain.ModelScopeParams
	client     *http.Client
	transcoder *media.Transcoder
}

// Load probes the sidecar and warms the configured model pipeline.
func Load(ctx context.Context, cfg domain.ModelScopeParams, transcoder *media.Transcoder) (*Engine, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}

	e := &Engine{
		cfg:        cfg,
		client:     &http.Client{Timeout: defaultTimeout},
		transcoder: transcoder,
	}

	if !e.IsAvailable(ctx) {
		return nil, faults.Load(nil, "modelscope sidecar unreachable at %s", cfg.SidecarURL)
	}

	body, err := json.Marshal(map[string]string{"model_id": cfg.ModelID, "device": cfg.Device})
	if err != nil {
		return nil, faults.Load(err, "encode load request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.SidecarURL+"/load", bytes.NewReader(body))
	if err != nil {
		return nil, faults.Load(err, "create load request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, faults.Load(err, "modelscope model %s failed to load", cfg.ModelID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, faults.Load(fmt.Errorf("status %d: %s", resp.StatusCode, string(msg)),
			"modelscope model %s failed to load", cfg.ModelID)
	}

	return e, nil
}

// Name returns the backend label including the model ID.
func (e *Engine) Name() string { return "modelscope:" + e.cfg.ModelID }

// IsAvailable probes the sidecar health endpoint.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.SidecarURL+"/health", http.NoBody)
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

// Transcribe normalizes the audio and uploads it to the sidecar.
func (e *Engine) Transcribe(ctx context.Context, audioPath string) (domain.TranscriptResult, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "cannot access input audio: %s", audioPath)
	}

	audio := audioPath
	var convertDir string
	if e.transcoder != nil {
		audio, convertDir = e.transcoder.Convert(ctx, audioPath)
		defer media.Cleanup(convertDir)
	}

	audioData, err := os.ReadFile(audio)
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "read audio file: %s", audio)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filepath.Base(audio))
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "build upload form")
	}
	if _, err := part.Write(audioData); err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "write audio data")
	}
	_ = writer.WriteField("model_id", e.cfg.ModelID)
	_ = writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SidecarURL+"/transcribe", &buf)
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "create transcribe request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.TranscriptResult{}, faults.Cancelled("modelscope request interrupted")
		}
		return domain.TranscriptResult{}, faults.Recognition(err, "modelscope request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return domain.TranscriptResult{}, faults.Recognition(nil,
			"modelscope error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "decode modelscope response")
	}

	return domain.TranscriptResult{FullText: result.Text}, nil
}
