// Package funasr runs speech recognition through a FunASR HTTP sidecar.
package funasr

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
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/media"
)

const defaultTimeout = 10 * time.Minute

// Engine is a loaded FunASR recognizer bound to one sidecar and model
// configuration. Model, revision, and the vad/punc/speaker flags travel with
// every request so the sidecar serves the exact pipeline the fingerprint
// promised.
type Engine struct {
	cfg        domain.FunASRParams
	client     *http.Client
	transcoder *media.Transcoder
	log        zerolog.Logger
}

// Load probes the sidecar and asks it to warm the configured model. A dead or
// failing sidecar surfaces as a LOAD_ERROR before any job runs.
func Load(ctx context.Context, cfg domain.FunASRParams, transcoder *media.Transcoder, log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		client:     &http.Client{Timeout: defaultTimeout},
		transcoder: transcoder,
		log:        log,
	}

	if !e.IsAvailable(ctx) {
		return nil, faults.Load(nil, "funasr sidecar unreachable at %s", cfg.SidecarURL)
	}
	if err := e.warm(ctx); err != nil {
		return nil, faults.Load(err, "funasr model %s failed to load", cfg.Model)
	}

	return e, nil
}

// Name returns the backend label including the model name.
func (e *Engine) Name() string { return "funasr:" + e.cfg.Model }

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

// warm asks the sidecar to load the configured model so the expensive
// download/initialization happens at acquire time, not mid-batch.
func (e *Engine) warm(ctx context.Context) error {
	payload := map[string]any{
		"model":          e.cfg.Model,
		"model_revision": e.cfg.Revision,
		"model_hub":      e.cfg.Hub,
		"use_vad":        e.cfg.UseVAD,
		"use_punc":       e.cfg.UsePunc,
		"use_spk":        e.cfg.UseSpeaker,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SidecarURL+"/load", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sidecar load failed (status %d): %s", resp.StatusCode, string(msg))
	}
	return nil
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
	_ = writer.WriteField("model", e.cfg.Model)
	_ = writer.WriteField("model_revision", e.cfg.Revision)
	_ = writer.WriteField("model_hub", e.cfg.Hub)
	_ = writer.WriteField("use_vad", strconv.FormatBool(e.cfg.UseVAD))
	_ = writer.WriteField("use_punc", strconv.FormatBool(e.cfg.UsePunc))
	_ = writer.WriteField("use_spk", strconv.FormatBool(e.cfg.UseSpeaker))
	_ = writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SidecarURL+"/transcribe", &buf)
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "create transcribe request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.TranscriptResult{}, faults.Cancelled("funasr request interrupted")
		}
		return domain.TranscriptResult{}, faults.Recognition(err, "funasr request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return domain.TranscriptResult{}, faults.Recognition(nil,
			"funasr error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "decode funasr response")
	}

	return result.toTranscript(), nil
}

type sidecarResponse struct {
	Text     string           `json:"text"`
	Segments []sidecarSegment `json:"segments"`
}

type sidecarSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

func (r sidecarResponse) toTranscript() domain.TranscriptResult {
	out := domain.TranscriptResult{FullText: r.Text}
	for _, seg := range r.Segments {
		out.Segments = append(out.Segments, domain.Segment{
			StartSeconds: seg.Start,
			EndSeconds:   seg.End,
			Text:         seg.Text,
			Speaker:      seg.Speaker,
		})
	}
	return out
}
