package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/config"
	"speechflow/internal/domain"
	"speechflow/internal/jobs"
	"speechflow/internal/modelcache"
	"speechflow/internal/orchestrator"
	"speechflow/internal/output"
)

// echoRecognizer returns a fixed transcript for any input.
type echoRecognizer struct{}

func (echoRecognizer) Name() string                     { return "echo" }
func (echoRecognizer) IsAvailable(context.Context) bool { return true }

func (echoRecognizer) Transcribe(_ context.Context, audioPath string) (domain.TranscriptResult, error) {
	return domain.TranscriptResult{FullText: "transcript of " + filepath.Base(audioPath)}, nil
}

func (echoRecognizer) Summarize(_ context.Context, text string, maxLength int, language string) (string, error) {
	return "summary", nil
}

func setupTestServer(t *testing.T) (*gin.Engine, *orchestrator.Service, config.ServerConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.ServerConfig{
		ListenAddr:        ":0",
		UploadDir:         t.TempDir(),
		MaxUploadBytes:    1 << 20,
		AllowedExtensions: []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"},
		OutputDir:         t.TempDir(),
		EventBufferSize:   100,
	}
	settings := domain.Settings{
		WhisperModelPath: "/models/ggml-base.bin",
		WhisperModelSize: "base",
		Language:         "auto",
		OllamaURL:        "http://localhost:11434",
		OllamaModel:      "llama3",
		SummaryMaxLength: 200,
		SummaryLanguage:  "chinese",
	}

	loader := func(ctx context.Context, c domain.BackendConfig) (backend.Engine, error) {
		return echoRecognizer{}, nil
	}
	runner := jobs.NewRunner(modelcache.New(loader, zerolog.Nop()), output.NewWriter(), zerolog.Nop())
	svc := orchestrator.NewService(runner, cfg.EventBufferSize, zerolog.Nop())

	srv := NewServer(cfg, svc, settings, zerolog.Nop())
	return srv.Handler(), svc, cfg
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func submissionID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("no id in response: %s", rec.Body.String())
	}
	return resp.ID
}

func waitFor(t *testing.T, svc *orchestrator.Service, id string) domain.BatchReport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return report
}

func TestHealth(t *testing.T) {
	engine, _, _ := setupTestServer(t)
	rec := doJSON(t, engine, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	root := doJSON(t, engine, http.MethodGet, "/", nil)
	if root.Code != http.StatusOK || !strings.Contains(root.Body.String(), "speechflow") {
		t.Fatalf("root status = %d, body %s", root.Code, root.Body.String())
	}
}

func TestTranscribeAcceptsAndRuns(t *testing.T) {
	engine, svc, cfg := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/transcribe", gin.H{"inputPath": "/audio/song.mp3"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	id := submissionID(t, rec)
	report := waitFor(t, svc, id)
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "song.txt")); err != nil {
		t.Fatalf("transcript missing: %v", err)
	}

	got := doJSON(t, engine, http.MethodGet, "/api/jobs/"+id, nil)
	if got.Code != http.StatusOK || !strings.Contains(got.Body.String(), `"finished":true`) {
		t.Fatalf("report response: %d %s", got.Code, got.Body.String())
	}
}

func TestTranscribeRejectsUnknownExtension(t *testing.T) {
	engine, _, _ := setupTestServer(t)
	rec := doJSON(t, engine, http.MethodPost, "/api/transcribe", gin.H{"inputPath": "/audio/script.exe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTranscribeUpload(t *testing.T) {
	engine, svc, cfg := setupTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "meeting.wav")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write([]byte("RIFF fake wav"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	report := waitFor(t, svc, submissionID(t, rec))
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "meeting.txt")); err != nil {
		t.Fatalf("transcript missing: %v", err)
	}

	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("upload not saved: %v, %d entries", err, len(entries))
	}
}

func TestBatchTranscribe(t *testing.T) {
	engine, svc, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/batch_transcribe", gin.H{
		"inputs":    []string{"/audio/a.mp3", "/audio/b.wav"},
		"outputDir": t.TempDir(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	report := waitFor(t, svc, submissionID(t, rec))
	if report.Total != 2 || report.Succeeded != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestBatchTranscribeRejectsBadInput(t *testing.T) {
	engine, _, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/batch_transcribe", gin.H{
		"inputs": []string{"/audio/a.mp3", "/audio/b.iso"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	empty := doJSON(t, engine, http.MethodPost, "/api/batch_transcribe", gin.H{"inputs": []string{}})
	if empty.Code != http.StatusBadRequest {
		t.Fatalf("empty inputs status = %d", empty.Code)
	}
}

func TestSummarize(t *testing.T) {
	engine, svc, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/summarize", gin.H{"text": "a long article"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	report := waitFor(t, svc, submissionID(t, rec))
	if report.Succeeded != 1 || report.Outcomes[0].ResultText != "summary" {
		t.Fatalf("unexpected report: %+v", report)
	}

	missing := doJSON(t, engine, http.MethodPost, "/api/summarize", gin.H{})
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("missing text status = %d", missing.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	engine, svc, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/transcribe", gin.H{"inputPath": "/audio/song.mp3"})
	id := submissionID(t, rec)
	waitFor(t, svc, id)

	events := doJSON(t, engine, http.MethodGet, "/api/jobs/"+id+"/events?since=0", nil)
	if events.Code != http.StatusOK {
		t.Fatalf("status = %d", events.Code)
	}
	if !strings.Contains(events.Body.String(), `"finished"`) {
		t.Fatalf("expected finished event in %s", events.Body.String())
	}
	if !strings.Contains(events.Body.String(), `"submissionId":"`+id+`"`) {
		t.Fatalf("expected events tagged with %s in %s", id, events.Body.String())
	}

	unknown := doJSON(t, engine, http.MethodGet, "/api/jobs/nope/events?since=0", nil)
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("unknown submission status = %d", unknown.Code)
	}

	bad := doJSON(t, engine, http.MethodGet, "/api/jobs/"+id+"/events?since=abc", nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", bad.Code)
	}
}

func TestCancelEndpoints(t *testing.T) {
	engine, svc, _ := setupTestServer(t)

	unknown := doJSON(t, engine, http.MethodPost, "/api/jobs/nope/cancel", nil)
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("unknown cancel status = %d", unknown.Code)
	}

	rec := doJSON(t, engine, http.MethodPost, "/api/transcribe", gin.H{"inputPath": "/audio/song.mp3"})
	id := submissionID(t, rec)
	waitFor(t, svc, id)

	finished := doJSON(t, engine, http.MethodPost, "/api/jobs/"+id+"/cancel", nil)
	if finished.Code != http.StatusConflict {
		t.Fatalf("finished cancel status = %d", finished.Code)
	}
}

func TestStatusReportsResidentEngines(t *testing.T) {
	engine, svc, _ := setupTestServer(t)

	empty := doJSON(t, engine, http.MethodGet, "/api/status", nil)
	if empty.Code != http.StatusOK {
		t.Fatalf("status = %d", empty.Code)
	}

	rec := doJSON(t, engine, http.MethodPost, "/api/transcribe", gin.H{"inputPath": "/audio/song.mp3"})
	waitFor(t, svc, submissionID(t, rec))

	loaded := doJSON(t, engine, http.MethodGet, "/api/status", nil)
	var resp struct {
		Engines     []string                        `json:"engines"`
		Submissions []orchestrator.SubmissionStatus `json:"submissions"`
	}
	if err := json.Unmarshal(loaded.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Engines) != 1 || !strings.Contains(resp.Engines[0], "whisper") {
		t.Fatalf("engines = %v", resp.Engines)
	}
	if len(resp.Submissions) != 1 || !resp.Submissions[0].Finished {
		t.Fatalf("submissions = %+v", resp.Submissions)
	}
}
