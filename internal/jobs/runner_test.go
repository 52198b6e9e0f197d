package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/modelcache"
	"speechflow/internal/output"
)

// fakeRecognizer scripts per-input transcription results and lets tests
// trigger side effects (like cancellation) mid-call.
type fakeRecognizer struct {
	results      map[string]domain.TranscriptResult
	errs         map[string]error
	onTranscribe func(audioPath string)
	calls        []string
}

func (f *fakeRecognizer) Name() string                     { return "fake" }
func (f *fakeRecognizer) IsAvailable(context.Context) bool { return true }

func (f *fakeRecognizer) Transcribe(_ context.Context, audioPath string) (domain.TranscriptResult, error) {
	f.calls = append(f.calls, audioPath)
	if f.onTranscribe != nil {
		f.onTranscribe(audioPath)
	}
	if err, ok := f.errs[audioPath]; ok {
		return domain.TranscriptResult{}, err
	}
	return f.results[audioPath], nil
}

// fakeSummarizer is a summarize-only engine.
type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Name() string                     { return "fake-llm" }
func (f *fakeSummarizer) IsAvailable(context.Context) bool { return true }

func (f *fakeSummarizer) Summarize(_ context.Context, text string, maxLength int, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func testCache(t *testing.T, engine backend.Engine) *modelcache.Cache {
	t.Helper()
	loader := func(ctx context.Context, cfg domain.BackendConfig) (backend.Engine, error) {
		return engine, nil
	}
	return modelcache.New(loader, zerolog.Nop())
}

func testRunner(t *testing.T, engine backend.Engine) *Runner {
	t.Helper()
	return NewRunner(testCache(t, engine), output.NewWriter(), zerolog.Nop())
}

func whisperConfig() domain.BackendConfig {
	return domain.BackendConfig{
		Kind:    domain.BackendWhisper,
		Whisper: domain.WhisperParams{ModelPath: "/models/ggml-base.bin"},
	}
}

func transcribeJob(id, input, outputDir string) domain.Job {
	return domain.Job{
		ID:         id,
		Kind:       domain.JobKindTranscribe,
		InputPath:  input,
		OutputPath: output.Resolve(input, "", outputDir),
		Backend:    whisperConfig(),
	}
}

func TestRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeRecognizer{results: map[string]domain.TranscriptResult{
		"a.mp3": {FullText: "first transcript"},
		"b.wav": {FullText: "second transcript"},
	}}
	runner := testRunner(t, engine)
	bus := NewBus(100)

	batch := []domain.Job{
		transcribeJob("job-a", "a.mp3", dir),
		transcribeJob("job-b", "b.wav", dir),
	}
	report, err := runner.Run(context.Background(), batch, bus)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Succeeded != 2 || report.Failed != 0 || !report.Complete() {
		t.Fatalf("unexpected report: %+v", report)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if string(data) != "first transcript" {
		t.Fatalf("unexpected transcript %q", data)
	}

	var progress []float64
	for _, ev := range bus.Since(0) {
		if ev.Type == EventTypeProgress {
			progress = append(progress, ev.Percent)
		}
	}
	if len(progress) != 2 || progress[0] != 50 || progress[1] != 100 {
		t.Fatalf("unexpected progress percents: %v", progress)
	}
}

func TestRunIsolatesJobFailure(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeRecognizer{
		results: map[string]domain.TranscriptResult{
			"a.mp3": {FullText: "alpha"},
			"c.mp3": {FullText: "gamma"},
		},
		errs: map[string]error{
			"missing.wav": faults.Recognition(os.ErrNotExist, "input file does not exist"),
		},
	}
	runner := testRunner(t, engine)

	batch := []domain.Job{
		transcribeJob("job-a", "a.mp3", dir),
		transcribeJob("job-b", "missing.wav", dir),
		transcribeJob("job-c", "c.mp3", dir),
	}
	report, err := runner.Run(context.Background(), batch, NewBus(100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	failed := report.FailedOutcomes()
	if len(failed) != 1 || failed[0].JobID != "job-b" {
		t.Fatalf("unexpected failed outcomes: %+v", failed)
	}
	if !strings.Contains(failed[0].ErrorDetail, "does not exist") {
		t.Fatalf("error detail lost: %q", failed[0].ErrorDetail)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.txt")); err != nil {
		t.Fatalf("job after the failure should still produce output: %v", err)
	}
	if len(engine.calls) != 3 {
		t.Fatalf("every job should reach the engine, got calls %v", engine.calls)
	}
}

func TestRunCancelDiscardsInFlightAndSkipsRest(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	engine := &fakeRecognizer{
		results: map[string]domain.TranscriptResult{
			"a.mp3": {FullText: "alpha"},
			"b.mp3": {FullText: "beta"},
			"c.mp3": {FullText: "gamma"},
		},
		onTranscribe: func(audioPath string) {
			if audioPath == "b.mp3" {
				cancel()
			}
		},
	}
	runner := testRunner(t, engine)

	batch := []domain.Job{
		transcribeJob("job-a", "a.mp3", dir),
		transcribeJob("job-b", "b.mp3", dir),
		transcribeJob("job-c", "c.mp3", dir),
	}
	report, err := runner.Run(ctx, batch, NewBus(100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Succeeded != 1 || report.Cancelled != 2 || !report.Complete() {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatalf("completed job's output missing: %v", err)
	}
	for _, name := range []string{"b.txt", "c.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist after cancellation", name)
		}
	}
	// Job c never reached the engine.
	if len(engine.calls) != 2 {
		t.Fatalf("unexpected engine calls: %v", engine.calls)
	}
	for _, outcome := range report.Outcomes[1:] {
		if outcome.ResultText != "" || outcome.OutputPath != "" {
			t.Fatalf("cancelled outcome kept its result: %+v", outcome)
		}
	}
}

func TestRunLoadFailureFailsWholeBatch(t *testing.T) {
	loader := func(ctx context.Context, cfg domain.BackendConfig) (backend.Engine, error) {
		return nil, faults.Load(os.ErrNotExist, "whisper.cpp binary not found")
	}
	runner := NewRunner(modelcache.New(loader, zerolog.Nop()), output.NewWriter(), zerolog.Nop())

	batch := []domain.Job{
		transcribeJob("job-a", "a.mp3", ""),
		transcribeJob("job-b", "b.mp3", ""),
	}
	report, err := runner.Run(context.Background(), batch, NewBus(100))
	if !faults.Is(err, faults.KindLoad) {
		t.Fatalf("expected LOAD_ERROR, got %v", err)
	}
	if report.Failed != 2 || !report.Complete() {
		t.Fatalf("every job should be reported failed: %+v", report)
	}
	for _, outcome := range report.Outcomes {
		if !strings.Contains(outcome.ErrorDetail, "whisper.cpp binary not found") {
			t.Fatalf("outcome lost the load error: %+v", outcome)
		}
	}
}

func TestRunSummarize(t *testing.T) {
	dir := t.TempDir()
	runner := testRunner(t, &fakeSummarizer{summary: "short summary"})

	outPath := filepath.Join(dir, "summary.txt")
	batch := []domain.Job{{
		ID:         "job-s",
		Kind:       domain.JobKindSummarize,
		InputText:  "a long article body",
		OutputPath: outPath,
		Backend:    domain.BackendConfig{Kind: domain.BackendOllama},
		Summary:    domain.SummaryOptions{MaxLength: 100},
	}}
	report, err := runner.Run(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Outcomes[0].ResultText != "short summary" {
		t.Fatalf("unexpected result: %+v", report.Outcomes[0])
	}
	data, err := os.ReadFile(outPath)
	if err != nil || string(data) != "short summary" {
		t.Fatalf("summary file wrong: %q, %v", data, err)
	}
}

func TestRunCapabilityMismatch(t *testing.T) {
	runner := testRunner(t, &fakeSummarizer{summary: "x"})

	batch := []domain.Job{transcribeJob("job-a", "a.mp3", "")}
	report, err := runner.Run(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.Contains(report.Outcomes[0].ErrorDetail, "cannot transcribe") {
		t.Fatalf("unexpected error detail: %q", report.Outcomes[0].ErrorDetail)
	}
}

func TestRunSummarizeWithoutText(t *testing.T) {
	runner := testRunner(t, &fakeSummarizer{summary: "x"})

	batch := []domain.Job{{
		ID:      "job-s",
		Kind:    domain.JobKindSummarize,
		Backend: domain.BackendConfig{Kind: domain.BackendOllama},
	}}
	report, err := runner.Run(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
