package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"speechflow/internal/backend/registry"
	"speechflow/internal/config"
	"speechflow/internal/domain"
	"speechflow/internal/jobs"
	"speechflow/internal/logging"
	"speechflow/internal/media"
	"speechflow/internal/modelcache"
	"speechflow/internal/orchestrator"
	"speechflow/internal/output"
)

var audioExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"}

type options struct {
	input       string
	outputDir   string
	backendKind string
	modelPath   string
	modelSize   string
	language    string

	funasrModel    string
	funasrRevision string
	funasrHub      string
	funasrVAD      bool
	funasrPunc     bool
	funasrSpeaker  bool
	modelscopeID   string
	sidecarURL     string

	summarize    bool
	textFile     string
	ollamaURL    string
	ollamaModel  string
	llmURL       string
	llmModel     string
	llmAPIKey    string
	summaryLen   int
	summaryLang  string
	summaryOut   string
}

func main() {
	log := logging.New("speechflow-cli")
	defaults := config.DefaultSettings()

	var opts options
	flag.StringVar(&opts.input, "i", "", "audio file or directory to transcribe")
	flag.StringVar(&opts.outputDir, "o", defaults.OutputDir, "directory for transcript files")
	flag.StringVar(&opts.backendKind, "backend", "whisper", "recognizer backend: whisper, funasr or modelscope")
	flag.StringVar(&opts.modelPath, "m", defaults.WhisperModelPath, "whisper model file or directory")
	flag.StringVar(&opts.modelSize, "size", defaults.WhisperModelSize, "whisper model size")
	flag.StringVar(&opts.language, "lang", defaults.Language, "spoken language, or auto")
	flag.StringVar(&opts.funasrModel, "funasr-model", "paraformer-zh", "FunASR model name")
	flag.StringVar(&opts.funasrRevision, "funasr-revision", "", "FunASR model revision")
	flag.StringVar(&opts.funasrHub, "funasr-hub", "", "FunASR model hub (ms or hf)")
	flag.BoolVar(&opts.funasrVAD, "funasr-vad", true, "enable FunASR voice activity detection")
	flag.BoolVar(&opts.funasrPunc, "funasr-punc", true, "enable FunASR punctuation restoration")
	flag.BoolVar(&opts.funasrSpeaker, "funasr-spk", false, "enable FunASR speaker diarization")
	flag.StringVar(&opts.modelscopeID, "modelscope-model", "", "ModelScope model id")
	flag.StringVar(&opts.sidecarURL, "sidecar-url", "", "FunASR/ModelScope sidecar base URL")
	flag.BoolVar(&opts.summarize, "summarize", false, "summarize a text file instead of transcribing")
	flag.StringVar(&opts.textFile, "text", "", "text file to summarize (with -summarize)")
	flag.StringVar(&opts.ollamaURL, "ollama-url", defaults.OllamaURL, "Ollama base URL")
	flag.StringVar(&opts.ollamaModel, "ollama-model", defaults.OllamaModel, "Ollama model name")
	flag.StringVar(&opts.llmURL, "llm-url", "", "OpenAI-format chat completions URL (overrides Ollama)")
	flag.StringVar(&opts.llmModel, "llm-model", "", "model name for -llm-url")
	flag.StringVar(&opts.llmAPIKey, "llm-key", "", "API key for -llm-url")
	flag.IntVar(&opts.summaryLen, "summary-length", defaults.SummaryMaxLength, "summary length hint in words")
	flag.StringVar(&opts.summaryLang, "summary-lang", defaults.SummaryLanguage, "summary language")
	flag.StringVar(&opts.summaryOut, "summary-out", "", "file to write the summary to (default stdout only)")
	flag.Parse()

	batch, err := buildBatch(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	transcoder := media.NewTranscoder(log)
	reg := registry.New(transcoder, log)
	cache := modelcache.New(reg.Loader(), log)
	runner := jobs.NewRunner(cache, output.NewWriter(), log)
	svc := orchestrator.NewService(runner, 500, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := svc.SubmitBatch(batch)
	go func() {
		<-ctx.Done()
		_ = svc.Cancel(id)
	}()

	stopPrinter := make(chan struct{})
	printerDone := make(chan struct{})
	go printEvents(svc, stopPrinter, printerDone)

	report, err := svc.Wait(context.Background(), id)
	close(stopPrinter)
	<-printerDone
	if err != nil {
		log.Fatal().Err(err).Msg("batch did not run")
	}

	printReport(report)
	if report.Failed > 0 {
		os.Exit(1)
	}
}

// buildBatch turns the parsed flags into one submission-ready job batch.
func buildBatch(opts options) ([]domain.Job, error) {
	if opts.summarize {
		return buildSummarizeBatch(opts)
	}
	if opts.input == "" {
		return nil, fmt.Errorf("no input: pass -i <file-or-directory>")
	}

	inputs, err := collectInputs(opts.input)
	if err != nil {
		return nil, err
	}

	backend, err := recognizerBackend(opts)
	if err != nil {
		return nil, err
	}

	batch := make([]domain.Job, 0, len(inputs))
	for _, input := range inputs {
		batch = append(batch, domain.Job{
			ID:         uuid.NewString(),
			Kind:       domain.JobKindTranscribe,
			InputPath:  input,
			OutputPath: output.Resolve(input, "", opts.outputDir),
			Backend:    backend,
		})
	}
	return batch, nil
}

func buildSummarizeBatch(opts options) ([]domain.Job, error) {
	if opts.textFile == "" {
		return nil, fmt.Errorf("summarize mode needs -text <file>")
	}
	raw, err := os.ReadFile(opts.textFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.textFile, err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("%s is empty", opts.textFile)
	}

	backend := domain.BackendConfig{
		Kind:   domain.BackendOllama,
		Ollama: domain.OllamaParams{URL: opts.ollamaURL, Model: opts.ollamaModel},
	}
	if opts.llmURL != "" {
		backend = domain.BackendConfig{
			Kind:      domain.BackendCustomLLM,
			CustomLLM: domain.CustomLLMParams{URL: opts.llmURL, Model: opts.llmModel, APIKey: opts.llmAPIKey},
		}
	}

	return []domain.Job{{
		ID:         uuid.NewString(),
		Kind:       domain.JobKindSummarize,
		InputText:  text,
		OutputPath: opts.summaryOut,
		Backend:    backend,
		Summary:    domain.SummaryOptions{MaxLength: opts.summaryLen, Language: opts.summaryLang},
	}}, nil
}

func recognizerBackend(opts options) (domain.BackendConfig, error) {
	switch domain.BackendKind(opts.backendKind) {
	case domain.BackendWhisper:
		return domain.BackendConfig{
			Kind: domain.BackendWhisper,
			Whisper: domain.WhisperParams{
				ModelPath: opts.modelPath,
				ModelSize: opts.modelSize,
				Language:  opts.language,
			},
		}, nil
	case domain.BackendFunASR:
		return domain.BackendConfig{
			Kind: domain.BackendFunASR,
			FunASR: domain.FunASRParams{
				Model:      opts.funasrModel,
				Revision:   opts.funasrRevision,
				UseVAD:     opts.funasrVAD,
				UsePunc:    opts.funasrPunc,
				UseSpeaker: opts.funasrSpeaker,
				Hub:        opts.funasrHub,
				SidecarURL: opts.sidecarURL,
			},
		}, nil
	case domain.BackendModelScope:
		return domain.BackendConfig{
			Kind: domain.BackendModelScope,
			ModelScope: domain.ModelScopeParams{
				ModelID:    opts.modelscopeID,
				SidecarURL: opts.sidecarURL,
			},
		}, nil
	default:
		return domain.BackendConfig{}, fmt.Errorf("unknown backend %q", opts.backendKind)
	}
}

// collectInputs expands a directory into its audio files, sorted by name.
// A single file is accepted as-is regardless of extension.
func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}

	var inputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, allowed := range audioExtensions {
			if ext == allowed {
				inputs = append(inputs, filepath.Join(path, entry.Name()))
				break
			}
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no audio files in %s", path)
	}
	sort.Strings(inputs)
	return inputs, nil
}

// printEvents polls the event bus and echoes progress and log lines to
// stderr until stop closes, draining once more before returning.
func printEvents(svc *orchestrator.Service, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var since int64
	for {
		since = printNewEvents(svc, since)
		select {
		case <-stop:
			printNewEvents(svc, since)
			return
		case <-ticker.C:
		}
	}
}

func printNewEvents(svc *orchestrator.Service, since int64) int64 {
	for _, ev := range svc.Events(since) {
		since = ev.Seq
		switch ev.Type {
		case jobs.EventTypeProgress:
			fmt.Fprintf(os.Stderr, "progress %3.0f%% (%d/%d)\n", ev.Percent, ev.Completed, ev.Total)
		case jobs.EventTypeLog:
			fmt.Fprintln(os.Stderr, ev.Message)
		}
	}
	return since
}

func printReport(report domain.BatchReport) {
	for _, outcome := range report.Outcomes {
		switch outcome.State {
		case domain.JobStateSucceeded:
			target := outcome.OutputPath
			if target == "" {
				target = outcome.ResultText
			}
			fmt.Printf("ok       %s -> %s\n", outcome.Input, target)
		case domain.JobStateCancelled:
			fmt.Printf("cancelled %s\n", outcome.Input)
		default:
			fmt.Printf("failed   %s: %s\n", outcome.Input, outcome.ErrorDetail)
		}
	}
	fmt.Printf("%d total, %d succeeded, %d failed, %d cancelled\n",
		report.Total, report.Succeeded, report.Failed, report.Cancelled)
}
