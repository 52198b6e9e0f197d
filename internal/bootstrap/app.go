// Package bootstrap wires the desktop application: settings, diagnostics,
// the orchestrator and the Wails UI runtime.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"speechflow/internal/backend/registry"
	"speechflow/internal/config"
	"speechflow/internal/diagnostics"
	"speechflow/internal/domain"
	"speechflow/internal/jobs"
	"speechflow/internal/media"
	"speechflow/internal/modelcache"
	"speechflow/internal/orchestrator"
	"speechflow/internal/output"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.wav;*.flac;*.ogg;*.m4a",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var modelDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Whisper models",
		Pattern:     "*.bin;*.gguf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the orchestrator and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Service     *orchestrator.Service
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	log         zerolog.Logger

	mu         sync.Mutex
	runtimeCtx context.Context
}

// ReportStatus pairs a batch report with its completion flag for UI polling.
type ReportStatus struct {
	Finished bool               `json:"finished"`
	Report   domain.BatchReport `json:"report"`
	Error    string             `json:"error,omitempty"`
}

// New builds the application with persisted settings and startup diagnostics.
func New(log zerolog.Logger) (*App, error) {
	return NewWithAssets(nil, log)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, log zerolog.Logger) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".speechflow", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	transcoder := media.NewTranscoder(log)
	reg := registry.New(transcoder, log)
	cache := modelcache.New(reg.Loader(), log)
	runner := jobs.NewRunner(cache, output.NewWriter(), log)
	service := orchestrator.NewService(runner, 1000, log)

	return &App{
		Settings:    settings,
		Store:       store,
		Service:     service,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		log:         log,
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "SpeechFlow",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for dialog APIs.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// refreshDiagnosticsFromSettings reruns checks against specific settings.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickInputFiles opens a native multi-select dialog for batch inputs.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio files",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned, nil
}

// PickModelFile opens a native file dialog for whisper model selection.
func (a *App) PickModelFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select whisper model",
		Filters: modelDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickModelDirectory opens a native directory picker for model folders.
func (a *App) PickModelDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select model directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for transcript exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartTranscription submits a single transcription job and returns its
// submission ID.
func (a *App) StartTranscription(inputPath string) (string, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	trimmed := strings.TrimSpace(inputPath)
	if trimmed == "" {
		return "", fmt.Errorf("input path is empty")
	}

	return a.Service.SubmitJob(a.transcribeJob(trimmed, settings)), nil
}

// StartBatchTranscription submits one batch over all inputs and returns its
// submission ID.
func (a *App) StartBatchTranscription(inputPaths []string) (string, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	batch := make([]domain.Job, 0, len(inputPaths))
	for _, input := range inputPaths {
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		batch = append(batch, a.transcribeJob(trimmed, settings))
	}
	if len(batch) == 0 {
		return "", fmt.Errorf("no input files selected")
	}

	return a.Service.SubmitBatch(batch), nil
}

// SummarizeText submits a summarization job for the given text.
func (a *App) SummarizeText(text string) (string, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text is empty")
	}

	job := domain.Job{
		Kind:      domain.JobKindSummarize,
		InputText: text,
		Backend: domain.BackendConfig{
			Kind: domain.BackendOllama,
			Ollama: domain.OllamaParams{
				URL:   settings.OllamaURL,
				Model: settings.OllamaModel,
			},
		},
		Summary: domain.SummaryOptions{
			MaxLength: settings.SummaryMaxLength,
			Language:  settings.SummaryLanguage,
		},
	}
	return a.Service.SubmitJob(job), nil
}

// CancelJob requests cancellation of a running submission.
func (a *App) CancelJob(id string) error {
	return a.Service.Cancel(id)
}

// JobReport returns the submission's report and whether it finished.
func (a *App) JobReport(id string) (ReportStatus, error) {
	report, finished, err := a.Service.Report(id)
	if err == orchestrator.ErrUnknownSubmission {
		return ReportStatus{}, err
	}

	status := ReportStatus{Finished: finished, Report: report}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Service.Events(sinceSeq)
}

// transcribeJob builds a transcription job from current settings.
func (a *App) transcribeJob(inputPath string, settings domain.Settings) domain.Job {
	return domain.Job{
		Kind:       domain.JobKindTranscribe,
		InputPath:  inputPath,
		OutputPath: output.Resolve(inputPath, "", settings.OutputDir),
		Backend: domain.BackendConfig{
			Kind: domain.BackendWhisper,
			Whisper: domain.WhisperParams{
				ModelPath: settings.WhisperModelPath,
				ModelSize: settings.WhisperModelSize,
				Language:  settings.Language,
			},
		},
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.WhisperModelPath = strings.TrimSpace(settings.WhisperModelPath)
	settings.WhisperModelSize = strings.TrimSpace(settings.WhisperModelSize)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.Language = strings.TrimSpace(settings.Language)
	settings.OllamaURL = strings.TrimSpace(settings.OllamaURL)
	settings.OllamaModel = strings.TrimSpace(settings.OllamaModel)
	settings.SummaryLanguage = strings.TrimSpace(settings.SummaryLanguage)
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if settings.OllamaURL == "" {
		settings.OllamaURL = "http://localhost:11434"
	}
	if settings.OllamaModel == "" {
		settings.OllamaModel = "llama3"
	}
	if settings.SummaryMaxLength <= 0 {
		settings.SummaryMaxLength = 200
	}
	if settings.SummaryLanguage == "" {
		settings.SummaryLanguage = "chinese"
	}
	return settings
}

// ensureLocalBinOnPATH prepends the per-user bin directory so locally
// installed ffmpeg and whisper.cpp builds resolve first.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, part := range filepath.SplitList(current) {
		if part == binDir {
			return nil
		}
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// localBinDir returns the per-user tool directory.
func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".speechflow", "bin")
}

// localModelsDir returns the per-user whisper model directory.
func localModelsDir(homeDir string) string {
	return filepath.Join(homeDir, ".speechflow", "models")
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
