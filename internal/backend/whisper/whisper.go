// Package whisper runs speech recognition through the whisper.cpp CLI.
package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/media"
)

// Engine is a loaded whisper.cpp recognizer bound to one resolved model file.
// Loading verifies the binary and model up front so acquire fails before any
// job runs, not in the middle of a batch.
type Engine struct {
	binaryPath string
	modelPath  string
	language   string
	runner     media.Runner
	transcoder *media.Transcoder
	mkdirTemp  func(dir, pattern string) (string, error)
	stat       func(name string) (os.FileInfo, error)
	readDir    func(name string) ([]os.DirEntry, error)
	readFile   func(name string) ([]byte, error)
	lookPath   func(file string) (string, error)
	log        zerolog.Logger
}

// Option overrides an Engine dependency, used by tests.
type Option func(*Engine)

// WithRunner replaces the process runner.
func WithRunner(r media.Runner) Option { return func(e *Engine) { e.runner = r } }

// WithLookPath replaces binary resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Engine) { e.lookPath = fn }
}

// WithOSDeps replaces filesystem dependencies.
func WithOSDeps(stat func(string) (os.FileInfo, error), readDir func(string) ([]os.DirEntry, error), readFile func(string) ([]byte, error)) Option {
	return func(e *Engine) {
		e.stat = stat
		e.readDir = readDir
		e.readFile = readFile
	}
}

// Load resolves the whisper.cpp binary and model file for the given config.
// It returns a LOAD_ERROR fault when either is unusable.
func Load(cfg domain.WhisperParams, transcoder *media.Transcoder, log zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		binaryPath: "whisper.cpp",
		language:   cfg.Language,
		runner:     &media.ExecRunner{},
		transcoder: transcoder,
		mkdirTemp:  os.MkdirTemp,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		readFile:   os.ReadFile,
		lookPath:   exec.LookPath,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := e.lookPath(e.binaryPath); err != nil {
		return nil, faults.Load(err, "whisper.cpp binary not found in PATH")
	}

	modelPath, err := e.resolveModelPath(cfg)
	if err != nil {
		return nil, faults.Load(err, "resolve whisper model")
	}
	e.modelPath = modelPath

	return e, nil
}

// Name returns the backend label including the resolved model file.
func (e *Engine) Name() string {
	return "whisper:" + filepath.Base(e.modelPath)
}

// IsAvailable reports whether the model file is still present.
func (e *Engine) IsAvailable(context.Context) bool {
	_, err := e.stat(e.modelPath)
	return err == nil
}

// Transcribe normalizes the audio, invokes whisper.cpp with txt export, and
// reads back the transcript. The export lands in a private temp dir; output
// persistence stays with the caller.
func (e *Engine) Transcribe(ctx context.Context, audioPath string) (domain.TranscriptResult, error) {
	if _, err := e.stat(audioPath); err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "cannot access input audio: %s", audioPath)
	}

	audio := audioPath
	var convertDir string
	if e.transcoder != nil {
		audio, convertDir = e.transcoder.Convert(ctx, audioPath)
		defer media.Cleanup(convertDir)
	}

	workDir, err := e.mkdirTemp("", "speechflow-whisper-*")
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "create transcript workspace")
	}
	defer media.Cleanup(workDir)

	textBase := filepath.Join(workDir, "transcript")
	args := buildArgs(e.modelPath, audio, textBase, e.language)

	result, runErr := e.runner.Run(ctx, e.binaryPath, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return domain.TranscriptResult{}, faults.Cancelled("whisper.cpp interrupted")
		}
		e.log.Debug().Int("exit_code", result.ExitCode).Str("stderr", result.Stderr).Msg("whisper.cpp failed")
		return domain.TranscriptResult{}, faults.Recognition(runErr,
			"whisper.cpp transcription failed (exit=%d)", result.ExitCode)
	}

	content, err := e.readFile(textBase + ".txt")
	if err != nil {
		return domain.TranscriptResult{}, faults.Recognition(err, "whisper.cpp completed but transcript file is missing")
	}

	return domain.TranscriptResult{FullText: strings.TrimSpace(string(content))}, nil
}

// resolveModelPath returns the model file from an explicit file, a model
// directory (first .bin/.gguf in sorted order), or a size preset resolved
// against the directory.
func (e *Engine) resolveModelPath(cfg domain.WhisperParams) (string, error) {
	modelPath := strings.TrimSpace(cfg.ModelPath)
	if modelPath == "" {
		return "", fmt.Errorf("whisper model path is required")
	}

	info, err := e.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := e.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	size := strings.TrimSpace(cfg.ModelSize)
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".bin" && ext != ".gguf" {
			continue
		}
		if size != "" && !strings.Contains(entry.Name(), size) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}
	if len(candidates) == 0 {
		if size != "" {
			return "", fmt.Errorf("no %q model file found in: %s", size, modelPath)
		}
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(candidates)
	return filepath.Join(modelPath, candidates[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildArgs builds whisper.cpp args for txt transcript export.
func buildArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}
