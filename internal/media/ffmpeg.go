// Package media shells out to ffmpeg to normalize audio before recognition.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Transcoder converts arbitrary audio/video input to 16kHz mono PCM WAV, the
// format the recognition engines expect. Conversion is opportunistic: when
// ffmpeg is missing or fails, recognizers fall back to the original file.
type Transcoder struct {
	ffmpegPath string
	runner     Runner
	mkdirTemp  func(dir, pattern string) (string, error)
	stat       func(name string) (os.FileInfo, error)
	log        zerolog.Logger
}

// NewTranscoder constructs a transcoder using the real ffmpeg binary.
func NewTranscoder(log zerolog.Logger) *Transcoder {
	return &Transcoder{
		ffmpegPath: "ffmpeg",
		runner:     &ExecRunner{},
		mkdirTemp:  os.MkdirTemp,
		stat:       os.Stat,
		log:        log,
	}
}

// NewTranscoderForTests constructs a transcoder with injected dependencies.
func NewTranscoderForTests(ffmpegPath string, runner Runner, mkdirTemp func(dir, pattern string) (string, error), stat func(string) (os.FileInfo, error)) *Transcoder {
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirTemp:  mkdirTemp,
		stat:       stat,
		log:        zerolog.Nop(),
	}
}

// Convert transcodes inputPath into a temporary WAV file and returns its path
// plus the temp directory for later cleanup. On any failure it returns the
// original input path and an empty temp dir; the error is logged, not
// propagated, because recognition may still succeed on the original file.
func (t *Transcoder) Convert(ctx context.Context, inputPath string) (audioPath, tempDir string) {
	dir, err := t.mkdirTemp("", "speechflow-*")
	if err != nil {
		t.log.Warn().Err(err).Msg("transcode skipped: cannot create temp workspace")
		return inputPath, ""
	}

	outPath := filepath.Join(dir, "preprocessed-16k-mono.wav")
	args := buildFFmpegArgs(inputPath, outPath)

	result, runErr := t.runner.Run(ctx, t.ffmpegPath, args...)
	if runErr != nil {
		t.log.Warn().
			Err(runErr).
			Int("exit_code", result.ExitCode).
			Str("input", inputPath).
			Msg("transcode failed, using original file")
		_ = os.RemoveAll(dir)
		return inputPath, ""
	}

	if _, err := t.stat(outPath); err != nil {
		t.log.Warn().Str("input", inputPath).Msg("transcode produced no output, using original file")
		_ = os.RemoveAll(dir)
		return inputPath, ""
	}

	return outPath, dir
}

// Cleanup removes a temp directory returned by Convert. Empty dirs are a no-op.
func Cleanup(tempDir string) {
	if strings.TrimSpace(tempDir) == "" {
		return
	}
	_ = os.RemoveAll(tempDir)
}

// buildFFmpegArgs builds CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// ProbeTool reports whether the configured ffmpeg binary looks invocable.
func (t *Transcoder) ProbeTool(ctx context.Context) error {
	if _, err := t.runner.Run(ctx, t.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not invocable: %w", err)
	}
	return nil
}
