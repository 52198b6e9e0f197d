// Package output resolves destination paths for job results and writes
// them atomically.
package output

import (
	"os"
	"path/filepath"
	"strings"

	"speechflow/internal/faults"
)

// Writer persists job results. Writes go through a temp file in the
// destination directory plus a rename, so readers never observe a
// half-written transcript.
type Writer struct {
	mkdirAll   func(path string, perm os.FileMode) error
	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(name string) error
}

// NewWriter constructs a writer backed by the real filesystem.
func NewWriter() *Writer {
	return &Writer{
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
	}
}

// NewWriterForTests constructs a writer with injectable filesystem calls.
func NewWriterForTests(
	mkdirAll func(path string, perm os.FileMode) error,
	createTemp func(dir, pattern string) (*os.File, error),
	rename func(oldpath, newpath string) error,
	remove func(name string) error,
) *Writer {
	return &Writer{mkdirAll: mkdirAll, createTemp: createTemp, rename: rename, remove: remove}
}

// Resolve decides where a job's result lands. An explicit output path wins
// unchanged. Otherwise the input's extension is replaced with .txt, and the
// file goes next to the input unless outputDir redirects it.
func Resolve(inputPath, explicitOutput, outputDir string) string {
	if explicitOutput != "" {
		return explicitOutput
	}
	name := transcriptFileName(inputPath)
	if outputDir != "" {
		return filepath.Join(outputDir, name)
	}
	return filepath.Join(filepath.Dir(inputPath), name)
}

// transcriptFileName builds the output text filename from the input name.
func transcriptFileName(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	return name + ".txt"
}

// Write persists text to path, creating parent directories on demand. Any
// failure comes back as an IO_ERROR and leaves no partial file behind.
func (w *Writer) Write(path, text string) error {
	dir := filepath.Dir(path)
	if err := w.mkdirAll(dir, 0o755); err != nil {
		return faults.IO(err, "create output directory %s", dir)
	}

	tmp, err := w.createTemp(dir, ".speechflow-*.tmp")
	if err != nil {
		return faults.IO(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		w.remove(tmpName)
		return faults.IO(err, "write transcript to %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		w.remove(tmpName)
		return faults.IO(err, "close temp file %s", tmpName)
	}

	if err := w.rename(tmpName, path); err != nil {
		w.remove(tmpName)
		return faults.IO(err, "move transcript into place at %s", path)
	}
	return nil
}
