// Package ingest loads document source text from disk for the full_text pass.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// FileReadError is a document whose source file could not be loaded.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

var (
	errIsDirectory = errors.New("is a directory")
	errInvalidUTF8 = errors.New("not valid UTF-8")
)

// Reader resolves document paths against BaseDir.
type Reader struct {
	BaseDir string
}

// NewReader returns a Reader rooted at the current working directory.
func NewReader() (Reader, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Reader{}, fmt.Errorf("resolving working directory: %w", err)
	}
	return Reader{BaseDir: wd}, nil
}

// Resolve returns the on-disk path for a stored relative path.
func (r Reader) Resolve(relPath string) string {
	return filepath.Join(r.BaseDir, relPath)
}

// Read returns the file contents verbatim. Every failure is a *FileReadError.
func (r Reader) Read(relPath string) (string, error) {
	path := r.Resolve(relPath)

	info, err := os.Stat(path)
	if err != nil {
		return "", &FileReadError{Path: relPath, Err: err}
	}
	if info.IsDir() {
		return "", &FileReadError{Path: relPath, Err: errIsDirectory}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileReadError{Path: relPath, Err: err}
	}
	if !utf8.Valid(data) {
		return "", &FileReadError{Path: relPath, Err: errInvalidUTF8}
	}
	return string(data), nil
}
