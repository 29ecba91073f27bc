package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// dir is a flat directory of named files with path traversal protection.
type dir struct {
	baseDir string
}

func newDir(baseDir string) (dir, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return dir{}, fmt.Errorf("create base dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return dir{}, fmt.Errorf("resolve base dir: %w", err)
	}
	return dir{baseDir: abs}, nil
}

func (d dir) filePath(name string) (string, error) {
	// Prevent path traversal
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid name: %q", name)
	}

	fullPath := filepath.Join(d.baseDir, name)
	if filepath.Dir(fullPath) != d.baseDir {
		return "", fmt.Errorf("path traversal detected: %s", name)
	}
	return fullPath, nil
}

func (d dir) exists(name string) bool {
	fullPath, err := d.filePath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// writeAtomic streams fn's output into a temp file next to name and renames
// it into place, so readers never see a partial file.
func (d dir) writeAtomic(name string, fn func(w io.Writer) error) error {
	fullPath, err := d.filePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (d dir) list(prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.baseDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		if prefix == "" || strings.HasPrefix(e.Name(), prefix) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}
