package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/zerverless/tabular/internal/table"
)

// ErrUnsupportedFormat and ErrFileTooLarge reject uploads.
var (
	ErrUnsupportedFormat = errors.New("invalid file format. Only CSV and Excel files are allowed")
	ErrFileTooLarge      = errors.New("file size exceeds maximum allowed size")
)

// FileStore holds uploaded source files, named "<file_id><ext>".
type FileStore struct {
	dir dir
}

func NewFileStore(baseDir string) (*FileStore, error) {
	d, err := newDir(baseDir)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: d}, nil
}

// Save validates and stores an upload, returning its new file ID. The
// header is parsed before the file becomes resolvable.
func (s *FileStore) Save(ext string, r io.Reader, maxBytes int64) (string, error) {
	ext = strings.ToLower(ext)
	format, ok := table.FormatFromExt(ext)
	if !ok {
		return "", ErrUnsupportedFormat
	}

	id := uuid.NewString()
	name := id + "." + string(format)

	err := s.dir.writeAtomic(name, func(w io.Writer) error {
		src := r
		if maxBytes > 0 {
			src = &io.LimitedReader{R: r, N: maxBytes + 1}
		}
		n, err := io.Copy(w, src)
		if err != nil {
			return fmt.Errorf("write upload: %w", err)
		}
		if maxBytes > 0 && n > maxBytes {
			return ErrFileTooLarge
		}

		f, ok := w.(*os.File)
		if !ok {
			return nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload: %w", err)
		}
		_, err = table.ReadHeader(f, format)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Resolve returns the on-disk path of an uploaded file.
func (s *FileStore) Resolve(fileID string) (string, error) {
	for _, format := range []table.Format{table.FormatCSV, table.FormatXLSX} {
		name := fileID + "." + string(format)
		if s.dir.exists(name) {
			return s.dir.filePath(name)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
}
