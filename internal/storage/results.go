package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zerverless/tabular/internal/table"
)

// ResultStore owns the CSV artifacts produced by completed jobs. An
// artifact is keyed by the job that produced it, so persisting the same job
// twice yields the same ref.
type ResultStore struct {
	dir dir
}

func NewResultStore(baseDir string) (*ResultStore, error) {
	d, err := newDir(baseDir)
	if err != nil {
		return nil, err
	}
	return &ResultStore{dir: d}, nil
}

// ArtifactName returns the ref under which jobID's output is stored.
func ArtifactName(jobID, operation string) string {
	return fmt.Sprintf("%s_%s.csv", jobID, operation)
}

// Persist writes t and returns its ref. The artifact becomes visible only
// once it is completely written.
func (s *ResultStore) Persist(jobID, operation string, t *table.Table) (string, error) {
	ref := ArtifactName(jobID, operation)
	err := s.dir.writeAtomic(ref, func(w io.Writer) error {
		return table.WriteCSV(w, t)
	})
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", ref, err)
	}
	return ref, nil
}

func (s *ResultStore) Exists(ref string) bool {
	return s.dir.exists(ref)
}

// Open returns the artifact for download. The caller closes it.
func (s *ResultStore) Open(ref string) (*os.File, error) {
	fullPath, err := s.dir.filePath(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, ref)
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, ref)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// FetchPreview streams at most limit rows from the artifact.
func (s *ResultStore) FetchPreview(ref string, limit int) (*table.Table, error) {
	f, err := s.Open(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rr, err := table.NewRowReader(f)
	if err != nil {
		return nil, err
	}

	t := table.New(rr.Header())
	for len(t.Rows) < limit {
		r, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}

// CountRows streams the artifact and counts its data rows.
func (s *ResultStore) CountRows(ref string) (int, error) {
	f, err := s.Open(ref)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rr, err := table.NewRowReader(f)
	if err != nil {
		return 0, err
	}

	var n int
	for {
		_, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (s *ResultStore) Remove(ref string) error {
	fullPath, err := s.dir.filePath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, ref)
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *ResultStore) List(prefix string) ([]string, error) {
	return s.dir.list(prefix)
}
