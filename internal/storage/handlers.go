package storage

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/zerverless/tabular/internal/logging"
	"github.com/zerverless/tabular/internal/table"
)

type Handlers struct {
	files    *FileStore
	results  *ResultStore
	maxBytes int64
}

func NewHandlers(files *FileStore, results *ResultStore, maxBytes int64) *Handlers {
	return &Handlers{files: files, results: results, maxBytes: maxBytes}
}

// Upload accepts a multipart "file" field and stores it as a new source file.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer file.Close()

	id, err := h.files.Save(filepath.Ext(header.Filename), file, h.maxBytes)
	if err != nil {
		var fe *table.FormatError
		switch {
		case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrFileTooLarge):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.As(err, &fe):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fe.Error()})
		default:
			logging.FromContext(r.Context()).Error("upload failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Upload failed"})
		}
		return
	}

	logging.FromContext(r.Context()).Info("file uploaded",
		"file_id", id,
		"filename", header.Filename,
		"size", header.Size,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "File uploaded successfully",
		"file_id": id,
	})
}

// Download streams a processed artifact.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	f, err := h.results.Open(name)
	if err != nil {
		if !errors.Is(err, ErrArtifactNotFound) {
			slog.Error("open artifact", "name", name, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		slog.Warn("download interrupted", "name", name, "error", err)
	}
}

type ListResponse struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	files, err := h.results.List(prefix)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Files: files,
		Count: len(files),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
