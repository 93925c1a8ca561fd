// ABOUTME: File upload endpoint and file-mapping lookups
// ABOUTME: Uploaded bytes land in the upload dir under a generated file ID

package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lanternops/agentadmin/internal/auth"
	"github.com/lanternops/agentadmin/internal/store"
)

// maxUploadSize bounds a single uploaded file.
const maxUploadSize = 50 << 20

type fileResponse struct {
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
}

func fileOut(m *store.FileMapping) fileResponse {
	return fileResponse{
		FileID: m.ID, OriginalName: m.OriginalName, FileType: m.FileType,
		FileSize: m.FileSize, CreatedAt: m.CreatedAt,
	}
}

// handleFileUpload stores a multipart file under a generated ID and
// records a mapping back to the original name. The stored name never uses
// client input, so a crafted filename cannot escape the upload dir.
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		fail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		s.logger.Error("creating upload dir failed", "dir", s.opts.UploadDir, "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	fileID := uuid.NewString()
	dest := filepath.Join(s.opts.UploadDir, fileID+filepath.Ext(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		s.logger.Error("creating upload file failed", "path", dest, "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		s.logger.Error("writing upload failed", "path", dest, "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	mapping := &store.FileMapping{
		ID:           fileID,
		OriginalName: header.Filename,
		FileType:     header.Header.Get("Content-Type"),
		FileSize:     size,
		FilePath:     dest,
		UserID:       id.ID,
	}
	if err := s.store.CreateFileMapping(r.Context(), mapping); err != nil {
		os.Remove(dest)
		failStore(w, err)
		return
	}

	s.logger.Info("file uploaded",
		"file_id", fileID, "name", header.Filename, "size", size, "user_id", id.ID)
	success(w, fileOut(mapping))
}

// handleFileGet returns the mapping record for one uploaded file.
func (s *Server) handleFileGet(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		fail(w, http.StatusBadRequest, "invalid file_id")
		return
	}
	mapping, err := s.store.GetFileMapping(r.Context(), fileID)
	if err != nil {
		failStore(w, err)
		return
	}
	success(w, fileOut(mapping))
}
