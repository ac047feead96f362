package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"videoconverter/models"
	"videoconverter/services"
)

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		s.respondMessage(w, http.StatusNotFound, "Job not found")
		return
	}

	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, services.ErrJobNotFound) {
		s.respondMessage(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondMessage(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			s.respondMessage(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		s.logger.Warn("invalid multipart upload", "error", err)
		s.respondMessage(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		s.respondMessage(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	inputPath, written, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("upload error", "file", header.Filename, "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	input := models.NewConversionJob{
		OriginalName: originalName(header.Filename),
		Size:         &written,
	}
	if ct := strings.TrimSpace(header.Header.Get("Content-Type")); ct != "" {
		input.MimeType = &ct
	}

	job, err := s.store.Create(r.Context(), input)
	if err != nil {
		_ = os.Remove(inputPath)
		s.logger.Error("upload error", "file", header.Filename, "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.converter.Submit(job.ID, inputPath)

	s.logger.Info("upload saved", "job_id", job.ID, "file", job.OriginalName, "size", written)
	s.respondJSON(w, http.StatusCreated, job)
}

// saveUpload stores the upload under a collision resistant name and returns its path.
func (s *Server) saveUpload(src io.Reader, filename string) (string, int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("ensure upload dir: %w", err)
	}

	name := storedUploadName(time.Now(), uuid.NewString(), filename)
	inputPath := filepath.Join(s.uploadDir, name)

	out, err := os.Create(inputPath)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	written, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(inputPath)
		if copyErr != nil {
			return "", 0, fmt.Errorf("write upload file: %w", copyErr)
		}
		return "", 0, fmt.Errorf("close upload file: %w", closeErr)
	}
	return inputPath, written, nil
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseID(r); ok {
		if err := s.store.Delete(r.Context(), id); err != nil {
			s.logger.Error("failed to delete job", "job_id", id, "error", err)
			s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.forget(r, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAllJobs(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if s.cache != nil {
		if jobs, err := s.store.List(r.Context()); err == nil {
			for _, job := range jobs {
				ids = append(ids, job.ID)
			}
		}
	}

	if err := s.store.DeleteAll(r.Context()); err != nil {
		s.logger.Error("failed to delete jobs", "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	for _, id := range ids {
		s.forget(r, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forget(r *http.Request, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(r.Context(), id); err != nil {
		s.logger.Warn("failed to drop cached status", "job_id", id, "error", err)
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// originalName keeps the client's base name; browsers may send a relative
// folder path when a whole directory is selected.
func originalName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "video"
	}
	return name
}

func storedUploadName(now time.Time, random, filename string) string {
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), strings.SplitN(random, "-", 2)[0], sanitizeFileName(filename))
}

func sanitizeFileName(name string) string {
	name = originalName(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if name == "" || strings.Trim(name, ".") == "" {
		return "video.bin"
	}
	return name
}
