package api

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"videoconverter/models"
)

const archiveFileName = "converted_videos.zip"

func (s *Server) downloadAll(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("zip creation error", "error", err)
		s.respondMessage(w, http.StatusInternalServerError, "Failed to generate zip file")
		return
	}

	completed := completedJobs(jobs)
	if len(completed) == 0 {
		s.respondMessage(w, http.StatusBadRequest, "No completed jobs to download")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+archiveFileName)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	added := 0
	for _, job := range completed {
		filePath := filepath.Join(s.outputDir, path.Base(*job.OutputURL))
		ok, err := addArchiveEntry(zw, filePath, job.ArchiveName())
		if err != nil {
			// Headers are already sent, the client sees a truncated archive.
			s.logger.Error("zip creation error", "job_id", job.ID, "error", err)
			return
		}
		if !ok {
			s.logger.Warn("converted file missing, skipping", "job_id", job.ID, "path", filePath)
			continue
		}
		added++
	}

	if err := zw.Close(); err != nil {
		s.logger.Error("zip creation error", "error", err)
		return
	}
	s.logger.Info("streamed converted archive", "files", added)
}

func completedJobs(jobs []*models.ConversionJob) []*models.ConversionJob {
	var out []*models.ConversionJob
	for _, job := range jobs {
		if job.Status == models.StatusCompleted && job.OutputURL != nil && *job.OutputURL != "" {
			out = append(out, job)
		}
	}
	return out
}

// addArchiveEntry copies one file into the archive. A missing file reports
// false without error.
func addArchiveEntry(zw *zip.Writer, filePath, name string) (bool, error) {
	f, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", filePath, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("zip header %s: %w", filePath, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return false, fmt.Errorf("zip copy %s: %w", name, err)
	}
	return true, nil
}
