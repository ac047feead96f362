package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"videoconverter/models"
)

// MemoryStore is a JobStore kept in process memory. It mirrors the
// semantics of DatabaseService and is used by tests and throwaway runs.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	jobs   map[int64]*models.ConversionJob
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[int64]*models.ConversionJob),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, input models.NewConversionJob) (*models.ConversionJob, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job := &models.ConversionJob{
		ID:           s.nextID,
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		Size:         input.Size,
		Status:       models.StatusPending,
		Progress:     0,
		CreatedAt:    s.now().UTC(),
	}
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.ConversionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.ConversionJob, error) {
	s.mu.RLock()
	jobs := make([]*models.ConversionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, status models.Status, outputURL string, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("update status: unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !job.Status.CanTransitionTo(status) {
		return nil
	}

	switch status {
	case models.StatusProcessing:
		job.OutputURL = nil
		job.Error = nil
	case models.StatusCompleted:
		job.OutputURL = stringPtr(outputURL)
		job.Error = nil
		job.Progress = 100
	case models.StatusFailed:
		job.Error = stringPtr(errMsg)
		job.OutputURL = nil
	case models.StatusPending:
		return nil
	}
	job.Status = status
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id int64, progress int) error {
	if progress < 0 || progress > 100 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != models.StatusProcessing || progress <= job.Progress {
		return nil
	}
	job.Progress = progress
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[int64]*models.ConversionJob)
	return nil
}

func cloneJob(job *models.ConversionJob) *models.ConversionJob {
	clone := *job
	if job.MimeType != nil {
		clone.MimeType = stringPtr(*job.MimeType)
	}
	if job.Size != nil {
		v := *job.Size
		clone.Size = &v
	}
	if job.OutputURL != nil {
		clone.OutputURL = stringPtr(*job.OutputURL)
	}
	if job.Error != nil {
		clone.Error = stringPtr(*job.Error)
	}
	return &clone
}
