package services

import (
	"context"
	"errors"

	"videoconverter/models"
)

// ErrJobNotFound is returned by Get when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists conversion jobs.
//
// UpdateStatus and UpdateProgress are best effort: updates to unknown ids, or
// updates that would break the job lifecycle, are silently ignored because the
// worker may race a deletion.
type JobStore interface {
	Create(ctx context.Context, job models.NewConversionJob) (*models.ConversionJob, error)
	Get(ctx context.Context, id int64) (*models.ConversionJob, error)
	List(ctx context.Context) ([]*models.ConversionJob, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status, outputURL string, errMsg string) error
	UpdateProgress(ctx context.Context, id int64, progress int) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

func stringPtr(s string) *string {
	return &s
}
