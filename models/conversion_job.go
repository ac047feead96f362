package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status is the lifecycle state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status %q", value)
	}
	return status, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// IsActive reports whether a job still needs watching.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusProcessing:
		return true
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// CanTransitionTo enforces pending -> processing -> {completed, failed}.
// A job may also fail before it starts processing.
func (s Status) CanTransitionTo(next Status) bool {
	for _, from := range next.AllowedFrom() {
		if from == s {
			return true
		}
	}
	return false
}

// AllowedFrom lists the states a job may be in when moving to s.
func (s Status) AllowedFrom() []Status {
	switch s {
	case StatusPending:
		return nil
	case StatusProcessing:
		return []Status{StatusPending}
	case StatusCompleted:
		return []Status{StatusProcessing}
	case StatusFailed:
		return []Status{StatusPending, StatusProcessing}
	default:
		return nil
	}
}

// ConversionJob is one uploaded file and the state of its conversion to MP4.
type ConversionJob struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     *string   `json:"mimeType"`
	Size         *int64    `json:"size"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	OutputURL    *string   `json:"outputUrl"`
	Error        *string   `json:"error"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ArchiveName is the name used for the job's artifact inside a bundle download.
func (j *ConversionJob) ArchiveName() string {
	name := j.OriginalName
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name + ".mp4"
}

// NewConversionJob carries the fields supplied when a job is created.
type NewConversionJob struct {
	OriginalName string
	MimeType     *string
	Size         *int64
}

var ErrMissingName = errors.New("original name is required")

func (n NewConversionJob) Validate() error {
	if strings.TrimSpace(n.OriginalName) == "" {
		return ErrMissingName
	}
	return nil
}
