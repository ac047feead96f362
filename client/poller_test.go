package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"videoconverter/models"
)

// scriptedLister returns one canned list per call and repeats the last one.
type scriptedLister struct {
	lists [][]*models.ConversionJob
	err   error
	calls int
}

func (s *scriptedLister) List(context.Context) ([]*models.ConversionJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.lists) {
		i = len(s.lists) - 1
	}
	s.calls++
	return s.lists[i], nil
}

func jobWith(id int64, status models.Status) *models.ConversionJob {
	return &models.ConversionJob{ID: id, OriginalName: "clip.avi", Status: status}
}

func TestPoller_StopsWhenAllTerminal(t *testing.T) {
	lister := &scriptedLister{lists: [][]*models.ConversionJob{
		{jobWith(1, models.StatusPending), jobWith(2, models.StatusCompleted)},
		{jobWith(1, models.StatusProcessing), jobWith(2, models.StatusCompleted)},
		{jobWith(1, models.StatusFailed), jobWith(2, models.StatusCompleted)},
	}}

	var renders int
	jobs, err := NewPoller(lister, func([]*models.ConversionJob) { renders++ }, time.Millisecond).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lister.calls != 3 || renders != 3 {
		t.Fatalf("expected 3 polls and renders, got %d and %d", lister.calls, renders)
	}
	if jobs[0].Status != models.StatusFailed {
		t.Fatalf("expected final list, got %s", jobs[0].Status)
	}
}

func TestPoller_SinglePollWhenIdle(t *testing.T) {
	lister := &scriptedLister{lists: [][]*models.ConversionJob{{}}}
	if _, err := NewPoller(lister, nil, time.Hour).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected a single poll, got %d", lister.calls)
	}
}

func TestPoller_StopsOnContext(t *testing.T) {
	lister := &scriptedLister{lists: [][]*models.ConversionJob{{jobWith(1, models.StatusProcessing)}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewPoller(lister, nil, 5*time.Millisecond).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoller_ListError(t *testing.T) {
	lister := &scriptedLister{err: errors.New("connection refused")}
	if _, err := NewPoller(lister, nil, 0).Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestNewPollerDefaultInterval(t *testing.T) {
	if p := NewPoller(&scriptedLister{}, nil, 0); p.interval != DefaultPollInterval {
		t.Fatalf("expected default interval, got %v", p.interval)
	}
}
