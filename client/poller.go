package client

import (
	"context"
	"time"

	"videoconverter/models"
)

// DefaultPollInterval is how often the job list is refreshed while work is active.
const DefaultPollInterval = 2 * time.Second

type Lister interface {
	List(ctx context.Context) ([]*models.ConversionJob, error)
}

// RenderFunc receives every job list the poller fetches.
type RenderFunc func(jobs []*models.ConversionJob)

// Poller refreshes the job list while any job is pending or processing.
type Poller struct {
	lister   Lister
	render   RenderFunc
	interval time.Duration
}

func NewPoller(lister Lister, render RenderFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{lister: lister, render: render, interval: interval}
}

// Run fetches once, then keeps polling until every job is terminal. It returns
// the last list seen.
func (p *Poller) Run(ctx context.Context) ([]*models.ConversionJob, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		jobs, err := p.lister.List(ctx)
		if err != nil {
			return nil, err
		}
		if p.render != nil {
			p.render(jobs)
		}
		if !AnyActive(jobs) {
			return jobs, nil
		}

		select {
		case <-ctx.Done():
			return jobs, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AnyActive reports whether any job is still pending or processing.
func AnyActive(jobs []*models.ConversionJob) bool {
	for _, job := range jobs {
		if job.Status.IsActive() {
			return true
		}
	}
	return false
}
