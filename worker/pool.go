package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"videoconverter/models"
	"videoconverter/services"
)

// OutputPrefix is prepended to every converted file name.
const OutputPrefix = "converted_"

// InterruptedMessage is recorded on jobs that were still active when the
// previous server process stopped.
const InterruptedMessage = "Conversion interrupted by server restart"

// StatusPublisher receives a copy of every state change the pool writes.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, id int64, status models.Status, outputURL, errMsg string) error
	PublishProgress(ctx context.Context, id int64, progress int) error
}

type Options struct {
	OutputDir    string
	PublicPrefix string
	// Publisher and Archive are optional.
	Publisher StatusPublisher
	Archive   services.ArtifactArchive
	Logger    *slog.Logger
}

// Pool runs one background conversion per submitted job. There is no cap
// on concurrent conversions and no retry.
type Pool struct {
	store        services.JobStore
	transcoder   services.Transcoder
	publisher    StatusPublisher
	archive      services.ArtifactArchive
	outputDir    string
	publicPrefix string
	logger       *slog.Logger

	wg sync.WaitGroup
}

func NewPool(store services.JobStore, transcoder services.Transcoder, opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := "/" + strings.Trim(opts.PublicPrefix, "/")
	return &Pool{
		store:        store,
		transcoder:   transcoder,
		publisher:    opts.Publisher,
		archive:      opts.Archive,
		outputDir:    opts.OutputDir,
		publicPrefix: prefix,
		logger:       logger,
	}
}

// Submit starts converting the job in the background and returns at once.
func (p *Pool) Submit(jobID int64, inputPath string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Process(context.Background(), jobID, inputPath); err != nil {
			p.logger.Error("background processing error", "job_id", jobID, "error", err)
		}
	}()
}

// Wait blocks until every submitted conversion has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutputName derives the converted file name from the stored upload name.
func OutputName(inputPath string) string {
	base := filepath.Base(inputPath)
	return OutputPrefix + strings.TrimSuffix(base, filepath.Ext(base)) + ".mp4"
}

// Process converts one job. Every failure is recorded on the job; the
// returned error only tells the caller what to log.
func (p *Pool) Process(ctx context.Context, jobID int64, inputPath string) (err error) {
	logger := p.logger.With("job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panicked: %v", r)
			p.fail(ctx, logger, jobID, err.Error())
		}
	}()

	if _, getErr := p.store.Get(ctx, jobID); getErr != nil {
		if errors.Is(getErr, services.ErrJobNotFound) {
			logger.Info("job vanished before conversion started")
			return nil
		}
		p.fail(ctx, logger, jobID, getErr.Error())
		return fmt.Errorf("load job: %w", getErr)
	}

	if err := p.setStatus(ctx, jobID, models.StatusProcessing, "", ""); err != nil {
		p.fail(ctx, logger, jobID, err.Error())
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		p.fail(ctx, logger, jobID, err.Error())
		return fmt.Errorf("create output directory: %w", err)
	}

	outputName := OutputName(inputPath)
	outputPath := filepath.Join(p.outputDir, outputName)
	publicURL := path.Join(p.publicPrefix, outputName)

	logger.Info("starting conversion", "input", inputPath, "output", outputPath)
	startTime := time.Now()

	tracker := &progressTracker{}
	err = p.transcoder.Transcode(ctx, inputPath, outputPath, func(percent float64) {
		value, ok := tracker.accept(percent)
		if !ok {
			return
		}
		if err := p.store.UpdateProgress(ctx, jobID, value); err != nil {
			logger.Warn("failed to store progress", "progress", value, "error", err)
			return
		}
		p.publishProgress(ctx, logger, jobID, value)
	})
	if err != nil {
		p.fail(ctx, logger, jobID, err.Error())
		return err
	}

	if p.archive != nil {
		if key, archiveErr := p.archive.Archive(ctx, outputPath); archiveErr != nil {
			logger.Warn("failed to archive converted file", "output", outputPath, "error", archiveErr)
		} else {
			logger.Info("archived converted file", "key", key)
		}
	}

	if err := p.setStatus(ctx, jobID, models.StatusCompleted, publicURL, ""); err != nil {
		p.fail(ctx, logger, jobID, err.Error())
		return fmt.Errorf("mark completed: %w", err)
	}

	logger.Info("conversion completed", "output_url", publicURL, "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// RecoverInterrupted fails jobs left pending or processing by a previous
// process, since nothing will ever finish them.
func (p *Pool) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := p.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if !job.Status.IsActive() {
			continue
		}
		if err := p.setStatus(ctx, job.ID, models.StatusFailed, "", InterruptedMessage); err != nil {
			return recovered, fmt.Errorf("fail job %d: %w", job.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		p.logger.Info("marked interrupted jobs as failed", "count", recovered)
	}
	return recovered, nil
}

func (p *Pool) setStatus(ctx context.Context, jobID int64, status models.Status, outputURL, errMsg string) error {
	if err := p.store.UpdateStatus(ctx, jobID, status, outputURL, errMsg); err != nil {
		return err
	}
	if p.publisher != nil {
		if err := p.publisher.PublishStatus(ctx, jobID, status, outputURL, errMsg); err != nil {
			p.logger.Warn("failed to publish status", "job_id", jobID, "status", status, "error", err)
		}
	}
	return nil
}

func (p *Pool) publishProgress(ctx context.Context, logger *slog.Logger, jobID int64, progress int) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishProgress(ctx, jobID, progress); err != nil {
		logger.Warn("failed to publish progress", "error", err)
	}
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, jobID int64, msg string) {
	if msg == "" {
		msg = "Unknown error"
	}
	logger.Error("conversion failed", "error", msg)
	if err := p.setStatus(ctx, jobID, models.StatusFailed, "", msg); err != nil {
		logger.Error("failed to record failure", "error", err)
	}
}

// progressTracker filters transcoder progress down to values worth storing:
// rounded, within (0, 100], and strictly above the last accepted value.
type progressTracker struct {
	mu   sync.Mutex
	last int
}

func (t *progressTracker) accept(percent float64) (int, bool) {
	if math.IsNaN(percent) {
		return 0, false
	}
	value := int(math.Round(percent))
	if value <= 0 || value > 100 {
		return 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if value <= t.last {
		return 0, false
	}
	t.last = value
	return value, true
}
