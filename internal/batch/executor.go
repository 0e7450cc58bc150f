// Package batch applies an ordered list of operations to a selection of photos.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

var (
	// ErrBatchRunning is returned when Run is called while another run is in progress.
	ErrBatchRunning = errors.New("batch: a run is already in progress")

	errMissingStore   = errors.New("image store is required")
	errMissingBackend = errors.New("catalog backend is required")
)

// Store reads and replaces stored images by filename.
type Store interface {
	OpenImage(filename string) (image.Image, error)
	OverwriteImage(filename string, img image.Image) error
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// Progress is reported after every step, successful or not.
type Progress struct {
	JobID     string
	Completed int
	Total     int
	PhotoID   int64
	Operation string
	Err       error
}

// StepError records one failed (photo, operation) step.
type StepError struct {
	PhotoID   int64
	Filename  string
	Operation string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("photo %d (%s): %s: %v", e.PhotoID, e.Filename, e.Operation, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Code() string {
	return "batch.step.failed"
}

// Result summarises a run.
type Result struct {
	JobID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Attempted  int
	Failed     int
	Errors     []StepError
}

// Succeeded is the number of steps that completed without error.
func (r Result) Succeeded() int {
	return r.Attempted - r.Failed
}

// ProgressFunc receives progress updates on the caller's goroutine.
type ProgressFunc func(Progress)

type ExecutorConfig struct {
	Store      Store
	Backend    catalog.Backend
	Recorder   Recorder
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Executor runs batch jobs one at a time.
type Executor struct {
	store      Store
	backend    catalog.Backend
	recorder   Recorder
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	running    atomic.Bool
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:      cfg.Store,
		backend:    cfg.Backend,
		recorder:   cfg.Recorder,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Run applies every operation to every photo, photo-major. Step failures are
// collected and never stop the run. Invalid jobs are rejected before any step.
func (e *Executor) Run(ctx context.Context, photos []catalog.PhotoRecord, ops []Operation, progress ProgressFunc) (Result, error) {
	if err := validateJob(photos, ops); err != nil {
		return Result{}, err
	}
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrBatchRunning
	}
	defer e.running.Store(false)

	jobID, err := e.idProvider.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("batch: allocate job id: %w", err)
	}

	result := Result{
		JobID:     jobID,
		StartedAt: e.clock().UTC(),
		Total:     len(photos) * len(ops),
	}
	logger := e.logger.With(zap.String("job_id", jobID))
	logger.Info("batch started",
		zap.Int("photos", len(photos)),
		zap.Int("operations", len(ops)),
		zap.Int("total_steps", result.Total),
	)

	for _, photo := range photos {
		for _, op := range ops {
			stepErr := e.step(ctx, photo, op)
			result.Attempted++
			if stepErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, StepError{
					PhotoID:   photo.ID,
					Filename:  photo.Filename,
					Operation: op.String(),
					Err:       stepErr,
				})
				logger.Warn("batch step failed",
					zap.Int64("photo_id", photo.ID),
					zap.String("operation", op.String()),
					zap.Error(stepErr),
				)
			}
			if progress != nil {
				progress(Progress{
					JobID:     jobID,
					Completed: result.Attempted,
					Total:     result.Total,
					PhotoID:   photo.ID,
					Operation: op.String(),
					Err:       stepErr,
				})
			}
		}
	}

	result.FinishedAt = e.clock().UTC()
	logger.Info("batch finished",
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed),
	)

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, result); err != nil {
			logger.Error("batch journal write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Running reports whether a run is in progress.
func (e *Executor) Running() bool {
	return e.running.Load()
}

func (e *Executor) step(ctx context.Context, photo catalog.PhotoRecord, op Operation) error {
	if op.IsCatalog() {
		return e.backend.AddTag(ctx, photo.ID, op.Tag)
	}
	img, err := e.store.OpenImage(photo.Filename)
	if err != nil {
		return err
	}
	out, err := transform.Apply(img, op.Transform())
	if err != nil {
		return err
	}
	return e.store.OverwriteImage(photo.Filename, out)
}

func validateJob(photos []catalog.PhotoRecord, ops []Operation) error {
	if len(photos) == 0 {
		return fmt.Errorf("%w: no photos selected", ErrInvalidJob)
	}
	if len(ops) == 0 {
		return fmt.Errorf("%w: no operations", ErrInvalidJob)
	}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}
	}
	return nil
}
