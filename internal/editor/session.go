// Package editor holds interactive edit sessions over a single image.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

var (
	// ErrSessionDecode is returned when the session image cannot be decoded.
	ErrSessionDecode = errors.New("editor: cannot decode session image")
	// ErrSuperseded is returned by Apply when a later submission or an undo
	// replaced the operation before its result could be installed.
	ErrSuperseded = errors.New("editor: operation superseded")
)

// TaskStatus describes how a submitted operation ended.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskApplied
	TaskSuperseded
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskApplied:
		return "applied"
	case TaskSuperseded:
		return "superseded"
	case TaskFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TaskResult is delivered once per submitted operation.
type TaskResult struct {
	Seq       uint64
	Operation transform.Operation
	Status    TaskStatus
	Err       error
}

// Task is the handle returned by Submit.
type Task struct {
	seq    uint64
	op     transform.Operation
	done   chan struct{}
	result TaskResult
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (TaskResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return TaskResult{Seq: t.seq, Operation: t.op, Status: TaskPending}, ctx.Err()
	}
}

// SessionConfig describes optional collaborators of a Session.
type SessionConfig struct {
	Logger     *zap.Logger
	OnComplete func(TaskResult)
}

type applyFunc func(image.Image, transform.Operation) (*image.NRGBA, error)

// Session edits one image. Every non-crop operation is computed from the original;
// crop composes onto the current image. Only the most recent submission may install
// its result.
type Session struct {
	mu       sync.Mutex
	original *image.NRGBA
	current  *image.NRGBA
	seq      uint64
	latest   uint64
	pending  int

	apply      applyFunc
	logger     *zap.Logger
	onComplete func(TaskResult)
}

// Open decodes the image at path and starts a session on it.
func Open(path string, cfg SessionConfig) (*Session, error) {
	img, err := transform.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionDecode, err)
	}
	return New(img, cfg)
}

// New starts a session on an already decoded image.
func New(img image.Image, cfg SessionConfig) (*Session, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrSessionDecode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	original := imaging.Clone(img)
	return &Session{
		original:   original,
		current:    original,
		apply:      transform.Apply,
		logger:     logger,
		onComplete: cfg.OnComplete,
	}, nil
}

// Submit schedules op in the background and returns immediately.
func (s *Session) Submit(op transform.Operation) *Task {
	s.mu.Lock()
	s.seq++
	s.latest = s.seq
	s.pending++
	source := s.original
	if op.Kind == transform.KindCrop {
		source = s.current
	}
	task := &Task{seq: s.seq, op: op, done: make(chan struct{})}
	s.mu.Unlock()

	go s.run(task, source)
	return task
}

func (s *Session) run(task *Task, source *image.NRGBA) {
	out, err := s.apply(source, task.op)

	s.mu.Lock()
	s.pending--
	result := TaskResult{Seq: task.seq, Operation: task.op}
	switch {
	case err != nil:
		result.Status = TaskFailed
		result.Err = err
	case task.seq == s.latest:
		s.current = out
		result.Status = TaskApplied
	default:
		result.Status = TaskSuperseded
	}
	s.mu.Unlock()

	if result.Status == TaskFailed {
		s.logger.Warn("edit operation failed",
			zap.String("operation", task.op.String()),
			zap.Uint64("seq", task.seq),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("edit operation finished",
			zap.String("operation", task.op.String()),
			zap.Uint64("seq", task.seq),
			zap.Stringer("status", result.Status),
		)
	}

	task.result = result
	close(task.done)
	if s.onComplete != nil {
		s.onComplete(result)
	}
}

// Apply submits op and waits for it. It returns nil only when the result was installed.
func (s *Session) Apply(ctx context.Context, op transform.Operation) error {
	result, err := s.Submit(op).Wait(ctx)
	if err != nil {
		return err
	}
	if result.Status == TaskSuperseded {
		return fmt.Errorf("%w: %s", ErrSuperseded, op)
	}
	return result.Err
}

// Undo restores the original image. Operations still running are superseded.
func (s *Session) Undo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest = s.seq
	s.current = s.original
}

// Commit returns a copy of the current image. Nothing is written to storage.
func (s *Session) Commit() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return imaging.Clone(s.current)
}

func (s *Session) Original() *image.NRGBA {
	return imaging.Clone(s.original)
}

func (s *Session) Current() *image.NRGBA {
	return s.Commit()
}

// Pending reports how many submitted operations have not finished.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
