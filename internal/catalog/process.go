package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultCallTimeout = 30 * time.Second

var _ Backend = (*ProcessBackend)(nil)

// ProcessConfig describes how to launch the catalog executable.
type ProcessConfig struct {
	Executable string
	// LeadingArgs are placed before the command name on every call.
	LeadingArgs []string
	// Env is appended to the inherited environment.
	Env     []string
	Timeout time.Duration
	Logger  *zap.Logger
}

// ProcessBackend runs "<executable> <command> <args...>" once per call.
// Exit status 0 means success; list commands print a JSON array on stdout.
type ProcessBackend struct {
	executable  string
	leadingArgs []string
	env         []string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewProcessBackend(cfg ProcessConfig) (*ProcessBackend, error) {
	if strings.TrimSpace(cfg.Executable) == "" {
		return nil, newBridgeError("process", "missing_executable", errMissingCommand)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessBackend{
		executable:  cfg.Executable,
		leadingArgs: append([]string(nil), cfg.LeadingArgs...),
		env:         append([]string(nil), cfg.Env...),
		timeout:     timeout,
		logger:      logger,
	}, nil
}

func (b *ProcessBackend) AddPhoto(ctx context.Context, photo NewPhoto) error {
	_, err := b.run(ctx, CommandAddPhoto,
		photo.Filename,
		photo.Location,
		photo.DateTime,
		photo.Description,
		photo.Tags,
		strconv.FormatInt(photo.FileSizeKB, 10),
	)
	return err
}

func (b *ProcessBackend) ListPhotos(ctx context.Context) ([]PhotoRecord, error) {
	return b.list(ctx, CommandGetAllPhotos)
}

func (b *ProcessBackend) ViewPhoto(ctx context.Context, id int64) error {
	_, err := b.run(ctx, CommandViewPhoto, formatID(id))
	return err
}

func (b *ProcessBackend) DeletePhoto(ctx context.Context, id int64) error {
	_, err := b.run(ctx, CommandDeletePhoto, formatID(id))
	return err
}

func (b *ProcessBackend) Search(ctx context.Context, kind SearchKind, term string) ([]PhotoRecord, error) {
	return b.list(ctx, CommandSearch, string(kind), term)
}

func (b *ProcessBackend) AddTag(ctx context.Context, id int64, tag string) error {
	_, err := b.run(ctx, CommandAddTag, formatID(id), tag)
	return err
}

func (b *ProcessBackend) Sort(ctx context.Context, kind SortKind, ascending bool) ([]PhotoRecord, error) {
	return b.list(ctx, CommandSort, string(kind), strconv.FormatBool(ascending))
}

func (b *ProcessBackend) UpdatePhoto(ctx context.Context, id int64, update PhotoUpdate) error {
	_, err := b.run(ctx, CommandUpdatePhoto, formatID(id), update.Location, update.Description, update.Tags)
	return err
}

func (b *ProcessBackend) list(ctx context.Context, command string, args ...string) ([]PhotoRecord, error) {
	stdout, err := b.run(ctx, command, args...)
	if err != nil {
		return []PhotoRecord{}, err
	}
	var photos []PhotoRecord
	if err := json.Unmarshal(stdout, &photos); err != nil {
		b.logError(command, "malformed_json", err, zap.Int("stdout_bytes", len(stdout)))
		bridgeErr := newBridgeError(command, "malformed_json", errors.Join(errMalformedJSON, err))
		bridgeErr.exitCode = 0
		return []PhotoRecord{}, bridgeErr
	}
	if photos == nil {
		photos = []PhotoRecord{}
	}
	return photos, nil
}

func (b *ProcessBackend) run(ctx context.Context, command string, args ...string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	argv := make([]string, 0, len(b.leadingArgs)+1+len(args))
	argv = append(argv, b.leadingArgs...)
	argv = append(argv, command)
	argv = append(argv, args...)

	cmd := exec.CommandContext(callCtx, b.executable, argv...)
	if len(b.env) > 0 {
		cmd.Env = append(cmd.Environ(), b.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err == nil {
		b.logger.Debug("catalog call succeeded",
			zap.String("command", command),
			zap.Duration("elapsed", elapsed),
		)
		return stdout.Bytes(), nil
	}

	stderrText := strings.TrimSpace(stderr.String())
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		b.logError(command, "timed_out", err, zap.Duration("timeout", b.timeout))
		bridgeErr := newBridgeError(command, "timed_out", errors.Join(errTimedOut, err))
		bridgeErr.stderr = stderrText
		return nil, bridgeErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		b.logError(command, "non_zero_exit", err,
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.String("stderr", stderrText),
		)
		bridgeErr := newBridgeError(command, "non_zero_exit", errors.Join(errNonZeroExit, err))
		bridgeErr.exitCode = exitErr.ExitCode()
		bridgeErr.stderr = stderrText
		return nil, bridgeErr
	}

	b.logError(command, "spawn_failed", err, zap.String("executable", b.executable))
	return nil, newBridgeError(command, "spawn_failed", err)
}

func (b *ProcessBackend) logError(command, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", "catalog."+command),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	b.logger.Error("catalog backend error", attrs...)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
