// Package catalog talks to the external catalog executable that owns photo records.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Command names understood by the catalog executable.
const (
	CommandAddPhoto     = "add_photo"
	CommandGetAllPhotos = "get_all_photos"
	CommandViewPhoto    = "view_photo"
	CommandDeletePhoto  = "delete_photo"
	CommandSearch       = "search"
	CommandAddTag       = "add_tag"
	CommandSort         = "sort"
	CommandUpdatePhoto  = "update_photo"
)

var (
	errNonZeroExit    = errors.New("backend exited with non-zero status")
	errMalformedJSON  = errors.New("backend returned malformed json")
	errMissingCommand = errors.New("backend executable is required")
	errTimedOut       = errors.New("backend call timed out")
	errNotFound       = errors.New("photo not found")
	errInjected       = errors.New("injected failure")
)

// Backend is the catalog contract. Every method reports failure through its error;
// list methods return a non-nil empty slice when they fail.
type Backend interface {
	AddPhoto(ctx context.Context, photo NewPhoto) error
	ListPhotos(ctx context.Context) ([]PhotoRecord, error)
	ViewPhoto(ctx context.Context, id int64) error
	DeletePhoto(ctx context.Context, id int64) error
	Search(ctx context.Context, kind SearchKind, term string) ([]PhotoRecord, error)
	AddTag(ctx context.Context, id int64, tag string) error
	Sort(ctx context.Context, kind SortKind, ascending bool) ([]PhotoRecord, error)
	UpdatePhoto(ctx context.Context, id int64, update PhotoUpdate) error
}

// BridgeError describes a failed backend call.
type BridgeError struct {
	code     string
	exitCode int
	stderr   string
	err      error
}

func (e *BridgeError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *BridgeError) Unwrap() error {
	return e.err
}

// Code is "catalog.<command>.<reason>".
func (e *BridgeError) Code() string {
	return e.code
}

// ExitCode is the process exit status, or -1 when the process did not exit normally.
func (e *BridgeError) ExitCode() int {
	return e.exitCode
}

// Stderr is whatever the backend wrote to standard error.
func (e *BridgeError) Stderr() string {
	return e.stderr
}

func newBridgeError(command, reason string, cause error) *BridgeError {
	return &BridgeError{code: fmt.Sprintf("catalog.%s.%s", command, reason), exitCode: -1, err: cause}
}

// IsBridgeError reports whether err came from a backend call.
func IsBridgeError(err error) bool {
	var bridgeErr *BridgeError
	return errors.As(err, &bridgeErr)
}
