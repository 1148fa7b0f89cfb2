package smbclient

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoBuilder indicates a strategy was asked for a handle without a
	// handle builder configured. It is never retried.
	ErrNoBuilder = errors.New("handle builder is nil")

	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected indicates a handle was used before Connect succeeded.
	ErrNotConnected = errors.New("handle not connected")

	// ErrHandleBusy indicates a transfer is already in flight on the handle.
	ErrHandleBusy = errors.New("handle busy with another transfer")

	// ErrPoolExhausted indicates all handles in the pool are in use.
	ErrPoolExhausted = errors.New("handle pool exhausted")

	// ErrHandleInvalid indicates no pooled handle passed validation.
	ErrHandleInvalid = errors.New("handle failed validation")

	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("handle pool closed")

	// ErrResumeOffset indicates the requested resume offset lies beyond the
	// end of the source stream.
	ErrResumeOffset = errors.New("resume offset beyond end of stream")

	// ErrTransferIncomplete indicates the copied byte count differs from the
	// expected count.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrDirectoryNotEmpty indicates a directory could not be removed
	// because it still has children.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrInvalidPath indicates the path is invalid.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotDirectory indicates the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory indicates the path is a directory.
	ErrIsDirectory = errors.New("is a directory")
)

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// wrapPathError wraps an error with operation and path information.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	// If it's already a PathError for the same path, don't double-wrap
	var pe *PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	return &PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// resumeError reports an offset that cannot be skipped to.
func resumeError(offset, size int64, cause error) error {
	if size >= 0 {
		return fmt.Errorf("%w: offset %d, size %d: %w", ErrResumeOffset, offset, size, cause)
	}
	return fmt.Errorf("%w: offset %d: %w", ErrResumeOffset, offset, cause)
}

// isNotExist reports whether err means the remote entry is missing.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// netError interface for network errors.
type netError interface {
	Timeout() bool
	Temporary() bool
}

// isRetryable returns true if the error indicates a transient failure
// that might succeed if retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Configuration problems never get better by retrying
	if errors.Is(err, ErrNoBuilder) || errors.Is(err, ErrInvalidConfig) {
		return false
	}

	var netErr netError
	if errors.As(err, &netErr) {
		if netErr.Temporary() || netErr.Timeout() {
			return true
		}
	}

	switch {
	case errors.Is(err, ErrConnectionClosed):
		return true
	case errors.Is(err, ErrPoolExhausted):
		return true
	}

	return false
}
