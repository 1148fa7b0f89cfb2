package smbclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownLength is reported to progress listeners when the total size of a
// transfer cannot be determined in advance.
const UnknownLength int64 = -1

// ProgressListener is notified after every chunk of a transfer.
type ProgressListener interface {
	// BytesTransferred receives the running total, the size of the chunk just
	// written and the total length of the source or UnknownLength.
	BytesTransferred(total, chunk, length int64)
}

// ProgressFunc adapts a function to the ProgressListener interface.
type ProgressFunc func(total, chunk, length int64)

// BytesTransferred calls f(total, chunk, length).
func (f ProgressFunc) BytesTransferred(total, chunk, length int64) {
	f(total, chunk, length)
}

type handleState int

const (
	handleIdle handleState = iota
	handleReading
	handleWriting
)

func (s handleState) String() string {
	switch s {
	case handleReading:
		return "reading"
	case handleWriting:
		return "writing"
	default:
		return "idle"
	}
}

// Handle is a connection to one share plus the transfer settings applied to
// it. A handle runs at most one transfer at a time and is owned by the
// strategy that issued it.
type Handle struct {
	id        string
	connector Connector
	retry     *RetryPolicy
	log       *zap.Logger
	metrics   *Metrics

	mu       sync.Mutex
	share    Share
	opts     TransferConfig
	state    handleState
	offset   int64
	listener ProgressListener
}

// HandleBuilder creates unconnected handles from a configuration.
type HandleBuilder struct {
	config    *Config
	connector Connector
	metrics   *Metrics
}

// NewHandleBuilder returns a builder for config. A nil connector selects a
// MountConnector when config.MountPath is set and an SMB2Connector
// otherwise.
func NewHandleBuilder(config *Config, connector Connector) *HandleBuilder {
	if connector == nil {
		if config.MountPath != "" {
			connector = NewMountConnector(config.MountPath)
		} else {
			connector = NewSMB2Connector(config)
		}
	}
	return &HandleBuilder{config: config, connector: connector}
}

// WithMetrics makes built handles record transfers on m.
func (b *HandleBuilder) WithMetrics(m *Metrics) *HandleBuilder {
	b.metrics = m
	return b
}

// Build returns a new, unconnected handle.
func (b *HandleBuilder) Build() *Handle {
	opts := b.config.Transfer
	opts.setDefaults()
	id := uuid.NewString()[:8]
	return &Handle{
		id:        id,
		connector: b.connector,
		retry:     b.config.RetryPolicy,
		log:       b.config.logger().With(zap.String("handle", id)),
		metrics:   b.metrics,
		opts:      opts,
	}
}

// ID returns a short identifier used in log fields.
func (h *Handle) ID() string { return h.id }

// Connect opens the share. Connecting a connected handle is a no-op.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	connected := h.share != nil
	h.mu.Unlock()
	if connected {
		return nil
	}

	var share Share
	err := withRetry(ctx, h.retry, h.log, func() error {
		s, err := h.connector.Connect(ctx)
		if err != nil {
			return err
		}
		share = s
		return nil
	})
	if err != nil {
		h.log.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}

	h.mu.Lock()
	if h.share != nil {
		// Lost a race with a concurrent Connect.
		h.mu.Unlock()
		_ = share.Close()
		return nil
	}
	h.share = share
	h.mu.Unlock()

	h.log.Debug("handle connected")
	return nil
}

// Connected reports whether the handle holds an open share.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.share != nil
}

// Busy reports whether a transfer is reading from or writing to the handle.
func (h *Handle) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != handleIdle
}

// Close closes the share. The handle may be connected again afterwards.
func (h *Handle) Close() error {
	h.mu.Lock()
	share := h.share
	h.share = nil
	h.state = handleIdle
	h.offset = 0
	h.mu.Unlock()

	if share == nil {
		return nil
	}
	h.log.Debug("handle closed")
	return share.Close()
}

// RestartOffset returns the byte position the next download starts at.
func (h *Handle) RestartOffset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// SetRestartOffset sets the byte position the next download or reader
// starts at. It is reset to 0 when that transfer ends.
func (h *Handle) SetRestartOffset(offset int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	h.offset = offset
}

// SetProgressListener attaches l to every subsequent transfer. Nil detaches.
func (h *Handle) SetProgressListener(l ProgressListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// Options returns the transfer settings.
func (h *Handle) Options() TransferConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

// SetOptions replaces the transfer settings. Zero sizes take the defaults.
func (h *Handle) SetOptions(opts TransferConfig) {
	opts.setDefaults()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = opts
}

// begin marks the handle busy for one transfer.
func (h *Handle) begin(state handleState) (offset int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != handleIdle {
		return 0, fmt.Errorf("%w (%s)", ErrHandleBusy, h.state)
	}
	h.state = state
	return h.offset, nil
}

// end returns the handle to idle and resets the restart offset.
func (h *Handle) end() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = handleIdle
	h.offset = 0
}

// reset drops per-call settings of an idle handle before it is released.
func (h *Handle) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == handleIdle {
		h.offset = 0
		h.listener = nil
	}
}

func (h *Handle) progressListener() ProgressListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener
}

// remote returns the connected share.
func (h *Handle) remote() (Share, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.share == nil {
		return nil, ErrNotConnected
	}
	return h.share, nil
}

// Stat returns the metadata of the remote entry at p.
func (h *Handle) Stat(p string) (fs.FileInfo, error) {
	if err := validatePath(p); err != nil {
		return nil, wrapPathError("stat", p, err)
	}
	share, err := h.remote()
	if err != nil {
		return nil, wrapPathError("stat", p, err)
	}
	info, err := share.Stat(cleanPath(p))
	return info, wrapPathError("stat", p, err)
}

// Exists reports whether a remote entry exists at p.
func (h *Handle) Exists(p string) (bool, error) {
	_, err := h.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case isNotExist(err):
		return false, nil
	}
	return false, err
}

// IsDir reports whether p is an existing remote directory.
func (h *Handle) IsDir(p string) (bool, error) {
	info, err := h.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// Length returns the size of the remote file at p.
func (h *Handle) Length(p string) (int64, error) {
	info, err := h.Stat(p)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadDir lists the entries of the remote directory dir.
func (h *Handle) ReadDir(dir string) ([]fs.FileInfo, error) {
	if err := validatePath(dir); err != nil {
		return nil, wrapPathError("readdir", dir, err)
	}
	share, err := h.remote()
	if err != nil {
		return nil, wrapPathError("readdir", dir, err)
	}
	infos, err := share.ReadDir(cleanPath(dir))
	return infos, wrapPathError("readdir", dir, err)
}

// MkdirAll creates dir and any missing ancestors, root to leaf. The share
// protocol has no recursive mkdir, so each level is created on its own.
func (h *Handle) MkdirAll(dir string) error {
	if err := validatePath(dir); err != nil {
		return wrapPathError("mkdir", dir, err)
	}
	share, err := h.remote()
	if err != nil {
		return wrapPathError("mkdir", dir, err)
	}
	return wrapPathError("mkdir", dir, mkdirAll(share, DirPath(dir)))
}

func mkdirAll(share Share, dirs []string) error {
	for _, d := range dirs {
		info, err := share.Stat(d)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return fmt.Errorf("%s: %w", d, ErrNotDirectory)
		case !isNotExist(err):
			return err
		}
		if err := share.Mkdir(d, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

// Remove deletes the remote file or empty directory at p.
func (h *Handle) Remove(p string) error {
	if err := validatePath(p); err != nil {
		return wrapPathError("remove", p, err)
	}
	share, err := h.remote()
	if err != nil {
		return wrapPathError("remove", p, err)
	}
	return wrapPathError("remove", p, share.Remove(cleanPath(p)))
}

// Rename moves the remote entry at from to to.
func (h *Handle) Rename(from, to string) error {
	for _, p := range []string{from, to} {
		if err := validatePath(p); err != nil {
			return wrapPathError("rename", p, err)
		}
	}
	share, err := h.remote()
	if err != nil {
		return wrapPathError("rename", from, err)
	}
	return wrapPathError("rename", from, share.Rename(cleanPath(from), cleanPath(to)))
}
