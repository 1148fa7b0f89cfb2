package smbclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/absfs/smbclient/filter"
)

// Client is the operation surface over a share. Every call acquires a
// handle from the strategy, performs the operation and releases the handle
// on all exit paths.
type Client struct {
	config   *Config
	strategy Strategy
	log      *zap.Logger
	metrics  *Metrics
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	connector  Connector
	registerer prometheus.Registerer
}

// WithConnector replaces the connector chosen from the configuration.
func WithConnector(c Connector) Option {
	return func(o *clientOptions) { o.connector = c }
}

// WithRegisterer registers the client metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) { o.registerer = reg }
}

// NewClient creates a client for config. With config.Pool.Enabled handles
// are lent from a bounded pool; otherwise each worker (see WithWorker)
// keeps its own handle.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Set defaults and validate
	cfg := *config
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Logger == nil && cfg.Logging.Level != "" {
		logger, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		cfg.Logger = logger
	}
	log := cfg.logger()

	var metrics *Metrics
	if o.registerer != nil {
		metrics = NewMetrics(o.registerer)
	}

	builder := NewHandleBuilder(&cfg, o.connector).WithMetrics(metrics)

	var strategy Strategy
	if cfg.Pool.Enabled {
		factory := NewHandleFactory(builder, cfg.Pool.TestOnBorrow, log)
		strategy = NewPoolStrategy(cfg.Pool, factory, log, metrics)
	} else {
		strategy = NewAffinityStrategy(builder, log)
	}

	return &Client{config: &cfg, strategy: strategy, log: log, metrics: metrics}, nil
}

// NewClientWithStrategy creates a client drawing handles from strategy.
func NewClientWithStrategy(strategy Strategy, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{strategy: strategy, log: log}
}

// Close closes the strategy and every handle it holds.
func (c *Client) Close() error {
	return c.strategy.Close()
}

type progressKey struct{}

// WithProgress attaches l to the transfers run with ctx.
func WithProgress(ctx context.Context, l ProgressListener) context.Context {
	return context.WithValue(ctx, progressKey{}, l)
}

func progressFrom(ctx context.Context) ProgressListener {
	l, _ := ctx.Value(progressKey{}).(ProgressListener)
	return l
}

// acquire borrows a handle prepared for one call.
func (c *Client) acquire(ctx context.Context, op string) (*Handle, error) {
	h, err := c.strategy.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire handle: %w", op, err)
	}
	h.SetProgressListener(progressFrom(ctx))
	return h, nil
}

func (c *Client) release(h *Handle) {
	h.reset()
	c.strategy.Release(h)
}

// withHandle runs fn on an acquired handle and always releases it.
func (c *Client) withHandle(ctx context.Context, op string, fn func(h *Handle) error) error {
	h, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer c.release(h)
	return fn(h)
}

// FileEntry describes a remote file or directory.
type FileEntry struct {
	fs.FileInfo
	path string
}

func newFileEntry(p string, info fs.FileInfo) *FileEntry {
	return &FileEntry{FileInfo: info, path: cleanPath(p)}
}

// Path returns the share-relative path of the entry.
func (e *FileEntry) Path() string { return e.path }

// FileAttributes returns the raw Windows attributes, 0 when unknown.
func (e *FileEntry) FileAttributes() uint32 {
	if a, ok := e.FileInfo.(attributed); ok {
		return a.FileAttributes()
	}
	return 0
}

// Attributes returns the Windows attributes, nil when unknown.
func (e *FileEntry) Attributes() *WindowsAttributes {
	return AttributesOf(e.FileInfo)
}

// listEntry lets filters read the content of an entry while the handle
// that listed it is still held.
type listEntry struct {
	*FileEntry
	share Share
}

func (e listEntry) Open() (io.ReadCloser, error) {
	return e.share.OpenFile(e.path, os.O_RDONLY, 0)
}

// MakeDir creates dir and any missing ancestors.
func (c *Client) MakeDir(ctx context.Context, dir string) error {
	return c.withHandle(ctx, "mkdir", func(h *Handle) error {
		return h.MkdirAll(dir)
	})
}

// Exists reports whether a remote entry exists at p.
func (c *Client) Exists(ctx context.Context, p string) (ok bool, err error) {
	err = c.withHandle(ctx, "exists", func(h *Handle) error {
		ok, err = h.Exists(p)
		return err
	})
	return ok, err
}

// Stat returns the remote entry at p.
func (c *Client) Stat(ctx context.Context, p string) (entry *FileEntry, err error) {
	err = c.withHandle(ctx, "stat", func(h *Handle) error {
		info, err := h.Stat(p)
		if err != nil {
			return err
		}
		entry = newFileEntry(p, info)
		return nil
	})
	return entry, err
}

// ListNames returns the names of the entries of dir.
func (c *Client) ListNames(ctx context.Context, dir string) (names []string, err error) {
	err = c.withHandle(ctx, "list", func(h *Handle) error {
		infos, err := readDir(h, dir)
		if err != nil {
			return err
		}
		names = make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name()
		}
		return nil
	})
	return names, err
}

// ListFiles returns the files of dir accepted by f, descending into every
// subdirectory when recursive is set. Directories are never returned. A
// nil f accepts every file.
func (c *Client) ListFiles(ctx context.Context, dir string, f filter.Filter, recursive bool) (entries []*FileEntry, err error) {
	err = c.withHandle(ctx, "list", func(h *Handle) error {
		entries, err = listFiles(h, dir, filter.MakeFileOnly(f), recursive)
		return err
	})
	return entries, err
}

// ListFilesByExt returns the files of dir whose extension is one of exts.
func (c *Client) ListFilesByExt(ctx context.Context, dir string, exts []string, recursive bool) ([]*FileEntry, error) {
	return c.ListFiles(ctx, dir, filter.Extensions(exts...), recursive)
}

// readDir lists dir after checking that it is a directory.
func readDir(h *Handle, dir string) ([]fs.FileInfo, error) {
	info, err := h.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, wrapPathError("readdir", dir, ErrNotDirectory)
	}
	return h.ReadDir(dir)
}

func listFiles(h *Handle, dir string, f filter.Filter, recursive bool) ([]*FileEntry, error) {
	share, err := h.remote()
	if err != nil {
		return nil, wrapPathError("list", dir, err)
	}
	infos, err := readDir(h, dir)
	if err != nil {
		return nil, err
	}

	var entries []*FileEntry
	for _, info := range infos {
		e := newFileEntry(ResolvePath(dir, info.Name()), info)
		if info.IsDir() {
			if recursive {
				sub, err := listFiles(h, e.path, f, recursive)
				if err != nil {
					return nil, err
				}
				entries = append(entries, sub...)
			}
			continue
		}
		ok, err := f.Accept(listEntry{FileEntry: e, share: share})
		if err != nil {
			return nil, wrapPathError("filter", e.path, err)
		}
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// OpenReader returns a reader over the remote file at p starting at offset.
// The handle is held until the reader is closed.
func (c *Client) OpenReader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	h, err := c.acquire(ctx, "open")
	if err != nil {
		return nil, err
	}
	rc, err := h.OpenReader(ctx, p, offset)
	if err != nil {
		c.release(h)
		return nil, err
	}
	return &releasingReader{ReadCloser: rc, release: func() { c.release(h) }}, nil
}

// releasingReader releases its handle once, on Close.
type releasingReader struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (r *releasingReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}

// DownloadToFile copies the remote file at p to local, resuming after the
// bytes local already holds.
func (c *Client) DownloadToFile(ctx context.Context, p, local string) (n int64, err error) {
	err = c.withHandle(ctx, "download", func(h *Handle) error {
		n, err = h.DownloadFile(ctx, p, local)
		return err
	})
	return n, err
}

// DownloadToWriter copies the remote file at p into w, skipping the first
// offset bytes.
func (c *Client) DownloadToWriter(ctx context.Context, p string, w io.Writer, offset int64) (n int64, err error) {
	err = c.withHandle(ctx, "download", func(h *Handle) error {
		h.SetRestartOffset(offset)
		n, err = h.Download(ctx, p, w)
		return err
	})
	return n, err
}

// DownloadToResponse sends the remote file at p as an HTTP attachment.
func (c *Client) DownloadToResponse(ctx context.Context, p string, w http.ResponseWriter) (n int64, err error) {
	err = c.withHandle(ctx, "download", func(h *Handle) error {
		n, err = h.DownloadToResponse(ctx, p, w)
		return err
	})
	return n, err
}

// DownloadToDir copies the files of remoteDir accepted by f into localDir
// and mirrors its subdirectories as empty local directories. It returns
// the local paths written. A nil f accepts every file.
func (c *Client) DownloadToDir(ctx context.Context, remoteDir, localDir string, f filter.Filter) (written []string, err error) {
	err = c.withHandle(ctx, "download", func(h *Handle) error {
		share, err := h.remote()
		if err != nil {
			return wrapPathError("download", remoteDir, err)
		}
		infos, err := readDir(h, remoteDir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(localDir, 0o755); err != nil {
			return err
		}

		accept := filter.MakeFileOnly(f)
		for _, info := range infos {
			local := filepath.Join(localDir, info.Name())
			if info.IsDir() {
				if err := os.MkdirAll(local, 0o755); err != nil {
					return err
				}
				continue
			}
			e := newFileEntry(ResolvePath(remoteDir, info.Name()), info)
			ok, err := accept.Accept(listEntry{FileEntry: e, share: share})
			if err != nil {
				return wrapPathError("filter", e.path, err)
			}
			if !ok {
				continue
			}
			if _, err := h.DownloadFile(ctx, e.path, local); err != nil {
				return err
			}
			written = append(written, local)
		}
		return nil
	})
	return written, err
}

// Upload writes r to dest. size is the full length of r or UnknownLength.
// An existing dest is replaced when delIfExists is set and appended to,
// skipping the bytes it already holds, otherwise.
func (c *Client) Upload(ctx context.Context, r io.Reader, size int64, dest string, delIfExists bool) (n int64, err error) {
	err = c.withHandle(ctx, "upload", func(h *Handle) error {
		n, err = h.Upload(ctx, r, size, dest, delIfExists)
		return err
	})
	return n, err
}

// UploadBytes writes data to dest.
func (c *Client) UploadBytes(ctx context.Context, data []byte, dest string, delIfExists bool) (int64, error) {
	return c.Upload(ctx, bytes.NewReader(data), int64(len(data)), dest, delIfExists)
}

// UploadString writes s to dest.
func (c *Client) UploadString(ctx context.Context, s, dest string, delIfExists bool) (int64, error) {
	return c.Upload(ctx, strings.NewReader(s), int64(len(s)), dest, delIfExists)
}

// UploadFile copies the local file into remoteDir under its own name.
func (c *Client) UploadFile(ctx context.Context, local, remoteDir string, delIfExists bool) (n int64, err error) {
	dest := ResolvePath(remoteDir, filepath.Base(local))
	err = c.withHandle(ctx, "upload", func(h *Handle) error {
		n, err = h.UploadFile(ctx, local, dest, delIfExists)
		return err
	})
	return n, err
}

// UploadByChannel is UploadFile reading the local file through seeks and
// the channel buffer size.
func (c *Client) UploadByChannel(ctx context.Context, local, remoteDir string, delIfExists bool) (n int64, err error) {
	dest := ResolvePath(remoteDir, filepath.Base(local))
	err = c.withHandle(ctx, "upload", func(h *Handle) error {
		n, err = h.UploadByChannel(ctx, local, dest, delIfExists)
		return err
	})
	return n, err
}

// Remove deletes the remote files at paths, stopping at the first failure.
func (c *Client) Remove(ctx context.Context, paths ...string) error {
	return c.withHandle(ctx, "remove", func(h *Handle) error {
		for _, p := range paths {
			if err := removeFile(h, p); err != nil {
				return err
			}
			c.log.Debug("removed file", pathField(p))
		}
		return nil
	})
}

// RemoveIn deletes the files named names inside dir.
func (c *Client) RemoveIn(ctx context.Context, dir string, names ...string) error {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = ResolvePath(dir, name)
	}
	return c.Remove(ctx, paths...)
}

func removeFile(h *Handle, p string) error {
	info, err := h.Stat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return wrapPathError("remove", p, ErrIsDirectory)
	}
	return h.Remove(p)
}

type removeResult int

const (
	removed removeResult = iota
	removeNotEmpty
	removeFailed
)

func tryRemove(h *Handle, p string) (removeResult, error) {
	err := h.Remove(p)
	switch {
	case err == nil:
		return removed, nil
	case errors.Is(err, ErrDirectoryNotEmpty):
		return removeNotEmpty, err
	}
	return removeFailed, err
}

// RemoveDir deletes dir with everything below it. Children that cannot be
// deleted are logged and skipped; the final removal of dir then reports
// the failure.
func (c *Client) RemoveDir(ctx context.Context, dir string) error {
	return c.withHandle(ctx, "rmdir", func(h *Handle) error {
		info, err := h.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return wrapPathError("rmdir", dir, ErrNotDirectory)
		}
		return c.removeTree(h, dir)
	})
}

func (c *Client) removeTree(h *Handle, dir string) error {
	result, err := tryRemove(h, dir)
	switch result {
	case removed:
		return nil
	case removeFailed:
		return err
	}

	infos, err := h.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		child := ResolvePath(dir, info.Name())
		if info.IsDir() {
			c.log.Info("removing subdirectory", pathField(child))
			err = c.removeTree(h, child)
		} else {
			err = h.Remove(child)
		}
		if err != nil {
			c.log.Warn("failed to remove child", pathField(child), zap.Error(err))
		}
	}
	return h.Remove(dir)
}

// Rename renames the entry at p to newName within its directory and
// returns the new path. newName without an extension keeps p's extension.
func (c *Client) Rename(ctx context.Context, p, newName string) (dest string, err error) {
	dest = RenamePath(p, newName)
	err = c.withHandle(ctx, "rename", func(h *Handle) error {
		return h.Rename(p, dest)
	})
	if err != nil {
		return "", err
	}
	c.log.Debug("renamed", pathField(p), zap.String("dest", dest))
	return dest, nil
}

// RenameWith renames the entry at p to the name chosen by policy.
func (c *Client) RenameWith(ctx context.Context, p string, policy RenamePolicy) (string, error) {
	return c.Rename(ctx, p, policy.NewName(baseName(p)))
}
