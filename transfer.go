package smbclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type direction string

const (
	directionDownload direction = "download"
	directionUpload   direction = "upload"
)

type transferState int

const (
	transferCreated transferState = iota
	transferConnecting
	transferTransferring
	transferCompleted
	transferFailed
)

// transferSession moves the bytes of one upload or download. It owns the
// handle's busy state from creation until finish.
type transferSession struct {
	h       *Handle
	dir     direction
	path    string
	offset  int64
	length  int64
	total   int64
	state   transferState
	closers []io.Closer
	started time.Time
}

func (h *Handle) newSession(dir direction, p string) (*transferSession, error) {
	state := handleReading
	if dir == directionUpload {
		state = handleWriting
	}
	if err := validatePath(p); err != nil {
		return nil, wrapPathError(string(dir), p, err)
	}
	offset, err := h.begin(state)
	if err != nil {
		return nil, wrapPathError(string(dir), p, err)
	}
	return &transferSession{
		h:       h,
		dir:     dir,
		path:    cleanPath(p),
		offset:  offset,
		length:  UnknownLength,
		state:   transferCreated,
		started: time.Now(),
	}, nil
}

func (s *transferSession) connect(ctx context.Context) (Share, error) {
	s.state = transferConnecting
	if err := s.h.Connect(ctx); err != nil {
		return nil, err
	}
	return s.h.remote()
}

// onFinish registers c to be closed when the session ends.
func (s *transferSession) onFinish(c io.Closer) {
	s.closers = append(s.closers, c)
}

// finish closes every resource in reverse order, resets the handle and
// records the outcome. It returns err, or the first close error when err
// is nil.
func (s *transferSession) finish(err error) error {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.closers = nil

	s.h.end()
	took := time.Since(s.started)
	s.h.metrics.observeTransfer(s.dir, err, s.total, took)

	fields := []zap.Field{
		pathField(s.path),
		zap.String("direction", string(s.dir)),
		zap.Int64("offset", s.offset),
		zap.Int64("bytes", s.total),
		zap.Duration("took", took),
	}
	if err != nil {
		s.state = transferFailed
		s.h.log.Warn("transfer failed", append(fields, zap.Error(err))...)
		return wrapPathError(string(s.dir), s.path, err)
	}
	s.state = transferCompleted
	s.h.log.Debug("transfer completed", fields...)
	return nil
}

// copy moves src to dst in chunks of chunkSize. With auto-flush enabled the
// destination is flushed each time the unflushed byte count reaches the
// block size; flushing only happens between chunks.
func (s *transferSession) copy(dst io.Writer, src io.Reader, chunkSize int) error {
	s.state = transferTransferring
	opts := s.h.Options()
	listener := s.h.progressListener()

	buf := make([]byte, chunkSize)
	var unflushed int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			s.total += int64(n)
			unflushed += int64(n)
			if opts.AutoFlush && unflushed >= opts.AutoFlushBlockSize {
				if err := flush(dst); err != nil {
					return fmt.Errorf("flush: %w", err)
				}
				unflushed = 0
			}
			if listener != nil {
				listener.BytesTransferred(s.total, int64(n), s.length)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// verify compares the bytes moved with the expected count.
func (s *transferSession) verify(expected int64) error {
	if expected >= 0 && s.total != expected {
		return fmt.Errorf("%w: moved %d of %d bytes", ErrTransferIncomplete, s.total, expected)
	}
	return nil
}

// flush pushes buffered bytes of w toward their destination.
func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Sync() error }:
		return f.Sync()
	case http.Flusher:
		f.Flush()
	}
	return nil
}

// seekTo positions a random-access source at offset. size is the source
// length; an offset past it is an end-of-stream condition.
func seekTo(r io.Seeker, offset, size int64) error {
	if offset <= 0 {
		return nil
	}
	if size >= 0 && offset > size {
		return resumeError(offset, size, io.ErrUnexpectedEOF)
	}
	_, err := r.Seek(offset, io.SeekStart)
	return err
}

// skipStream reads and discards n bytes of r.
func skipStream(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	skipped, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF {
		return resumeError(n, skipped, io.ErrUnexpectedEOF)
	}
	return err
}

// openSource connects and opens the remote file for reading.
func (s *transferSession) openSource(ctx context.Context) (RemoteFile, error) {
	share, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	info, err := share.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDirectory
	}
	s.length = info.Size()

	f, err := share.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	s.onFinish(f)
	return f, nil
}

// receive copies the opened remote file into w from the session offset.
func (s *transferSession) receive(f RemoteFile, w io.Writer, chunkSize int) error {
	if err := seekTo(f, s.offset, s.length); err != nil {
		return err
	}
	if err := s.copy(w, f, chunkSize); err != nil {
		return err
	}
	return s.verify(s.length - s.offset)
}

// Download copies the remote file at p into w, starting at the restart
// offset. It returns the number of bytes written to w.
func (h *Handle) Download(ctx context.Context, p string, w io.Writer) (n int64, err error) {
	s, err := h.newSession(directionDownload, p)
	if err != nil {
		return 0, err
	}
	defer func() { err = s.finish(err) }()

	f, err := s.openSource(ctx)
	if err != nil {
		return 0, err
	}
	err = s.receive(f, w, s.h.Options().BufferSize)
	return s.total, err
}

// DownloadFile copies the remote file at p into the local file at local.
// An existing local file is treated as a partial download: the transfer
// resumes at its current length. Missing local directories are created.
func (h *Handle) DownloadFile(ctx context.Context, p, local string) (n int64, err error) {
	s, err := h.newSession(directionDownload, p)
	if err != nil {
		return 0, err
	}
	defer func() { err = s.finish(err) }()

	f, err := s.openSource(ctx)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, err
	}
	lf, err := os.OpenFile(local, os.O_RDWR|os.O_CREATE|os.O_SYNC, 0o644)
	if err != nil {
		return 0, err
	}
	s.onFinish(lf)

	info, err := lf.Stat()
	if err != nil {
		return 0, err
	}
	s.offset = info.Size()
	if _, err := lf.Seek(s.offset, io.SeekStart); err != nil {
		return 0, err
	}

	err = s.receive(f, lf, s.h.Options().ChannelWriteBufferSize)
	return s.total, err
}

// DownloadToResponse streams the remote file at p into an HTTP response as
// an attachment. Headers are written before the first byte.
func (h *Handle) DownloadToResponse(ctx context.Context, p string, w http.ResponseWriter) (n int64, err error) {
	s, err := h.newSession(directionDownload, p)
	if err != nil {
		return 0, err
	}
	defer func() { err = s.finish(err) }()

	f, err := s.openSource(ctx)
	if err != nil {
		return 0, err
	}
	if s.offset > s.length {
		return 0, resumeError(s.offset, s.length, io.ErrUnexpectedEOF)
	}

	header := w.Header()
	header.Set("Content-Type", contentType(s.path))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": baseName(s.path)}))
	header.Set("Content-Length", strconv.FormatInt(s.length-s.offset, 10))

	err = s.receive(f, w, s.h.Options().BufferSize)
	return s.total, err
}

func contentType(p string) string {
	_, ext := splitExt(p)
	if ct := mime.TypeByExtension("." + strings.ToLower(ext)); ext != "" && ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// openDestination connects, creates the parent directories and opens the
// remote file for writing. An existing file is deleted when delIfExists is
// set; otherwise the session offset becomes its length so the upload
// appends.
func (s *transferSession) openDestination(ctx context.Context, delIfExists bool) (RemoteFile, error) {
	share, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := mkdirAll(share, ParentDirs(s.path)); err != nil {
		return nil, err
	}

	s.offset = 0
	info, err := share.Stat(s.path)
	switch {
	case err == nil && info.IsDir():
		return nil, ErrIsDirectory
	case err == nil && delIfExists:
		if err := share.Remove(s.path); err != nil {
			return nil, err
		}
	case err == nil:
		s.offset = info.Size()
	case !isNotExist(err):
		return nil, err
	}

	flag := os.O_WRONLY | os.O_CREATE
	if s.offset == 0 {
		flag |= os.O_TRUNC
	}
	f, err := share.OpenFile(s.path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	s.onFinish(f)

	if s.offset > 0 {
		if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Upload writes r to the remote file at p and returns the bytes written.
// length is the full length of r or UnknownLength. When the destination
// exists and delIfExists is false, the first len(destination) bytes of r
// are skipped and the rest is appended.
func (h *Handle) Upload(ctx context.Context, r io.Reader, length int64, p string, delIfExists bool) (n int64, err error) {
	s, err := h.newSession(directionUpload, p)
	if err != nil {
		return 0, err
	}
	defer func() { err = s.finish(err) }()

	dst, err := s.openDestination(ctx, delIfExists)
	if err != nil {
		return 0, err
	}
	s.length = length
	if length >= 0 && s.offset > length {
		return 0, resumeError(s.offset, length, io.ErrUnexpectedEOF)
	}
	if err := skipStream(r, s.offset); err != nil {
		return 0, err
	}
	if err := s.copy(dst, r, s.h.Options().BufferSize); err != nil {
		return s.total, err
	}
	if length >= 0 {
		err = s.verify(length - s.offset)
	}
	return s.total, err
}

// UploadBytes writes data to the remote file at p.
func (h *Handle) UploadBytes(ctx context.Context, data []byte, p string, delIfExists bool) (int64, error) {
	return h.Upload(ctx, bytes.NewReader(data), int64(len(data)), p, delIfExists)
}

// UploadFile writes the local file at local to the remote file at p,
// reading it as a stream. Resumed uploads read past the skipped prefix.
func (h *Handle) UploadFile(ctx context.Context, local, p string, delIfExists bool) (int64, error) {
	return h.uploadFile(ctx, local, p, delIfExists, false)
}

// UploadByChannel writes the local file at local to the remote file at p
// through the file's random-access channel. Resumed uploads seek past the
// skipped prefix.
func (h *Handle) UploadByChannel(ctx context.Context, local, p string, delIfExists bool) (int64, error) {
	return h.uploadFile(ctx, local, p, delIfExists, true)
}

func (h *Handle) uploadFile(ctx context.Context, local, p string, delIfExists, channel bool) (n int64, err error) {
	s, err := h.newSession(directionUpload, p)
	if err != nil {
		return 0, err
	}
	defer func() { err = s.finish(err) }()

	lf, err := os.Open(local)
	if err != nil {
		return 0, err
	}
	s.onFinish(lf)
	info, err := lf.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s: %w", local, ErrIsDirectory)
	}
	s.length = info.Size()

	dst, err := s.openDestination(ctx, delIfExists)
	if err != nil {
		return 0, err
	}

	opts := s.h.Options()
	chunk := opts.BufferSize
	if channel {
		chunk = opts.ChannelReadBufferSize
		err = seekTo(lf, s.offset, s.length)
	} else if s.offset > s.length {
		err = resumeError(s.offset, s.length, io.ErrUnexpectedEOF)
	} else {
		err = skipStream(lf, s.offset)
	}
	if err != nil {
		return 0, err
	}

	if err := s.copy(dst, lf, chunk); err != nil {
		return s.total, err
	}
	err = s.verify(s.length - s.offset)
	return s.total, err
}

// OpenReader returns a reader over the remote file at p positioned at
// offset. The handle stays busy until the reader is closed.
func (h *Handle) OpenReader(ctx context.Context, p string, offset int64) (rc io.ReadCloser, err error) {
	s, err := h.newSession(directionDownload, p)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		s.offset = offset
	}

	f, err := s.openSource(ctx)
	if err == nil {
		err = seekTo(f, s.offset, s.length)
	}
	if err != nil {
		return nil, s.finish(err)
	}
	s.state = transferTransferring
	return &sessionReader{s: s, f: f}, nil
}

// sessionReader ends its transfer session on Close.
type sessionReader struct {
	s    *transferSession
	f    RemoteFile
	once sync.Once
	err  error
}

func (r *sessionReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	r.s.total += int64(n)
	return n, err
}

func (r *sessionReader) Close() error {
	r.once.Do(func() {
		r.err = r.s.finish(nil)
	})
	return r.err
}
