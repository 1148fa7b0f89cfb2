package smbclient

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// AffinityStrategy keeps one handle per worker identity (see WithWorker).
// A cached handle is reused while it is connected and idle; otherwise a
// fresh one is built and connected in its place. A replaced handle is
// closed once every caller holding it has released it.
type AffinityStrategy struct {
	builder *HandleBuilder
	log     *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	holders map[*Handle]int
	retired map[*Handle]struct{}
	closed  bool
}

// NewAffinityStrategy returns a strategy building handles with builder.
func NewAffinityStrategy(builder *HandleBuilder, log *zap.Logger) *AffinityStrategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &AffinityStrategy{
		builder: builder,
		log:     log.Named("affinity"),
		handles: make(map[string]*Handle),
		holders: make(map[*Handle]int),
		retired: make(map[*Handle]struct{}),
	}
}

// Acquire returns the worker's cached handle or a newly connected one.
func (a *AffinityStrategy) Acquire(ctx context.Context) (*Handle, error) {
	if a.builder == nil {
		return nil, ErrNoBuilder
	}
	worker := WorkerFrom(ctx)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if cached := a.handles[worker]; cached != nil && cached.Connected() && !cached.Busy() {
		a.holders[cached]++
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	h := a.builder.Build()
	if err := h.Connect(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = h.Close()
		return nil, ErrConnectionClosed
	}
	var stale *Handle
	if old := a.handles[worker]; old != nil {
		if a.holders[old] > 0 {
			a.retired[old] = struct{}{}
		} else {
			delete(a.holders, old)
			stale = old
		}
	}
	a.handles[worker] = h
	a.holders[h] = 1
	a.mu.Unlock()

	if stale != nil {
		a.closeHandle(stale)
	}
	a.log.Debug("cached new handle", workerField(worker), zap.String("handle", h.ID()))
	return h, nil
}

// Release keeps the handle cached for the same worker. A replaced handle
// is closed when its last holder releases it.
func (a *AffinityStrategy) Release(h *Handle) {
	if h == nil {
		return
	}
	a.mu.Lock()
	if a.holders[h] > 1 {
		a.holders[h]--
		a.mu.Unlock()
		return
	}
	delete(a.holders, h)
	_, retired := a.retired[h]
	delete(a.retired, h)
	a.mu.Unlock()

	if retired {
		a.closeHandle(h)
	}
}

func (a *AffinityStrategy) closeHandle(h *Handle) {
	if err := h.Close(); err != nil {
		a.log.Warn("closing replaced handle failed", zap.String("handle", h.ID()), zap.Error(err))
		return
	}
	a.log.Debug("closed replaced handle", zap.String("handle", h.ID()))
}

// Close closes every cached and replaced handle.
func (a *AffinityStrategy) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	var handles []*Handle
	for h := range a.retired {
		handles = append(handles, h)
	}
	for _, h := range a.handles {
		handles = append(handles, h)
	}
	a.handles = nil
	a.retired = nil
	a.holders = nil
	a.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
