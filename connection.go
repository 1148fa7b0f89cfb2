package smbclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PooledFactory defines the lifecycle hooks of pooled handles.
type PooledFactory interface {
	// Create builds a new, unconnected handle.
	Create(ctx context.Context) (*Handle, error)
	// Destroy closes a handle leaving the pool.
	Destroy(h *Handle) error
	// Validate reports whether an idle handle may be lent out.
	Validate(ctx context.Context, h *Handle) bool
	// Activate prepares a handle on checkout.
	Activate(ctx context.Context, h *Handle) error
	// Passivate prepares a handle on check-in.
	Passivate(h *Handle) error
}

// handleFactory is the default PooledFactory. Validate is a no-op that
// accepts every handle unless probing is enabled, in which case a Stat of
// the share root must succeed.
type handleFactory struct {
	builder *HandleBuilder
	probe   bool
	log     *zap.Logger

	mu    sync.Mutex
	count int
}

// NewHandleFactory returns the default factory. With probe set, Validate
// issues a Stat of the share root.
func NewHandleFactory(builder *HandleBuilder, probe bool, log *zap.Logger) PooledFactory {
	if log == nil {
		log = zap.NewNop()
	}
	return &handleFactory{builder: builder, probe: probe, log: log}
}

func (f *handleFactory) Create(ctx context.Context) (*Handle, error) {
	if f.builder == nil {
		return nil, ErrNoBuilder
	}
	h := f.builder.Build()

	f.mu.Lock()
	f.count++
	count := f.count
	f.mu.Unlock()

	f.log.Info("created pooled handle", zap.String("handle", h.ID()), zap.Int("count", count))
	return h, nil
}

func (f *handleFactory) Destroy(h *Handle) error {
	err := h.Close()

	f.mu.Lock()
	f.count--
	count := f.count
	f.mu.Unlock()

	f.log.Info("destroyed pooled handle", zap.String("handle", h.ID()), zap.Int("count", count))
	return err
}

func (f *handleFactory) Validate(ctx context.Context, h *Handle) bool {
	if !f.probe {
		return true
	}
	if !h.Connected() {
		return false
	}
	_, err := h.Stat("")
	return err == nil
}

func (f *handleFactory) Activate(ctx context.Context, h *Handle) error {
	return h.Connect(ctx)
}

func (f *handleFactory) Passivate(h *Handle) error {
	return nil
}

// PoolStrategy lends handles from a bounded pool.
type PoolStrategy struct {
	config  PoolConfig
	factory PooledFactory
	log     *zap.Logger
	metrics *Metrics
	cancel  context.CancelFunc

	mu      sync.Mutex
	handles []*pooledHandle
	waiters []chan *pooledHandle
	numOpen int
	closed  bool
}

// pooledHandle wraps a handle with pool metadata.
type pooledHandle struct {
	handle   *Handle
	lastUsed time.Time
	inUse    bool
}

// NewPoolStrategy creates a pool lending handles made by factory. An idle
// eviction goroutine runs until Close.
func NewPoolStrategy(config PoolConfig, factory PooledFactory, log *zap.Logger, metrics *Metrics) *PoolStrategy {
	config.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &PoolStrategy{
		config:  config,
		factory: factory,
		log:     log.Named("pool"),
		metrics: metrics,
		cancel:  cancel,
		handles: make([]*pooledHandle, 0, config.MaxTotal),
	}
	p.startCleanup(ctx)
	return p
}

// Acquire borrows a handle. When every handle is lent out it waits up to
// MaxWait, or fails at once with ErrPoolExhausted if FailWhenExhausted is
// set.
func (p *PoolStrategy) Acquire(ctx context.Context) (*Handle, error) {
	if p.factory == nil {
		return nil, ErrNoBuilder
	}

	for attempt := 0; ; attempt++ {
		ph, err := p.borrow(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.factory.Activate(ctx, ph.handle); err != nil {
			p.discard(ph)
			return nil, err
		}
		if p.factory.Validate(ctx, ph.handle) {
			return ph.handle, nil
		}

		p.log.Warn("pooled handle failed validation", zap.String("handle", ph.handle.ID()))
		p.discard(ph)
		if attempt >= p.config.MaxTotal {
			return nil, ErrHandleInvalid
		}
	}
}

// borrow reserves an idle handle, creates one or waits for a return.
func (p *PoolStrategy) borrow(ctx context.Context) (*pooledHandle, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Check for idle handles, dropping expired ones
	var expired []*pooledHandle
	var found *pooledHandle
	i := 0
	for _, ph := range p.handles {
		if found == nil && !ph.inUse {
			if time.Since(ph.lastUsed) < p.config.IdleTimeout {
				ph.inUse = true
				found = ph
			} else {
				expired = append(expired, ph)
				p.numOpen--
				continue
			}
		}
		p.handles[i] = ph
		i++
	}
	p.handles = p.handles[:i]
	if found != nil {
		p.updateGauge()
		p.mu.Unlock()
		p.destroyAll(expired)
		return found, nil
	}

	// Can we create a new handle?
	if p.numOpen < p.config.MaxTotal {
		p.numOpen++
		p.mu.Unlock()
		p.destroyAll(expired)

		h, err := p.factory.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, err
		}

		ph := &pooledHandle{handle: h, lastUsed: time.Now(), inUse: true}
		p.mu.Lock()
		p.handles = append(p.handles, ph)
		p.updateGauge()
		p.mu.Unlock()
		return ph, nil
	}

	if p.config.FailWhenExhausted {
		p.mu.Unlock()
		p.destroyAll(expired)
		return nil, ErrPoolExhausted
	}

	// Wait for a handle to be returned
	waiter := make(chan *pooledHandle, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()
	p.destroyAll(expired)

	timer := time.NewTimer(p.config.MaxWait)
	defer timer.Stop()

	select {
	case ph := <-waiter:
		if ph == nil {
			return nil, ErrPoolClosed
		}
		return ph, nil
	case <-ctx.Done():
		if ph := p.abandon(waiter); ph != nil {
			return ph, nil
		}
		return nil, ctx.Err()
	case <-timer.C:
		if ph := p.abandon(waiter); ph != nil {
			return ph, nil
		}
		return nil, ErrPoolExhausted
	}
}

// abandon removes waiter from the queue. A handle handed over in the
// meantime is returned so it is not lost.
func (p *PoolStrategy) abandon(waiter chan *pooledHandle) *pooledHandle {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil
		}
	}
	p.mu.Unlock()

	// Already dequeued by put: a handle (or nil on close) is in flight
	return <-waiter
}

// Release returns a handle to the pool. Failures are logged and counted,
// never returned.
func (p *PoolStrategy) Release(h *Handle) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.releaseFailed(h, errors.New("panic during release"), zap.Any("panic", r))
			p.discard(p.find(h))
		}
	}()

	if err := p.factory.Passivate(h); err != nil {
		p.releaseFailed(h, err)
		p.discard(p.find(h))
		return
	}
	p.put(p.find(h))
}

func (p *PoolStrategy) releaseFailed(h *Handle, err error, fields ...zap.Field) {
	p.metrics.releaseFailed("pool")
	p.log.Warn("release failed", append(fields, zap.String("handle", h.ID()), zap.Error(err))...)
}

func (p *PoolStrategy) find(h *Handle) *pooledHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ph := range p.handles {
		if ph.handle == h {
			return ph
		}
	}
	return nil
}

// put makes a borrowed handle available again.
func (p *PoolStrategy) put(ph *pooledHandle) {
	if ph == nil {
		return
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		_ = p.factory.Destroy(ph.handle)
		return
	}

	ph.lastUsed = time.Now()

	// Try to give the handle to a waiter
	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		ph.inUse = true
		p.mu.Unlock()
		waiter <- ph
		return
	}

	ph.inUse = false

	// Keep the handle if under MaxIdle
	idleCount := 0
	for _, other := range p.handles {
		if !other.inUse && other != ph {
			idleCount++
		}
	}

	if idleCount >= p.config.MaxIdle {
		p.remove(ph)
		p.updateGauge()
		p.mu.Unlock()
		_ = p.factory.Destroy(ph.handle)
		return
	}

	p.updateGauge()
	p.mu.Unlock()
}

// discard drops a borrowed handle from the pool and wakes one waiter so it
// can create a replacement.
func (p *PoolStrategy) discard(ph *pooledHandle) {
	if ph == nil {
		return
	}
	p.mu.Lock()
	p.remove(ph)
	p.updateGauge()
	p.mu.Unlock()

	if err := p.factory.Destroy(ph.handle); err != nil {
		p.log.Debug("destroy failed", zap.String("handle", ph.handle.ID()), zap.Error(err))
	}
	p.wakeWaiter()
}

// wakeWaiter hands a fresh handle to the first waiter when capacity allows.
func (p *PoolStrategy) wakeWaiter() {
	p.mu.Lock()
	if p.closed || len(p.waiters) == 0 || p.numOpen >= p.config.MaxTotal {
		p.mu.Unlock()
		return
	}
	p.numOpen++
	p.mu.Unlock()

	h, err := p.factory.Create(context.Background())
	if err != nil {
		p.mu.Lock()
		p.numOpen--
		p.mu.Unlock()
		return
	}
	ph := &pooledHandle{handle: h, lastUsed: time.Now(), inUse: true}
	p.mu.Lock()
	p.handles = append(p.handles, ph)
	p.mu.Unlock()
	p.put(ph)
}

// remove deletes ph from the pool. Callers hold p.mu.
func (p *PoolStrategy) remove(ph *pooledHandle) {
	for i, other := range p.handles {
		if other == ph {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			p.numOpen--
			return
		}
	}
}

// Stats returns the number of lent and idle handles.
func (p *PoolStrategy) Stats() (active, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts()
}

func (p *PoolStrategy) counts() (active, idle int) {
	for _, ph := range p.handles {
		if ph.inUse {
			active++
		} else {
			idle++
		}
	}
	return active, idle
}

// updateGauge publishes the pool counts. Callers hold p.mu.
func (p *PoolStrategy) updateGauge() {
	p.metrics.setPoolHandles(p.counts())
}

func (p *PoolStrategy) destroyAll(handles []*pooledHandle) {
	for _, ph := range handles {
		_ = p.factory.Destroy(ph.handle)
	}
}

// Close destroys every pooled handle and fails pending borrowers.
func (p *PoolStrategy) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	p.cancel()

	// Notify all waiters
	for _, waiter := range p.waiters {
		close(waiter)
	}
	p.waiters = nil

	handles := p.handles
	p.handles = nil
	p.numOpen = 0
	p.updateGauge()
	p.mu.Unlock()

	var errs []error
	for _, ph := range handles {
		if err := p.factory.Destroy(ph.handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cleanup removes expired idle handles.
func (p *PoolStrategy) cleanup() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return
	}

	now := time.Now()
	var expired []*pooledHandle
	i := 0
	for _, ph := range p.handles {
		if !ph.inUse && now.Sub(ph.lastUsed) > p.config.IdleTimeout {
			expired = append(expired, ph)
			p.numOpen--
			continue
		}
		p.handles[i] = ph
		i++
	}
	p.handles = p.handles[:i]
	p.updateGauge()
	p.mu.Unlock()

	if len(expired) > 0 {
		p.log.Debug("evicted idle handles", zap.Int("count", len(expired)))
	}
	p.destroyAll(expired)
}

// startCleanup starts a background goroutine to evict expired handles.
func (p *PoolStrategy) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
