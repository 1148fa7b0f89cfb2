package smbclient

import (
	"context"
)

// Strategy issues connected handles and takes them back. The facade calls
// Release exactly once for every successful Acquire, on every exit path.
type Strategy interface {
	// Acquire returns a connected handle owned by the caller until Release.
	Acquire(ctx context.Context) (*Handle, error)
	// Release hands the handle back. It never fails; problems are logged.
	Release(h *Handle)
	// Close closes every handle the strategy still holds.
	Close() error
}

type workerKey struct{}

// WithWorker tags ctx with a worker identity. AffinityStrategy keeps one
// handle per identity, so sequential calls from the same worker reuse a
// connection.
func WithWorker(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerFrom returns the worker identity of ctx, "" when none is set.
func WorkerFrom(ctx context.Context) string {
	id, _ := ctx.Value(workerKey{}).(string)
	return id
}
