// Package infra provides shared infrastructure for the Wikimate client.
// Its deduplicator coalesces identical in-flight requests so a burst of
// writers triggers a single token fetch instead of one each.
package infra

import (
	"context"
	"sync"
)

// Deduplicator coalesces concurrent calls that share a key. When several
// goroutines ask for the same key at once, one executes the function and
// the rest wait for its result.
type Deduplicator[T any] struct {
	mu       sync.Mutex
	inflight map[string]*inflightCall[T]
}

type inflightCall[T any] struct {
	done   chan struct{}
	result T
	err    error
	count  int // waiters, for stats
}

// NewDeduplicator creates an empty deduplicator
func NewDeduplicator[T any]() *Deduplicator[T] {
	return &Deduplicator[T]{
		inflight: make(map[string]*inflightCall[T]),
	}
}

// Do executes fn unless an identical call (by key) is already running, in
// which case it waits for that call's result. Returns the result, whether
// it was shared from another caller, and any error.
func (d *Deduplicator[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	d.mu.Lock()

	if call, ok := d.inflight[key]; ok {
		call.count++
		d.mu.Unlock()

		select {
		case <-call.done:
			return call.result, true, call.err
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}

	call := &inflightCall[T]{
		done:  make(chan struct{}),
		count: 1,
	}
	d.inflight[key] = call
	d.mu.Unlock()

	call.result, call.err = fn()

	close(call.done)

	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()

	return call.result, false, call.err
}

// Stats returns the current number of in-flight calls
func (d *Deduplicator[T]) Stats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}
