// Package completion provides a single-assignment future used to hand a
// decoded response (or a fatal error) from the connection's reader
// goroutine back to whichever caller issued the request on that stream.
package completion

import (
	"context"
	"sync"

	"github.com/nodestore/cql/frame"
)

// Outcome is what a Completion eventually resolves to: exactly one of
// Response or Err is set.
type Outcome struct {
	Response frame.Response
	Err      error
}

// Completion is a single-producer, single-consumer handoff: the reader
// goroutine calls Resolve exactly once when the correlated response (or
// a connection-fatal error) arrives, and the issuing caller calls Wait
// to block until that happens or its context is done.
//
// A Completion must not be reused after Resolve; callers that need to
// issue another request allocate a new one.
type Completion struct {
	done chan struct{}
	once sync.Once
	out  Outcome
}

// New returns an unresolved Completion.
func New() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve fulfills the completion with out. Only the first call has any
// effect; later calls (which should not happen under correct stream-id
// bookkeeping, but can on a racing close-then-response) are silently
// dropped.
func (c *Completion) Resolve(out Outcome) {
	c.once.Do(func() {
		c.out = out
		close(c.done)
	})
}

// Wait blocks until Resolve has been called or ctx is done, whichever
// comes first. A context cancellation does not resolve the Completion —
// the reader goroutine may still deliver (or never deliver) a result,
// so the caller must treat its own stream id as leaked until the
// connection that owns it is torn down.
func (c *Completion) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Done reports whether Resolve has already been called, without
// blocking.
func (c *Completion) Done() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
