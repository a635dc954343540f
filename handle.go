/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"context"
	"sync"
)

// Handle is a future-like view of a submitted request resolving to its
// terminal outcome. Every submitter gets its own handle even when
// deduplication merged the submission into an already admitted request;
// handles sharing one execution resolve with the identical outcome and
// cancelling one of them never affects the others.
type Handle[Res any] struct {
	requestID string

	resolveOnce sync.Once
	done        chan struct{}
	res         Res
	err         error

	detach func(h *Handle[Res])
}

func newHandle[Res any](requestID string) *Handle[Res] {
	return &Handle[Res]{requestID: requestID, done: make(chan struct{})}
}

// RequestID returns the ID of the underlying (possibly shared) request.
func (h *Handle[Res]) RequestID() string {
	return h.requestID
}

// Done returns a channel that is closed when the request reaches a terminal outcome.
func (h *Handle[Res]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the request resolves or ctx is done.
// Leaving Wait on ctx cancellation does not detach the handle; use Cancel for that.
func (h *Handle[Res]) Wait(ctx context.Context) (Res, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		var zero Res
		return zero, ctx.Err()
	}
}

// Result returns the terminal outcome, or ErrNotResolved if the request
// has not resolved yet.
func (h *Handle[Res]) Result() (Res, error) {
	select {
	case <-h.done:
		return h.res, h.err
	default:
		var zero Res
		return zero, ErrNotResolved
	}
}

// Cancel detaches the handle from the request and resolves it with
// ErrCancelled. Other handles sharing the same execution are not affected and
// an already dispatched execution keeps running. When the last handle of a
// still-queued request is cancelled, the request itself is removed from the
// queue. Cancel is a no-op on an already resolved handle.
func (h *Handle[Res]) Cancel() {
	if h.detach != nil {
		h.detach(h)
	}
	var zero Res
	h.resolve(zero, ErrCancelled)
}

// resolve delivers the terminal outcome. It never blocks and all calls after
// the first one are no-ops, so a stuck or cancelled consumer cannot affect
// delivery to the other waiters of a shared execution.
func (h *Handle[Res]) resolve(res Res, err error) {
	h.resolveOnce.Do(func() {
		h.res = res
		h.err = err
		close(h.done)
	})
}
