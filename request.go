/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"container/list"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type requestState int

const (
	stateQueued requestState = iota
	stateDispatched
	stateRetryWait
	stateTerminal
)

// queuedRequest carries one logical request through its whole lifecycle:
// Queued -> Dispatched -> terminal, with Dispatched -> RetryWait -> Queued
// loops bounded by the retry budget. All fields are guarded by the scheduler
// mutex; only the execution record of the current attempt is not.
type queuedRequest[Req, Res any] struct {
	id      string
	payload Req

	priority   Priority
	method     string
	idempotent *bool

	timeout     time.Duration
	submittedAt time.Time
	enqueuedAt  time.Time // reset on every (re-)admission, queue expiry is measured from here

	dedupKey     string
	dedupEnabled bool
	metadata     map[string]string

	retryCount int
	backoff    backoff.BackOff // created lazily on the first retry
	retryTimer *time.Timer

	state   requestState
	waiters []*Handle[Res]
	elem    *list.Element // position in the admission queue while queued
}

// isIdempotent reports whether retries that require idempotency are allowed
// for the request: either by the explicit per-request override or by the
// HTTP method allow-list.
func (r *queuedRequest[Req, Res]) isIdempotent() bool {
	if r.idempotent != nil {
		return *r.idempotent
	}
	return IsIdempotentMethod(r.method)
}

// takeWaiters detaches and returns the waiter list for terminal fan-out.
func (r *queuedRequest[Req, Res]) takeWaiters() []*Handle[Res] {
	ws := r.waiters
	r.waiters = nil
	return ws
}

// removeWaiter removes the given handle from the waiter list.
func (r *queuedRequest[Req, Res]) removeWaiter(h *Handle[Res]) {
	for i, w := range r.waiters {
		if w == h {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}
