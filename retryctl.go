/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"net/http"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/retry"
	"github.com/cenkalti/backoff/v4"
)

var idempotentMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// IsIdempotentMethod reports whether the given HTTP method is in the
// idempotent allow-list used for retry eligibility.
func IsIdempotentMethod(method string) bool {
	_, ok := idempotentMethods[strings.ToUpper(method)]
	return ok
}

// retryController classifies failed attempts and decides whether and when
// they re-enter the admission queue.
type retryController struct {
	maxRetries int
	policy     retry.Policy
}

func newRetryController(cfg RetriesConfig) *retryController {
	return &retryController{maxRetries: cfg.MaxAttempts, policy: cfg.Policy()}
}

// retryableFailure reports whether the failure class allows a retry at all.
// Connection-level failures are retryable regardless of idempotency (no
// request could have been processed remotely); timeouts and remote 5xx are
// retryable only for idempotent requests; everything else is permanent.
func (rc *retryController) retryableFailure(kind FailureKind, statusCode int, idempotent bool) bool {
	switch kind {
	case FailureConnectTimeout, FailureConnectionError:
		return true
	case FailureReceiveTimeout, FailureSendTimeout:
		return idempotent
	case FailureBadResponse:
		return idempotent && statusCode >= http.StatusInternalServerError
	}
	return false
}

// routeFailureLocked decides between a retry and a terminal failure for a
// finished attempt. For a terminal failure it returns the waiters to resolve
// with the terminal error; for a retry it schedules re-admission and returns
// terminal=false.
func (s *Scheduler[Req, Res]) routeFailureLocked(
	req *queuedRequest[Req, Res], kind FailureKind, statusCode int, attemptErr error,
) (terminal bool, waiters []*Handle[Res], terminalErr error) {
	retryableClass := s.retryCtl.retryableFailure(kind, statusCode, req.isIdempotent())
	if retryableClass && !s.closed {
		if req.retryCount < s.retryCtl.maxRetries {
			s.scheduleRetryLocked(req, attemptErr)
			return false, nil, nil
		}
		if s.retryCtl.maxRetries > 0 {
			return true, s.terminateLocked(req), &RetriesExhaustedError{Attempts: req.retryCount + 1, LastErr: attemptErr}
		}
	}
	return true, s.terminateLocked(req), attemptErr
}

// scheduleRetryLocked re-admits the request after the backoff delay of its
// next attempt. The request keeps one backoff sequence across attempts, so
// the delay before retry k is baseDelay*2^(k-1) clamped to maxDelay.
func (s *Scheduler[Req, Res]) scheduleRetryLocked(req *queuedRequest[Req, Res], attemptErr error) {
	if req.backoff == nil {
		req.backoff = s.retryCtl.policy.NewBackOff()
	}
	delay := req.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = s.cfg.Retries.MaxDelay
	}
	req.retryCount++
	req.state = stateRetryWait
	s.stats.retried++
	s.metrics.IncOutcome(OutcomeRetried)
	s.retryWaits[req.id] = req
	req.retryTimer = time.AfterFunc(delay, func() { s.readmit(req) })

	s.logger.Debug("retry scheduled",
		log.String("request_id", req.id),
		log.Int("retry_count", req.retryCount),
		log.Duration("delay", delay),
		log.Error(attemptErr))
}

// readmit returns a retry-waiting request to the admission queue once its
// backoff delay elapsed. Retries enter at their original priority and compete
// with new work instead of bypassing it.
func (s *Scheduler[Req, Res]) readmit(req *queuedRequest[Req, Res]) {
	s.mu.Lock()
	if _, ok := s.retryWaits[req.id]; !ok {
		// Cancelled or closed while the delay was running.
		s.mu.Unlock()
		return
	}
	delete(s.retryWaits, req.id)
	if s.closed || req.state != stateRetryWait {
		s.mu.Unlock()
		return
	}
	req.state = stateQueued
	req.enqueuedAt = time.Now()
	evicted, ok := s.admitLocked(req)
	var rejected []*Handle[Res]
	if !ok {
		s.stats.rejected++
		s.metrics.IncOutcome(OutcomeRejected)
		rejected = s.terminateLocked(req)
	}
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.deliver(evicted)
	if rejected != nil {
		var zero Res
		resolveWaiters(rejected, zero, ErrQueueOverflow)
	}
	s.wake()
}
