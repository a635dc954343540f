/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"context"
	"time"

	"github.com/acronis/go-appkit/log"
	"go.uber.org/atomic"
)

// executionRecord tracks one dispatch attempt. The completed flag is the
// exactly-once guard for the race between executor completion and the attempt
// timer: whichever side wins the compare-and-swap owns outcome delivery and
// the loser is a guaranteed no-op.
type executionRecord struct {
	startedAt time.Time
	completed atomic.Bool
}

// execute supervises a single dispatched attempt: it arms the attempt timer,
// invokes the executor and routes the winning signal to the success, failure
// or timeout path. It runs on its own goroutine, one per in-flight request.
func (s *Scheduler[Req, Res]) execute(req *queuedRequest[Req, Res]) {
	rec := &executionRecord{startedAt: time.Now()}
	ctx, cancelAttempt := context.WithCancel(context.Background())

	timer := time.AfterFunc(req.timeout, func() {
		if !rec.completed.CompareAndSwap(false, true) {
			return
		}
		// The attempt is over for the scheduler; let the executor know.
		cancelAttempt()
		s.finishTimedOut(req, req.timeout)
	})

	res, err := s.executor.Execute(ctx, req.payload)
	if !rec.completed.CompareAndSwap(false, true) {
		// The timer won the race, this result is dropped.
		cancelAttempt()
		return
	}
	timer.Stop()
	cancelAttempt()
	if err != nil {
		s.finishFailed(req, rec, err)
		return
	}
	s.finishSucceeded(req, rec, res)
}

func (s *Scheduler[Req, Res]) finishSucceeded(req *queuedRequest[Req, Res], rec *executionRecord, res Res) {
	elapsed := time.Since(rec.startedAt)

	s.mu.Lock()
	waiters := s.terminateLocked(req)
	s.stats.succeeded++
	s.stats.totalExecTime += elapsed
	s.releaseSlotLocked()
	s.mu.Unlock()

	s.metrics.ObserveExecutionTime(OutcomeSucceeded, elapsed)
	s.metrics.IncOutcome(OutcomeSucceeded)
	s.logger.Debug("request succeeded",
		log.String("request_id", req.id), log.DurationIn(elapsed, time.Millisecond))

	resolveWaiters(waiters, res, nil)
	s.wake()
}

func (s *Scheduler[Req, Res]) finishFailed(req *queuedRequest[Req, Res], rec *executionRecord, err error) {
	execErr := asExecutorError(err)
	elapsed := time.Since(rec.startedAt)

	s.mu.Lock()
	s.stats.failed++
	s.stats.totalExecTime += elapsed
	s.releaseSlotLocked()
	terminal, waiters, terminalErr := s.routeFailureLocked(req, execErr.Kind, execErr.StatusCode, execErr)
	s.mu.Unlock()

	s.metrics.ObserveExecutionTime(OutcomeFailed, elapsed)
	s.metrics.IncOutcome(OutcomeFailed)
	s.logger.Debug("request attempt failed",
		log.String("request_id", req.id), log.Int("retry_count", req.retryCount), log.Error(execErr))

	if terminal {
		var zero Res
		resolveWaiters(waiters, zero, terminalErr)
	}
	s.wake()
}

// finishTimedOut handles the attempt timer winning the completion race.
// A timed-out attempt is routed through the retry controller like a receive
// timeout: it is retried only for idempotent requests.
func (s *Scheduler[Req, Res]) finishTimedOut(req *queuedRequest[Req, Res], timeout time.Duration) {
	s.mu.Lock()
	s.stats.timedOut++
	s.stats.totalExecTime += timeout
	s.releaseSlotLocked()
	terminal, waiters, terminalErr := s.routeFailureLocked(req, FailureReceiveTimeout, 0, ErrRequestTimeout)
	s.mu.Unlock()

	s.metrics.ObserveExecutionTime(OutcomeTimedOut, timeout)
	s.metrics.IncOutcome(OutcomeTimedOut)
	s.logger.Warn("request attempt timed out",
		log.String("request_id", req.id), log.Duration("timeout", timeout))

	if terminal {
		var zero Res
		resolveWaiters(waiters, zero, terminalErr)
	}
	s.wake()
}

func (s *Scheduler[Req, Res]) releaseSlotLocked() {
	s.inFlight--
	s.metrics.SetInFlight(s.inFlight)
}
