/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/rs/xid"
)

// Executor performs the real network call for a dispatched request.
// It must honor ctx cancellation and should classify failures with
// ExecutorError; unclassified errors are treated as FailureUnknown and are
// never retried. The scheduler never inspects the request payload or the
// result value.
type Executor[Req, Res any] interface {
	Execute(ctx context.Context, req Req) (Res, error)
}

// The ExecutorFunc type is an adapter to allow the use of ordinary functions as Executors.
type ExecutorFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Execute implements Executor.
func (f ExecutorFunc[Req, Res]) Execute(ctx context.Context, req Req) (Res, error) {
	return f(ctx, req)
}

// Scheduler is a priority admission queue in front of an Executor: it bounds
// the number of concurrently executing requests, merges concurrent identical
// submissions into one execution, retries transient failures with exponential
// backoff and sheds load with a configurable overflow strategy.
//
// A Scheduler must be created with New or NewWithOpts and released with Close.
type Scheduler[Req, Res any] struct {
	executor Executor[Req, Res]
	logger   log.FieldLogger
	metrics  MetricsCollector

	wakeCh   chan struct{}
	stopCh   chan struct{}
	loopDone chan struct{}

	mu         sync.Mutex
	cfg        Config
	retryCtl   *retryController
	queue      *admissionQueue[Req, Res]
	dedup      *dedupIndex[Req, Res]
	retryWaits map[string]*queuedRequest[Req, Res]
	inFlight   int
	paused     bool
	closed     bool
	stats      statsCollector
}

// Opts provides optional dependencies for NewWithOpts.
type Opts struct {
	// Logger is used for logging. log.NewDisabledLogger() is used by default.
	Logger log.FieldLogger

	// Metrics is a collector of scheduler metrics. Disabled by default.
	Metrics MetricsCollector
}

// New creates a new Scheduler with the given configuration and executor and
// starts its dispatch loop. A nil cfg means the default configuration.
func New[Req, Res any](cfg *Config, executor Executor[Req, Res]) (*Scheduler[Req, Res], error) {
	return NewWithOpts(cfg, executor, Opts{})
}

// NewWithOpts creates a new Scheduler with the specified options.
func NewWithOpts[Req, Res any](cfg *Config, executor Executor[Req, Res], opts Opts) (*Scheduler[Req, Res], error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is mandatory")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	normCfg, err := cfg.normalized()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}

	s := &Scheduler[Req, Res]{
		executor:   executor,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
		cfg:        normCfg,
		retryCtl:   newRetryController(normCfg.Retries),
		queue:      newAdmissionQueue[Req, Res](),
		dedup:      newDedupIndex[Req, Res](),
		retryWaits: make(map[string]*queuedRequest[Req, Res]),
	}
	go s.run()
	return s, nil
}

// SubmitOpts provides per-request submission parameters.
type SubmitOpts struct {
	// Priority defines admission precedence; PriorityNormal by default.
	Priority Priority

	// Timeout limits a single execution attempt. Config.DefaultTimeout is
	// used when zero.
	Timeout time.Duration

	// DedupKey is the derived identity of the logical request; concurrent
	// submissions sharing the key are merged into one execution. An empty key
	// disables deduplication for this request.
	DedupKey string

	// DisableDeduplication opts this request out of merging even when a
	// DedupKey is set.
	DisableDeduplication bool

	// Method is the HTTP method (or an equivalent verb) used for idempotency
	// classification of retries. See IsIdempotentMethod.
	Method string

	// Idempotent overrides the Method-based idempotency classification.
	Idempotent *bool

	// Metadata is an opaque bag of values attached to the request.
	Metadata map[string]string
}

// Submit admits a request and returns a handle resolving to its terminal
// outcome. Every admitted request resolves to exactly one outcome: a result
// or exactly one terminal error.
//
// When deduplication applies and an identical request is already queued,
// executing or waiting for a retry, no new queue slot is consumed and the
// returned handle shares that execution.
//
// Submit fails with ErrQueueOverflow when the queue is full and the overflow
// strategy frees no slot, and with ErrSchedulerClosed after Close.
func (s *Scheduler[Req, Res]) Submit(payload Req, opts SubmitOpts) (*Handle[Res], error) {
	if !opts.Priority.IsValid() {
		return nil, fmt.Errorf("invalid priority %d", opts.Priority)
	}
	now := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}

	dedupEnabled := s.cfg.Deduplication.Enabled && !opts.DisableDeduplication && opts.DedupKey != ""
	if dedupEnabled {
		if owner := s.dedup.owner(opts.DedupKey); owner != nil {
			h := s.newWaiterLocked(owner)
			s.stats.deduplicated++
			s.metrics.IncOutcome(OutcomeDeduplicated)
			s.mu.Unlock()
			s.logger.Debug("submission merged into identical request",
				log.String("request_id", owner.id), log.String("dedup_key", opts.DedupKey))
			return h, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	req := &queuedRequest[Req, Res]{
		id:           xid.New().String(),
		payload:      payload,
		priority:     opts.Priority,
		method:       opts.Method,
		idempotent:   opts.Idempotent,
		timeout:      timeout,
		submittedAt:  now,
		enqueuedAt:   now,
		dedupKey:     opts.DedupKey,
		dedupEnabled: dedupEnabled,
		metadata:     opts.Metadata,
		state:        stateQueued,
	}
	h := s.newWaiterLocked(req)

	evicted, ok := s.admitLocked(req)
	if !ok {
		s.stats.rejected++
		s.metrics.IncOutcome(OutcomeRejected)
		s.mu.Unlock()
		return nil, ErrQueueOverflow
	}
	s.stats.enqueued++
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.deliver(evicted)
	s.logger.Debug("request admitted",
		log.String("request_id", req.id), log.String("priority", req.priority.String()))
	s.wake()
	return h, nil
}

// Cancel cancels a still-queued or retry-waiting request, resolving all its
// waiters with ErrCancelled. It returns false when the request is unknown,
// already dispatched or already terminal. A dispatched execution is never
// interrupted; use Handle.Cancel to detach an individual waiter instead.
func (s *Scheduler[Req, Res]) Cancel(requestID string) bool {
	s.mu.Lock()
	var waiters []*Handle[Res]
	if req, ok := s.queue.get(requestID); ok {
		s.queue.remove(req)
		waiters = s.cancelLocked(req)
		s.updateQueueMetricsLocked()
	} else if req, ok := s.retryWaits[requestID]; ok {
		req.retryTimer.Stop()
		delete(s.retryWaits, requestID)
		waiters = s.cancelLocked(req)
	} else {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	var zero Res
	resolveWaiters(waiters, zero, ErrCancelled)
	return true
}

// Pause stops dispatching queued requests. In-flight executions continue and
// queue-time expiry still applies to queued requests.
func (s *Scheduler[Req, Res]) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables dispatching after Pause.
func (s *Scheduler[Req, Res]) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.wake()
}

// UpdateConfig applies a new configuration to a running scheduler. Shrinking
// the queue evicts surplus requests using the global lowest-priority, oldest
// rule; a lowered concurrency ceiling takes effect as in-flight executions
// finish. Already queued requests keep their resolved timeouts.
func (s *Scheduler[Req, Res]) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is mandatory")
	}
	normCfg, err := cfg.normalized()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	s.cfg = normCfg
	s.retryCtl = newRetryController(normCfg.Retries)
	var evicted []resolution[Res]
	for s.queue.len() > s.cfg.MaxQueueSize {
		victim := s.queue.evictLowestOldest()
		if victim == nil {
			break
		}
		evicted = append(evicted, resolution[Res]{waiters: s.cancelLocked(victim), err: ErrCancelled})
	}
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.deliver(evicted)
	s.wake()
	return nil
}

// Clear removes queued requests, resolving them with ErrCancelled, and
// returns the number of removed requests. With no arguments the whole queue
// is cleared, otherwise only the given priority tiers.
func (s *Scheduler[Req, Res]) Clear(priorities ...Priority) int {
	s.mu.Lock()
	drained := s.queue.drain(priorities...)
	rs := make([]resolution[Res], 0, len(drained))
	for _, req := range drained {
		rs = append(rs, resolution[Res]{waiters: s.cancelLocked(req), err: ErrCancelled})
	}
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.deliver(rs)
	return len(drained)
}

// Stats returns an immutable snapshot of the scheduler statistics.
func (s *Scheduler[Req, Res]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	queueDepth := make(map[Priority]int, prioritiesCount)
	for _, p := range allPriorities {
		queueDepth[p] = s.queue.depth(p)
	}
	return s.stats.snapshot(s.inFlight, queueDepth)
}

// Close stops the dispatch loop and cancels all queued and retry-waiting
// requests with ErrCancelled. In-flight executions are left to finish and
// resolve their waiters with their real outcome (without further retries).
// Close is idempotent and does not wait for in-flight executions.
func (s *Scheduler[Req, Res]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var rs []resolution[Res]
	for _, req := range s.queue.drain() {
		rs = append(rs, resolution[Res]{waiters: s.cancelLocked(req), err: ErrCancelled})
	}
	for id, req := range s.retryWaits {
		req.retryTimer.Stop()
		delete(s.retryWaits, id)
		rs = append(rs, resolution[Res]{waiters: s.cancelLocked(req), err: ErrCancelled})
	}
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	close(s.stopCh)
	<-s.loopDone
	s.deliver(rs)
}

// newWaiterLocked creates a handle attached to the request as an additional waiter.
func (s *Scheduler[Req, Res]) newWaiterLocked(req *queuedRequest[Req, Res]) *Handle[Res] {
	h := newHandle[Res](req.id)
	h.detach = func(hh *Handle[Res]) { s.detachWaiter(req, hh) }
	req.waiters = append(req.waiters, h)
	return h
}

// detachWaiter implements Handle.Cancel: it removes the handle from the
// request without affecting the other waiters. When the last waiter of a
// still-queued or retry-waiting request leaves, the request itself is
// cancelled; a dispatched execution keeps running.
func (s *Scheduler[Req, Res]) detachWaiter(req *queuedRequest[Req, Res], h *Handle[Res]) {
	s.mu.Lock()
	if req.state == stateTerminal {
		s.mu.Unlock()
		return
	}
	req.removeWaiter(h)
	if len(req.waiters) > 0 || req.state == stateDispatched {
		s.mu.Unlock()
		return
	}
	switch req.state {
	case stateQueued:
		s.queue.remove(req)
	case stateRetryWait:
		req.retryTimer.Stop()
		delete(s.retryWaits, req.id)
	}
	s.cancelLocked(req)
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.logger.Debug("request cancelled, last waiter detached", log.String("request_id", req.id))
}

// cancelLocked moves a non-dispatched request to the Cancelled terminal state
// and returns its waiters for fan-out.
func (s *Scheduler[Req, Res]) cancelLocked(req *queuedRequest[Req, Res]) []*Handle[Res] {
	s.stats.cancelled++
	s.metrics.IncOutcome(OutcomeCancelled)
	return s.terminateLocked(req)
}

// terminateLocked moves the request to its terminal state, drops its dedup
// entry and returns its waiters for fan-out outside the lock.
func (s *Scheduler[Req, Res]) terminateLocked(req *queuedRequest[Req, Res]) []*Handle[Res] {
	req.state = stateTerminal
	s.dedup.drop(req)
	return req.takeWaiters()
}

// resolution carries waiters of a terminated request to resolve once the
// scheduler mutex is released.
type resolution[Res any] struct {
	waiters []*Handle[Res]
	err     error
}

func (s *Scheduler[Req, Res]) deliver(rs []resolution[Res]) {
	var zero Res
	for _, r := range rs {
		resolveWaiters(r.waiters, zero, r.err)
	}
}

func resolveWaiters[Res any](waiters []*Handle[Res], res Res, err error) {
	for _, h := range waiters {
		h.resolve(res, err)
	}
}

// wake nudges the dispatch loop; coalesces with an already pending wakeup.
func (s *Scheduler[Req, Res]) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler[Req, Res]) updateQueueMetricsLocked() {
	for _, p := range allPriorities {
		s.metrics.SetQueueDepth(p, s.queue.depth(p))
	}
	s.metrics.SetInFlight(s.inFlight)
}
