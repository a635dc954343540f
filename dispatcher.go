/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"time"

	"github.com/acronis/go-appkit/log"
)

// dispatchTickInterval drives periodic queue-time expiry checks independently
// of submit/completion wakeups.
const dispatchTickInterval = 100 * time.Millisecond

// run is the dispatch loop. It is woken on submission, attempt completion,
// resume, or a periodic tick and exits on Close.
func (s *Scheduler[Req, Res]) run() {
	defer close(s.loopDone)
	ticker := time.NewTicker(dispatchTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wakeCh:
		case <-ticker.C:
		}
		s.dispatch()
	}
}

// dispatch expires overdue queued requests and hands queued work to the
// execution supervisor while free concurrency slots remain. Expired requests
// never consume a slot.
func (s *Scheduler[Req, Res]) dispatch() {
	now := time.Now()
	var expired []resolution[Res]

	s.mu.Lock()
	for _, req := range s.queue.popExpired(now, s.cfg.MaxQueueTime) {
		expired = append(expired, resolution[Res]{waiters: s.expireLocked(req), err: ErrRequestExpired})
	}
	if !s.paused {
		for s.inFlight < s.cfg.MaxConcurrentRequests {
			req := s.queue.popHighest()
			if req == nil {
				break
			}
			if s.cfg.MaxQueueTime > 0 && now.Sub(req.enqueuedAt) > s.cfg.MaxQueueTime {
				expired = append(expired, resolution[Res]{waiters: s.expireLocked(req), err: ErrRequestExpired})
				continue
			}
			req.state = stateDispatched
			s.inFlight++
			s.stats.executed++
			go s.execute(req)
		}
	}
	s.updateQueueMetricsLocked()
	s.mu.Unlock()

	s.deliver(expired)
}

func (s *Scheduler[Req, Res]) expireLocked(req *queuedRequest[Req, Res]) []*Handle[Res] {
	s.stats.expired++
	s.metrics.IncOutcome(OutcomeExpired)
	s.logger.Debug("request expired in queue",
		log.String("request_id", req.id),
		log.Duration("queue_time", time.Since(req.enqueuedAt)))
	return s.terminateLocked(req)
}
