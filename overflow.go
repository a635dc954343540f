/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import "github.com/acronis/go-appkit/log"

// admitLocked inserts the request into the admission queue, applying the
// configured overflow strategy when the queue is full. It returns the evicted
// requests to resolve outside the lock and whether the request was admitted.
// The queue may exceed its capacity only transiently, between the eviction
// and the insertion below.
func (s *Scheduler[Req, Res]) admitLocked(req *queuedRequest[Req, Res]) (evicted []resolution[Res], admitted bool) {
	if s.queue.len() >= s.cfg.MaxQueueSize {
		var victim *queuedRequest[Req, Res]
		switch s.cfg.OverflowStrategy {
		case OverflowDropOldestGlobal:
			victim = s.queue.evictLowestOldest()
		case OverflowDropOldestSamePriority:
			victim = s.queue.evictOldestInTier(req.priority)
		}
		if victim == nil {
			return nil, false
		}
		evicted = append(evicted, resolution[Res]{waiters: s.cancelLocked(victim), err: ErrCancelled})
		s.logger.Warn("queue overflow, request evicted",
			log.String("evicted_request_id", victim.id),
			log.String("evicted_priority", victim.priority.String()),
			log.String("strategy", string(s.cfg.OverflowStrategy)))
	}
	s.queue.push(req)
	s.dedup.put(req)
	return evicted, true
}
