/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"container/list"
	"time"
)

// admissionQueue keeps not-yet-dispatched requests ordered by
// (priority rank, insertion order). Each priority tier is a FIFO list, so the
// front of a tier is always its oldest entry. The queue is not safe for
// concurrent use on its own; the scheduler mutex guards it.
type admissionQueue[Req, Res any] struct {
	tiers [prioritiesCount]*list.List
	byID  map[string]*queuedRequest[Req, Res]
}

func newAdmissionQueue[Req, Res any]() *admissionQueue[Req, Res] {
	q := &admissionQueue[Req, Res]{byID: make(map[string]*queuedRequest[Req, Res])}
	for i := range q.tiers {
		q.tiers[i] = list.New()
	}
	return q
}

func (q *admissionQueue[Req, Res]) len() int {
	return len(q.byID)
}

func (q *admissionQueue[Req, Res]) depth(p Priority) int {
	return q.tiers[p.rank()].Len()
}

func (q *admissionQueue[Req, Res]) get(id string) (*queuedRequest[Req, Res], bool) {
	req, ok := q.byID[id]
	return req, ok
}

// push appends the request to the tail of its priority tier.
func (q *admissionQueue[Req, Res]) push(req *queuedRequest[Req, Res]) {
	req.elem = q.tiers[req.priority.rank()].PushBack(req)
	q.byID[req.id] = req
}

// popHighest removes and returns the highest-priority, earliest-inserted
// request, or nil when the queue is empty.
func (q *admissionQueue[Req, Res]) popHighest() *queuedRequest[Req, Res] {
	for i := range q.tiers {
		if elem := q.tiers[i].Front(); elem != nil {
			return q.removeElem(i, elem)
		}
	}
	return nil
}

// remove removes a specific still-queued request. It returns false if the
// request is not in the queue.
func (q *admissionQueue[Req, Res]) remove(req *queuedRequest[Req, Res]) bool {
	if req.elem == nil {
		return false
	}
	q.removeElem(req.priority.rank(), req.elem)
	return true
}

// evictLowestOldest removes the globally lowest-priority, oldest-inserted request.
func (q *admissionQueue[Req, Res]) evictLowestOldest() *queuedRequest[Req, Res] {
	for i := len(q.tiers) - 1; i >= 0; i-- {
		if elem := q.tiers[i].Front(); elem != nil {
			return q.removeElem(i, elem)
		}
	}
	return nil
}

// evictOldestInTier removes the oldest request of the given priority tier.
func (q *admissionQueue[Req, Res]) evictOldestInTier(p Priority) *queuedRequest[Req, Res] {
	tier := p.rank()
	if elem := q.tiers[tier].Front(); elem != nil {
		return q.removeElem(tier, elem)
	}
	return nil
}

// popExpired removes and returns the requests whose queue wait exceeded
// maxQueueTime. Tiers are FIFO by admission time, so expired entries always
// sit at tier fronts.
func (q *admissionQueue[Req, Res]) popExpired(now time.Time, maxQueueTime time.Duration) []*queuedRequest[Req, Res] {
	if maxQueueTime <= 0 {
		return nil
	}
	var expired []*queuedRequest[Req, Res]
	for i := range q.tiers {
		for {
			elem := q.tiers[i].Front()
			if elem == nil {
				break
			}
			req := elem.Value.(*queuedRequest[Req, Res])
			if now.Sub(req.enqueuedAt) <= maxQueueTime {
				break
			}
			expired = append(expired, q.removeElem(i, elem))
		}
	}
	return expired
}

// drain removes and returns all queued requests, optionally restricted to the
// given priorities.
func (q *admissionQueue[Req, Res]) drain(priorities ...Priority) []*queuedRequest[Req, Res] {
	tiers := make([]int, 0, prioritiesCount)
	if len(priorities) == 0 {
		for i := 0; i < prioritiesCount; i++ {
			tiers = append(tiers, i)
		}
	} else {
		for _, p := range priorities {
			tiers = append(tiers, p.rank())
		}
	}
	var drained []*queuedRequest[Req, Res]
	for _, i := range tiers {
		for {
			elem := q.tiers[i].Front()
			if elem == nil {
				break
			}
			drained = append(drained, q.removeElem(i, elem))
		}
	}
	return drained
}

func (q *admissionQueue[Req, Res]) removeElem(tier int, elem *list.Element) *queuedRequest[Req, Res] {
	req := elem.Value.(*queuedRequest[Req, Res])
	q.tiers[tier].Remove(elem)
	req.elem = nil
	delete(q.byID, req.id)
	return req
}
