/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeQueuedRequest(id string, p Priority) *queuedRequest[string, string] {
	return &queuedRequest[string, string]{
		id:          id,
		payload:     id,
		priority:    p,
		submittedAt: time.Now(),
		enqueuedAt:  time.Now(),
		state:       stateQueued,
	}
}

func popAllIDs(q *admissionQueue[string, string]) []string {
	var ids []string
	for req := q.popHighest(); req != nil; req = q.popHighest() {
		ids = append(ids, req.id)
	}
	return ids
}

func TestAdmissionQueueOrdering(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	q.push(makeQueuedRequest("n1", PriorityNormal))
	q.push(makeQueuedRequest("l1", PriorityLow))
	q.push(makeQueuedRequest("c1", PriorityCritical))
	q.push(makeQueuedRequest("n2", PriorityNormal))
	q.push(makeQueuedRequest("h1", PriorityHigh))
	require.Equal(t, 5, q.len())

	require.Equal(t, []string{"c1", "h1", "n1", "n2", "l1"}, popAllIDs(q))
	require.Equal(t, 0, q.len())
	require.Nil(t, q.popHighest())
}

func TestAdmissionQueueDepth(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	q.push(makeQueuedRequest("n1", PriorityNormal))
	q.push(makeQueuedRequest("n2", PriorityNormal))
	q.push(makeQueuedRequest("c1", PriorityCritical))

	require.Equal(t, 2, q.depth(PriorityNormal))
	require.Equal(t, 1, q.depth(PriorityCritical))
	require.Equal(t, 0, q.depth(PriorityLow))
}

func TestAdmissionQueueRemove(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	n1 := makeQueuedRequest("n1", PriorityNormal)
	q.push(n1)
	q.push(makeQueuedRequest("n2", PriorityNormal))

	got, ok := q.get("n1")
	require.True(t, ok)
	require.Same(t, n1, got)

	require.True(t, q.remove(n1))
	require.False(t, q.remove(n1), "second removal must report absence")
	_, ok = q.get("n1")
	require.False(t, ok)
	require.Equal(t, []string{"n2"}, popAllIDs(q))
}

func TestAdmissionQueueEvictLowestOldest(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	q.push(makeQueuedRequest("c1", PriorityCritical))
	q.push(makeQueuedRequest("l1", PriorityLow))
	q.push(makeQueuedRequest("l2", PriorityLow))
	q.push(makeQueuedRequest("n1", PriorityNormal))

	require.Equal(t, "l1", q.evictLowestOldest().id)
	require.Equal(t, "l2", q.evictLowestOldest().id)
	require.Equal(t, "n1", q.evictLowestOldest().id)
	require.Equal(t, "c1", q.evictLowestOldest().id)
	require.Nil(t, q.evictLowestOldest())
}

func TestAdmissionQueueEvictOldestInTier(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	q.push(makeQueuedRequest("n1", PriorityNormal))
	q.push(makeQueuedRequest("n2", PriorityNormal))

	require.Nil(t, q.evictOldestInTier(PriorityHigh))
	require.Equal(t, "n1", q.evictOldestInTier(PriorityNormal).id)
	require.Equal(t, "n2", q.evictOldestInTier(PriorityNormal).id)
	require.Nil(t, q.evictOldestInTier(PriorityNormal))
}

func TestAdmissionQueuePopExpired(t *testing.T) {
	q := newAdmissionQueue[string, string]()
	now := time.Now()

	old1 := makeQueuedRequest("old1", PriorityNormal)
	old1.enqueuedAt = now.Add(-time.Second)
	old2 := makeQueuedRequest("old2", PriorityLow)
	old2.enqueuedAt = now.Add(-2 * time.Second)
	fresh := makeQueuedRequest("fresh", PriorityNormal)
	fresh.enqueuedAt = now
	q.push(old1)
	q.push(fresh)
	q.push(old2)

	expired := q.popExpired(now, 500*time.Millisecond)
	ids := make([]string, 0, len(expired))
	for _, req := range expired {
		ids = append(ids, req.id)
	}
	require.ElementsMatch(t, []string{"old1", "old2"}, ids)
	require.Equal(t, []string{"fresh"}, popAllIDs(q))

	q.push(old1)
	require.Empty(t, q.popExpired(now, 0), "zero max queue time disables expiry")
}

func TestAdmissionQueueDrain(t *testing.T) {
	fill := func() *admissionQueue[string, string] {
		q := newAdmissionQueue[string, string]()
		q.push(makeQueuedRequest("c1", PriorityCritical))
		q.push(makeQueuedRequest("n1", PriorityNormal))
		q.push(makeQueuedRequest("l1", PriorityLow))
		return q
	}

	t.Run("all priorities", func(t *testing.T) {
		q := fill()
		require.Len(t, q.drain(), 3)
		require.Equal(t, 0, q.len())
	})

	t.Run("selected priorities", func(t *testing.T) {
		q := fill()
		drained := q.drain(PriorityLow, PriorityCritical)
		require.Len(t, drained, 2)
		require.Equal(t, []string{"n1"}, popAllIDs(q))
	})
}

func TestDedupIndex(t *testing.T) {
	d := newDedupIndex[string, string]()
	require.Equal(t, 0, d.len())

	owner := makeQueuedRequest("r1", PriorityNormal)
	owner.dedupKey, owner.dedupEnabled = "key", true
	d.put(owner)
	require.Equal(t, 1, d.len())

	require.Same(t, owner, d.owner("key"))

	// A request without deduplication never registers as an owner.
	plain := makeQueuedRequest("r2", PriorityNormal)
	d.put(plain)
	require.Equal(t, 1, d.len())

	// Dropping with a different current owner keeps the entry intact.
	usurper := makeQueuedRequest("r3", PriorityNormal)
	usurper.dedupKey, usurper.dedupEnabled = "key", true
	d.drop(usurper)
	require.Same(t, owner, d.owner("key"))

	d.drop(owner)
	require.Nil(t, d.owner("key"))
	require.Equal(t, 0, d.len())
}

func TestPriorityString(t *testing.T) {
	require.Equal(t, "critical", PriorityCritical.String())
	require.Equal(t, "high", PriorityHigh.String())
	require.Equal(t, "normal", PriorityNormal.String())
	require.Equal(t, "low", PriorityLow.String())
	require.Equal(t, "priority(42)", Priority(42).String())
}

func TestParsePriority(t *testing.T) {
	for _, p := range allPriorities {
		parsed, err := ParsePriority(p.String())
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}
	_, err := ParsePriority("urgent")
	require.Error(t, err)
}

func TestPriorityRankOrder(t *testing.T) {
	for i := 1; i < len(allPriorities); i++ {
		require.Less(t, allPriorities[i-1].rank(), allPriorities[i].rank(),
			fmt.Sprintf("%s must outrank %s", allPriorities[i-1], allPriorities[i]))
	}
}
