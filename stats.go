/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import "time"

// Stats is an immutable snapshot of scheduler counters and gauges.
type Stats struct {
	// Enqueued is the number of new submissions admitted into the queue.
	Enqueued uint64

	// Deduplicated is the number of submissions merged into an already
	// admitted identical request.
	Deduplicated uint64

	// Executed is the number of execution attempts handed to the Executor.
	Executed uint64

	// Succeeded, Failed and TimedOut count finished execution attempts.
	Succeeded uint64
	Failed    uint64
	TimedOut  uint64

	// Expired is the number of requests that waited in the queue for too long.
	Expired uint64

	// Retried is the number of scheduled retry attempts.
	Retried uint64

	// Rejected is the number of submissions failed on queue overflow.
	Rejected uint64

	// Cancelled is the number of requests cancelled explicitly or evicted.
	Cancelled uint64

	// InFlight is the number of currently executing requests.
	InFlight int

	// QueueDepth is the number of queued requests per priority.
	QueueDepth map[Priority]int

	// TotalExecutionTime is the accumulated duration of finished execution attempts.
	TotalExecutionTime time.Duration
}

// SuccessRate returns the ratio of succeeded attempts to executed ones.
func (s Stats) SuccessRate() float64 {
	if s.Executed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Executed)
}

// AvgExecutionTime returns the mean duration of an execution attempt.
func (s Stats) AvgExecutionTime() time.Duration {
	if s.Executed == 0 {
		return 0
	}
	return s.TotalExecutionTime / time.Duration(s.Executed)
}

// statsCollector accumulates scheduler counters. It carries no lock of its
// own: every mutation happens under the same scheduler mutex that serializes
// the queue and dedup transitions the counters describe.
type statsCollector struct {
	enqueued      uint64
	deduplicated  uint64
	executed      uint64
	succeeded     uint64
	failed        uint64
	timedOut      uint64
	expired       uint64
	retried       uint64
	rejected      uint64
	cancelled     uint64
	totalExecTime time.Duration
}

func (c *statsCollector) snapshot(inFlight int, queueDepth map[Priority]int) Stats {
	return Stats{
		Enqueued:           c.enqueued,
		Deduplicated:       c.deduplicated,
		Executed:           c.executed,
		Succeeded:          c.succeeded,
		Failed:             c.failed,
		TimedOut:           c.timedOut,
		Expired:            c.expired,
		Retried:            c.retried,
		Rejected:           c.rejected,
		Cancelled:          c.cancelled,
		InFlight:           inFlight,
		QueueDepth:         queueDepth,
		TotalExecutionTime: c.totalExecTime,
	}
}
