/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package reqsched provides a client-side request admission and scheduling
// layer for an arbitrary network call executor.
//
// Submitted requests are ordered by priority (FIFO within a priority tier),
// dispatched under a configurable concurrency ceiling, deduplicated when
// logically identical calls overlap, retried with exponential backoff on
// transient failures and shed with a configurable overflow strategy when the
// admission queue is full.
//
// Key features:
//   - Strict priority precedence at dispatch time, FIFO within a tier
//   - Deduplication of concurrent identical submissions into one execution
//   - Exactly-once terminal outcome per request despite success/timeout races
//   - Retry controller with idempotency-aware failure classification
//   - Overflow strategies: reject new, drop oldest globally, drop oldest
//     within the same priority tier
//   - Consistent statistics and optional Prometheus metrics
//
// The scheduler never performs network I/O itself; the actual call is done by
// an injected Executor. See the httpexec subpackage for a net/http-based one.
package reqsched
