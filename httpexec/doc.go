/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpexec adapts net/http to the reqsched Executor contract.
//
// The Client performs the real HTTP call for a dispatched request and
// classifies transport failures into the scheduler's failure taxonomy
// (connect/receive/send timeouts, connection errors, bad responses), so that
// the scheduler's retry controller can tell transient failures from
// permanent ones. Retries, timeouts and concurrency limits belong to the
// scheduler; the underlying *http.Client should carry neither retries nor
// its own overall timeout.
package httpexec
