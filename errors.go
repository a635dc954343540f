/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"context"
	"errors"
	"fmt"
)

// Errors that resolve handles or fail submissions.
var (
	// ErrQueueOverflow is returned by Submit when the admission queue is full
	// and the configured overflow strategy could not free a slot.
	ErrQueueOverflow = errors.New("admission queue overflow")

	// ErrRequestExpired resolves requests that waited in the queue longer than
	// the configured max queue time without being dispatched.
	ErrRequestExpired = errors.New("request expired in queue")

	// ErrRequestTimeout resolves requests whose execution attempt produced no
	// executor response within the request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrCancelled resolves requests cancelled explicitly, evicted on queue
	// overflow, or dropped on Clear/Close.
	ErrCancelled = errors.New("request cancelled")

	// ErrSchedulerClosed is returned by Submit after the scheduler was closed.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrNotResolved is returned by Handle.Result before the request reached
	// a terminal outcome.
	ErrNotResolved = errors.New("request is not resolved yet")
)

// FailureKind classifies a failure reported by the Executor.
type FailureKind int

// Supported failure kinds.
const (
	FailureUnknown FailureKind = iota
	FailureConnectTimeout
	FailureReceiveTimeout
	FailureSendTimeout
	FailureConnectionError
	FailureBadResponse
	FailureCancelled
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureConnectTimeout:
		return "connect timeout"
	case FailureReceiveTimeout:
		return "receive timeout"
	case FailureSendTimeout:
		return "send timeout"
	case FailureConnectionError:
		return "connection error"
	case FailureBadResponse:
		return "bad response"
	case FailureCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ExecutorError wraps a classified failure reported by the Executor.
// Executors should return it (or an error wrapping it) so that the retry
// controller can classify the failure; any other error is treated as
// FailureUnknown and is never retried.
type ExecutorError struct {
	Kind       FailureKind
	StatusCode int // filled for FailureBadResponse only
	Inner      error
}

// NewExecutorError creates a new ExecutorError with the given kind and inner error.
func NewExecutorError(kind FailureKind, inner error) *ExecutorError {
	return &ExecutorError{Kind: kind, Inner: inner}
}

// NewBadResponseError creates a new ExecutorError for a remote response with the given status code.
func NewBadResponseError(statusCode int, inner error) *ExecutorError {
	return &ExecutorError{Kind: FailureBadResponse, StatusCode: statusCode, Inner: inner}
}

func (e *ExecutorError) Error() string {
	msg := "executor: " + e.Kind.String()
	if e.Kind == FailureBadResponse {
		msg = fmt.Sprintf("%s, status code %d", msg, e.StatusCode)
	}
	if e.Inner != nil {
		msg += ": " + e.Inner.Error()
	}
	return msg
}

// Unwrap returns the next error in the error chain.
func (e *ExecutorError) Unwrap() error {
	return e.Inner
}

// RetriesExhaustedError resolves requests whose failures were retryable
// but the retry budget ran out.
type RetriesExhaustedError struct {
	// Attempts is the total number of execution attempts, the first one included.
	Attempts int

	// LastErr is the failure of the last attempt.
	LastErr error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %s", e.Attempts, e.LastErr.Error())
}

// Unwrap returns the failure of the last attempt.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// asExecutorError returns err as an ExecutorError, wrapping unclassified
// errors as FailureUnknown (FailureCancelled for context cancellation).
func asExecutorError(err error) *ExecutorError {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr
	}
	kind := FailureUnknown
	if errors.Is(err, context.Canceled) {
		kind = FailureCancelled
	}
	return &ExecutorError{Kind: kind, Inner: err}
}
