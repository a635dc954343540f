/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsIdempotentMethod(t *testing.T) {
	for _, method := range []string{
		http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions, http.MethodTrace,
		"get", "Delete",
	} {
		require.True(t, IsIdempotentMethod(method), method)
	}
	for _, method := range []string{http.MethodPost, http.MethodPatch, http.MethodConnect, ""} {
		require.False(t, IsIdempotentMethod(method), method)
	}
}

func TestRetryableFailure(t *testing.T) {
	rc := newRetryController(RetriesConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second})

	tests := []struct {
		kind       FailureKind
		statusCode int
		idempotent bool
		want       bool
	}{
		{kind: FailureConnectTimeout, idempotent: false, want: true},
		{kind: FailureConnectTimeout, idempotent: true, want: true},
		{kind: FailureConnectionError, idempotent: false, want: true},
		{kind: FailureConnectionError, idempotent: true, want: true},
		{kind: FailureReceiveTimeout, idempotent: true, want: true},
		{kind: FailureReceiveTimeout, idempotent: false, want: false},
		{kind: FailureSendTimeout, idempotent: true, want: true},
		{kind: FailureSendTimeout, idempotent: false, want: false},
		{kind: FailureBadResponse, statusCode: http.StatusInternalServerError, idempotent: true, want: true},
		{kind: FailureBadResponse, statusCode: http.StatusServiceUnavailable, idempotent: true, want: true},
		{kind: FailureBadResponse, statusCode: http.StatusServiceUnavailable, idempotent: false, want: false},
		{kind: FailureBadResponse, statusCode: http.StatusNotFound, idempotent: true, want: false},
		{kind: FailureBadResponse, statusCode: http.StatusBadRequest, idempotent: false, want: false},
		{kind: FailureCancelled, idempotent: true, want: false},
		{kind: FailureUnknown, idempotent: true, want: false},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s status=%d idempotent=%t", tt.kind, tt.statusCode, tt.idempotent)
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, rc.retryableFailure(tt.kind, tt.statusCode, tt.idempotent))
		})
	}
}

func TestRetriesConfigPolicyDelays(t *testing.T) {
	cfg := RetriesConfig{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	bf := cfg.Policy().NewBackOff()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, wantDelay := range want {
		require.Equal(t, wantDelay, bf.NextBackOff(), "delay before retry %d", i+1)
	}
}

func TestRetriesConfigPolicyBaseEqualsMax(t *testing.T) {
	cfg := RetriesConfig{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	bf := cfg.Policy().NewBackOff()
	for i := 0; i < 3; i++ {
		require.Equal(t, 250*time.Millisecond, bf.NextBackOff())
	}
}
