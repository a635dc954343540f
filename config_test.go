/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-appkit/config"
)

func TestConfig(t *testing.T) {
	cfgData := `
maxConcurrentRequests: 8
maxQueueSize: 200
maxQueueTime: 10s
defaultTimeout: 5s
overflowStrategy: dropOldestGlobal
deduplication:
  enabled: false
retries:
  maxAttempts: 5
  baseDelay: 200ms
  maxDelay: 5s
`
	expectedCfg := NewDefaultConfig()
	expectedCfg.MaxConcurrentRequests = 8
	expectedCfg.MaxQueueSize = 200
	expectedCfg.MaxQueueTime = 10 * time.Second
	expectedCfg.DefaultTimeout = 5 * time.Second
	expectedCfg.OverflowStrategy = OverflowDropOldestGlobal
	expectedCfg.Deduplication.Enabled = false
	expectedCfg.Retries = RetriesConfig{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)
}

func TestNewDefaultConfig(t *testing.T) {
	// Empty config, all defaults for the data provider should be used.
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	cfgData := `
requestScheduler:
  maxConcurrentRequests: 16
  deduplication:
    enabled: false
`
	expectedCfg := NewDefaultConfig()
	expectedCfg.MaxConcurrentRequests = 16
	expectedCfg.Deduplication.Enabled = false

	cfg := NewConfigWithKeyPrefix("requestScheduler")
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, "requestScheduler", cfg.KeyPrefix())

	cfg.keyPrefix = ""
	require.Equal(t, expectedCfg, cfg)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name:           "error, non-positive max concurrent requests",
			yamlData:       `maxConcurrentRequests: 0`,
			expectedErrMsg: "max concurrent requests must be positive",
		},
		{
			name:           "error, negative max queue size",
			yamlData:       `maxQueueSize: -1`,
			expectedErrMsg: "max queue size must be positive",
		},
		{
			name:           "error, negative max queue time",
			yamlData:       `maxQueueTime: -5s`,
			expectedErrMsg: "max queue time must not be negative",
		},
		{
			name:           "error, non-positive default timeout",
			yamlData:       `defaultTimeout: 0s`,
			expectedErrMsg: "default timeout must be positive",
		},
		{
			name:           "error, unknown overflow strategy",
			yamlData:       `overflowStrategy: dropRandom`,
			expectedErrMsg: "overflow strategy must be one of",
		},
		{
			name: "error, negative retry attempts",
			yamlData: `
retries:
  maxAttempts: -1
`,
			expectedErrMsg: "max retry attempts must not be negative",
		},
		{
			name: "error, non-positive retry base delay",
			yamlData: `
retries:
  baseDelay: 0s
`,
			expectedErrMsg: "retry base delay must be positive",
		},
		{
			name: "error, retry max delay less than base delay",
			yamlData: `
retries:
  baseDelay: 10s
  maxDelay: 1s
`,
			expectedErrMsg: "retry max delay must not be less than base delay",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.expectedErrMsg)
		})
	}
}

func TestConfigNormalized(t *testing.T) {
	t.Run("zero values replaced by defaults", func(t *testing.T) {
		cfg, err := (&Config{}).normalized()
		require.NoError(t, err)
		require.Equal(t, DefaultMaxConcurrentRequests, cfg.MaxConcurrentRequests)
		require.Equal(t, DefaultMaxQueueSize, cfg.MaxQueueSize)
		require.Equal(t, DefaultRequestTimeout, cfg.DefaultTimeout)
		require.Equal(t, OverflowRejectNew, cfg.OverflowStrategy)
		require.Equal(t, 0, cfg.Retries.MaxAttempts, "retries stay disabled unless requested")
		require.Equal(t, DefaultRetryBaseDelay, cfg.Retries.BaseDelay)
		require.Equal(t, DefaultRetryMaxDelay, cfg.Retries.MaxDelay)
	})

	t.Run("zero max queue time disables expiry", func(t *testing.T) {
		cfg, err := (&Config{MaxQueueTime: 0}).normalized()
		require.NoError(t, err)
		require.Equal(t, time.Duration(0), cfg.MaxQueueTime)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		for _, bad := range []*Config{
			{MaxConcurrentRequests: -1},
			{MaxQueueSize: -1},
			{MaxQueueTime: -time.Second},
			{DefaultTimeout: -time.Second},
			{Retries: RetriesConfig{MaxAttempts: -1}},
			{Retries: RetriesConfig{BaseDelay: -time.Second}},
			{Retries: RetriesConfig{BaseDelay: 10 * time.Second, MaxDelay: time.Second}},
			{OverflowStrategy: "dropRandom"},
		} {
			_, err := bad.normalized()
			require.Error(t, err)
		}
	})
}

func TestOverflowStrategyIsValid(t *testing.T) {
	for _, s := range []OverflowStrategy{OverflowRejectNew, OverflowDropOldestGlobal, OverflowDropOldestSamePriority} {
		require.True(t, s.IsValid())
	}
	require.False(t, OverflowStrategy("dropRandom").IsValid())
	require.False(t, OverflowStrategy("").IsValid())
}
