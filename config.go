/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/retry"
	"github.com/cenkalti/backoff/v4"
)

// Default configuration values.
const (
	DefaultMaxConcurrentRequests = 4
	DefaultMaxQueueSize          = 100
	DefaultMaxQueueTime          = 30 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultMaxRetryAttempts      = 3
	DefaultRetryBaseDelay        = 500 * time.Millisecond
	DefaultRetryMaxDelay         = 30 * time.Second
)

// OverflowStrategy defines what happens when the admission queue is full at submit time.
type OverflowStrategy string

// Supported overflow strategies.
const (
	// OverflowRejectNew fails the incoming submission, the queue is unchanged.
	OverflowRejectNew OverflowStrategy = "rejectNew"

	// OverflowDropOldestGlobal evicts the globally lowest-priority, oldest
	// queued request, then admits the new one.
	OverflowDropOldestGlobal OverflowStrategy = "dropOldestGlobal"

	// OverflowDropOldestSamePriority evicts the oldest queued request of the
	// same priority tier as the new one, falling back to rejection when the
	// tier is empty.
	OverflowDropOldestSamePriority OverflowStrategy = "dropOldestSamePriority"
)

// IsValid checks if the overflow strategy is one of the supported values.
func (s OverflowStrategy) IsValid() bool {
	switch s {
	case OverflowRejectNew, OverflowDropOldestGlobal, OverflowDropOldestSamePriority:
		return true
	}
	return false
}

// configuration properties
const (
	cfgKeyMaxConcurrentRequests = "maxConcurrentRequests"
	cfgKeyMaxQueueSize          = "maxQueueSize"
	cfgKeyMaxQueueTime          = "maxQueueTime"
	cfgKeyDefaultTimeout        = "defaultTimeout"
	cfgKeyOverflowStrategy      = "overflowStrategy"
	cfgKeyDedupEnabled          = "deduplication.enabled"
	cfgKeyRetriesMaxAttempts    = "retries.maxAttempts"
	cfgKeyRetriesBaseDelay      = "retries.baseDelay"
	cfgKeyRetriesMaxDelay       = "retries.maxDelay"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// DeduplicationConfig represents configuration options for request deduplication.
type DeduplicationConfig struct {
	// Enabled allows merging concurrent identical submissions into one execution.
	Enabled bool `mapstructure:"enabled"`
}

// Set is part of config interface implementation.
func (c *DeduplicationConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyDedupEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *DeduplicationConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyDedupEnabled, true)
}

// RetriesConfig represents configuration options for the retry controller.
type RetriesConfig struct {
	// MaxAttempts is the maximum number of retry attempts per request.
	// Zero disables retries.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// BaseDelay is the backoff delay before the first retry attempt.
	BaseDelay time.Duration `mapstructure:"baseDelay"`

	// MaxDelay caps the exponentially growing backoff delay.
	MaxDelay time.Duration `mapstructure:"maxDelay"`
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	maxAttempts, err := dp.GetInt(cfgKeyRetriesMaxAttempts)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return errors.New("max retry attempts must not be negative")
	}
	c.MaxAttempts = maxAttempts

	baseDelay, err := dp.GetDuration(cfgKeyRetriesBaseDelay)
	if err != nil {
		return err
	}
	if baseDelay <= 0 {
		return errors.New("retry base delay must be positive")
	}
	c.BaseDelay = baseDelay

	maxDelay, err := dp.GetDuration(cfgKeyRetriesMaxDelay)
	if err != nil {
		return err
	}
	if maxDelay < baseDelay {
		return errors.New("retry max delay must not be less than base delay")
	}
	c.MaxDelay = maxDelay

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetriesConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesBaseDelay, DefaultRetryBaseDelay.String())
	dp.SetDefault(cfgKeyRetriesMaxDelay, DefaultRetryMaxDelay.String())
}

// Policy returns the backoff policy for retry delays: the delay before retry
// attempt k is baseDelay*2^(k-1) clamped to [baseDelay, maxDelay].
func (c *RetriesConfig) Policy() retry.Policy {
	baseDelay, maxDelay := c.BaseDelay, c.MaxDelay
	return retry.PolicyFunc(func() backoff.BackOff {
		bf := backoff.NewExponentialBackOff()
		bf.InitialInterval = baseDelay
		bf.RandomizationFactor = 0
		bf.Multiplier = 2
		bf.MaxInterval = maxDelay
		bf.MaxElapsedTime = 0
		bf.Reset()
		return bf
	})
}

// Config represents options for the scheduler configuration.
type Config struct {
	// MaxConcurrentRequests is the concurrency ceiling of the dispatcher.
	MaxConcurrentRequests int `mapstructure:"maxConcurrentRequests"`

	// MaxQueueSize is the capacity of the admission queue.
	MaxQueueSize int `mapstructure:"maxQueueSize"`

	// MaxQueueTime limits how long a request may wait in the queue before it
	// is resolved with ErrRequestExpired. Zero disables queue expiry.
	MaxQueueTime time.Duration `mapstructure:"maxQueueTime"`

	// DefaultTimeout is applied to submissions that do not set their own timeout.
	DefaultTimeout time.Duration `mapstructure:"defaultTimeout"`

	// Deduplication is a configuration for merging concurrent identical submissions.
	Deduplication DeduplicationConfig `mapstructure:"deduplication"`

	// Retries is a configuration for the retry controller.
	Retries RetriesConfig `mapstructure:"retries"`

	// OverflowStrategy is applied when the queue is full at submit time.
	OverflowStrategy OverflowStrategy `mapstructure:"overflowStrategy"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		MaxQueueSize:          DefaultMaxQueueSize,
		MaxQueueTime:          DefaultMaxQueueTime,
		DefaultTimeout:        DefaultRequestTimeout,
		Deduplication:         DeduplicationConfig{Enabled: true},
		Retries: RetriesConfig{
			MaxAttempts: DefaultMaxRetryAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			MaxDelay:    DefaultRetryMaxDelay,
		},
		OverflowStrategy: OverflowRejectNew,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	maxConcurrent, err := dp.GetInt(cfgKeyMaxConcurrentRequests)
	if err != nil {
		return err
	}
	if maxConcurrent <= 0 {
		return errors.New("max concurrent requests must be positive")
	}
	c.MaxConcurrentRequests = maxConcurrent

	maxQueueSize, err := dp.GetInt(cfgKeyMaxQueueSize)
	if err != nil {
		return err
	}
	if maxQueueSize <= 0 {
		return errors.New("max queue size must be positive")
	}
	c.MaxQueueSize = maxQueueSize

	maxQueueTime, err := dp.GetDuration(cfgKeyMaxQueueTime)
	if err != nil {
		return err
	}
	if maxQueueTime < 0 {
		return errors.New("max queue time must not be negative")
	}
	c.MaxQueueTime = maxQueueTime

	defaultTimeout, err := dp.GetDuration(cfgKeyDefaultTimeout)
	if err != nil {
		return err
	}
	if defaultTimeout <= 0 {
		return errors.New("default timeout must be positive")
	}
	c.DefaultTimeout = defaultTimeout

	overflowStrategy, err := dp.GetString(cfgKeyOverflowStrategy)
	if err != nil {
		return err
	}
	if !OverflowStrategy(overflowStrategy).IsValid() {
		return fmt.Errorf("overflow strategy must be one of: [%s, %s, %s]",
			OverflowRejectNew, OverflowDropOldestGlobal, OverflowDropOldestSamePriority)
	}
	c.OverflowStrategy = OverflowStrategy(overflowStrategy)

	if err = c.Deduplication.Set(dp); err != nil {
		return err
	}
	if err = c.Retries.Set(dp); err != nil {
		return err
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrentRequests, DefaultMaxConcurrentRequests)
	dp.SetDefault(cfgKeyMaxQueueSize, DefaultMaxQueueSize)
	dp.SetDefault(cfgKeyMaxQueueTime, DefaultMaxQueueTime.String())
	dp.SetDefault(cfgKeyDefaultTimeout, DefaultRequestTimeout.String())
	dp.SetDefault(cfgKeyOverflowStrategy, string(OverflowRejectNew))
	c.Deduplication.SetProviderDefaults(dp)
	c.Retries.SetProviderDefaults(dp)
}

// normalized returns a copy of the config with zero optional values replaced
// by defaults and mandatory values validated.
func (c *Config) normalized() (Config, error) {
	cfg := *c
	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if cfg.MaxConcurrentRequests < 0 {
		return Config{}, errors.New("max concurrent requests must be positive")
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.MaxQueueSize < 0 {
		return Config{}, errors.New("max queue size must be positive")
	}
	if cfg.MaxQueueTime < 0 {
		return Config{}, errors.New("max queue time must not be negative")
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultRequestTimeout
	}
	if cfg.DefaultTimeout < 0 {
		return Config{}, errors.New("default timeout must be positive")
	}
	if cfg.Retries.MaxAttempts < 0 {
		return Config{}, errors.New("max retry attempts must not be negative")
	}
	if cfg.Retries.BaseDelay == 0 {
		cfg.Retries.BaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Retries.BaseDelay < 0 {
		return Config{}, errors.New("retry base delay must be positive")
	}
	if cfg.Retries.MaxDelay == 0 {
		cfg.Retries.MaxDelay = DefaultRetryMaxDelay
	}
	if cfg.Retries.MaxDelay < cfg.Retries.BaseDelay {
		return Config{}, errors.New("retry max delay must not be less than base delay")
	}
	if cfg.OverflowStrategy == "" {
		cfg.OverflowStrategy = OverflowRejectNew
	}
	if !cfg.OverflowStrategy.IsValid() {
		return Config{}, fmt.Errorf("unknown overflow strategy %q", cfg.OverflowStrategy)
	}
	return cfg, nil
}
