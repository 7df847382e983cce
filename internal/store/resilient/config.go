package resilient

import "time"

// Config configures the timeout and circuit breaker around a store.
type Config struct {
	// Timeout bounds every store call. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	// LockTimeout bounds a whole WithPartnerLock section, fn included.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig mirrors the gobreaker settings curaledger exposes.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval after which closed-state counts are cleared. Zero never clears.
	Interval time.Duration `yaml:"interval"`

	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
}

// DefaultConfig returns the settings used by curaledger serve.
func DefaultConfig() Config {
	return Config{
		Timeout:     3 * time.Second,
		LockTimeout: 10 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			OpenTimeout:         15 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}
