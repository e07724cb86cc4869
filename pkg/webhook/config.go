package webhook

import (
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

const (
	defaultMaxBodyBytes      = 256 * 1024
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config defines the standard configuration for webhook handlers.
type Config struct {
	// Processor is the ledger pipeline that events are handed to (required).
	Processor *ledger.Processor

	// Secret, when set, must match the request's Authorization bearer
	// token (or be equal to the raw header). Empty disables the check;
	// signed-envelope payloads carry their own authenticity story and the
	// transport boundary may sit behind a verifying proxy.
	Secret string

	// MaxBodyBytes caps the accepted payload size. Defaults to 256KB.
	MaxBodyBytes int64

	// RateLimitRequests / RateLimitWindow configure the per-IP limiter.
	// Defaults: 100 requests per minute.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logger receives structured handler logs. Defaults to NoopLogger.
	Logger ledger.Logger

	// Metrics receives webhook metrics. Defaults to NoopMetrics.
	Metrics ledger.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.RateLimitRequests <= 0 {
		c.RateLimitRequests = defaultRateLimitRequests
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
	if c.Logger == nil {
		c.Logger = &ledger.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &ledger.NoopMetrics{}
	}
	return c
}
