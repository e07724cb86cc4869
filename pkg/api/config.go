package api

import (
	"fmt"
	"net/http"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

// Config holds configuration for the affiliate API handler
type Config struct {
	// Storage is the ledger storage (required)
	Storage ledger.Storage

	// Processor handles attribution registration (required for
	// RegisterAttribution, optional otherwise)
	Processor *ledger.Processor

	// GetAffiliateID extracts the authenticated affiliate id from an HTTP
	// request (required). How affiliates authenticate is the host
	// application's concern; this handler only needs the resolved id.
	GetAffiliateID func(*http.Request) string

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional; defaults to the no-op logger
	Logger ledger.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Storage == nil {
		return fmt.Errorf("storage is required")
	}
	if c.GetAffiliateID == nil {
		return fmt.Errorf("getAffiliateID is required")
	}
	return nil
}

// NewHandler creates a new affiliate API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &ledger.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common affiliate ID extraction patterns

// FromHeader returns a GetAffiliateID function that extracts the id from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetAffiliateID function that extracts the id from
// the request context, for hosts that resolve auth in middleware
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := r.Context().Value(key).(string); ok {
			return id
		}
		return ""
	}
}
