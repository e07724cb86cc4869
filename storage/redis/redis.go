// Package redis provides a Redis-backed event reservation overlay for any
// ledger.Storage. The idempotency check is the hottest path in the
// pipeline (every webhook delivery hits it), so keeping reservations in
// Redis takes that load off the relational store while ledger rows stay
// in the wrapped adapter.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

// Storage wraps a base ledger.Storage, overriding the reservation
// operations with Redis. All other operations delegate to the base.
type Storage struct {
	ledger.Storage

	client  redis.UniversalClient
	config  Config
	release *redis.Script

	// token marks reservations made by this process so the release guard
	// only deletes keys we own.
	token string
}

// Config holds Redis reservation configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "commissionledger:")
	KeyPrefix string

	// ReservationTTL bounds how long a reservation is held. It must
	// exceed the billing platforms' retry horizon; after it the key
	// expires and a replayed delivery falls through to the commission
	// uniqueness constraint. 0 means no expiration.
	ReservationTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:      "commissionledger:",
		ReservationTTL: 90 * 24 * time.Hour,
	}
}

// WithReservations wraps base so that event reservations live in Redis.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func WithReservations(base ledger.Storage, client redis.UniversalClient, config Config) (*Storage, error) {
	if base == nil {
		return nil, fmt.Errorf("base storage is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "commissionledger:"
	}

	return &Storage{
		Storage: base,
		client:  client,
		config:  config,
		// Delete only if the stored token is ours, so a release racing a
		// reservation taken by another process after our key expired
		// cannot drop the new one.
		release: redis.NewScript(`
			if redis.call('GET', KEYS[1]) == ARGV[1] then
				return redis.call('DEL', KEYS[1])
			end
			return 0
		`),
		token: uuid.NewString(),
	}, nil
}

// ReserveEvent implements ledger.Storage
func (s *Storage) ReserveEvent(ctx context.Context, key ledger.EventKey) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.reservationKey(key), s.token, s.config.ReservationTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return ok, nil
}

// ReleaseEvent implements ledger.Storage
func (s *Storage) ReleaseEvent(ctx context.Context, key ledger.EventKey) error {
	err := s.release.Run(ctx, s.client, []string{s.reservationKey(key)}, s.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Storage) reservationKey(key ledger.EventKey) string {
	return s.config.KeyPrefix + "reservation:" + key.String()
}
