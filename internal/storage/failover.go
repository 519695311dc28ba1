package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultRecoveryInterval = time.Minute

// FailoverStore keeps a read-only mirror of the primary in a fallback store.
// Writes always go to the primary and surface its errors; reads are served
// from the mirror while the primary is failing and the primary is retried
// after the recovery interval. The fallback should itself be durable.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   zerolog.Logger
	interval time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "failover-store").Logger()
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   l,
		interval: defaultRecoveryInterval,
	}
}

func (s *FailoverStore) markDown(op string, err error) {
	if !s.isDown.Swap(true) {
		s.logger.Error().Err(err).Str("op", op).Msg("primary store failed, falling back")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) shouldTryPrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCheck) > s.interval
}

func (s *FailoverStore) markUp() {
	if s.isDown.Swap(false) {
		s.logger.Info().Msg("primary store recovered")
	}
}

func (s *FailoverStore) Load(ctx context.Context, key string) (string, bool, error) {
	if s.shouldTryPrimary() {
		val, ok, err := s.primary.Load(ctx, key)
		if err == nil {
			s.markUp()
			return val, ok, nil
		}
		s.markDown("load", err)
	}
	return s.fallback.Load(ctx, key)
}

// Save writes the primary first and fails when the primary fails; the
// fallback only mirrors values the primary accepted.
func (s *FailoverStore) Save(ctx context.Context, key, value string) error {
	if err := s.primary.Save(ctx, key, value); err != nil {
		s.markDown("save", err)
		return fmt.Errorf("primary store save: %w", err)
	}
	s.markUp()
	if err := s.fallback.Save(ctx, key, value); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("mirror save to fallback store")
	}
	return nil
}

// Remove deletes from the primary first and fails when the primary fails.
func (s *FailoverStore) Remove(ctx context.Context, key string) error {
	if err := s.primary.Remove(ctx, key); err != nil {
		s.markDown("remove", err)
		return fmt.Errorf("primary store remove: %w", err)
	}
	s.markUp()
	if err := s.fallback.Remove(ctx, key); err != nil {
		// The primary is authoritative; a stale mirror is only read during an outage.
		s.logger.Error().Err(err).Str("key", key).Msg("mirror remove from fallback store")
	}
	return nil
}
