// Package resilient wraps remote stores with a circuit breaker so a dead
// Redis or Postgres fails reconciliation fast instead of once per rule.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/pkg/circuitbreaker"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// UnlockStore guards an achievement.UnlockStore with a circuit breaker.
// A lost insert race is an answer from a healthy store and never trips it.
type UnlockStore struct {
	inner   achievement.UnlockStore
	breaker *circuitbreaker.CircuitBreaker
}

// NewUnlockStore wraps inner; name labels the breaker in logs.
func NewUnlockStore(inner achievement.UnlockStore, name string, log *logger.Logger) *UnlockStore {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("circuitbreaker"), logger.String("breaker", name))

	onChange := func(_ string, from, to circuitbreaker.State) {
		log.Warn("unlock store circuit changed state",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	ignore := func(err error) bool {
		return errors.Is(err, achievement.ErrAlreadyUnlocked) || errors.Is(err, context.Canceled)
	}

	return &UnlockStore{
		inner:   inner,
		breaker: circuitbreaker.StoreBreaker(name, onChange, ignore),
	}
}

// ListUnlocks implements achievement.UnlockStore.
func (s *UnlockStore) ListUnlocks(ctx context.Context) ([]achievement.UnlockRecord, error) {
	var records []achievement.UnlockRecord
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		records, err = s.inner.ListUnlocks(ctx)
		return err
	})
	return records, s.mapErr(err)
}

// InsertIfAbsent implements achievement.UnlockStore.
func (s *UnlockStore) InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (achievement.UnlockRecord, error) {
	var record achievement.UnlockRecord
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.inner.InsertIfAbsent(ctx, ruleID, unlockedAt)
		return err
	})
	return record, s.mapErr(err)
}

// State returns the breaker state for health reporting.
func (s *UnlockStore) State() circuitbreaker.State {
	return s.breaker.State()
}

// Ping reports an open circuit as unavailable without touching the store.
func (s *UnlockStore) Ping(ctx context.Context) error {
	if s.breaker.IsOpen() {
		return shared.ErrUnlockStoreDown
	}
	if p, ok := s.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *UnlockStore) mapErr(err error) error {
	if circuitbreaker.IsRejection(err) {
		return fmt.Errorf("%w: %w", shared.ErrUnlockStoreDown, err)
	}
	return err
}
