package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

func unlockedEvent(ruleID string) shared.Event {
	return shared.NewAchievementUnlockedEvent(ruleID, "unlock-"+ruleID, time.Date(2025, 8, 19, 18, 0, 0, 0, time.UTC))
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventAchievementUnlocked, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(unlockedEvent("bpm-100")))
	require.NoError(t, bus.Publish(shared.NewSessionLoggedEvent("s-1", "1", 100, 60, time.Now())))

	assert.Equal(t, []string{"bpm-100"}, typed)
	assert.Equal(t, []string{"achievement.unlocked", "practice.session_logged"}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.HandlerExecutions)
	assert.Equal(t, int64(1), snap.Published[shared.EventAchievementUnlocked])
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventAchievementUnlocked, func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(unlockedEvent("streak-7")))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(10), handled.Load())
	assert.ErrorIs(t, bus.Publish(unlockedEvent("streak-7")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventAchievementUnlocked, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var reached bool
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("handler failed") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	require.NoError(t, bus.Publish(unlockedEvent("growth-10")))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventAchievementUnlocked, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestRedisEventBus_DeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newBus := func(id string) *RedisEventBus {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		bus, err := NewRedisEventBus(ctx, RedisEventBusConfig{Client: rdb, InstanceID: id})
		require.NoError(t, err)
		t.Cleanup(func() { _ = bus.Close() })
		return bus
	}
	a, b := newBus("a"), newBus("b")

	var (
		mu       sync.Mutex
		fromA    []string
		localHit int
	)
	require.NoError(t, b.Subscribe(shared.EventAchievementUnlocked, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		fromA = append(fromA, e.Payload()["rule_id"].(string))
		return nil
	}))
	require.NoError(t, a.Subscribe(shared.EventAchievementUnlocked, func(shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		localHit++
		return nil
	}))

	require.NoError(t, a.Publish(unlockedEvent("perfect-week")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fromA) == 1 && localHit == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"perfect-week"}, fromA)
	mu.Unlock()
}
