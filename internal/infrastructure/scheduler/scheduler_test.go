package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler_RunsDueJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	job := &funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}

	s := New(Config{TickInterval: 5 * time.Millisecond})
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "tick", infos[0].Name)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(2))
	assert.Zero(t, infos[0].FailCount)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	job := &funcJob{name: "slow", run: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}

	s := New(Config{TickInterval: 5 * time.Millisecond, RunOnStart: true})
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	<-started
	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	// several ticks pass while the first run is blocked
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, s.Stop())
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	var cancelled atomic.Bool
	job := &funcJob{name: "wait", run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}}

	s := New(Config{RunOnStart: true})
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Start(context.Background()))
	<-started

	require.NoError(t, s.Stop())
	assert.True(t, cancelled.Load())

	history := s.History(0)
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Error, context.Canceled)
}

func TestScheduler_RunNow(t *testing.T) {
	boom := errors.New("boom")
	s := New(Config{MaxHistorySize: 2})

	require.NoError(t, s.Register(&funcJob{name: "ok", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "fail", run: func(context.Context) error { return boom }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "panic", run: func(context.Context) error { panic("bad job") }}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "fail")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(context.Background(), "panic")
	assert.ErrorContains(t, err, "panicked: bad job")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(10)
	require.Len(t, history, 2)
	assert.Equal(t, "fail", history[0].JobName)
	assert.Equal(t, "panic", history[1].JobName)

	infos := s.ListJobs()
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"fail", "ok", "panic"}, []string{infos[0].Name, infos[1].Name, infos[2].Name})
	assert.Equal(t, int64(1), infos[0].FailCount)
}

func TestScheduler_Registration(t *testing.T) {
	s := New(Config{})
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)

	require.NoError(t, s.SetEnabled("a", false))
	assert.False(t, s.ListJobs()[0].Enabled)
	assert.ErrorIs(t, s.SetEnabled("b", true), ErrJobNotFound)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.Empty(t, s.ListJobs())
}

func TestScheduler_RunBlocksUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{TickInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.IsRunning, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.IsRunning())
}
