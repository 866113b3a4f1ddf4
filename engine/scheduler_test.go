package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCron(t *testing.T) *CronScheduler {
	t.Helper()
	s, err := NewCronScheduler(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestCronScheduler_FiresOnce(t *testing.T) {
	s := newTestCron(t)
	var calls atomic.Int32

	timer, err := s.ScheduleOnce(context.Background(), 20*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, timer.Fired())
	assert.False(t, timer.Cancel(), "cancelling a fired timer is a no-op")
}

func TestCronScheduler_CancelBeforeFire(t *testing.T) {
	s := newTestCron(t)
	var calls atomic.Int32

	timer, err := s.ScheduleOnce(context.Background(), 150*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	assert.True(t, timer.Cancel())
	assert.False(t, timer.Cancel(), "second cancel reports nothing prevented")
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.False(t, timer.Fired())
}

func TestCronScheduler_ContextCancelsTimers(t *testing.T) {
	s := newTestCron(t)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		_, err := s.ScheduleOnce(ctx, 150*time.Millisecond, func() { calls.Add(1) })
		require.NoError(t, err)
	}
	cancel()

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())

	_, err := s.ScheduleOnce(ctx, time.Millisecond, func() {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCronScheduler_ZeroDelayRunsImmediately(t *testing.T) {
	s := newTestCron(t)
	done := make(chan struct{})

	_, err := s.ScheduleOnce(context.Background(), 0, func() { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("zero-delay timer did not run")
	}
}

func TestTimer_CancelDuringCallbackIsNoop(t *testing.T) {
	s := newTestCron(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	timer, err := s.ScheduleOnce(context.Background(), 10*time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	})
	require.NoError(t, err)

	<-started
	assert.False(t, timer.Cancel())
	close(release)
	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
}

func TestTimer_NilIsSafe(t *testing.T) {
	var timer *Timer
	assert.False(t, timer.Cancel())
	assert.False(t, timer.Fired())
}
