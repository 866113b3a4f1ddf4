package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Scheduler runs delayed one-shot callbacks. The ctx is the cancel token:
// once it is done, every timer scheduled with it is cancelled.
type Scheduler interface {
	ScheduleOnce(ctx context.Context, delay time.Duration, fn func()) (*Timer, error)
}

const (
	timerPending int32 = iota
	timerFiring
	timerCancelled
)

// Timer is a handle to a scheduled callback. The callback runs at most once.
type Timer struct {
	state atomic.Int32

	mu      sync.Mutex
	remove  func()
	release func() bool
}

// Cancel stops the timer. It returns true only if it prevented the callback;
// a callback that already started is left alone.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(timerPending, timerCancelled) {
		return false
	}
	t.mu.Lock()
	remove, release := t.remove, t.release
	t.mu.Unlock()
	if release != nil {
		release()
	}
	if remove != nil {
		remove()
	}
	return true
}

// Fired reports whether the callback has started
func (t *Timer) Fired() bool {
	return t != nil && t.state.Load() == timerFiring
}

func (t *Timer) fire(fn func()) {
	if !t.state.CompareAndSwap(timerPending, timerFiring) {
		return
	}
	t.mu.Lock()
	release := t.release
	t.mu.Unlock()
	if release != nil {
		release()
	}
	fn()
}

// CronScheduler backs timers with gocron one-time jobs
type CronScheduler struct {
	sched gocron.Scheduler
	clock clockwork.Clock
}

func NewCronScheduler(clock clockwork.Clock) (*CronScheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()
	return &CronScheduler{sched: sched, clock: clock}, nil
}

func (c *CronScheduler) ScheduleOnce(ctx context.Context, delay time.Duration, fn func()) (*Timer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := &Timer{}
	task := gocron.NewTask(func() { t.fire(fn) })

	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(c.clock.Now().Add(delay))
	}
	job, err := c.sched.NewJob(gocron.OneTimeJob(start), task, gocron.WithLimitedRuns(1))
	if errors.Is(err, gocron.ErrOneTimeJobStartDateTimePast) {
		// the delay elapsed while the job was being registered
		job, err = c.sched.NewJob(gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), task, gocron.WithLimitedRuns(1))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to schedule timer: %w", err)
	}

	id := job.ID()
	t.mu.Lock()
	t.remove = func() {
		if err := c.sched.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			log.Printf("[Scheduler] failed to remove job %s: %v", id, err)
		}
	}
	t.release = context.AfterFunc(ctx, func() { t.Cancel() })
	t.mu.Unlock()

	return t, nil
}

// Shutdown stops the underlying scheduler; pending timers never fire afterwards.
func (c *CronScheduler) Shutdown() error {
	return c.sched.Shutdown()
}
