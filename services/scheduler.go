// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"duel-match-system/engine"
)

// StartMaintenance runs the registry sweep on a fixed interval. The sweep
// closes matches whose timers were lost; normally it finds nothing.
func StartMaintenance(ctx context.Context, registry *engine.Registry, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := registry.Sweep(ctx); n > 0 {
				log.Printf("[Scheduler] swept %d overdue match(es), %d live", n, registry.LiveCount())
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("registry-sweep"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	log.Printf("✅ [Scheduler] registry sweep every %s", interval)
	return sched, nil
}
