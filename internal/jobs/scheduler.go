package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the cleanup job on its cron schedule, off the request path.
type Scheduler struct {
	scheduler gocron.Scheduler
	cleanup   *CleanupJob
}

// NewScheduler creates a scheduler running cleanup on the given cron
// expression (standard 5-field syntax).
func NewScheduler(cleanup *CleanupJob, cronExpr string) (*Scheduler, error) {
	// Validate up front so a bad CLEANUP_CRON fails at startup, not at
	// first trigger.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cleanup cron %q: %w", cronExpr, err)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := cleanup.Run(ctx); err != nil {
				log.Printf("🚨 [SCHEDULER] Cleanup run failed: %v", err)
			}
		}),
		gocron.WithName("retention-cleanup"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register cleanup job: %w", err)
	}

	return &Scheduler{scheduler: scheduler, cleanup: cleanup}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Printf("⏰ [SCHEDULER] Retention cleanup scheduled")
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
