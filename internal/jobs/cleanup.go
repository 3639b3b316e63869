package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Purger deletes rows that expired before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Target is one table swept by the cleanup job.
type Target struct {
	Name   string
	Purger Purger
}

// Cleanup periodically removes expired OTP and session rows. Expired rows
// are already ignored on read; this only keeps the tables small.
type Cleanup struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	targets   []Target
	onPurge   func(table string, n int64)
	now       func() time.Time
}

// NewCleanup creates a cleanup job. onPurge may be nil.
func NewCleanup(interval time.Duration, targets []Target, onPurge func(table string, n int64)) *Cleanup {
	if onPurge == nil {
		onPurge = func(string, int64) {}
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Cleanup{
		scheduler: s,
		interval:  interval,
		targets:   targets,
		onPurge:   onPurge,
		now:       time.Now,
	}
}

// Start schedules the job and runs it once immediately.
func (c *Cleanup) Start() error {
	if _, err := c.scheduler.Every(c.interval).Do(c.run); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	c.scheduler.StartAsync()
	log.Printf("Cleanup job scheduled every %s", c.interval)
	return nil
}

// Stop stops the scheduler; a running sweep finishes first.
func (c *Cleanup) Stop() {
	c.scheduler.Stop()
}

func (c *Cleanup) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.RunOnce(ctx)
}

// RunOnce sweeps every target. A failing target does not stop the others.
func (c *Cleanup) RunOnce(ctx context.Context) {
	now := c.now()
	for _, t := range c.targets {
		n, err := t.Purger.DeleteExpired(ctx, now)
		if err != nil {
			log.Printf("Cleanup of %s failed: %v", t.Name, err)
			continue
		}
		if n > 0 {
			log.Printf("Cleanup removed %d expired rows from %s", n, t.Name)
		}
		c.onPurge(t.Name, n)
	}
}
