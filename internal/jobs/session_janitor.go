package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"ritualflow/internal/services"
)

// SessionJanitor periodically deletes in-memory sessions that have been idle
// past the configured TTL. It only applies to the memory store - Redis
// sessions expire via key TTL - and it is opt-in: the chat path itself never
// deletes sessions.
type SessionJanitor struct {
	store     *services.MemorySessionStore
	ttl       time.Duration
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewSessionJanitor creates the janitor; Start registers and runs the job
func NewSessionJanitor(store *services.MemorySessionStore, ttl, interval time.Duration) (*SessionJanitor, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SessionJanitor{
		store:     store,
		ttl:       ttl,
		interval:  interval,
		scheduler: scheduler,
	}, nil
}

// Start schedules the cleanup job and starts the scheduler
func (j *SessionJanitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			j.Run(context.Background())
		}),
		gocron.WithName("session-janitor"),
	)
	if err != nil {
		return fmt.Errorf("failed to register janitor job: %w", err)
	}

	j.scheduler.Start()
	log.Printf("🧹 [JANITOR] Session janitor started (ttl=%s, interval=%s)", j.ttl, j.interval)
	return nil
}

// Run performs one cleanup pass
func (j *SessionJanitor) Run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.ttl)
	ids := j.store.IdleSessions(cutoff)
	if len(ids) == 0 {
		return
	}

	deleted := 0
	for _, id := range ids {
		if err := j.store.Delete(ctx, id); err != nil {
			log.Printf("[JANITOR] Failed to delete session %s: %v", id, err)
			continue
		}
		deleted++
	}
	log.Printf("🧹 [JANITOR] Removed %d idle sessions", deleted)
}

// Shutdown stops the scheduler
func (j *SessionJanitor) Shutdown() error {
	return j.scheduler.Shutdown()
}
