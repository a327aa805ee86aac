// Package scheduler runs periodic background syncs on a cron schedule, as a
// safety net for changes whose debounced trigger never fired (e.g. the app
// was killed inside the debounce window).
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sabristratos/athneaeum-sub004/internal/syncengine"
)

// BackgroundSync manages the periodic sync job.
type BackgroundSync struct {
	engine   *syncengine.Engine
	schedule string

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewBackgroundSync creates a scheduler instance. The schedule uses standard
// five-field cron syntax.
func NewBackgroundSync(engine *syncengine.Engine, schedule string) *BackgroundSync {
	return &BackgroundSync{
		engine:   engine,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler. Safe to call when already running.
func (s *BackgroundSync) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.schedule == "" {
		log.Printf("background sync: disabled (no schedule)")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("background sync: started with schedule '%s'", s.schedule)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler and waits for a running job to finish.
func (s *BackgroundSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("background sync: stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *BackgroundSync) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next background sync will occur.
func (s *BackgroundSync) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *BackgroundSync) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result := s.engine.Sync(ctx)
	switch result.Status {
	case syncengine.StatusAlreadySyncing, syncengine.StatusOffline:
		log.Printf("background sync: skipped (%s)", result.Status)
	}
}
