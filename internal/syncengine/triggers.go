package syncengine

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultMutationDelay batches rapid local edits into one sync.
	DefaultMutationDelay = 2 * time.Second

	// DefaultReconnectDelay lets the connection settle before syncing.
	DefaultReconnectDelay = 1 * time.Second
)

// Triggers debounces sync requests. Each source has its own timer: a burst of
// edits collapses into one run, and a pending reconnect window is never
// stretched by a mutation arriving during it. Manual syncs bypass the
// debounce entirely.
type Triggers struct {
	engine         *Engine
	mutationDelay  time.Duration
	reconnectDelay time.Duration

	mu        sync.Mutex
	mutation  *time.Timer
	reconnect *time.Timer
	stopped   bool
}

func NewTriggers(engine *Engine, mutationDelay, reconnectDelay time.Duration) *Triggers {
	if mutationDelay <= 0 {
		mutationDelay = DefaultMutationDelay
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Triggers{
		engine:         engine,
		mutationDelay:  mutationDelay,
		reconnectDelay: reconnectDelay,
	}
}

// OnMutation schedules a sync after the mutation debounce window. Each call
// restarts the window.
func (t *Triggers) OnMutation() {
	t.schedule(&t.mutation, t.mutationDelay)
}

// OnReconnect schedules a sync shortly after connectivity returns.
func (t *Triggers) OnReconnect() {
	t.schedule(&t.reconnect, t.reconnectDelay)
}

// SyncNow cancels any pending debounce and runs a sync immediately.
func (t *Triggers) SyncNow(ctx context.Context) Result {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()

	return t.engine.Sync(ctx)
}

// Stop cancels any pending sync. Further trigger calls are ignored.
func (t *Triggers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.cancelLocked()
}

func (t *Triggers) cancelLocked() {
	if t.mutation != nil {
		t.mutation.Stop()
		t.mutation = nil
	}
	if t.reconnect != nil {
		t.reconnect.Stop()
		t.reconnect = nil
	}
}

// schedule restarts one source's timer without touching the other's. If both
// fire, the engine's single-flight guard makes the second run a no-op.
func (t *Triggers) schedule(timer **time.Timer, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = time.AfterFunc(delay, t.fire)
}

func (t *Triggers) fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()

	if stopped {
		return
	}

	result := t.engine.Sync(context.Background())
	if result.Status == StatusError {
		log.Printf("triggers: scheduled sync failed: %s", result.Message)
	}
}
