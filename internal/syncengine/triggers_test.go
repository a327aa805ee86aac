package syncengine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

func newTriggerTestEngine(syncCount *atomic.Int32) *Engine {
	return New(Config{
		API:     &countingAPI{count: syncCount},
		Syncers: []TableSyncer{&fakeSyncer{table: "books", pending: []syncapi.Change{{LocalID: 1}}}},
		State:   &fakeState{},
		Creds:   &fakeCreds{hasToken: true},
		Network: &fakeNetwork{online: true},
	})
}

type countingAPI struct {
	fakeAPI
	count *atomic.Int32
}

func (c *countingAPI) Pull(ctx context.Context, since *time.Time) (*syncapi.PullResponse, error) {
	c.count.Add(1)
	return c.fakeAPI.Pull(ctx, since)
}

func TestTriggers_DebounceCollapsesBurst(t *testing.T) {
	var syncs atomic.Int32
	engine := newTriggerTestEngine(&syncs)
	triggers := NewTriggers(engine, 50*time.Millisecond, 50*time.Millisecond)
	defer triggers.Stop()

	for i := 0; i < 10; i++ {
		triggers.OnMutation()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return syncs.Load() == 1
	}, time.Second, 10*time.Millisecond, "a burst of mutations yields one sync")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), syncs.Load())
}

func TestTriggers_ReconnectSchedules(t *testing.T) {
	var syncs atomic.Int32
	engine := newTriggerTestEngine(&syncs)
	triggers := NewTriggers(engine, time.Hour, 20*time.Millisecond)
	defer triggers.Stop()

	triggers.OnReconnect()

	assert.Eventually(t, func() bool {
		return syncs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTriggers_MutationDoesNotStretchReconnectWindow(t *testing.T) {
	var syncs atomic.Int32
	engine := newTriggerTestEngine(&syncs)
	triggers := NewTriggers(engine, 500*time.Millisecond, 30*time.Millisecond)
	defer triggers.Stop()

	triggers.OnReconnect()
	triggers.OnMutation()

	// The reconnect window runs out on its own schedule even though a
	// mutation arrived inside it.
	assert.Eventually(t, func() bool {
		return syncs.Load() >= 1
	}, 200*time.Millisecond, 10*time.Millisecond, "reconnect sync fires before the mutation window closes")
}

func TestTriggers_SyncNowBypassesDebounce(t *testing.T) {
	var syncs atomic.Int32
	engine := newTriggerTestEngine(&syncs)
	triggers := NewTriggers(engine, time.Hour, time.Hour)
	defer triggers.Stop()

	triggers.OnMutation()
	result := triggers.SyncNow(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, int32(1), syncs.Load())

	// The armed timer was cancelled; nothing fires later.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), syncs.Load())
}

func TestTriggers_StopCancelsPending(t *testing.T) {
	var syncs atomic.Int32
	engine := newTriggerTestEngine(&syncs)
	triggers := NewTriggers(engine, 20*time.Millisecond, 20*time.Millisecond)

	triggers.OnMutation()
	triggers.Stop()
	triggers.OnMutation()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, syncs.Load(), "stopped triggers never fire")
}

func TestTriggers_DefaultsApplied(t *testing.T) {
	triggers := NewTriggers(nil, 0, -time.Second)
	assert.Equal(t, DefaultMutationDelay, triggers.mutationDelay)
	assert.Equal(t, DefaultReconnectDelay, triggers.reconnectDelay)
}
