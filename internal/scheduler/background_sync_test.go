package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub004/internal/syncengine"
)

func newTestScheduler(schedule string) *BackgroundSync {
	engine := syncengine.New(syncengine.Config{
		Network: offlineNetwork{},
		Creds:   noCreds{},
	})
	return NewBackgroundSync(engine, schedule)
}

type offlineNetwork struct{}

func (offlineNetwork) IsOnline() bool { return false }

type noCreds struct{}

func (noCreds) HasToken() bool { return false }
func (noCreds) Clear() error   { return nil }

func TestBackgroundSync_StartStop(t *testing.T) {
	s := newTestScheduler("*/15 * * * *")

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	// A second start is a no-op.
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())

	// A second stop is a no-op.
	s.Stop()
}

func TestBackgroundSync_EmptyScheduleDisables(t *testing.T) {
	s := newTestScheduler("")

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestBackgroundSync_InvalidSchedule(t *testing.T) {
	s := newTestScheduler("not a cron expression")

	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestBackgroundSync_ContextCancelStops(t *testing.T) {
	s := newTestScheduler("*/15 * * * *")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.True(t, s.IsRunning())

	cancel()
	assert.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond)
}
