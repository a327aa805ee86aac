package tasks

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	require.NotNil(t, client)

	// Verify tasks database was created
	tasksDBPath := filepath.Join(tmpDir, "test-tasks.db")
	_, err = os.Stat(tasksDBPath)
	assert.NoError(t, err, "tasks database should be created")

	err = client.Close()
	assert.NoError(t, err)
}

func TestClientStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Start(ctx)

	// Give it time to start
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()

	success := client.Stop(stopCtx)
	assert.True(t, success, "stop should succeed gracefully")
}

// recordingPurger collects purge calls for one table.
type recordingPurger struct {
	table string
	mu    sync.Mutex
	ids   [][]uint
	done  chan struct{}
}

func (p *recordingPurger) Table() string { return p.table }

func (p *recordingPurger) Purge(ids []uint) error {
	p.mu.Lock()
	p.ids = append(p.ids, ids)
	p.mu.Unlock()
	if p.done != nil {
		p.done <- struct{}{}
	}
	return nil
}

func TestPurgeTombstonesEndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	defer client.Close()

	purger := &recordingPurger{table: "books", done: make(chan struct{}, 1)}
	client.Register(NewPurgeTombstonesQueue([]TombstonePurger{purger}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)

	enqueuer := &PurgeEnqueuer{Client: client}
	require.NoError(t, enqueuer.EnqueuePurge("books", []uint{4, 9}))

	select {
	case <-purger.done:
	case <-time.After(5 * time.Second):
		t.Fatal("purge task was not executed within timeout")
	}

	purger.mu.Lock()
	defer purger.mu.Unlock()
	require.Len(t, purger.ids, 1)
	assert.Equal(t, []uint{4, 9}, purger.ids[0])
}

func TestPurgeTombstonesProcessorUnknownTable(t *testing.T) {
	process := PurgeTombstonesProcessor([]TombstonePurger{
		&recordingPurger{table: "books"},
	})

	err := process(context.Background(), PurgeTombstonesTask{Table: "unknown", IDs: []uint{1}})
	assert.Error(t, err)
}

func TestPurgeTombstonesTaskConfig(t *testing.T) {
	cfg := PurgeTombstonesTask{Table: "books", IDs: []uint{1}}.Config()

	assert.Equal(t, "purge_tombstones", cfg.Name)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Backoff)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.NotNil(t, cfg.Retention)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 15*time.Minute, cfg.ReleaseAfter)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}
