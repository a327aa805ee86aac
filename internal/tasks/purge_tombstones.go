package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// TombstonePurger hard-deletes acknowledged tombstones for one table.
type TombstonePurger interface {
	Table() string
	Purge(ids []uint) error
}

// PurgeTombstonesTask removes soft-deleted rows the server has acknowledged.
// Enqueued by the sync engine at the end of a successful run.
type PurgeTombstonesTask struct {
	Table string `json:"table"`
	IDs   []uint `json:"ids"`
}

// Config returns the queue configuration for purge tasks.
func (t PurgeTombstonesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "purge_tombstones",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// PurgeTombstonesProcessor creates a processor that routes each task to the
// purger owning its table.
func PurgeTombstonesProcessor(purgers []TombstonePurger) backlite.QueueProcessor[PurgeTombstonesTask] {
	byTable := make(map[string]TombstonePurger, len(purgers))
	for _, p := range purgers {
		byTable[p.Table()] = p
	}

	return func(ctx context.Context, task PurgeTombstonesTask) error {
		purger, ok := byTable[task.Table]
		if !ok {
			return fmt.Errorf("no purger registered for table %q", task.Table)
		}

		if err := purger.Purge(task.IDs); err != nil {
			return fmt.Errorf("purge %s tombstones: %w", task.Table, err)
		}

		log.Printf("tasks: purged %d %s tombstone(s)", len(task.IDs), task.Table)
		return nil
	}
}

// NewPurgeTombstonesQueue creates a backlite queue for tombstone purging.
func NewPurgeTombstonesQueue(purgers []TombstonePurger) backlite.Queue {
	return backlite.NewQueue(PurgeTombstonesProcessor(purgers))
}

// PurgeEnqueuer adapts the task client to the sync engine's purge hook.
type PurgeEnqueuer struct {
	Client *Client
}

// EnqueuePurge queues a purge task for one table's acknowledged tombstones.
func (e *PurgeEnqueuer) EnqueuePurge(table string, ids []uint) error {
	_, err := e.Client.Add(PurgeTombstonesTask{Table: table, IDs: ids}).Save()
	return err
}
