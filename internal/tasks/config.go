package tasks

import "time"

// Config tunes the purge queue. Per-task retry and retention policy lives on
// PurgeTombstonesTask.Config, not here.
type Config struct {
	// Workers is the number of concurrent queue workers. Purge batches are
	// small table-scoped deletes, so one or two is plenty.
	Workers int

	// ReleaseAfter is how long a claimed task may run before it is handed
	// back to the queue, covering a process killed mid-purge.
	ReleaseAfter time.Duration

	// CleanupInterval is how often completed tasks are swept from the store.
	CleanupInterval time.Duration
}

// DefaultConfig returns the queue tuning used when no overrides are set.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}
