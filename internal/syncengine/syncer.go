package syncengine

import (
	"context"
	"io"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

// TableSyncer is implemented by each repository that participates in sync.
// The engine drives the same four-step protocol through every table: collect
// dirty rows, push them, record the server's verdict, and apply remote rows.
type TableSyncer interface {
	// Table returns the wire name of the table.
	Table() string

	// CollectPending returns all dirty rows as wire changes, oldest first.
	CollectPending() ([]syncapi.Change, error)

	// MarkSynced records the server's push verdict for the pushed snapshot.
	// Assigned and acked rows have their dirty flag cleared unless they were
	// edited after the snapshot in changes was collected; those stay dirty
	// and are pushed again. Rejected rows are left untouched. Returns the
	// local ids of acknowledged tombstones, now safe to purge.
	MarkSynced(changes []syncapi.Change, resp *syncapi.PushResponse) (purgeable []uint, err error)

	// ApplyRemote merges pulled records into the local store. Rows that are
	// locally dirty are skipped so unpushed edits survive.
	ApplyRemote(records []syncapi.Record) error

	// Purge hard-deletes acknowledged tombstones by local id.
	Purge(ids []uint) error
}

// API is the slice of the sync server client the engine needs.
type API interface {
	PushBatch(ctx context.Context, table string, changes []syncapi.Change) (*syncapi.PushResponse, error)
	Pull(ctx context.Context, since *time.Time) (*syncapi.PullResponse, error)
	UploadCover(ctx context.Context, localID uint, cover io.Reader) (string, error)
}

// CredentialStore gates syncing on a stored token and clears it on rejection.
type CredentialStore interface {
	HasToken() bool
	Clear() error
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// Watermarks persists the incremental sync high-water marks.
type Watermarks interface {
	LastPulledAt() (*time.Time, error)
	SetLastPulledAt(t time.Time) error
	SetLastPushedAt(t time.Time) error
}

// CoverSource exposes books whose cover image still needs uploading.
type CoverSource interface {
	PendingCoverUploads() ([]entities.Book, error)
	FinishCoverUpload(id uint, remoteURL string) error
}

// CoverFiles reads and disposes of staged cover image files.
type CoverFiles interface {
	Open(path string) (io.ReadCloser, error)
	Discard(bookID uint) error
}

// PurgeQueue defers tombstone cleanup to a background task. When nil the
// engine purges inline at the end of the run.
type PurgeQueue interface {
	EnqueuePurge(table string, ids []uint) error
}
