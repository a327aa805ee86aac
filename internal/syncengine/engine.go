// Package syncengine orchestrates bidirectional sync between the local record
// store and the sync server: staged cover uploads, then push, then pull, with
// a single-flight guard so concurrent triggers collapse into one run.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

// Config wires the engine's collaborators.
type Config struct {
	API     API
	Syncers []TableSyncer // parent tables before children
	State   Watermarks
	Creds   CredentialStore
	Network Connectivity

	CoverSource CoverSource
	CoverFiles  CoverFiles

	// PurgeQueue is optional; without it acknowledged tombstones are purged
	// inline at the end of the run.
	PurgeQueue PurgeQueue
}

// Engine runs the sync protocol. All entry points funnel through Sync, which
// admits one run at a time.
type Engine struct {
	api         API
	syncers     []TableSyncer
	byTable     map[string]TableSyncer
	state       Watermarks
	creds       CredentialStore
	network     Connectivity
	coverSource CoverSource
	coverFiles  CoverFiles
	purgeQueue  PurgeQueue
	broadcaster *Broadcaster

	mu        sync.Mutex
	isSyncing bool
}

func New(cfg Config) *Engine {
	byTable := make(map[string]TableSyncer, len(cfg.Syncers))
	for _, s := range cfg.Syncers {
		byTable[s.Table()] = s
	}
	return &Engine{
		api:         cfg.API,
		syncers:     cfg.Syncers,
		byTable:     byTable,
		state:       cfg.State,
		creds:       cfg.Creds,
		network:     cfg.Network,
		coverSource: cfg.CoverSource,
		coverFiles:  cfg.CoverFiles,
		purgeQueue:  cfg.PurgeQueue,
		broadcaster: NewBroadcaster(),
	}
}

// Broadcaster returns the result broadcaster for this engine.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.broadcaster
}

// IsSyncing reports whether a run is currently in progress.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isSyncing
}

// Sync performs one full run: covers, push, pull, purge. A run already in
// progress is never interrupted; the late caller gets StatusAlreadySyncing.
// Every attempt's result is published to the broadcaster.
func (e *Engine) Sync(ctx context.Context) Result {
	e.mu.Lock()
	if e.isSyncing {
		e.mu.Unlock()
		log.Printf("sync: skipped (already syncing)")
		return Result{Status: StatusAlreadySyncing}
	}
	e.isSyncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.isSyncing = false
		e.mu.Unlock()
	}()

	result := e.run(ctx)
	log.Printf("sync: %s", result)
	e.broadcaster.Publish(result)
	return result
}

func (e *Engine) run(ctx context.Context) Result {
	if !e.network.IsOnline() {
		return Result{Status: StatusOffline}
	}
	if !e.creds.HasToken() {
		return Result{Status: StatusError, AuthExpired: true, Message: "not signed in"}
	}

	start := time.Now()
	var result Result

	uploaded, err := e.uploadCovers(ctx)
	result.CoversUploaded = uploaded
	if err != nil {
		return e.fail(result, "cover upload", err)
	}

	pushed, purgeable, err := e.push(ctx)
	result.Pushed = pushed
	if err != nil {
		return e.fail(result, "push", err)
	}

	pulled, err := e.pull(ctx)
	result.Pulled = pulled
	if err != nil {
		return e.fail(result, "pull", err)
	}

	e.purge(purgeable)

	result.Status = StatusSuccess
	log.Printf("sync: completed in %v", time.Since(start).Round(time.Millisecond))
	return result
}

// fail converts a phase error into a terminal result. A 401 clears the stored
// credential so subsequent runs short-circuit until the user signs in again.
func (e *Engine) fail(result Result, phase string, err error) Result {
	result.Status = StatusError
	result.Message = fmt.Sprintf("%s: %v", phase, err)
	if errors.Is(err, syncapi.ErrUnauthorized) {
		result.AuthExpired = true
		if clearErr := e.creds.Clear(); clearErr != nil {
			log.Printf("sync: failed to clear credential: %v", clearErr)
		}
	}
	return result
}

// uploadCovers sends staged cover images before push so the server can link
// them as the corresponding book records arrive. An individual cover failure
// is logged and retried next run; an auth failure aborts the whole sync.
func (e *Engine) uploadCovers(ctx context.Context) (int, error) {
	if e.coverSource == nil {
		return 0, nil
	}

	books, err := e.coverSource.PendingCoverUploads()
	if err != nil {
		return 0, fmt.Errorf("list pending covers: %w", err)
	}

	uploaded := 0
	for i := range books {
		book := &books[i]
		file, err := e.coverFiles.Open(book.CoverStagedPath)
		if err != nil {
			log.Printf("sync: cover for book %d unreadable, skipping: %v", book.ID, err)
			continue
		}

		remoteURL, err := e.api.UploadCover(ctx, book.ID, file)
		file.Close()
		if err != nil {
			if errors.Is(err, syncapi.ErrUnauthorized) {
				return uploaded, err
			}
			log.Printf("sync: cover upload for book %d failed, will retry: %v", book.ID, err)
			continue
		}

		if err := e.coverSource.FinishCoverUpload(book.ID, remoteURL); err != nil {
			return uploaded, fmt.Errorf("record cover upload for book %d: %w", book.ID, err)
		}
		if err := e.coverFiles.Discard(book.ID); err != nil {
			log.Printf("sync: failed to discard staged cover for book %d: %v", book.ID, err)
		}
		uploaded++
	}
	return uploaded, nil
}

// push sends dirty rows table by table, parents first, so the server can
// resolve child foreign keys by remote id. The push watermark advances only
// after every table made it through.
func (e *Engine) push(ctx context.Context) (int, map[string][]uint, error) {
	pushed := 0
	purgeable := make(map[string][]uint)

	for _, syncer := range e.syncers {
		changes, err := syncer.CollectPending()
		if err != nil {
			return pushed, purgeable, fmt.Errorf("collect %s: %w", syncer.Table(), err)
		}
		if len(changes) == 0 {
			continue
		}

		resp, err := e.api.PushBatch(ctx, syncer.Table(), changes)
		if err != nil {
			return pushed, purgeable, fmt.Errorf("push %s: %w", syncer.Table(), err)
		}

		ids, err := syncer.MarkSynced(changes, resp)
		if err != nil {
			return pushed, purgeable, fmt.Errorf("mark %s synced: %w", syncer.Table(), err)
		}
		if len(ids) > 0 {
			purgeable[syncer.Table()] = ids
		}

		pushed += len(resp.Assigned) + len(resp.Acked)
		if len(resp.Rejected) > 0 {
			log.Printf("sync: server rejected %d %s change(s), will retry", len(resp.Rejected), syncer.Table())
		}
	}

	if err := e.state.SetLastPushedAt(time.Now()); err != nil {
		return pushed, purgeable, fmt.Errorf("advance push watermark: %w", err)
	}
	return pushed, purgeable, nil
}

// pull fetches everything the server changed since the pull watermark and
// merges it, parents first. The watermark advances to the server's clock only
// after every table applied cleanly, so a failed run is re-pulled in full.
func (e *Engine) pull(ctx context.Context) (int, error) {
	since, err := e.state.LastPulledAt()
	if err != nil {
		return 0, fmt.Errorf("read pull watermark: %w", err)
	}

	resp, err := e.api.Pull(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("pull: %w", err)
	}

	pulled := 0
	for _, syncer := range e.syncers {
		records := resp.Tables[syncer.Table()]
		if len(records) == 0 {
			continue
		}
		if err := syncer.ApplyRemote(records); err != nil {
			return pulled, fmt.Errorf("apply %s: %w", syncer.Table(), err)
		}
		pulled += len(records)
	}

	for table := range resp.Tables {
		if _, known := e.byTable[table]; !known {
			log.Printf("sync: server sent unknown table %q, ignoring", table)
		}
	}

	if err := e.state.SetLastPulledAt(resp.ServerTime); err != nil {
		return pulled, fmt.Errorf("advance pull watermark: %w", err)
	}
	return pulled, nil
}

// purge disposes of acknowledged tombstones, via the task queue when
// configured. Purge failures never fail the sync; the task queue retries its
// own failures and a leftover tombstone row is invisible to queries anyway.
func (e *Engine) purge(purgeable map[string][]uint) {
	for table, ids := range purgeable {
		if e.purgeQueue != nil {
			if err := e.purgeQueue.EnqueuePurge(table, ids); err != nil {
				log.Printf("sync: failed to enqueue purge for %s: %v", table, err)
			}
			continue
		}
		if err := e.byTable[table].Purge(ids); err != nil {
			log.Printf("sync: failed to purge %d %s tombstone(s): %v", len(ids), table, err)
		}
	}
}
