// Package tasks runs deferred background work (tombstone purging) on a
// SQLite-backed queue so sync runs stay fast and purge failures get retried.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// Client owns the purge queue and its backing store.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu      sync.RWMutex
	started bool
}

// NewClient opens the queue store next to the record store, as
// <name>-tasks.db, so queued purges survive restarts without touching the
// synced tables.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	dir := filepath.Dir(mainDBPath)
	base := filepath.Base(mainDBPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	tasksDBPath := filepath.Join(dir, name+"-tasks"+ext)

	db, err := sql.Open("sqlite3", tasksDBPath+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	// The queue's own polling plus the workers; the store sees nothing else.
	db.SetMaxOpenConns(cfg.Workers + 2)
	db.SetMaxIdleConns(cfg.Workers + 1)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &queueLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("install queue schema: %w", err)
	}

	return &Client{
		client: client,
		db:     db,
		config: cfg,
	}, nil
}

// Register adds queues to the client. Must be called before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing queued work. Non-blocking; pair with Stop.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.Printf("tasks: queue started with %d worker(s)", c.config.Workers)
	c.client.Start(ctx)
}

// Stop drains in-flight tasks, reporting whether they all finished before
// the context deadline. An unfinished purge is released back to the queue
// and retried on the next run.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.RLock()
	if !c.started {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	success := c.client.Stop(ctx)
	if success {
		log.Println("tasks: queue stopped")
	} else {
		log.Println("tasks: queue stop timed out, unfinished work will be retried")
	}
	return success
}

// Close releases the queue store. Call after Stop.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Add starts an operation to enqueue one or more tasks.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.client.Add(tasks...)
}

// queueLogger adapts backlite's logger to the standard library log.
type queueLogger struct{}

func (l *queueLogger) Info(message string, params ...any) {
	log.Printf("tasks: "+message, params...)
}

func (l *queueLogger) Error(message string, params ...any) {
	log.Printf("tasks: error: "+message, params...)
}
