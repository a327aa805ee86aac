package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sabristratos/athneaeum-sub004/internal/entities"
)

// Database wraps the local record store. Every mutation goes through Write so
// that (a) multi-record changes are atomic and (b) observers fire after commit.
type Database struct {
	DB        *gorm.DB
	observers *Observers
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.Book{},
		&entities.UserBook{},
		&entities.ReadThrough{},
		&entities.ReadingSession{},
		&entities.Tag{},
		&entities.ReadingGoal{},
		&entities.UserPreference{},
		&entities.SyncState{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized at %s", dbPath)

	return &Database{DB: db, observers: NewObservers()}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Write runs fn inside one transaction and, on commit, notifies observers of
// the touched tables. origin distinguishes user writes from sync-applied ones
// so the trigger scheduler does not re-schedule a sync for its own writes.
func (d *Database) Write(origin Origin, fn func(tx *gorm.DB) error, tables ...string) error {
	if err := d.DB.Transaction(fn); err != nil {
		return err
	}
	for _, table := range tables {
		d.observers.Notify(Event{Table: table, Origin: origin})
	}
	return nil
}

// Observe registers a handler for committed changes to a table. Use
// ObserveAll to watch every table. The returned func cancels the subscription.
func (d *Database) Observe(table string, h Handler) (cancel func()) {
	return d.observers.Subscribe(table, h)
}

// ObserveAll registers a handler for committed changes to any table.
func (d *Database) ObserveAll(h Handler) (cancel func()) {
	return d.observers.Subscribe(allTables, h)
}
