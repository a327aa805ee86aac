// Package syncstate persists the pull/push high-water marks that make sync
// incremental. One row per sync domain; the marks survive restarts and are
// advanced only after the respective phase fully succeeds.
package syncstate

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
)

// Repository handles all sync_state table operations.
type Repository struct {
	db     *database.Database
	domain string
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db, domain: entities.SyncDomainLibrary}
}

// NewRepositoryForDomain creates a repository for a specific sync domain.
func NewRepositoryForDomain(db *database.Database, domain string) *Repository {
	return &Repository{db: db, domain: domain}
}

// Get returns the state row for the configured domain, creating it empty on
// first use.
func (r *Repository) Get() (*entities.SyncState, error) {
	var state entities.SyncState
	err := r.db.DB.Where("domain = ?", r.domain).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = entities.SyncState{Domain: r.domain, UpdatedAt: time.Now()}
		if err := r.db.DB.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// LastPulledAt returns the pull watermark, or nil before the first pull.
func (r *Repository) LastPulledAt() (*time.Time, error) {
	state, err := r.Get()
	if err != nil {
		return nil, err
	}
	return state.LastPulledAt, nil
}

// SetLastPulledAt advances the pull watermark. Called only after a fully
// successful pull phase.
func (r *Repository) SetLastPulledAt(t time.Time) error {
	return r.set("last_pulled_at", t)
}

// SetLastPushedAt advances the push watermark. Called only after the entire
// push phase completes without a transport failure.
func (r *Repository) SetLastPushedAt(t time.Time) error {
	return r.set("last_pushed_at", t)
}

func (r *Repository) set(column string, t time.Time) error {
	if _, err := r.Get(); err != nil {
		return err
	}
	return r.db.DB.Model(&entities.SyncState{}).
		Where("domain = ?", r.domain).
		Updates(map[string]any{
			column:       t,
			"updated_at": time.Now(),
		}).Error
}
