package entities

import (
	"time"
)

// SyncDomainLibrary is the single sync domain the engine currently runs.
const SyncDomainLibrary = "library"

// SyncState holds the high-water marks that make pull and push incremental.
// One row per sync domain, keyed by name; the marks survive restarts and are
// only advanced after the respective phase fully succeeds.
type SyncState struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Domain       string     `gorm:"size:50;uniqueIndex" json:"domain"`
	LastPulledAt *time.Time `json:"last_pulled_at,omitempty"`
	LastPushedAt *time.Time `json:"last_pushed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (SyncState) TableName() string { return "sync_state" }
