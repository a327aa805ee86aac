package entities

import "time"

// SyncEnvelope carries the sync metadata shared by every syncable record.
// The local primary key never leaves the device as-is; RemoteID is assigned
// by the server on first push and is the join key for pulled changes.
//
// UpdatedAt is owned by the envelope, not by gorm's auto-timestamps: only
// Touch moves it. That lets pull preserve server timestamps and lets
// MarkSynced detect records edited while a push was in flight.
type SyncEnvelope struct {
	RemoteID      *int64    `gorm:"index" json:"remote_id,omitempty"`
	IsPendingSync bool      `gorm:"index;default:false" json:"is_pending_sync"`
	IsDeleted     bool      `gorm:"index;default:false" json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// Touch marks the record as having unsynced local changes and refreshes
// UpdatedAt. UpdatedAt never moves backwards, even if the wall clock does.
func (e *SyncEnvelope) Touch(now time.Time) {
	e.IsPendingSync = true
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
}

// Tombstone soft-deletes the record. It stays in the store, excluded from
// user-facing queries, until the server acknowledges the deletion.
func (e *SyncEnvelope) Tombstone(now time.Time) {
	e.IsDeleted = true
	e.Touch(now)
}

// MarkSynced records the server-assigned identity and clears the dirty flag,
// but only when the record has not been touched since collectedAt — the
// snapshot timestamp the acknowledged push was built from. A record edited
// while the push was in flight keeps its dirty flag and is pushed again.
// Nothing else is allowed to clear IsPendingSync. Reports whether the flag
// was cleared.
func (e *SyncEnvelope) MarkSynced(remoteID int64, collectedAt time.Time) bool {
	e.RemoteID = &remoteID
	if e.UpdatedAt.After(collectedAt) {
		return false
	}
	e.IsPendingSync = false
	return true
}

// Synced reports whether the record is known to the server with no
// unacknowledged local changes.
func (e *SyncEnvelope) Synced() bool {
	return e.RemoteID != nil && !e.IsPendingSync
}
