package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncEnvelope_Touch(t *testing.T) {
	var e SyncEnvelope

	now := time.Now()
	e.Touch(now)

	assert.True(t, e.IsPendingSync)
	assert.Equal(t, now, e.UpdatedAt)
}

func TestSyncEnvelope_Touch_NeverMovesBackwards(t *testing.T) {
	var e SyncEnvelope

	later := time.Now()
	earlier := later.Add(-time.Hour)

	e.Touch(later)
	e.Touch(earlier)

	assert.Equal(t, later, e.UpdatedAt)
	assert.True(t, e.IsPendingSync)
}

func TestSyncEnvelope_Tombstone(t *testing.T) {
	var e SyncEnvelope

	e.Tombstone(time.Now())

	assert.True(t, e.IsDeleted)
	assert.True(t, e.IsPendingSync, "a tombstone must be pushed")
}

func TestSyncEnvelope_MarkSynced(t *testing.T) {
	var e SyncEnvelope
	e.Touch(time.Now())

	cleared := e.MarkSynced(42, e.UpdatedAt)

	assert.True(t, cleared)
	assert.False(t, e.IsPendingSync)
	if assert.NotNil(t, e.RemoteID) {
		assert.Equal(t, int64(42), *e.RemoteID)
	}
	assert.True(t, e.Synced())
}

func TestSyncEnvelope_MarkSynced_EditedAfterCollection(t *testing.T) {
	var e SyncEnvelope
	collectedAt := time.Now()
	e.Touch(collectedAt)
	e.Touch(collectedAt.Add(time.Second))

	cleared := e.MarkSynced(42, collectedAt)

	assert.False(t, cleared, "edits after the snapshot must survive the ack")
	assert.True(t, e.IsPendingSync)
	if assert.NotNil(t, e.RemoteID) {
		assert.Equal(t, int64(42), *e.RemoteID, "the assigned remote id is kept either way")
	}
}

func TestSyncEnvelope_Synced(t *testing.T) {
	var e SyncEnvelope
	assert.False(t, e.Synced(), "never-pushed record is not synced")

	e.MarkSynced(7, e.UpdatedAt)
	assert.True(t, e.Synced())

	e.Touch(time.Now())
	assert.False(t, e.Synced(), "local edit makes the record unsynced again")
}
