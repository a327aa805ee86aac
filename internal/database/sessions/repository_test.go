package sessions

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
)

func setupTestDB(t *testing.T) (*database.Database, func()) {
	dbPath := "./test_sessions_" + t.Name() + ".db"

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func createShelfEntry(t *testing.T, db *database.Database, remoteID *int64) *entities.UserBook {
	t.Helper()
	book := &entities.Book{Title: "Test Book"}
	require.NoError(t, db.DB.Create(book).Error)

	shelf := &entities.UserBook{BookID: book.ID, Status: entities.ReadingStatusReading}
	shelf.RemoteID = remoteID
	require.NoError(t, db.DB.Create(shelf).Error)
	return shelf
}

func TestThroughRepository_StartNumbersSequentially(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewThroughRepository(db)
	shelf := createShelfEntry(t, db, nil)

	first, err := repo.Start(shelf.ID)
	require.NoError(t, err)
	second, err := repo.Start(shelf.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)
	assert.True(t, first.IsPendingSync)
}

func TestThroughRepository_Finish(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewThroughRepository(db)
	shelf := createShelfEntry(t, db, nil)

	through, err := repo.Start(shelf.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Finish(through.ID))

	var got entities.ReadThrough
	require.NoError(t, db.DB.First(&got, through.ID).Error)
	assert.NotNil(t, got.FinishedAt)
}

func TestRepository_LogCopiesParentRemoteIDs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	shelfRemote := int64(70)
	shelf := createShelfEntry(t, db, &shelfRemote)

	throughRemote := int64(80)
	through := &entities.ReadThrough{UserBookID: shelf.ID, Number: 1, StartedAt: time.Now()}
	through.RemoteID = &throughRemote
	require.NoError(t, db.DB.Create(through).Error)

	repo := NewRepository(db)
	session := &entities.ReadingSession{
		UserBookID:      shelf.ID,
		ReadThroughID:   &through.ID,
		StartPage:       10,
		EndPage:         42,
		DurationMinutes: 30,
	}
	require.NoError(t, repo.Log(session))

	require.NotNil(t, session.UserBookRemoteID)
	assert.Equal(t, int64(70), *session.UserBookRemoteID)
	require.NotNil(t, session.ReadThroughRemoteID)
	assert.Equal(t, int64(80), *session.ReadThroughRemoteID)
	assert.False(t, session.ReadAt.IsZero())
	assert.True(t, session.IsPendingSync)
}

func TestThroughRepository_MarkSyncedPropagatesToSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	throughRepo := NewThroughRepository(db)
	sessionRepo := NewRepository(db)
	shelf := createShelfEntry(t, db, nil)

	through, err := throughRepo.Start(shelf.ID)
	require.NoError(t, err)

	session := &entities.ReadingSession{UserBookID: shelf.ID, ReadThroughID: &through.ID}
	require.NoError(t, sessionRepo.Log(session))

	changes, err := throughRepo.CollectPending()
	require.NoError(t, err)
	_, err = throughRepo.MarkSynced(changes, &syncapi.PushResponse{Assigned: map[uint]int64{through.ID: 300}})
	require.NoError(t, err)

	var got entities.ReadingSession
	require.NoError(t, db.DB.First(&got, session.ID).Error)
	require.NotNil(t, got.ReadThroughRemoteID)
	assert.Equal(t, int64(300), *got.ReadThroughRemoteID)
}

func TestRepository_ListForUserBook(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db)
	shelf := createShelfEntry(t, db, nil)

	older := &entities.ReadingSession{UserBookID: shelf.ID, ReadAt: time.Now().Add(-time.Hour)}
	newer := &entities.ReadingSession{UserBookID: shelf.ID, ReadAt: time.Now()}
	require.NoError(t, repo.Log(older))
	require.NoError(t, repo.Log(newer))
	require.NoError(t, repo.SoftDelete(older.ID))

	list, err := repo.ListForUserBook(shelf.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)
}
