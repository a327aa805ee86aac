package tags

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_tags_" + t.Name() + ".db"

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return NewRepository(db), cleanup
}

func TestRepository_GetOrCreate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	tag, err := repo.GetOrCreate("fantasy")
	require.NoError(t, err)
	assert.True(t, tag.IsPendingSync)

	again, err := repo.GetOrCreate("fantasy")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID, "same name returns the existing tag")

	list, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepository_SetColorMakesDirty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	tag, err := repo.GetOrCreate("scifi")
	require.NoError(t, err)

	require.NoError(t, repo.SetColor(tag.ID, "#00ff00"))

	changes, err := repo.CollectPending()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, tag.ID, changes[0].LocalID)
}
