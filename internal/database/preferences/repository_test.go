package preferences

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub004/internal/database"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_preferences_" + t.Name() + ".db"

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return NewRepository(db), cleanup
}

func TestRepository_SetUpserts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.Set("theme", "dark"))
	require.NoError(t, repo.Set("theme", "sepia"))

	value, err := repo.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "sepia", value)

	changes, err := repo.CollectPending()
	require.NoError(t, err)
	assert.Len(t, changes, 1, "upsert keeps a single row per key")
}

func TestRepository_GetUnsetReturnsEmpty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	value, err := repo.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}
