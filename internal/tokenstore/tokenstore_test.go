package tokenstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sabristratos/athneaeum-sub004/internal/crypto"
)

func setupTestStore(t *testing.T) (*TokenStore, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tokens.db")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store, err := New(Config{DatabasePath: dbPath, EncryptionKey: key})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, dbPath
}

func TestTokenStore_SaveAndGet(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.False(t, store.HasToken())
	_, err := store.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(Credential{
		ServerURL: "https://sync.example.com",
		Username:  "demo",
		Token:     "bearer-abc",
	}))

	cred, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", cred.ServerURL)
	assert.Equal(t, "demo", cred.Username)
	assert.Equal(t, "bearer-abc", cred.Token)
	assert.True(t, store.HasToken())

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "bearer-abc", token)
}

func TestTokenStore_SaveReplacesCredential(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Save(Credential{ServerURL: "https://a", Username: "u1", Token: "t1"}))
	require.NoError(t, store.Save(Credential{ServerURL: "https://b", Username: "u2", Token: "t2"}))

	cred, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "https://b", cred.ServerURL)
	assert.Equal(t, "t2", cred.Token)
}

func TestTokenStore_Clear(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Save(Credential{ServerURL: "https://a", Username: "u", Token: "t"}))
	require.NoError(t, store.Clear())

	assert.False(t, store.HasToken())
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoToken)

	// Clearing again is harmless.
	assert.NoError(t, store.Clear())
}

func TestTokenStore_TokenEncryptedAtRest(t *testing.T) {
	store, dbPath := setupTestStore(t)

	require.NoError(t, store.Save(Credential{ServerURL: "https://a", Username: "u", Token: "super-secret"}))

	// Read the raw row with a separate connection; the token column must not
	// contain the plaintext.
	raw, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var stored string
	require.NoError(t, raw.Table("sync_credentials").
		Where("id = ?", 1).
		Pluck("token", &stored).Error)
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, "super-secret")
}

func TestTokenStore_WrongKeyCannotDecrypt(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tokens.db")

	firstKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	store, err := New(Config{DatabasePath: dbPath, EncryptionKey: firstKey})
	require.NoError(t, err)
	require.NoError(t, store.Save(Credential{ServerURL: "https://a", Username: "u", Token: "secret"}))
	require.NoError(t, store.Close())

	secondKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	reopened, err := New(Config{DatabasePath: dbPath, EncryptionKey: secondKey})
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get()
	assert.Error(t, err)
}

func TestResolveEncryptionKey_GeneratesAndReusesKeyFile(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "")
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")

	first, err := resolveEncryptionKey(Config{KeyFilePath: keyPath})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolveEncryptionKey(Config{KeyFilePath: keyPath})
	require.NoError(t, err)
	assert.Equal(t, first, second, "key file is reused across runs")
}
