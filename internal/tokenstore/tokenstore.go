// Package tokenstore provides secure storage for the sync server bearer token
// using AES-256-GCM encryption.
package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sabristratos/athneaeum-sub004/internal/crypto"
)

const (
	// EnvEncryptionKey is the environment variable for the encryption key.
	EnvEncryptionKey = "TOKEN_ENCRYPTION_KEY"

	// DefaultKeyFileName is the default name for the key file.
	DefaultKeyFileName = ".athenaeum-token-key"
)

// ErrNoToken is returned when no credential has been saved yet, or the stored
// one was cleared after an authentication failure.
var ErrNoToken = errors.New("no sync credential stored")

// credential is the single-row table holding the encrypted bearer token.
type credential struct {
	ID        uint   `gorm:"primaryKey"`
	ServerURL string `gorm:"not null"`
	Username  string `gorm:"not null"`
	Token     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (credential) TableName() string {
	return "sync_credentials"
}

// Credential is the decrypted view handed to callers.
type Credential struct {
	ServerURL string
	Username  string
	Token     string
}

// TokenStore persists one sync credential, encrypted at rest.
type TokenStore struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

// Config holds configuration for the token store.
type Config struct {
	// DatabasePath is the path to the SQLite database file.
	DatabasePath string

	// EncryptionKey is the base64-encoded 32-byte encryption key.
	// If empty, will try to load from environment or key file.
	EncryptionKey string

	// KeyFilePath is the path to the encryption key file.
	// If empty, defaults to ~/.athenaeum-token-key.
	KeyFilePath string
}

// New creates a TokenStore with the given configuration.
func New(cfg Config) (*TokenStore, error) {
	key, err := resolveEncryptionKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}

	encryptor, err := crypto.NewEncryptorFromBase64(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&credential{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &TokenStore{db: db, encryptor: encryptor}, nil
}

// resolveEncryptionKey determines the encryption key from various sources.
func resolveEncryptionKey(cfg Config) (string, error) {
	if cfg.EncryptionKey != "" {
		return cfg.EncryptionKey, nil
	}

	if envKey := os.Getenv(EnvEncryptionKey); envKey != "" {
		return envKey, nil
	}

	keyFilePath := cfg.KeyFilePath
	if keyFilePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		keyFilePath = filepath.Join(homeDir, DefaultKeyFileName)
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return string(data), nil
	}

	newKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.WriteFile(keyFilePath, []byte(newKey), 0600); err != nil {
		return "", fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}

	return newKey, nil
}

// Save encrypts and upserts the credential. Only one credential is kept; a new
// login replaces the previous one.
func (s *TokenStore) Save(cred Credential) error {
	encToken, err := s.encryptor.Encrypt(cred.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	row := &credential{ID: 1}
	result := s.db.Assign(map[string]interface{}{
		"server_url": cred.ServerURL,
		"username":   cred.Username,
		"token":      encToken,
		"updated_at": time.Now(),
	}).FirstOrCreate(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save credential: %w", result.Error)
	}
	return nil
}

// Get returns the decrypted credential, or ErrNoToken if none is stored.
func (s *TokenStore) Get() (*Credential, error) {
	var row credential
	result := s.db.First(&row, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to get credential: %w", result.Error)
	}

	token, err := s.encryptor.Decrypt(row.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	return &Credential{
		ServerURL: row.ServerURL,
		Username:  row.Username,
		Token:     token,
	}, nil
}

// Token returns the decrypted bearer token. Satisfies syncapi.TokenProvider.
func (s *TokenStore) Token() (string, error) {
	cred, err := s.Get()
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// HasToken reports whether a credential is currently stored.
func (s *TokenStore) HasToken() bool {
	_, err := s.Get()
	return err == nil
}

// Clear removes the stored credential. Called when the server rejects the
// token, so the next sync short-circuits to an auth-expired result instead of
// hammering the server.
func (s *TokenStore) Clear() error {
	result := s.db.Delete(&credential{}, 1)
	if result.Error != nil {
		return fmt.Errorf("failed to clear credential: %w", result.Error)
	}
	return nil
}

// Close closes the database connection.
func (s *TokenStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
