package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sabarim/fyerschain/internal/config"
)

// CredentialStore persists the session state.
//
// SaveAccessToken is the only write: a refresh can never overwrite the
// refresh token or pin. It must return only once the new token is durable.
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, error)
	SaveAccessToken(ctx context.Context, accessToken string, expiry time.Time) error
}

// NewStore builds the store selected by cfg.Credentials.Store
func NewStore(cfg *config.Config) (CredentialStore, error) {
	switch cfg.Credentials.Store {
	case "env":
		return NewEnvFileStore(cfg.Credentials.Path), nil
	case "yaml":
		return NewYAMLStore(cfg.Credentials.Path), nil
	case "redis":
		return NewRedisStore(cfg.Credentials.RedisAddr, cfg.Credentials.RedisPassword,
			cfg.Credentials.RedisDB, cfg.Credentials.RedisKey), nil
	case "memory":
		return NewMemoryStore(Credentials{}), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Credentials.Store)
	}
}

// SeedCredentials turns the auth section of the config into Credentials
func SeedCredentials(cfg *config.Config) Credentials {
	creds := Credentials{
		ClientID:     cfg.Auth.ClientID,
		ClientIDHash: cfg.Auth.ClientIDHash,
		RefreshToken: cfg.Auth.RefreshToken,
		Pin:          cfg.Auth.Pin,
		AccessToken:  cfg.Auth.AccessToken,
	}
	if cfg.Auth.TokenExpiresAt > 0 {
		creds.AccessTokenExpiry = time.Unix(cfg.Auth.TokenExpiresAt, 0)
	}
	return creds
}

// MemoryStore keeps credentials in process memory only
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

// NewMemoryStore creates a store holding creds
func NewMemoryStore(creds Credentials) *MemoryStore {
	return &MemoryStore{creds: creds}
}

func (s *MemoryStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *MemoryStore) SaveAccessToken(ctx context.Context, accessToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = accessToken
	s.creds.AccessTokenExpiry = expiry
	return nil
}

// writeFileAtomic replaces path with data via a temp file and rename, so a
// crash leaves either the old or the new file, never a partial one.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return os.Rename(tmpName, path)
}
