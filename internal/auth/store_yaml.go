package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// YAMLStore keeps credentials in a yaml file managed through viper.
type YAMLStore struct {
	path string
	mu   sync.Mutex
}

// NewYAMLStore creates a store backed by the yaml file at path
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

func (s *YAMLStore) read() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0600)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return v, nil
}

func (s *YAMLStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.read()
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		ClientID:     v.GetString("client_id"),
		ClientIDHash: v.GetString("client_id_hash"),
		RefreshToken: v.GetString("refresh_token"),
		Pin:          v.GetString("pin"),
		AccessToken:  v.GetString("access_token"),
	}
	if ts := v.GetInt64("token_expires_at"); ts > 0 {
		creds.AccessTokenExpiry = time.Unix(ts, 0)
	}
	return creds, nil
}

func (s *YAMLStore) SaveAccessToken(ctx context.Context, accessToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.read()
	if err != nil {
		return err
	}
	v.Set("access_token", accessToken)
	v.Set("token_expires_at", expiry.Unix())

	// viper picks the encoder from the extension, so the temp file keeps it.
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp.yaml")
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := v.WriteConfigAs(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
