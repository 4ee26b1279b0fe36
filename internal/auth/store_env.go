package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Keys used in the .env credential file
const (
	EnvClientID       = "FYERS_CLIENT_ID"
	EnvClientIDHash   = "FYERS_CLIENT_ID_HASH"
	EnvRefreshToken   = "FYERS_REFRESH_TOKEN"
	EnvPin            = "FYERS_PIN"
	EnvAccessToken    = "FYERS_ACCESS_TOKEN"
	EnvTokenExpiresAt = "FYERS_TOKEN_EXPIRES_AT"
)

// EnvFileStore keeps credentials in a dotenv file. Unrelated keys in the file
// are preserved on every write.
type EnvFileStore struct {
	path string
	mu   sync.Mutex
}

// NewEnvFileStore creates a store backed by the dotenv file at path
func NewEnvFileStore(path string) *EnvFileStore {
	return &EnvFileStore{path: path}
}

func (s *EnvFileStore) read() (map[string]string, error) {
	vars, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return vars, nil
}

func (s *EnvFileStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, err := s.read()
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		ClientID:     vars[EnvClientID],
		ClientIDHash: vars[EnvClientIDHash],
		RefreshToken: vars[EnvRefreshToken],
		Pin:          vars[EnvPin],
		AccessToken:  vars[EnvAccessToken],
	}
	if raw := vars[EnvTokenExpiresAt]; raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Credentials{}, fmt.Errorf("invalid %s %q: %w", EnvTokenExpiresAt, raw, err)
		}
		creds.AccessTokenExpiry = time.Unix(ts, 0)
	}
	return creds, nil
}

func (s *EnvFileStore) SaveAccessToken(ctx context.Context, accessToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, err := s.read()
	if err != nil {
		return err
	}
	vars[EnvAccessToken] = accessToken
	vars[EnvTokenExpiresAt] = strconv.FormatInt(expiry.Unix(), 10)

	content, err := godotenv.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.path, err)
	}
	if err := writeFileAtomic(s.path, []byte(content+"\n")); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
