package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash fields of the redis credential record
const (
	fieldClientID       = "client_id"
	fieldClientIDHash   = "client_id_hash"
	fieldRefreshToken   = "refresh_token"
	fieldPin            = "pin"
	fieldAccessToken    = "access_token"
	fieldTokenExpiresAt = "token_expires_at"
)

// RedisStore keeps credentials in a single redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects lazily to the redis at addr
func NewRedisStore(addr, password string, db int, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key: key,
	}
}

func (s *RedisStore) Load(ctx context.Context) (Credentials, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load credentials from redis: %w", err)
	}
	return credentialsFromFields(fields)
}

// SaveAccessToken writes both fields with one HSET, which redis applies atomically.
func (s *RedisStore) SaveAccessToken(ctx context.Context, accessToken string, expiry time.Time) error {
	err := s.client.HSet(ctx, s.key,
		fieldAccessToken, accessToken,
		fieldTokenExpiresAt, strconv.FormatInt(expiry.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to store access token in redis: %w", err)
	}
	return nil
}

// Close releases the redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func credentialsFromFields(fields map[string]string) (Credentials, error) {
	creds := Credentials{
		ClientID:     fields[fieldClientID],
		ClientIDHash: fields[fieldClientIDHash],
		RefreshToken: fields[fieldRefreshToken],
		Pin:          fields[fieldPin],
		AccessToken:  fields[fieldAccessToken],
	}
	if raw := fields[fieldTokenExpiresAt]; raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Credentials{}, fmt.Errorf("invalid %s %q: %w", fieldTokenExpiresAt, raw, err)
		}
		creds.AccessTokenExpiry = time.Unix(ts, 0)
	}
	return creds, nil
}
