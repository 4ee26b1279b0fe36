package auth

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SafetyMargin is subtracted from the upstream expires_in so the token is
// renewed before the broker invalidates it.
const SafetyMargin = 60 * time.Second

// Refresher exchanges a refresh token for an access token
type Refresher interface {
	ValidateRefreshToken(ctx context.Context, creds Credentials) (RefreshResult, error)
}

// TokenManager owns the access token lifecycle. It is safe for concurrent
// use; concurrent callers that find the token expired share one refresh.
type TokenManager struct {
	store          CredentialStore
	refresher      Refresher
	seed           Credentials
	logger         *zap.Logger
	persistRetries uint64

	now            func() time.Time
	persistBackOff func() backoff.BackOff

	mu     sync.RWMutex
	creds  Credentials
	state  TokenState
	loaded bool

	flight singleflight.Group
}

// NewTokenManager creates a manager. seed fills whatever the store does not hold.
func NewTokenManager(store CredentialStore, refresher Refresher, seed Credentials, persistRetries int, log *zap.Logger) *TokenManager {
	if persistRetries < 0 {
		persistRetries = 0
	}
	return &TokenManager{
		store:          store,
		refresher:      refresher,
		seed:           seed,
		logger:         logger.OrNop(log),
		persistRetries: uint64(persistRetries),
		now:            time.Now,
		persistBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		state:          StateUninitialized,
	}
}

// EnsureValidToken returns the cached access token when it is still valid and
// refreshes it otherwise.
func (tm *TokenManager) EnsureValidToken(ctx context.Context) (string, error) {
	if token, ok := tm.cachedToken(); ok {
		return token, nil
	}

	// The refresh outlives any single caller: others may be waiting on it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := tm.flight.Do("refresh", func() (interface{}, error) {
		if err := tm.load(flightCtx); err != nil {
			return "", err
		}
		if token, ok := tm.cachedToken(); ok {
			return token, nil
		}
		return tm.refresh(flightCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// AuthorizationHeader returns the "client_id:access_token" header value
func (tm *TokenManager) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := tm.EnsureValidToken(ctx)
	if err != nil {
		return "", err
	}
	tm.mu.RLock()
	clientID := tm.creds.ClientID
	tm.mu.RUnlock()
	return clientID + ":" + token, nil
}

// State returns the current lifecycle state
func (tm *TokenManager) State() TokenState {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.stateLocked()
}

// Status returns a printable snapshot without secrets
func (tm *TokenManager) Status() TokenStatus {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return TokenStatus{
		State:     tm.stateLocked(),
		HasToken:  tm.creds.AccessToken != "",
		ExpiresAt: tm.creds.AccessTokenExpiry,
	}
}

func (tm *TokenManager) stateLocked() TokenState {
	if tm.state == StateValid && !tm.creds.ValidAt(tm.now()) {
		return StateExpired
	}
	return tm.state
}

func (tm *TokenManager) cachedToken() (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !tm.loaded || !tm.creds.ValidAt(tm.now()) {
		return "", false
	}
	return tm.creds.AccessToken, true
}

// load reads the store once. Only called from inside the flight.
func (tm *TokenManager) load(ctx context.Context) error {
	tm.mu.RLock()
	loaded := tm.loaded
	tm.mu.RUnlock()
	if loaded {
		return nil
	}

	stored, err := tm.store.Load(ctx)
	if err != nil {
		tm.logger.Error("Failed to load credentials", zap.Error(err))
		return apperrors.Wrap(apperrors.KindAuthentication, "auth.Load", "failed to load credentials", err)
	}
	creds := stored.Merge(tm.seed)

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.creds = creds
	tm.loaded = true
	switch {
	case creds.ValidAt(tm.now()):
		tm.state = StateValid
	case creds.AccessToken != "":
		tm.state = StateExpired
	}
	tm.logger.Info("Credentials loaded",
		zap.String("state", tm.stateLocked().String()),
		zap.Time("expires_at", creds.AccessTokenExpiry))
	return nil
}

func (tm *TokenManager) refresh(ctx context.Context) (string, error) {
	const op = "auth.Refresh"

	tm.mu.Lock()
	tm.state = StateRefreshing
	creds := tm.creds
	tm.mu.Unlock()

	if creds.RefreshToken == "" || creds.ClientIDHash == "" || creds.Pin == "" {
		tm.setState(StateFailed)
		return "", apperrors.New(apperrors.KindAuthentication, op, "refresh token, app id hash and pin are required")
	}

	tm.logger.Info("Access token missing or expired, refreshing",
		zap.Time("expired_at", creds.AccessTokenExpiry))

	result, err := tm.refresher.ValidateRefreshToken(ctx, creds)
	if err != nil {
		tm.setState(StateFailed)
		return "", err
	}

	expiry := tm.now().Add(time.Duration(result.ExpiresIn)*time.Second - SafetyMargin)

	// The token is not handed out until it is durable.
	if err := tm.persist(ctx, result.AccessToken, expiry); err != nil {
		tm.setState(StateFailed)
		tm.logger.Error("Failed to persist refreshed token", zap.Error(err))
		return "", apperrors.Wrap(apperrors.KindAuthentication, op, "failed to persist refreshed token", err)
	}

	tm.mu.Lock()
	tm.creds.AccessToken = result.AccessToken
	tm.creds.AccessTokenExpiry = expiry
	tm.state = StateValid
	tm.mu.Unlock()

	tm.logger.Info("Access token refreshed and saved", zap.Time("expires_at", expiry))
	return result.AccessToken, nil
}

func (tm *TokenManager) persist(ctx context.Context, token string, expiry time.Time) error {
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(tm.persistBackOff(), tm.persistRetries), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := tm.store.SaveAccessToken(ctx, token, expiry)
		if err != nil {
			tm.logger.Warn("Persisting access token failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, policy)
}

func (tm *TokenManager) setState(s TokenState) {
	tm.mu.Lock()
	tm.state = s
	tm.mu.Unlock()
}
