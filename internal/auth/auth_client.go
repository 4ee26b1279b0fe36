package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/logger"
	"go.uber.org/zap"
)

const defaultExpiresIn = 86400

// AuthClient talks to the Fyers token endpoint
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuthClient creates a new auth client
func NewAuthClient(baseURL string, httpClient *http.Client, log *zap.Logger) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.OrNop(log),
	}
}

// ValidateRefreshToken exchanges the refresh token and pin for a new access token.
// Every failure is KindAuthentication; transport failures are marked temporary.
func (ac *AuthClient) ValidateRefreshToken(ctx context.Context, creds Credentials) (RefreshResult, error) {
	const op = "auth.ValidateRefreshToken"

	payload, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		AppIDHash:    creds.ClientIDHash,
		RefreshToken: creds.RefreshToken,
		Pin:          creds.Pin,
	})
	if err != nil {
		return RefreshResult{}, apperrors.Wrap(apperrors.KindAuthentication, op, "failed to encode request", err)
	}

	url := ac.baseURL + "/validate-refresh-token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return RefreshResult{}, apperrors.Wrap(apperrors.KindAuthentication, op, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	ac.logger.Info("Refreshing access token", zap.String("url", url))
	resp, err := fyers.Do(ac.httpClient, req)
	if err != nil {
		ac.logger.Error("Token endpoint unreachable", zap.Error(err))
		return RefreshResult{}, apperrors.Transport(apperrors.KindAuthentication, op, err)
	}

	var result RefreshResult
	decodeErr := json.Unmarshal(resp.Body, &result)

	if !resp.OK() {
		msg := result.Message
		if decodeErr != nil || msg == "" {
			msg = "unknown error"
		}
		ac.logger.Error("Token endpoint rejected refresh",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("message", msg))
		return RefreshResult{}, apperrors.New(apperrors.KindAuthentication, op,
			fmt.Sprintf("failed to refresh access token (status %d): %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return RefreshResult{}, apperrors.Wrap(apperrors.KindAuthentication, op, "malformed token response", decodeErr)
	}
	if result.AccessToken == "" {
		msg := result.Message
		if msg == "" {
			msg = "response has no access_token"
		}
		return RefreshResult{}, apperrors.New(apperrors.KindAuthentication, op, msg)
	}
	if result.ExpiresIn <= 0 {
		result.ExpiresIn = defaultExpiresIn
	}

	ac.logger.Info("Access token refreshed",
		zap.Int("token_length", len(result.AccessToken)),
		zap.Int64("expires_in", result.ExpiresIn))
	return result, nil
}
