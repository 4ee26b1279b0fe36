package auth

import "time"

// Credentials is the full Fyers session state.
//
// ClientID, ClientIDHash, RefreshToken and Pin are long-lived secrets. Only
// AccessToken and AccessTokenExpiry change on a refresh.
type Credentials struct {
	ClientID          string
	ClientIDHash      string
	RefreshToken      string
	Pin               string
	AccessToken       string
	AccessTokenExpiry time.Time
}

// Merge fills every empty field of c from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.ClientID == "" {
		c.ClientID = fallback.ClientID
	}
	if c.ClientIDHash == "" {
		c.ClientIDHash = fallback.ClientIDHash
	}
	if c.RefreshToken == "" {
		c.RefreshToken = fallback.RefreshToken
	}
	if c.Pin == "" {
		c.Pin = fallback.Pin
	}
	if c.AccessToken == "" {
		c.AccessToken = fallback.AccessToken
		c.AccessTokenExpiry = fallback.AccessTokenExpiry
	}
	return c
}

// ValidAt reports whether the access token may still be used at t.
func (c Credentials) ValidAt(t time.Time) bool {
	return c.AccessToken != "" && t.Before(c.AccessTokenExpiry)
}

// TokenState is the lifecycle state of the access token.
type TokenState int

const (
	StateUninitialized TokenState = iota
	StateValid
	StateExpired
	StateRefreshing
	StateFailed
)

func (s TokenState) String() string {
	switch s {
	case StateValid:
		return "VALID"
	case StateExpired:
		return "EXPIRED"
	case StateRefreshing:
		return "REFRESHING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNINITIALIZED"
	}
}

// TokenStatus is a read-only view of the manager, safe to print.
type TokenStatus struct {
	State     TokenState
	HasToken  bool
	ExpiresAt time.Time
}

// refreshRequest is the body of POST /validate-refresh-token
type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	AppIDHash    string `json:"appIdHash"`
	RefreshToken string `json:"refresh_token"`
	Pin          string `json:"pin"`
}

// RefreshResult holds a successful token refresh
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	S           string `json:"s"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
}
