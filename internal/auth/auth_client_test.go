package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
)

func TestValidateRefreshToken_Success(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/validate-refresh-token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"s":"ok","code":200,"message":"","access_token":"new-token","expires_in":7200}`))
	}))
	defer srv.Close()

	ac := NewAuthClient(srv.URL+"/", fyers.NewHTTPClient(time.Second), nil)
	res, err := ac.ValidateRefreshToken(context.Background(), secrets())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AccessToken != "new-token" || res.ExpiresIn != 7200 {
		t.Errorf("unexpected result %+v", res)
	}

	want := map[string]string{
		"grant_type":    "refresh_token",
		"appIdHash":     "hash",
		"refresh_token": "refresh",
		"pin":           "1234",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("request field %s: expected %q, got %q", k, v, got[k])
		}
	}
}

func TestValidateRefreshToken_DefaultExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-token"}`))
	}))
	defer srv.Close()

	ac := NewAuthClient(srv.URL, fyers.NewHTTPClient(time.Second), nil)
	res, err := ac.ValidateRefreshToken(context.Background(), secrets())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExpiresIn != 86400 {
		t.Errorf("expected default expiry 86400, got %d", res.ExpiresIn)
	}
}

func TestValidateRefreshToken_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		temporary bool
	}{
		{name: "upstream rejects", status: http.StatusUnauthorized, body: `{"s":"error","code":-501,"message":"invalid pin"}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
		{name: "missing access token", status: http.StatusOK, body: `{"s":"ok","expires_in":100}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ac := NewAuthClient(srv.URL, fyers.NewHTTPClient(time.Second), nil)
			_, err := ac.ValidateRefreshToken(context.Background(), secrets())
			if !apperrors.Is(err, apperrors.KindAuthentication) {
				t.Fatalf("expected authentication error, got %v", err)
			}
			if apperrors.IsTemporary(err) != tt.temporary {
				t.Errorf("expected temporary=%v for %v", tt.temporary, err)
			}
		})
	}
}

func TestValidateRefreshToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ac := NewAuthClient(url, fyers.NewHTTPClient(time.Second), nil)
	_, err := ac.ValidateRefreshToken(context.Background(), secrets())
	if !apperrors.Is(err, apperrors.KindAuthentication) || !apperrors.IsTemporary(err) {
		t.Fatalf("expected temporary authentication error, got %v", err)
	}
}
