// Package fyers holds the HTTP plumbing shared by every Fyers endpoint client.
package fyers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize caps how much of an upstream reply is read. The symbol master
// is the largest payload and stays well below this.
const maxBodySize = 256 << 20

// Authorizer supplies the Authorization header value for an authenticated call.
type Authorizer interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// Response is a fully read upstream reply
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Envelope is the status wrapper Fyers puts around most replies
type Envelope struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewHTTPClient returns a client whose every call is bounded by timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Do sends req and reads the whole body. A non-nil error always means the
// upstream could not be reached or the reply could not be read; HTTP error
// statuses are returned in the Response for the caller to classify.
func Do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// DecodeEnvelope extracts the status wrapper if body carries one.
func DecodeEnvelope(body []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, false
	}
	if env.S == "" && env.Message == "" {
		return Envelope{}, false
	}
	return env, true
}
