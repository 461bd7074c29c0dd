// Package client talks to the meal API over HTTP: callable functions,
// readiness lookups for the auth flow, and the shared-photo feed stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/services"
)

// CallError is a non-2xx answer from the API.
type CallError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *CallError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client calls one API base URL (for example http://localhost:8080/api/v1)
// on behalf of one bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a Client with a bounded default HTTP client. Streaming calls
// rely on context cancellation instead of the client timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CallOption adjusts a single call.
type CallOption func(*http.Request)

// WithIdempotencyKey makes a create call safe to retry.
func WithIdempotencyKey(key string) CallOption {
	return func(r *http.Request) { r.Header.Set("Idempotency-Key", key) }
}

// Call invokes the named function with in as its data payload and decodes
// the response data into out (which may be nil).
func (c *Client) Call(ctx context.Context, name string, in, out any, opts ...CallOption) error {
	if in == nil {
		in = struct{}{}
	}
	body, err := json.Marshal(map[string]any{"data": in})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/functions/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

// do sends req with the bearer token and converts error envelopes into
// *CallError. The caller owns the body of a successful response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	ce := &CallError{Status: resp.StatusCode}
	var env struct {
		RequestID string `json:"request_id"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
		ce.Code, ce.Message, ce.RequestID = env.Code, env.Message, env.RequestID
	}
	return nil, ce
}

// GetReadiness asks the server for the caller's readiness facts.
func (c *Client) GetReadiness(ctx context.Context) (*services.Readiness, error) {
	var r services.Readiness
	if err := c.Call(ctx, "getReadiness", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AgreeToTerms records consent to the current terms.
func (c *Client) AgreeToTerms(ctx context.Context) (*domain.UserSettings, error) {
	var s domain.UserSettings
	if err := c.Call(ctx, "agreeToTerms", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateProfile sets the caller's public profile.
func (c *Client) UpdateProfile(ctx context.Context, in services.ProfileInput) (*domain.UserSettings, error) {
	var s domain.UserSettings
	if err := c.Call(ctx, "updateProfile", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
