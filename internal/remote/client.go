// Package remote is the HTTP client for the directory service contract.
//
// Every call carries the caller's credential as a bearer token and decodes
// the {success, data, message} envelope. Status codes are never inspected:
// a transport failure or an unreadable body wraps ErrTransport, and an
// envelope with success=false becomes a *RejectionError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Envelope is the response shape shared by all directory endpoints.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client talks to the directory service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Limiter paces write calls (friend add/remove, group creation).
	// Nil means unlimited.
	Limiter *rate.Limiter
}

// Option customizes a Client built by NewClient.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client as-is.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTP = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTP.Timeout = d
		}
	}
}

// WithRateLimit paces write calls to rps with the given burst.
// rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient returns a Client for the directory rooted at baseURL, which must
// include the scheme and the API base path (e.g. http://host:8080/api/v1).
// The default transport is instrumented with OpenTelemetry.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(baseURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid directory url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory url must be absolute (https://host/...): %q", baseURL)
	}
	c := &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// FriendDetails resolves identifiers to contacts. Unknown identifiers are
// absent from the result.
func (c *Client) FriendDetails(ctx context.Context, credential string, emails []string) ([]domain.FavoriteContact, error) {
	var out []domain.FavoriteContact
	body := domain.FriendDetailsRequest{Emails: emails}
	if err := c.do(ctx, credential, http.MethodPost, "/friends/details", nil, body, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.FavoriteContact{}
	}
	return out, nil
}

// Groups returns the caller's groups as raw JSON records.
func (c *Client) Groups(ctx context.Context, credential string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.do(ctx, credential, http.MethodGet, "/groups", nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []json.RawMessage{}
	}
	return out, nil
}

// CreateGroup creates a group. A non-empty idempotencyKey is sent as the
// Idempotency-Key header so a retried request returns the same group.
func (c *Client) CreateGroup(ctx context.Context, credential string, req domain.CreateGroupRequest, idempotencyKey string) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var hdr http.Header
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		hdr = http.Header{"Idempotency-Key": []string{k}}
	}
	var out json.RawMessage
	if err := c.doWithHeaders(ctx, credential, http.MethodPost, "/groups", nil, hdr, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search returns directory users matching q.
func (c *Client) Search(ctx context.Context, credential, q string) ([]domain.FavoriteContact, error) {
	var out []domain.FavoriteContact
	if err := c.do(ctx, credential, http.MethodGet, "/search", url.Values{"q": []string{q}}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.FavoriteContact{}
	}
	return out, nil
}

// AddFriend records friendEmail as a friend of the caller.
func (c *Client) AddFriend(ctx context.Context, credential, friendEmail string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.do(ctx, credential, http.MethodPost, "/friends/add", nil, domain.FriendRequest{FriendEmail: friendEmail}, nil)
}

// RemoveFriend deletes the caller's friendship with friendEmail.
func (c *Client) RemoveFriend(ctx context.Context, credential, friendEmail string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.do(ctx, credential, http.MethodPost, "/friends/remove", nil, domain.FriendRequest{FriendEmail: friendEmail}, nil)
}

// Me returns the caller's profile as raw JSON.
func (c *Client) Me(ctx context.Context, credential string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, credential, http.MethodGet, "/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, credential, method, path string, query url.Values, reqBody, data any) error {
	return c.doWithHeaders(ctx, credential, method, path, query, nil, reqBody, data)
}

func (c *Client) doWithHeaders(ctx context.Context, credential, method, path string, query url.Values, hdr http.Header, reqBody, data any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build %s %s: %w", ErrTransport, method, path, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, path, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrTransport, method, path, err)
	}
	if !env.Success {
		return &RejectionError{Message: env.Message}
	}
	if data == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return fmt.Errorf("%w: decode %s %s data: %w", ErrTransport, method, path, err)
	}
	return nil
}
