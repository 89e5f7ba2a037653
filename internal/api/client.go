package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/model"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

const refreshPath = "user/token/refresh/"

// Tokens is the session the client authenticates as. auth.TokenSource
// implements it.
type Tokens interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string)
	SessionExpired()
}

// Client talks to the remote API.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  Tokens
	refresh singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Collectors
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithTokens authenticates requests as the given session.
func WithTokens(t Tokens) Option {
	return func(c *Client) {
		c.tokens = t
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records requests and refreshes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends a JSON request and decodes a JSON response into out (if non-nil).
// GET requests send no body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	path = strings.TrimLeft(path, "/")

	used := c.accessToken()
	status, data, err := c.send(ctx, method, path, body, used)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		if isRefreshPath(path) {
			c.sessionExpired()
			return decodeError(method, path, status, data)
		}
		access, rerr := c.refreshAccess(ctx, used)
		if rerr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
			}
			c.logger.Debug("token refresh failed", "path", path, "error", rerr)
			return decodeError(method, path, status, data)
		}
		status, data, err = c.send(ctx, method, path, body, access)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return decodeError(method, path, status, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// send performs one round trip and returns the status and body.
func (c *Client) send(ctx context.Context, method, path string, body any, bearer string) (int, []byte, error) {
	var reader io.Reader
	if body != nil && method != http.MethodGet {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.APIRequest(method, 0)
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.APIRequest(method, 0)
		return 0, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	c.metrics.APIRequest(method, resp.StatusCode)
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, data, nil
}

// refreshAccess exchanges the refresh token for a new pair. Concurrent
// callers share one exchange. A caller whose rejected token has already been
// replaced gets the current token without a second exchange.
//
// The exchange runs detached from any single caller and is bounded by the
// client timeout; a caller whose ctx ends stops waiting without affecting the
// others or the session.
func (c *Client) refreshAccess(ctx context.Context, rejected string) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan("refresh", func() (any, error) {
		return c.exchange(detached, rejected)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exchange performs the refresh round trip. Only a missing refresh token, a
// rejected refresh token or a malformed token response end the session;
// transport failures leave it alone.
func (c *Client) exchange(ctx context.Context, rejected string) (string, error) {
	if cur := c.accessToken(); cur != "" && cur != rejected {
		return cur, nil
	}
	rt := ""
	if c.tokens != nil {
		rt = c.tokens.RefreshToken()
	}
	if rt == "" {
		c.metrics.TokenRefresh(ErrNoRefreshToken)
		c.sessionExpired()
		return "", ErrNoRefreshToken
	}

	status, data, err := c.send(ctx, http.MethodPost, refreshPath, map[string]string{"refresh": rt}, "")
	if err != nil {
		c.metrics.TokenRefresh(err)
		return "", err
	}

	var out struct {
		Tokens model.Tokens `json:"tokens"`
	}
	switch {
	case status < 200 || status > 299:
		err = decodeError(http.MethodPost, refreshPath, status, data)
	case json.Unmarshal(data, &out) != nil || out.Tokens.Access == "":
		err = errMalformedTokens
	}
	c.metrics.TokenRefresh(err)
	if err != nil {
		c.sessionExpired()
		return "", err
	}

	c.tokens.SetTokens(out.Tokens.Access, out.Tokens.Refresh)
	c.logger.Debug("access token refreshed")
	return out.Tokens.Access, nil
}

func (c *Client) accessToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

func (c *Client) sessionExpired() {
	if c.tokens != nil {
		c.tokens.SessionExpired()
	}
}

func isRefreshPath(path string) bool {
	return strings.HasSuffix(strings.TrimRight(path, "/"), strings.TrimRight(refreshPath, "/"))
}

func decodeError(method, path string, status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	return &RequestError{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: body.Detail,
		Code:    model.CustomCode(body.CustomCode),
	}
}
