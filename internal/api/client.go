// Package api is the REST client for the finance backend. Reads go through
// the expiring cache first; mutations invalidate the datasets they affect.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

var (
	ErrNotAuthenticated = errors.New("not logged in")
	ErrUnexpectedResult = errors.New("unexpected result type")
)

// tokenKey is where the access token is persisted in the token store. It
// lives outside the cache namespace so clearing the cache keeps the login.
const tokenKey = "fin_auth:token"

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.ExpiringCache
	tokens     cache.Store
	logger     zerolog.Logger
	sf         singleflight.Group

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenStore persists the access token across processes.
func WithTokenStore(s cache.Store) Option {
	return func(c *Client) { c.tokens = s }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL backed by c.
func New(baseURL string, c *cache.ExpiringCache, opts ...Option) *Client {
	cl := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   c,
		logger:  log.L().With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.httpClient == nil {
		cl.httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: log.NewRoundTripper(http.DefaultTransport, cl.logger),
		}
	}
	if cl.tokens != nil {
		if tok, ok, err := cl.tokens.GetItem(tokenKey); err == nil && ok {
			cl.token = tok
		}
	}
	return cl
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Cache returns the cache the client reads through.
func (c *Client) Cache() *cache.ExpiringCache { return c.cache }

// Token returns the current access token, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	if c.tokens == nil {
		return
	}
	var err error
	if tok == "" {
		err = c.tokens.RemoveItem(tokenKey)
	} else {
		err = c.tokens.SetItem(tokenKey, tok)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist access token")
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and returns the response when it is 2xx. Otherwise the body
// is consumed into an APIError; a 401 also drops the token.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info().Str(log.FieldPath, req.URL.Path).Msg("access token rejected, clearing")
		c.setToken("")
	}
	return nil, apiErr
}

// call sends a JSON request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp.Body, out)
}

func decodeEnvelope(r io.Reader, out any) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) && out == nil {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		msg := "request failed"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// readThrough serves key from the cache, falling back to fetch. Concurrent
// misses for the same key share one fetch, which runs detached from any
// single caller's cancellation; each caller still returns on its own ctx.
// Cache write failures are logged and otherwise ignored.
func readThrough[T any](ctx context.Context, c *Client, key cache.Key,
	get func() (T, bool), put func(T) error, fetch func(context.Context) (T, error)) (T, error) {

	if v, ok := get(); ok {
		c.logger.Debug().Str(log.FieldCacheKey, string(key)).Msg("cache hit")
		return v, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(string(key), func() (interface{}, error) {
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := put(v); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldCacheKey, string(key)).Msg("cache write failed")
		}
		return v, nil
	})

	var zero T
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}
	v, ok := res.Val.(T)
	if !ok {
		return zero, ErrUnexpectedResult
	}
	if res.Shared {
		c.logger.Debug().Str(log.FieldCacheKey, string(key)).Msg("shared in-flight fetch")
	}
	return v, nil
}
