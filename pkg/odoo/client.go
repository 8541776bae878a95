// Package odoo is a resilient JSON-RPC client for an Odoo server. It owns
// the authenticated session, applies the bounded retry policy to every
// remote call, and exposes the CRM operations the agent needs: contact
// resolution, booking, calendar, catalog, orders, and outbound mail.
package odoo

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
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxCallAttempts = 3
	maxAuthAttempts = 3

	maxResponseSizeBytes = 4 << 20
)

type Config struct {
	URL      string        `split_words:"true" required:"true"`
	Database string        `split_words:"true" required:"true"`
	Username string        `split_words:"true" required:"true"`
	APIKey   string        `envconfig:"API_KEY"`
	Password string        `split_words:"true"`
	Timeout  time.Duration `split_words:"true" default:"30s"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBackoffBase overrides the first retry delay. The delay doubles on
// each subsequent attempt.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// Client talks JSON-RPC to <url>/jsonrpc. The session (uid plus the pinned
// credential) is established lazily under a mutex, so concurrent callers
// coalesce onto a single in-flight authentication instead of racing.
type Client struct {
	baseURL     string
	database    string
	username    string
	credentials []string

	httpClient  *http.Client
	backoffBase time.Duration
	sleep       func(time.Duration)
	nextID      atomic.Int64

	mu     sync.Mutex
	uid    int64
	secret string // credential pinned at authentication time
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("odoo url is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("odoo database is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("odoo username is required")
	}

	// Candidate secrets in the order they are tried. The API key wins when
	// both are configured; the password is the fallback.
	var credentials []string
	if s := strings.TrimSpace(cfg.APIKey); s != "" {
		credentials = append(credentials, s)
	}
	if s := strings.TrimSpace(cfg.Password); s != "" {
		credentials = append(credentials, s)
	}
	if len(credentials) == 0 {
		return nil, errors.New("odoo api key or password is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:     baseURL,
		database:    strings.TrimSpace(cfg.Database),
		username:    strings.TrimSpace(cfg.Username),
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		backoffBase: time.Second,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func MustNew(cfg Config, opts ...Option) *Client {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return client
}

// ExecuteKw invokes model.method on the remote server. Rate-limit
// responses are retried up to three total attempts with doubling backoff;
// every other failure propagates immediately. This is the single place
// where retry policy lives: all higher operations go through it.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	uid, secret, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	callArgs := []any{c.database, uid, secret, model, method, args}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}

	var lastErr error
	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoffBase << (attempt - 1))
		}

		result, err := c.rpc(ctx, "object", "execute_kw", callArgs)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			var remoteErr *RemoteError
			if errors.As(err, &remoteErr) && remoteErr.accessDenied() {
				c.invalidateSession()
			}
			return nil, err
		}
		lastErr = err
		log.Warn().Str("model", model).Str("method", method).Int("attempt", attempt+1).
			Msg("odoo throttled the call, backing off")
	}
	return nil, fmt.Errorf("%s.%s after %d attempts: %w", model, method, maxCallAttempts, lastErr)
}

// ensureSession returns the authenticated uid and pinned secret, creating
// the session if needed. Credentials are tried in order; a rate-limited
// login is retried with backoff, an explicit rejection advances to the
// next credential without retrying.
func (c *Client) ensureSession(ctx context.Context) (int64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, c.secret, nil
	}

	for i, secret := range c.credentials {
		uid, err := c.loginWithRetry(ctx, secret)
		if err == nil && uid != 0 {
			c.uid = uid
			c.secret = secret
			log.Info().Int64("uid", uid).Int("credential", i+1).Msg("odoo session established")
			return c.uid, c.secret, nil
		}
		log.Warn().Int("credential", i+1).Err(err).Msg("odoo credential rejected")
	}
	return 0, "", ErrAuthentication
}

func (c *Client) loginWithRetry(ctx context.Context, secret string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoffBase << (attempt - 1))
		}

		result, err := c.rpc(ctx, "common", "login", []any{c.database, c.username, secret})
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				lastErr = err
				continue
			}
			return 0, err
		}

		// Odoo answers false, not an error, for a bad credential.
		var uid int64
		if err := json.Unmarshal(result, &uid); err != nil || uid == 0 {
			return 0, nil
		}
		return uid, nil
	}
	return 0, lastErr
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.uid = 0
	c.secret = ""
	c.mu.Unlock()
	log.Warn().Msg("odoo session invalidated, will re-authenticate on next call")
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// rpc performs one JSON-RPC round trip. HTTP 429 maps to ErrRateLimited,
// a JSON-RPC error envelope to *RemoteError.
func (c *Client) rpc(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("odoo: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jsonrpc", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("odoo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo: %s.%s: %w", service, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("odoo: %s.%s: unexpected status %d", service, method, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("odoo: read response: %w", err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("odoo: decode response: %w", err)
	}
	if envelope.Error != nil {
		msg := envelope.Error.Data.Message
		if msg == "" {
			msg = envelope.Error.Message
		}
		return nil, &RemoteError{Name: envelope.Error.Data.Name, Message: msg}
	}
	return envelope.Result, nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, model string, vals map[string]any) (int64, error) {
	result, err := c.ExecuteKw(ctx, model, "create", []any{vals}, nil)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, fmt.Errorf("odoo: %s create returned %s: %w", model, result, err)
	}
	return id, nil
}

// Write updates fields on existing records.
func (c *Client) Write(ctx context.Context, model string, ids []int64, vals map[string]any) error {
	_, err := c.ExecuteKw(ctx, model, "write", []any{ids, vals}, nil)
	return err
}

// Unlink deletes records.
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) error {
	_, err := c.ExecuteKw(ctx, model, "unlink", []any{ids}, nil)
	return err
}

// SearchRead searches a model and reads the given fields in one call.
func (c *Client) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int, out any) error {
	kwargs := map[string]any{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	result, err := c.ExecuteKw(ctx, model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("odoo: decode %s search_read: %w", model, err)
	}
	return nil
}
