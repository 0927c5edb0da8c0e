// sdk.go
// ------
// The sdk.go file contains the core Client struct and its methods. This
// is the main entry point of the SDK for users.
//
// Key functionalities include:
// - Initializing the SDK with New()
// - Making requests via client.Request() / client.RequestJSON()
// - Rotating credentials with SetToken()
// - Querying current rate-limit state
//
// The Client relies on a Limiter and a Dispatcher to handle per-route
// rate limiting and retries; everything above this layer (the
// per-resource endpoint wrappers) is just callers handing in a method, a
// path, and options.
package discordbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is a rate-limit-aware HTTP client for the API. It is safe for
// use by any number of concurrent callers; only requests sharing a route
// bucket contend with each other.
type Client struct {
	mu    sync.Mutex
	token string

	config     Config
	limiter    Limiter
	dispatcher *Dispatcher
	httpClient *http.Client
	logger     *zap.Logger
	pacer      *rate.Limiter
}

// New creates a Client with the given token and options. Invalid
// configuration fails here with a ValidationError, before any network
// activity.
func New(token string, opts ...Option) (*Client, error) {
	var cfg Config
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		token:      token,
		config:     cfg,
		limiter:    NewBucketTracker(),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if cfg.PacingRate > 0 {
		burst := cfg.PacingBurst
		if burst < 1 {
			burst = 1
		}
		c.pacer = rate.NewLimiter(rate.Limit(cfg.PacingRate), burst)
	}
	c.dispatcher = newDispatcher(c)
	return c, nil
}

// SetToken replaces the credential used for subsequent requests.
// In-flight requests keep the token they started with.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Request performs one logical call and returns the terminal result: a
// Response, or exactly one of the SDK's typed errors. Retries happen
// inside; the caller only ever observes the final outcome.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	return c.dispatcher.Do(ctx, method, path, opts)
}

// RequestJSON performs a request and unmarshals the response payload
// into out when out is non-nil and the response carried a body.
func (c *Client) RequestJSON(ctx context.Context, method, path string, opts *RequestOptions, out any) (*Response, error) {
	resp, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return resp, fmt.Errorf("decode response payload: %w", err)
		}
	}
	return resp, nil
}

// IsLimited reports whether a request for the given method and path
// would currently have to wait.
func (c *Client) IsLimited(method, path string) bool {
	return c.limiter.IsLimited(RouteKey(method, path))
}

// DelayFor returns the wait a request for the given method and path
// would currently incur.
func (c *Client) DelayFor(method, path string) time.Duration {
	return c.limiter.DelayFor(RouteKey(method, path))
}

// currentToken resolves the credential for one request: the OAuth2 token
// source when configured, otherwise the static token.
func (c *Client) currentToken() (string, error) {
	if c.config.TokenSource != nil {
		tok, err := c.config.TokenSource.Token()
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}
