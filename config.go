// config.go
// ----------
// This file defines the Config structure and the functional options used
// to customize a Client at construction time: authentication scheme, API
// version, client identification, retry budget, per-request timeout,
// attachment ceiling, and the optional pacing limiter.
//
// All values are validated once in New; invalid values fail fast with a
// ValidationError and are never silently clamped.
package discordbridge

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// AuthScheme selects the Authorization header prefix.
type AuthScheme string

const (
	AuthSchemeBot    AuthScheme = "Bot"
	AuthSchemeBearer AuthScheme = "Bearer"
)

const (
	DefaultAPIVersion = 10
	DefaultMaxRetries = 3
	DefaultTimeout    = 15 * time.Second

	// DefaultMaxAttachmentSize is the per-file upload ceiling (25 MiB).
	DefaultMaxAttachmentSize = 25 << 20

	defaultBaseURL     = "https://discord.com/api"
	defaultBaseBackoff = time.Second
	defaultUserAgent   = "DiscordBridge (https://github.com/opengovern/discord-bridge, 1.0)"
)

// supportedAPIVersions is the fixed set of versions the SDK knows how to
// talk to.
var supportedAPIVersions = map[int]bool{8: true, 9: true, 10: true}

// Config holds the constructor-time settings for a Client. Zero values
// fall back to the documented defaults during validation.
type Config struct {
	Scheme     AuthScheme
	APIVersion int
	UserAgent  string

	MaxRetries  int
	Timeout     time.Duration
	BaseBackoff time.Duration

	MaxAttachmentSize int64

	BaseURL     string
	HTTPClient  *http.Client
	Logger      *zap.Logger
	TokenSource oauth2.TokenSource

	PacingRate  float64
	PacingBurst int

	maxRetriesSet bool
}

// Option configures a Client.
type Option func(*Config)

// WithScheme sets the Authorization scheme (Bot or Bearer).
func WithScheme(scheme AuthScheme) Option {
	return func(c *Config) { c.Scheme = scheme }
}

// WithAPIVersion sets the API version. It must be one of the supported
// versions.
func WithAPIVersion(version int) Option {
	return func(c *Config) { c.APIVersion = version }
}

// WithUserAgent sets a custom client-identification string.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithMaxRetries sets the retry budget shared by rate-limit and server
// error retries. Zero disables automatic retry.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
		c.maxRetriesSet = true
	}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithBaseBackoff sets the base delay for server-error retries. The n-th
// retry waits n times this value.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Config) { c.BaseBackoff = d }
}

// WithMaxAttachmentSize sets the per-file upload ceiling in bytes.
func WithMaxAttachmentSize(n int64) Option {
	return func(c *Config) { c.MaxAttachmentSize = n }
}

// WithBaseURL overrides the API base URL. Intended for tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithHTTPClient sets a custom underlying *http.Client. The per-request
// timeout is still enforced through the request context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTokenSource sets an OAuth2 token source consulted before each
// request. Only valid with the Bearer scheme; it takes precedence over
// the static token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithPacing enables a proactive client-side token bucket of rps
// requests per second with the given burst, applied before any route
// bucket is consulted.
func WithPacing(rps float64, burst int) Option {
	return func(c *Config) {
		c.PacingRate = rps
		c.PacingBurst = burst
	}
}

// validate checks all settings, applying defaults for unset values.
func (c *Config) validate() error {
	if c.Scheme == "" {
		c.Scheme = AuthSchemeBot
	}
	if c.Scheme != AuthSchemeBot && c.Scheme != AuthSchemeBearer {
		return &ValidationError{Field: "scheme", Message: fmt.Sprintf("unknown auth scheme %q", c.Scheme)}
	}
	if c.APIVersion == 0 {
		c.APIVersion = DefaultAPIVersion
	}
	if !supportedAPIVersions[c.APIVersion] {
		return &ValidationError{Field: "apiVersion", Message: fmt.Sprintf("unsupported API version %d", c.APIVersion)}
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if !c.maxRetriesSet {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		return &ValidationError{Field: "maxRetries", Message: fmt.Sprintf("retry budget must be non-negative, got %d", c.MaxRetries)}
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return &ValidationError{Field: "timeout", Message: fmt.Sprintf("timeout must be positive, got %s", c.Timeout)}
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.BaseBackoff < 0 {
		return &ValidationError{Field: "baseBackoff", Message: fmt.Sprintf("base backoff must be positive, got %s", c.BaseBackoff)}
	}
	if c.MaxAttachmentSize == 0 {
		c.MaxAttachmentSize = DefaultMaxAttachmentSize
	}
	if c.MaxAttachmentSize < 0 {
		return &ValidationError{Field: "maxAttachmentSize", Message: fmt.Sprintf("attachment ceiling must be positive, got %d", c.MaxAttachmentSize)}
	}
	if c.PacingRate < 0 {
		return &ValidationError{Field: "pacing", Message: fmt.Sprintf("pacing rate must be non-negative, got %g", c.PacingRate)}
	}
	if c.TokenSource != nil && c.Scheme != AuthSchemeBearer {
		return &ValidationError{Field: "tokenSource", Message: "token source requires the Bearer scheme"}
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	return nil
}
