package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/shardgate/internal/version"
)

// Signer returns extra headers for a request. auth.Credentials satisfies it.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// Client calls the gateway REST API with a bearer token and, optionally,
// signed request headers.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	signer    Signer

	httpClient   *http.Client
	maxRetries   int
	retryBackoff time.Duration

	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for baseURL. Requests time out after 30s and
// retryable failures are retried 3 times starting at 1s.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		token:        token,
		userAgent:    "shardgate/" + version.Version,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		maxRetries:   3,
		retryBackoff: time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets how many times retryable failures are retried and the
// initial backoff.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSigner signs every request in addition to the bearer token.
func WithSigner(s Signer) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
