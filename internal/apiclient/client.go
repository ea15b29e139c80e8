package apiclient

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// APIPrefix is prepended to every endpoint path.
const APIPrefix = "/api/v1"

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() (string, bool)
}

// Config for the backend client.
type Config struct {
	BaseURL       string        // e.g. http://localhost:8000
	Timeout       time.Duration // JSON calls
	UploadTimeout time.Duration // multipart uploads
}

// Client talks to the citizen document backend.
type Client struct {
	cfg        Config
	http       *http.Client
	uploadHTTP *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		uploadHTTP: &http.Client{Timeout: cfg.UploadTimeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }
