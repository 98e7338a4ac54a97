// Package anki is a typed client for the AnkiConnect JSON-RPC protocol.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/cardsync/internal/apperr"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultURL     = "http://localhost:8765"
	DefaultVersion = 6
	DefaultModel   = "Basic"
	DefaultTimeout = 10 * time.Second
)

// Config controls how the client talks to AnkiConnect.
type Config struct {
	URL     string
	Version int
	// Model is the note type used for new notes. It must have Front and
	// Back fields.
	Model   string
	Timeout time.Duration
	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Client issues AnkiConnect actions over HTTP.
type Client struct {
	url     string
	version int
	model   string

	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for call tracing and quarantine reports.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Version == 0 {
		cfg.Version = DefaultVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		url:     cfg.URL,
		version: cfg.Version,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke performs one action and decodes its result into out (when non-nil).
// Transport failures and unreadable envelopes are connectivity errors; an
// error reported by AnkiConnect itself is a rejection.
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("anki: %s: %w: %w", action, apperr.ErrConnectivity, err)
	}

	body, err := json.Marshal(request{Action: action, Version: c.version, Params: params})
	if err != nil {
		return fmt.Errorf("anki: %s: encode request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anki: %s: %w: %w", action, apperr.ErrConnectivity, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("anki: %s: %w: %w", action, apperr.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("anki: call",
		slog.String("action", action),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("anki: %s: %w: status %d", action, apperr.ErrConnectivity, resp.StatusCode)
	}

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("anki: %s: %w: decode envelope: %w", action, apperr.ErrConnectivity, err)
	}
	if env.Error != nil {
		return fmt.Errorf("anki: %s: %w: %s", action, apperr.ErrRemoteRejected, *env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("anki: %s: %w: decode result: %w", action, apperr.ErrConnectivity, err)
	}
	return nil
}
