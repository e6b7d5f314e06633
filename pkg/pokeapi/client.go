// Package pokeapi is a read-only client for the PokeAPI REST service. Every
// method returns the raw JSON document so callers can persist it verbatim.
package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public PokeAPI endpoint.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// Config configures the remote client.
type Config struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RetryMax is the number of retries after the first attempt. Zero
	// disables retrying.
	RetryMax int `yaml:"retry_max" env:"RETRY_MAX"`
}

// UpstreamError reports a non-success response, or a transport failure when
// StatusCode is zero.
type UpstreamError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request to %s failed: %v", e.URL, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s returned %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}

// Unwrap exposes dex.ErrUpstream alongside the underlying cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{dex.ErrUpstream}
	}
	return []error{dex.ErrUpstream, e.Err}
}

// Client fetches documents from PokeAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client. Requests are bounded by cfg.Timeout and retried
// cfg.RetryMax times on connection errors and 5xx responses.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("retry_max cannot be negative")
	}

	logger = logger.With().Str("component", "PokeAPIClient").Logger()

	rclient := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		Logger:       leveledLogger{logger: logger},
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     cfg.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		// Hand the final response back so its status can be classified.
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &Client{
		baseURL:    base,
		httpClient: rclient.StandardClient(),
		logger:     logger,
	}, nil
}

// Pokemon fetches the primary entity document.
func (c *Client) Pokemon(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, "/pokemon/"+url.PathEscape(name))
}

// Species fetches the species document.
func (c *Client) Species(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, "/pokemon-species/"+url.PathEscape(name)+"/")
}

// EvolutionChain fetches the evolution chain document by id.
func (c *Client) EvolutionChain(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, "/evolution-chain/"+strconv.Itoa(id)+"/")
}

// MoveList fetches the document carrying the entity's learnable moves.
func (c *Client) MoveList(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, "/pokemon/"+url.PathEscape(name)+"/")
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	fetchURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", fetchURL, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", fetchURL, ctxErr)
		}
		return nil, &UpstreamError{URL: fetchURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug().Str("url", fetchURL).Msg("Resource not found upstream.")
		return nil, fmt.Errorf("%s: %w", fetchURL, dex.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Warn().Str("url", fetchURL).Int("status", resp.StatusCode).Msg("Non success response from upstream.")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: fetchURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: fetchURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if !json.Valid(body) {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: fetchURL, Err: errors.New("response is not valid JSON")}
	}

	c.logger.Debug().Str("url", fetchURL).Dur("elapsed", time.Since(start)).Msg("Successfully fetched document.")
	return json.RawMessage(body), nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
