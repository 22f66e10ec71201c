// Package stats fetches player counters from the Hypixel SkyBlock API.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/metrics"
)

const (
	defaultBaseURL = "https://api.hypixel.net"
	defaultTimeout = 10 * time.Second
	profilesPath   = "/v2/skyblock/profiles"
	maxBodyBytes   = 8 << 20
)

// NewHTTPClient returns a client with bounded dial and handshake times.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Client reads SkyBlock profiles. It does not cache.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	clock   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets the API-Key header value.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the HTTP client.
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
			c.http = NewHTTPClient(d)
		}
	}
}

// WithClock overrides the time stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.clock = now
		}
	}
}

// NewClient builds a Hypixel client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    NewHTTPClient(defaultTimeout),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the player's counters for kind from their selected profile.
func (c *Client) Fetch(ctx context.Context, kind model.Kind, playerID string) (snap *model.Snapshot, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStatsFetch(string(kind), Class(err), float64(time.Since(start).Milliseconds()))
	}()

	if kind != scoring.KindSlayer && kind != scoring.KindDungeons {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	id, err := uuid.Parse(playerID)
	if err != nil {
		return nil, fmt.Errorf("player id %q is not a uuid: %w", playerID, ErrNotFound)
	}
	memberKey := strings.ReplaceAll(id.String(), "-", "")

	resp, err := c.get(ctx, memberKey)
	if err != nil {
		return nil, err
	}
	profileID, m, err := selectedMember(resp, memberKey)
	if err != nil {
		return nil, err
	}

	at := c.clock().UTC()
	if kind == scoring.KindDungeons {
		return dungeonSnapshot(profileID, m, at), nil
	}
	return slayerSnapshot(profileID, m, at), nil
}

func (c *Client) get(ctx context.Context, memberKey string) (profilesResponse, error) {
	var out profilesResponse
	u := c.baseURL + profilesPath + "?uuid=" + url.QueryEscape(memberKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("API-Key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, fmt.Errorf("request profiles: %v: %w", err, ErrTransient)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusTooManyRequests:
		return out, &RateLimitError{RetryAfter: retryAfter(res.Header.Get("Retry-After"))}
	case res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusUnauthorized:
		return out, fmt.Errorf("status %d: %w", res.StatusCode, ErrUnauthorized)
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusBadRequest:
		return out, fmt.Errorf("status %d: %w", res.StatusCode, ErrNotFound)
	default:
		return out, fmt.Errorf("status %d: %w", res.StatusCode, ErrTransient)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("read body: %v: %w", err, ErrTransient)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode body: %v: %w", err, ErrTransient)
	}
	if !out.Success {
		return out, fmt.Errorf("api reported failure %q: %w", out.Cause, ErrTransient)
	}
	if len(out.Profiles) == 0 {
		return out, fmt.Errorf("player has no profiles: %w", ErrNotFound)
	}
	return out, nil
}

// RateLimitError is returned on HTTP 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// AsRateLimit extracts the server's retry hint, if any.
func AsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
