package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://esi.evetech.net/latest"

	// DefaultWorkers bounds CallMany concurrency.
	DefaultWorkers = 5

	// DefaultCacheTTL applies when a response carries no cache headers.
	DefaultCacheTTL = 300 * time.Second

	responseKeyPrefix = "esi:"
	maxResponseBytes  = 8 << 20
)

// TokenSource provides bearer tokens to the client.
type TokenSource interface {
	Current(ctx context.Context) (*model.Token, error)
	Refresh(ctx context.Context) (*model.Token, error)
}

// Config holds gateway client settings.
type Config struct {
	BaseURL    string
	UserAgent  string
	Workers    int
	DefaultTTL time.Duration
	// RateLimit is the sustained outbound requests per second; 0 disables pacing.
	RateLimit float64
	Timeout   time.Duration
}

// Client is the upstream API gateway. It attaches the bearer token, caches
// successful responses and fans out independent requests over a bounded pool.
// It is safe for concurrent use by overlapping cycles.
type Client struct {
	baseURL    string
	userAgent  string
	workers    int
	defaultTTL time.Duration
	httpClient *http.Client
	tokens     TokenSource
	cache      cache.Cache
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption customizes Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a gateway client. The response cache may be nil.
func NewClient(cfg Config, tokens TokenSource, responses cache.Cache, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &Client{
		baseURL:    baseURL,
		userAgent:  cfg.UserAgent,
		workers:    workers,
		defaultTTL: ttl,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		cache:      responses,
		log:        log.With().Str("component", "esi").Logger(),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Workers returns the CallMany concurrency bound.
func (c *Client) Workers() int {
	return c.workers
}

// Call performs op once, serving it from the response cache when possible.
func (c *Client) Call(ctx context.Context, op Operation) *Response {
	if resp, ok := c.lookup(ctx, op); ok {
		return resp
	}
	return c.do(ctx, op)
}

// CallAuthRetry performs op and, on a 401/403 from the network, forces a
// token refresh and repeats the request exactly once. Cache hits skip the retry.
func (c *Client) CallAuthRetry(ctx context.Context, op Operation) *Response {
	resp := c.Call(ctx, op)
	if resp.Cached || !resp.AuthFailed() {
		return resp
	}

	c.log.Warn().Str("op", op.Name).Int("status", resp.StatusCode).Msg("auth rejected, refreshing token")
	if _, err := c.tokens.Refresh(ctx); err != nil {
		return &Response{Operation: op, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	return c.do(ctx, op)
}

// CallMany dispatches ops concurrently over at most Workers goroutines and
// waits for all of them. A failing op never aborts its siblings. The result
// at index i answers ops[i] and also carries its Operation.
func (c *Client) CallMany(ctx context.Context, ops []Operation) []*Response {
	results := make([]*Response, len(ops))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, op := range ops {
		g.Go(func() error {
			results[i] = c.Call(ctx, op)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Client) do(ctx context.Context, op Operation) *Response {
	resp := &Response{Operation: op}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			resp.Err = fmt.Errorf("%s: %w", op.Name, err)
			return resp
		}
	}

	tok, err := c.tokens.Current(ctx)
	if err != nil {
		resp.Err = err
		return resp
	}

	target := c.baseURL + op.Path
	if len(op.Query) > 0 {
		target += "?" + op.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		resp.Err = fmt.Errorf("%s: failed to build request: %w", op.Name, err)
		return resp
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+tok.AccessToken)

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		resp.Err = fmt.Errorf("%s: %w", op.Name, err)
		return resp
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		resp.Err = fmt.Errorf("%s: failed to read body: %w", op.Name, err)
		return resp
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Body = body
	resp.Pages = pages(httpResp.Header)

	c.log.Debug().
		Str("op", op.Name).
		Str("path", op.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream request")

	if resp.StatusCode != http.StatusOK {
		resp.Err = &UpstreamError{
			Operation:  op.Name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
		return resp
	}

	c.store(ctx, resp, cacheTTL(httpResp.Header, time.Now(), c.defaultTTL))
	return resp
}

// cachedResponse is the persisted form of a successful response.
type cachedResponse struct {
	Body  json.RawMessage `json:"body"`
	Pages int             `json:"pages"`
}

func (c *Client) lookup(ctx context.Context, op Operation) (*Response, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, responseKeyPrefix+op.Key())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Debug().Err(err).Str("op", op.Name).Msg("response cache read failed")
		}
		return nil, false
	}

	var entry cachedResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &Response{
		Operation:  op,
		StatusCode: http.StatusOK,
		Body:       entry.Body,
		Pages:      entry.Pages,
		Cached:     true,
	}, true
}

func (c *Client) store(ctx context.Context, resp *Response, ttl time.Duration) {
	if c.cache == nil || ttl <= 0 || !json.Valid(resp.Body) {
		return
	}
	data, err := json.Marshal(cachedResponse{Body: resp.Body, Pages: resp.Pages})
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, responseKeyPrefix+resp.Operation.Key(), data, ttl); err != nil {
		c.log.Warn().Err(err).Str("op", resp.Operation.Name).Msg("response cache write failed")
	}
}

// cacheTTL derives the cache lifetime from Cache-Control max-age, then
// Expires relative to Date, then falls back. A result <= 0 disables caching.
func cacheTTL(h http.Header, now time.Time, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(h.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		switch {
		case directive == "no-store" || directive == "no-cache":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}

	if expires := h.Get("Expires"); expires != "" {
		exp, err := http.ParseTime(expires)
		if err != nil {
			return fallback
		}
		base := now
		if date, err := http.ParseTime(h.Get("Date")); err == nil {
			base = date
		}
		return exp.Sub(base)
	}

	return fallback
}

func pages(h http.Header) int {
	n, err := strconv.Atoi(h.Get("X-Pages"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
