package partyserver

// Package partyserver contains the client for the PartyServer agent API
// This file contains the request dispatcher, the single path every endpoint goes through
// It composes headers, bounds each call with a timeout and unwraps the response envelope
// One call is one HTTP exchange: no retries, no caching, no shared mutable state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"partyserver-client/internal/infra/log"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a call when Config.Timeout is unset
	DefaultTimeout = 300 * time.Second
	// DefaultMaxResponseSize caps how much of a response body is read
	DefaultMaxResponseSize int64 = 10 * 1024 * 1024
)

// AdminAuth is the credential pair injected on admin-scoped routes
type AdminAuth struct {
	Token         string
	WalletAddress string
}

// Config is read once by NewClient, later changes to the caller's copy have no effect
type Config struct {
	BaseURL   string            // scheme and host, paths are appended verbatim
	Headers   map[string]string // static headers sent on every call
	Timeout   time.Duration     // per call, DefaultTimeout when zero
	AdminAuth *AdminAuth        // optional
}

// Client is safe for concurrent use, it holds no per-call state
type Client struct {
	baseURL         string
	headers         map[string]string
	timeout         time.Duration
	adminAuth       *AdminAuth
	httpClient      *http.Client
	rateLimiter     *rate.Limiter             // nil unless WithRateLimit
	routeLimiters   map[string]*rate.Limiter  // by Route.Name, nil unless WithRouteRateLimits
	circuitBreaker  *gobreaker.CircuitBreaker // nil unless WithCircuitBreaker
	maxResponseSize int64
}

// Option tunes a Client at construction
type Option func(*Client)

// WithHTTPClient replaces the transport, its own Timeout should be zero or larger than Config.Timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxResponseSize caps response bodies, larger bodies are reported as malformed
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// WithRateLimit limits outgoing calls to rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRouteRateLimits applies each route's RateLimit with one limiter per route
// A full window of requests may burst, later calls wait under the per-call timeout
func WithRouteRateLimits() Option {
	return func(c *Client) {
		c.routeLimiters = make(map[string]*rate.Limiter)
		for _, r := range Routes() {
			if r.RateLimit.Requests <= 0 || r.RateLimit.Window <= 0 {
				continue
			}
			every := r.RateLimit.Window / time.Duration(r.RateLimit.Requests)
			c.routeLimiters[r.Name] = rate.NewLimiter(rate.Every(every), r.RateLimit.Requests)
		}
	}
}

// BreakerSettings configures WithCircuitBreaker
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32        // trip after more than this many transport failures in a row
	OpenTimeout         time.Duration // how long the breaker stays open
	HalfOpenRequests    uint32
	Interval            time.Duration // closed-state counter reset period
}

// WithCircuitBreaker short-circuits calls after repeated transport failures or timeouts
// Application errors never count as failures
func WithCircuitBreaker(s BreakerSettings) Option {
	return func(c *Client) {
		if s.Name == "" {
			s.Name = "PartyServerAPI"
		}
		if s.ConsecutiveFailures == 0 {
			s.ConsecutiveFailures = 5
		}
		if s.OpenTimeout <= 0 {
			s.OpenTimeout = 30 * time.Second
		}
		if s.HalfOpenRequests == 0 {
			s.HalfOpenRequests = 3
		}
		if s.Interval <= 0 {
			s.Interval = 60 * time.Second
		}
		threshold := s.ConsecutiveFailures
		c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: s.HalfOpenRequests,
			Interval:    s.Interval,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !(errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout))
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.LogWarn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
}

// NewClient validates cfg and returns a ready client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidArgument)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %w", ErrInvalidArgument, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL must be an absolute http(s) URL, got %q", ErrInvalidArgument, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var admin *AdminAuth
	if cfg.AdminAuth != nil {
		a := *cfg.AdminAuth
		admin = &a
	}

	c := &Client{
		baseURL:         cfg.BaseURL,
		headers:         headers,
		timeout:         timeout,
		adminAuth:       admin,
		maxResponseSize: DefaultMaxResponseSize,
		httpClient: &http.Client{
			// the per-call context enforces the timeout
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: false,
				MaxIdleConns:      10,
				IdleConnTimeout:   90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewAdminClient is NewClient with an admin credential attached
func NewAdminClient(baseURL string, auth AdminAuth, opts ...Option) (*Client, error) {
	return NewClient(Config{BaseURL: baseURL, AdminAuth: &auth}, opts...)
}

// WithAdminAuth returns a copy of c carrying auth, c itself is unchanged
// The copy shares the transport, limiter and breaker
func (c *Client) WithAdminAuth(auth AdminAuth) *Client {
	clone := *c
	clone.adminAuth = &auth
	return &clone
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string { return c.baseURL }

// Timeout returns the effective per-call timeout
func (c *Client) Timeout() time.Duration { return c.timeout }

// HasAdminAuth reports whether admin routes will carry credentials
func (c *Client) HasAdminAuth() bool { return c.adminAuth != nil }

// Do sends one request and returns the unwrapped envelope data
// body nil (or a nil map, slice or pointer) sends no body, admin marks the route as admin-scoped
// Per-route limits do not apply here, the facade methods go through them
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, admin bool) (json.RawMessage, error) {
	return c.dispatch(ctx, nil, method, path, body, admin)
}

func (c *Client) dispatch(ctx context.Context, routeLimiter *rate.Limiter, method, path string, body interface{}, admin bool) (json.RawMessage, error) {
	requestID := log.GenerateRequestID()
	startTime := time.Now()

	if isNilBody(body) {
		body = nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := waitLimiter(ctx, routeLimiter); err != nil {
		return nil, err
	}
	if err := waitLimiter(ctx, c.rateLimiter); err != nil {
		return nil, err
	}

	if c.circuitBreaker == nil {
		return c.makeRequestWithContext(ctx, requestID, method, path, body, admin, startTime)
	}

	var data json.RawMessage
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		var err error
		data, err = c.makeRequestWithContext(ctx, requestID, method, path, body, admin, startTime)
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.LogError("Circuit breaker rejected request",
			zap.String("request_id", requestID),
			zap.String("endpoint", path),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return data, err
}

func (c *Client) makeRequestWithContext(ctx context.Context, requestID, method, path string, body interface{}, admin bool, startTime time.Time) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal request body: %w", ErrInvalidArgument, err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrInvalidArgument, err)
	}
	req.Header = composeHeaders(c.headers, c.adminAuth, admin)

	log.LogRequest(requestID, method, path,
		zap.Bool("admin_route", admin),
		zap.Bool("authenticated", admin && c.adminAuth != nil),
		zap.Bool("has_body", body != nil))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", path), zap.Error(err))
		return nil, classifyContextErr(ctx, fmt.Errorf("failed to perform request: %w", err))
	}
	defer resp.Body.Close()

	// read one byte past the cap so an oversized body fails to decode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", path), zap.Error(err))
		return nil, classifyContextErr(ctx, fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(respBody)) > c.maxResponseSize {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", path), zap.String("error", "response too large"))
		return nil, fmt.Errorf("%w: status %d: response exceeds %d bytes", ErrMalformedResponse, resp.StatusCode, c.maxResponseSize)
	}

	data, err := decodeEnvelope(respBody, resp)
	if err != nil {
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("endpoint", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		}
		if apiErr, ok := IsAPIError(err); ok {
			fields = append(fields, zap.String("code", apiErr.Code), zap.String("server_request_id", apiErr.RequestID))
		} else {
			log.LogJSON(respBody, "Malformed response body")
		}
		log.LogError("API error response received", fields...)
		return nil, err
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", path), zap.String("status", "success"))
	log.RequestLogger(requestID).Debug("Envelope unwrapped", zap.Int("data_bytes", len(data)))
	return data, nil
}

// waitLimiter blocks on l, a nil limiter never blocks
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot be met
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: rate limiter wait failed: %w", ErrTimeout, err)
		}
		return fmt.Errorf("%w: rate limiter wait failed: %w", ErrTransport, err)
	}
	return nil
}

// isNilBody reports whether body carries no value, typed nils included
func isNilBody(body interface{}) bool {
	if body == nil {
		return true
	}
	v := reflect.ValueOf(body)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// classifyContextErr maps a failed exchange onto ErrTimeout or ErrTransport
func classifyContextErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
