package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// TokenProvider returns the current bearer token, or "" when signed out.
type TokenProvider func() string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	token   TokenProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.token = p }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 15 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenProvider swaps the credential source after construction.
func (c *Client) SetTokenProvider(p TokenProvider) { c.token = p }

func (c *Client) BaseURL() string { return c.baseURL }

// Call performs one JSON request. in and out may be nil. Only GETs are retried.
func (c *Client) Call(ctx context.Context, method, path string, in, out any) error {
	return c.doJSON(ctx, method, path, in, out, method == fasthttp.MethodGet)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	requestID := uuid.NewString()
	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.token != nil {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return transportError(method, path, err)
		}
		started := time.Now()
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = transportError(method, path, err)
			c.logger.Debug("api_call_error",
				zap.String("request_id", requestID),
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		c.logger.Debug("api_call",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(started)),
		)
		if status < 200 || status >= 300 {
			apiErr := &chessdto.DomainError{
				Kind:    chessdto.KindAPI,
				Status:  status,
				Message: extractMessage(resp.Body()),
			}
			if attempt == attempts || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return &chessdto.DomainError{
					Kind:    chessdto.KindAPI,
					Status:  status,
					Message: "unexpected response from server",
					Err:     fmt.Errorf("decode %s: %w", path, err),
				}
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// extractMessage pulls a readable reason out of an error body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return chessdto.DefaultErrorMessage
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return chessdto.DefaultErrorMessage
	}
	for _, key := range []string{"error", "message", "msg"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return truncate(strings.TrimSpace(s), 512)
		}
	}
	return chessdto.DefaultErrorMessage
}

func transportError(method, path string, err error) error {
	return &chessdto.DomainError{
		Kind: chessdto.KindTransport,
		Err:  fmt.Errorf("%s %s: %w", method, path, err),
	}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
