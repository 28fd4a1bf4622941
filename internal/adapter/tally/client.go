// Package tally is the Tally.so API client: a bearer-authenticated JSON
// requester with client-side rate limiting, a circuit breaker and tracing,
// plus wrappers for the form, question and submission endpoints.
package tally

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/infra/tracer"
)

// defaultMaxResponseBody caps response reads when the config leaves it unset.
const defaultMaxResponseBody = 10 * 1024 * 1024 // 10 MB

// Client talks to the Tally REST and GraphQL APIs.
type Client struct {
	http       *http.Client
	baseURL    string
	graphqlURL string
	token      string
	maxBody    int64
	maxPages   int
	limiter    *rate.Limiter // nil when unthrottled
	breaker    *breaker      // nil when disabled
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client from cfg. An empty API token is rejected.
func NewClient(cfg config.TallyConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, domain.NewDomainError("tally.NewClient", domain.ErrAuthInvalid, "api token is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		http:       NewHTTPClient(cfg),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		graphqlURL: cfg.GraphQLURL,
		token:      cfg.APIToken,
		maxBody:    cfg.MaxResponseBytes,
		maxPages:   cfg.MaxPages,
		logger:     logger,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.tally.so"
	}
	if c.graphqlURL == "" {
		c.graphqlURL = c.baseURL + "/graphql"
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxResponseBody
	}
	if c.maxPages <= 0 {
		c.maxPages = 50
	}
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		// requests per minute spread over 60 seconds
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute)/60.0, burst)
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newBreaker(cfg.CircuitBreaker, logger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends a JSON request to path (relative to the base URL) and decodes the
// response into out. A nil out discards the body. Non-2xx responses return
// *domain.APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.request(ctx, method, c.baseURL+path, path, body)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// GraphQL posts a query to the GraphQL endpoint and decodes its data into
// out. A response carrying a top-level errors array returns *domain.APIError
// built from the first entry.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	req := map[string]any{"query": query}
	if len(variables) > 0 {
		req["variables"] = variables
	}
	raw, err := c.request(ctx, http.MethodPost, c.graphqlURL, "/graphql", req)
	if err != nil {
		return err
	}

	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message    string `json:"message"`
			Extensions struct {
				Code string `json:"code"`
			} `json:"extensions"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		desc := first.Extensions.Code
		if desc == "" {
			desc = "GraphQL Error"
		}
		return &domain.APIError{Message: first.Message, Description: desc, Method: http.MethodPost, Path: "/graphql"}
	}
	return decodeInto(resp.Data, out)
}

// request throttles, then runs one HTTP exchange through the breaker.
func (c *Client) request(ctx context.Context, method, url, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	do := func() ([]byte, error) { return c.exchange(ctx, method, url, path, payload) }
	if c.breaker != nil {
		return c.breaker.execute(do)
	}
	return do()
}

func (c *Client) exchange(ctx context.Context, method, url, path string, payload []byte) ([]byte, error) {
	ctx, span := tracer.StartSpan(ctx, "tally.request",
		trace.WithAttributes(
			tracer.StringAttr("http.method", method),
			tracer.StringAttr("tally.path", path),
		),
	)
	defer span.End()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	oversized := int64(len(respBody)) > c.maxBody
	if oversized {
		respBody = respBody[:c.maxBody]
	}

	span.SetAttributes(tracer.IntAttr("http.status_code", httpResp.StatusCode))
	c.logger.Debug("tally request",
		"method", method,
		"path", path,
		"status", httpResp.StatusCode,
		"duration", time.Since(start),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := mapHTTPError(method, path, httpResp.StatusCode, respBody)
		tracer.RecordError(span, apiErr)
		return nil, apiErr
	}
	// Error bodies are only excerpted; a truncated success body cannot be decoded.
	if oversized {
		err := fmt.Errorf("tally api %s %s: response exceeds %d bytes", method, path, c.maxBody)
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return respBody, nil
}

// mapHTTPError builds an APIError from a non-success response. The message is
// taken from a JSON "message" (or "error") field when present, otherwise the
// body excerpt.
func mapHTTPError(method, path string, status int, body []byte) *domain.APIError {
	msg := strings.TrimSpace(string(body))
	var decoded struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		switch {
		case decoded.Message != "":
			msg = decoded.Message
		case decoded.Error != nil:
			if s, ok := decoded.Error.(string); ok && s != "" {
				msg = s
			}
		}
	}
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return &domain.APIError{
		StatusCode:  status,
		Message:     msg,
		Description: http.StatusText(status),
		Method:      method,
		Path:        path,
	}
}

func decodeInto(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
