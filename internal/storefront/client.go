// Package storefront is the HTTP client for the upstream storefront REST
// API, which owns carts, discount codes and orders.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout          = 10 * time.Second
	responseBodyLimit int64 = 1 << 20
)

var errBaseURLRequired = errors.New("storefront base url is required")

// TokenSource extracts the shopper's bearer token from a request context.
type TokenSource func(ctx context.Context) string

// BreakerSettings tunes the circuit breaker in front of the API.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	OpenTimeout  time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// Client calls the storefront API. Every call passes through a circuit
// breaker; nothing is retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logg       *logger.Logger
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
	settings   BreakerSettings
	validate   *validator.Validate
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

func WithBreaker(settings BreakerSettings) Option {
	return func(c *Client) {
		c.settings = settings
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logg:       logger.Nop(),
		settings: BreakerSettings{
			MaxRequests:  1,
			Interval:     time.Minute,
			OpenTimeout:  30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  5,
		},
		validate: validator.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.breaker = gobreaker.NewCircuitBreaker[*rawResponse](client.breakerSettings())
	return client, nil
}

func (c *Client) breakerSettings() gobreaker.Settings {
	s := c.settings
	return gobreaker.Settings{
		Name:        "storefront",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := c.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			c.logg.Warn(ctx, "storefront circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// BreakerState exposes the breaker state for readiness checks.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// rawResponse is a completed HTTP exchange. 4xx responses are results, not
// breaker failures: the storefront answered.
type rawResponse struct {
	status int
	body   []byte
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// do sends the request and decodes the envelope. When out is non-nil, data
// must be present and decode into it.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode storefront request")
		}
		payload = encoded
	}

	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storefront unavailable, please try again shortly").
				WithDetails(map[string]any{"breaker": c.breaker.State().String()})
		}
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storefront unavailable")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw.body, &env)

	if raw.status < 200 || raw.status > 299 {
		msg := ""
		if decodeErr == nil {
			msg = env.Message
		}
		return statusError(raw.status, msg)
	}
	if decodeErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, "storefront returned an unreadable response")
	}
	if env.Success == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront response is missing the success flag")
	}
	if !*env.Success {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = "request rejected"
		}
		return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, &pkgerrors.UpstreamError{Status: raw.status, Message: msg}, msg)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront response is missing data")
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	if err := dec.Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storefront response data has an unexpected shape")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build storefront request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read storefront response: %w", err)
	}
	if resp.StatusCode >= 500 {
		msg := ""
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			msg = env.Message
		}
		return nil, statusError(resp.StatusCode, msg)
	}
	return &rawResponse{status: resp.StatusCode, body: body}, nil
}

func statusError(status int, message string) error {
	upstream := &pkgerrors.UpstreamError{Status: status, Message: strings.TrimSpace(message)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, upstream, "please sign in again")
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, upstream, messageOr(upstream.Message, "not found"))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, upstream, messageOr(upstream.Message, "request rejected"))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, "storefront unavailable")
	}
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func (c *Client) check(v any, what string) error {
	if err := c.validate.Struct(v); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("storefront returned an invalid %s", what))
	}
	return nil
}
