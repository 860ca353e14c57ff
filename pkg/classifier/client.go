package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

// Call outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeUnparseable = "unparseable"
	OutcomeBreakerOpen = "breaker_open"
)

// Item is one classification request entry.
type Item struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Images      []interface{} `json:"images"`
}

type request struct {
	Items []Item `json:"items"`
}

// Observer receives one callback per call.
type Observer interface {
	ObserveClassifierCall(outcome string, duration time.Duration)
}

// Config tunes timeouts and the circuit breaker.
type Config struct {
	Endpoint        string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	BreakerHalfOpen uint32
}

// Client posts complaints to the classifier and converts every outcome into a Result.
type Client struct {
	endpoint    string
	readTimeout time.Duration
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker
	observer    Observer
	logger      *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithObserver registers a call observer, typically the metrics service.
func WithObserver(observer Observer) Option {
	return func(c *Client) { c.observer = observer }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a classifier client with bounded connect and read timeouts.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	if cfg.BreakerHalfOpen == 0 {
		cfg.BreakerHalfOpen = 1
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{
		endpoint:    cfg.Endpoint,
		readTimeout: cfg.ReadTimeout,
		http:        &http.Client{Transport: transport},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: cfg.BreakerHalfOpen,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("classifier breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Predict classifies a single item. It never returns nil.
func (c *Client) Predict(ctx context.Context, item Item) Result {
	start := time.Now()
	result := c.predict(ctx, item)

	outcome := OutcomeSuccess
	if failure, ok := result.(Failure); ok {
		outcome = OutcomeFailure
		switch {
		case errors.Is(failure.Err, gobreaker.ErrOpenState), errors.Is(failure.Err, gobreaker.ErrTooManyRequests):
			outcome = OutcomeBreakerOpen
		case failure.Raw != "":
			outcome = OutcomeUnparseable
		}
	}
	if c.observer != nil {
		c.observer.ObserveClassifierCall(outcome, time.Since(start))
	}
	return result
}

func (c *Client) predict(ctx context.Context, item Item) Result {
	if c.endpoint == "" {
		return Failure{Reason: "prediction endpoint not configured"}
	}
	if item.Images == nil {
		item.Images = []interface{}{}
	}
	body, err := json.Marshal(request{Items: []Item{item}})
	if err != nil {
		return Failure{Reason: "encode prediction request", Err: err}
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		c.logger.Warn("classifier call failed", zap.Error(err))
		return Failure{Reason: "prediction API call failed", Err: err}
	}

	payload := raw.([]byte)
	success, err := Parse(payload)
	if err != nil {
		c.logger.Warn("classifier response unparseable", zap.Error(err))
		return Failure{Reason: "unable to parse prediction response", Raw: string(payload), Err: err}
	}
	return success
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("prediction API returned status %d", resp.StatusCode)
	}
	return payload, nil
}
