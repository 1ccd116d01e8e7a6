// Package resourceapi is a payment.Repository backed by the commerce platform's
// HTTP resource API.
package resourceapi

import (
	"bytes"
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

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/cassiomorais/notifications/internal/infrastructure/config"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	"github.com/cassiomorais/notifications/pkg/retry"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const breakerName = "resource-api"

// maxBodySize caps response bodies read from the resource API.
const maxBodySize = 10 << 20

type response struct {
	status int
	body   []byte
}

// retryableStatus marks a response the breaker and retry policy treat as a failure.
type retryableStatus struct {
	status int
	body   string
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("resource api returned %d: %s", e.status, e.body)
}

func (e *retryableStatus) Unwrap() error {
	return domainErrors.ErrResourceUnavailable
}

// Client talks to the payments endpoint of one project.
type Client struct {
	http       *http.Client
	baseURL    string
	projectKey string
	retryCfg   retry.Config
	breaker    *gobreaker.CircuitBreaker[*response]
	metrics    *observability.Metrics
}

// NewClient creates a new Client. When a client id is configured, requests are
// authorized with an OAuth2 client credentials token.
func NewClient(ctx context.Context, cfg *config.ResourceConfig, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	httpClient := base
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
		httpClient.Timeout = timeout
	}

	return newClient(httpClient, cfg, metrics)
}

func newClient(httpClient *http.Client, cfg *config.ResourceConfig, metrics *observability.Metrics) *Client {
	attempts := cfg.MaxRetries
	if attempts == 0 {
		attempts = 1
	}
	threshold := cfg.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 10
	}
	breakerTimeout := cfg.CircuitBreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	c := &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projectKey: cfg.ProjectKey,
		metrics:    metrics,
		retryCfg: retry.Config{
			MaxAttempts:  attempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     5 * time.Second,
			RetryIf: func(err error) bool {
				return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) &&
					!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			},
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// GetByKey fetches a payment by key. A missing payment yields errors.ErrPaymentNotFound.
func (c *Client) GetByKey(ctx context.Context, key string) (*payment.Payment, error) {
	resp, err := c.do(ctx, "get_by_key", http.MethodGet, "/payments/key="+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	return decodePayment(resp)
}

// GetByID fetches a payment by id.
func (c *Client) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	resp, err := c.do(ctx, "get_by_id", http.MethodGet, "/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodePayment(resp)
}

type updateRequest struct {
	Version int64                  `json:"version"`
	Actions []payment.UpdateAction `json:"actions"`
}

// Update submits actions against version. A 409 response yields *errors.ConflictError.
func (c *Client) Update(ctx context.Context, id string, version int64, actions []payment.UpdateAction) (*payment.Payment, error) {
	body, err := json.Marshal(updateRequest{Version: version, Actions: actions})
	if err != nil {
		return nil, fmt.Errorf("marshal update request: %w", err)
	}

	resp, err := c.do(ctx, "update", http.MethodPost, "/payments/"+url.PathEscape(id), body)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusConflict {
		return nil, domainErrors.NewConflictError(id, version, currentVersion(resp.body))
	}
	return decodePayment(resp)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body []byte) (*response, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(c.projectKey) + path

	resp, err := retry.DoWithResult(ctx, c.retryCfg, func() (*response, error) {
		return c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, method, endpoint, body)
		})
	})

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.status)
	} else {
		var rs *retryableStatus
		if errors.As(err, &rs) {
			status = strconv.Itoa(rs.status)
		}
	}
	if c.metrics != nil {
		c.metrics.ResourceRequests.WithLabelValues(operation, status).Inc()
		result := "success"
		if err != nil {
			result = "failure"
		}
		c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", domainErrors.ErrResourceUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// roundTrip performs one request. Transport errors, 429 and 5xx count as failures
// for the breaker and are retried; every other status is handed to the caller.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrResourceUnavailable, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domainErrors.ErrResourceUnavailable, err)
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return nil, &retryableStatus{status: res.StatusCode, body: truncate(data)}
	}
	return &response{status: res.StatusCode, body: data}, nil
}

func decodePayment(resp *response) (*payment.Payment, error) {
	switch {
	case resp.status == http.StatusNotFound:
		return nil, domainErrors.ErrPaymentNotFound
	case resp.status < 200 || resp.status > 299:
		return nil, fmt.Errorf("resource api returned %d: %s", resp.status, truncate(resp.body))
	}
	var p payment.Payment
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	return &p, nil
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Errors     []struct {
		Code           string `json:"code"`
		Message        string `json:"message"`
		CurrentVersion int64  `json:"currentVersion"`
	} `json:"errors"`
}

// currentVersion reads the stored version from a concurrent modification error body.
func currentVersion(body []byte) int64 {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return 0
	}
	for _, e := range er.Errors {
		if e.CurrentVersion > 0 {
			return e.CurrentVersion
		}
	}
	return 0
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
