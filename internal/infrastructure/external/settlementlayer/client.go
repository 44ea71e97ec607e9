// Package settlementlayer implements the HTTP adapter to the external
// settlement service. The engine submits money movements and polls their
// outcomes; the layer owns finality. Every call is retried with backoff
// behind a circuit breaker so a flapping layer never stalls the poll loop.
package settlementlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
	"github.com/olgagaga/web3-learning/pkg/circuitbreaker"
	"github.com/olgagaga/web3-learning/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the settlement layer client.
type ClientConfig struct {
	// BaseURL is the settlement layer API base URL.
	BaseURL string

	// APIKey authenticates the engine against the layer.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxAttempts is the number of attempts per call, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// FailureThreshold opens the circuit after this many failures.
	FailureThreshold int

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging of every request.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          15 * time.Second,
		MaxAttempts:      3,
		InitialDelay:     200 * time.Millisecond,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from the layer.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("settlement layer: status %d: %s", e.StatusCode, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the settlement layer API client. It implements settlement.Layer.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new settlement layer client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	logger := config.Logger
	retrier := retry.New(
		retry.WithMaxAttempts(config.MaxAttempts),
		retry.WithInitialDelay(config.InitialDelay),
		retry.WithMaxDelay(5*time.Second),
		retry.WithRetryIf(isRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("settlement layer call retrying",
				"attempt", attempt,
				"delay", delay.String(),
				"error", err,
			)
		}),
	)
	breaker := circuitbreaker.New("settlement-layer",
		circuitbreaker.WithFailureThreshold(config.FailureThreshold),
		circuitbreaker.WithTimeout(config.BreakerTimeout),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	)

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		retrier: retrier,
		breaker: breaker,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LAYER PORT
// ══════════════════════════════════════════════════════════════════════════════

type submitRequest struct {
	Kind           string `json:"kind"`
	SubjectID      string `json:"subject_id"`
	Beneficiary    string `json:"beneficiary"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type submitResponse struct {
	TxRef string `json:"tx_ref"`
}

// Submit sends a payload and returns the layer's transaction reference.
// The idempotency key travels in the body, so a duplicated submit returns
// the original reference instead of moving money twice.
func (c *Client) Submit(ctx context.Context, payload settlement.Payload) (shared.TxRef, error) {
	body := submitRequest{
		Kind:           payload.Kind.String(),
		SubjectID:      payload.SubjectID,
		Beneficiary:    string(payload.Beneficiary),
		Amount:         payload.Amount.String(),
		IdempotencyKey: string(payload.IdempotencyKey),
	}

	var response submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", body, &response); err != nil {
		return "", fmt.Errorf("submit settlement: %w", err)
	}
	if response.TxRef == "" {
		return "", errors.New("submit settlement: layer returned no tx ref")
	}

	return shared.TxRef(response.TxRef), nil
}

type statusResponse struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// GetStatus polls the outcome of a submitted transaction.
// An unrecognized reference maps to TxUnknown, not an error; the caller
// decides whether unknown is worth alerting on.
func (c *Client) GetStatus(ctx context.Context, txRef shared.TxRef) (settlement.TxStatus, error) {
	path := "/v1/transactions/" + url.PathEscape(string(txRef))

	var response statusResponse
	err := c.do(ctx, http.MethodGet, path, nil, &response)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return settlement.TxUnknown, nil
		}
		return settlement.TxUnknown, fmt.Errorf("get settlement status: %w", err)
	}

	switch response.Status {
	case "pending", "submitted":
		return settlement.TxPending, nil
	case "confirmed":
		return settlement.TxConfirmed, nil
	case "rejected", "failed":
		return settlement.TxRejected, nil
	default:
		return settlement.TxUnknown, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// do performs an HTTP request behind the circuit breaker with retries.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, method, path, body, result)
		})
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("settlement layer request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(respBody),
		}
		// 4xx means the request itself is wrong; retrying cannot help.
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(apiErr)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

func parseErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// isRetryable decides which transport outcomes are worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if retry.IsPermanent(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	// Network-level failures are retryable.
	return true
}
