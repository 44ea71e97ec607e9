// Package webhook implements the outbound notification client. Terminal
// transitions are pushed to a consumer-configured HTTPS endpoint; each body
// is signed with HMAC-SHA256 so consumers can authenticate the sender
// without a round trip.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/olgagaga/web3-learning/internal/application/eventhandler"
	"github.com/olgagaga/web3-learning/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Signature headers sent with every delivery.
const (
	HeaderSignature  = "X-Engine-Signature"
	HeaderTransition = "X-Engine-Transition-Id"
)

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// URL is the consumer's endpoint.
	URL string

	// Secret is the shared HMAC signing key.
	Secret string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxAttempts is the number of delivery attempts per notification.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url, secret string) ClientConfig {
	return ClientConfig{
		URL:          url,
		Secret:       secret,
		Timeout:      10 * time.Second,
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client delivers signed notifications. It implements eventhandler.Notifier.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
}

// NewClient creates a new webhook client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	logger := config.Logger
	retrier := retry.New(
		retry.WithMaxAttempts(config.MaxAttempts),
		retry.WithInitialDelay(config.InitialDelay),
		retry.WithMaxDelay(10*time.Second),
		retry.WithRetryIf(func(err error) bool { return !retry.IsPermanent(err) }),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("webhook delivery retrying",
				"attempt", attempt,
				"delay", delay.String(),
				"error", err,
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
	}
}

// Notify delivers one notification. A 2xx response is delivered; anything
// else is an error so the caller can unclaim the transition and retry on
// the next event redelivery.
func (c *Client) Notify(ctx context.Context, n eventhandler.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal notification: %w", err)
	}

	signature := c.sign(body)

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.deliver(ctx, n.TransitionID, body, signature)
	})
}

func (c *Client) deliver(ctx context.Context, transitionID string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTransition, transitionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	err = fmt.Errorf("webhook delivery: consumer returned status %d", resp.StatusCode)
	// A 4xx other than 429 will not improve on retry.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// sign computes the hex HMAC-SHA256 of the body under the shared secret.
func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.config.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
