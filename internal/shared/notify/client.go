package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Message outbound notification handed to the external delivery service
// (email / push / SMS are its concern).
type Message struct {
	ProjectID  string                 `json:"project_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	EntityCode string                 `json:"entity_code,omitempty"`
	Action     string                 `json:"action"`
	Recipient  string                 `json:"recipient"`
	Text       string                 `json:"text"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

// Notifier delivers messages
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookClient posts messages as JSON to a delivery webhook
type WebhookClient struct {
	url        string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

// NewWebhookClient webhook notifier. maxElapsed bounds the retry window.
func NewWebhookClient(url string, timeout, maxElapsed time.Duration, logger *zap.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		logger:     logger,
	}
}

func (c *WebhookClient) newBackoff() backoff.BackOff {
	// BackOff is stateful; fresh instance per send
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	return bo
}

// Send POST with retry on network errors and 5xx/429; other 4xx are permanent
func (c *WebhookClient) Send(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build notification request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("notification attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, respBody)
		default:
			return backoff.Permanent(fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, respBody))
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return err
	}
	c.logger.Debug("notification delivered",
		zap.String("entity_id", msg.EntityID), zap.String("action", msg.Action), zap.Int("attempts", attempt))
	return nil
}

// LogNotifier logs instead of delivering; used when no webhook is configured
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Send(_ context.Context, msg Message) error {
	if n.Logger != nil {
		n.Logger.Info("notification",
			zap.String("entity_type", msg.EntityType),
			zap.String("entity_id", msg.EntityID),
			zap.String("action", msg.Action),
			zap.String("recipient", msg.Recipient),
			zap.String("text", msg.Text))
	}
	return nil
}
