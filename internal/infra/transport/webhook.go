package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"protalk/internal/domain/entity"
)

// WebhookConfig configures the send-only bot webhook transport.
type WebhookConfig struct {
	// URL is the bot webhook endpoint.
	URL string

	// Secret enables request signing when non-empty.
	Secret string

	Timeout time.Duration

	// RatePerSecond and Burst bound outbound requests. Defaults: 5 req/s, burst 1.
	RatePerSecond float64
	Burst         int
}

// WebhookClient is a stateless send-only Client. Connect only marks it ready;
// inbound events arrive through the HTTP callback endpoint instead.
type WebhookClient struct {
	config      WebhookConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	now         func() time.Time

	mu       sync.RWMutex
	handlers Handlers
	status   Status
}

// NewWebhookClient creates a webhook transport.
func NewWebhookClient(config WebhookConfig) *WebhookClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &WebhookClient{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(config.RatePerSecond, config.Burst),
		now:         time.Now,
		status:      Status{Kind: "webhook"},
	}
}

// SetHandlers implements Client.
func (c *WebhookClient) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Connect implements Client.
func (c *WebhookClient) Connect(ctx context.Context) error {
	if c.config.URL == "" {
		return fmt.Errorf("webhook connect: url is empty")
	}
	c.mu.Lock()
	c.status.Connected = true
	c.status.ConnectedAt = c.now()
	c.status.LastHeartbeat = c.status.ConnectedAt
	h := c.handlers
	c.mu.Unlock()
	h.open()
	return nil
}

// Close implements Client.
func (c *WebhookClient) Close() error {
	c.mu.Lock()
	wasConnected := c.status.Connected
	c.status.Connected = false
	h := c.handlers
	c.mu.Unlock()
	if wasConnected {
		h.close(1000, "closed")
	}
	return nil
}

// IsConnected implements Client.
func (c *WebhookClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Connected
}

// Status implements Client.
func (c *WebhookClient) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// webhookResponse is the platform's JSON reply to a webhook post.
type webhookResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Send posts the message body to the webhook.
//
// Returns:
//   - ErrNotConnected before Connect or after Close
//   - *RateLimitError on 429
//   - *ClientError on other 4xx, or on a 200 carrying a non-zero platform code
//   - *ServerError on 5xx
//
// Send never retries; failures are the caller's retry signal.
func (c *WebhookClient) Send(ctx context.Context, msg entity.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload, err := c.buildPayload(msg.Body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError(err)
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := classifyResponse(resp, body)
		c.recordError(err)
		return err
	}

	var wr webhookResponse
	if len(body) > 0 && json.Unmarshal(body, &wr) == nil && wr.Code != 0 {
		err := &ClientError{
			StatusCode: resp.StatusCode,
			Code:       wr.Code,
			Message:    fmt.Sprintf("platform rejected message: code=%d msg=%s", wr.Code, wr.Msg),
		}
		c.recordError(err)
		return err
	}

	c.mu.Lock()
	c.status.MessagesSent++
	c.status.LastHeartbeat = c.now()
	c.mu.Unlock()

	slog.Debug("webhook message sent",
		slog.String("review_id", msg.ReviewID),
		slog.String("kind", string(msg.Kind)))
	return nil
}

// buildPayload adds timestamp and sign fields to the body when a secret is configured.
func (c *WebhookClient) buildPayload(body json.RawMessage) ([]byte, error) {
	if c.config.Secret == "" {
		return body, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode message body: %w", err)
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	sign, err := Sign(ts, c.config.Secret)
	if err != nil {
		return nil, err
	}
	fields["timestamp"], _ = json.Marshal(ts)
	fields["sign"], _ = json.Marshal(sign)

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	return out, nil
}

// Sign computes the webhook signature: base64(HMAC-SHA256 keyed by
// "timestamp\nsecret" over an empty message).
func Sign(timestamp, secret string) (string, error) {
	mac := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	if _, err := mac.Write(nil); err != nil {
		return "", fmt.Errorf("sign webhook payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// recordError keeps the last send failure for Status. Send failures are
// returned to the caller only; OnError is reserved for connection failures.
func (c *WebhookClient) recordError(err error) {
	c.mu.Lock()
	c.status.LastError = err.Error()
	c.mu.Unlock()
}
