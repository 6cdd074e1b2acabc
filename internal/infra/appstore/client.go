package appstore

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
	"strconv"
	"strings"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/resilience/circuitbreaker"
	"protalk/internal/resilience/retry"
)

const (
	DefaultBaseURL   = "https://api.appstoreconnect.apple.com"
	DefaultTimeout   = 30 * time.Second
	DefaultPageLimit = 200
	DefaultMaxPages  = 50

	maxResponseBytes = 10 << 20
)

// TokenSource supplies bearer tokens; *TokenProvider implements it.
type TokenSource interface {
	Token() (string, error)
	Invalidate()
}

// Config controls the API client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	PageLimit int
	// MaxPages stops pagination of one app after this many pages.
	MaxPages int
	Retry    retry.Config
	Breaker  circuitbreaker.Config
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		PageLimit: DefaultPageLimit,
		MaxPages:  DefaultMaxPages,
		Retry:     retry.AppStoreAPIConfig(),
		Breaker:   circuitbreaker.AppStoreAPIConfig(),
	}
}

// Client fetches customer reviews and submits developer responses.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	tokens  TokenSource
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client. Zero-valued Config fields fall back to the defaults.
//
// Parameters:
//   - cfg: base URL, paging and resilience settings
//   - tokens: bearer token source, normally a *TokenProvider
//
// Returns:
//   - *Client: ready to use
//   - error: when BaseURL cannot be parsed
func NewClient(cfg Config, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > DefaultPageLimit {
		cfg.PageLimit = def.PageLimit
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = def.Breaker
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		// client errors say nothing about API health
		breaker: circuitbreaker.New(cfg.Breaker, circuitbreaker.WithIsSuccessful(func(err error) bool {
			var httpErr *retry.HTTPError
			if errors.As(err, &httpErr) {
				return !httpErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		})),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchReviews returns every review of appID, newest first, following pagination.
// Included developer responses are attached to their reviews. When MaxPages is
// reached the reviews collected so far are returned and a warning is logged.
func (c *Client) FetchReviews(ctx context.Context, appID string) ([]entity.Review, error) {
	start := time.Now()
	logger := slog.With(slog.String("app_id", appID))

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	q.Set("sort", "-createdDate")
	q.Set("include", "response")
	next := fmt.Sprintf("%s/v1/apps/%s/customerReviews?%s", c.base.String(), url.PathEscape(appID), q.Encode())

	var reviews []entity.Review
	for page := 1; next != ""; page++ {
		if page > c.cfg.MaxPages {
			logger.Warn("review pagination stopped at page limit",
				slog.Int("max_pages", c.cfg.MaxPages),
				slog.Int("fetched", len(reviews)))
			break
		}
		if err := c.checkSameOrigin(next); err != nil {
			recordRequest("fetch_reviews", "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("FetchReviews app_id=%s: %w", appID, err)
		}

		var doc reviewsDocument
		if err := c.do(ctx, "fetch_reviews", http.MethodGet, next, nil, &doc); err != nil {
			recordRequest("fetch_reviews", statusOf(err), time.Since(start).Seconds())
			return nil, fmt.Errorf("FetchReviews app_id=%s page=%d: %w", appID, page, err)
		}
		reviews = append(reviews, doc.toReviews(appID)...)
		next = doc.Links.Next
	}

	recordRequest("fetch_reviews", "success", time.Since(start).Seconds())
	reviewsFetched.WithLabelValues(appID).Add(float64(len(reviews)))
	logger.Debug("reviews fetched", slog.Int("count", len(reviews)))
	return reviews, nil
}

// SubmitReply publishes a developer response to reviewID.
func (c *Client) SubmitReply(ctx context.Context, reviewID, body string) (entity.ReplyResult, error) {
	if strings.TrimSpace(body) == "" {
		return entity.ReplyResult{}, ErrEmptyReply
	}
	start := time.Now()

	var doc createResponseDocument
	doc.Data.Type = typeCustomerReviewResponses
	doc.Data.Attributes.ResponseBody = body
	doc.Data.Relationships.Review.Data = resourceIdentifier{Type: typeCustomerReviews, ID: reviewID}
	payload, err := json.Marshal(doc)
	if err != nil {
		return entity.ReplyResult{}, fmt.Errorf("marshal reply: %w", err)
	}

	var out responseDocument
	endpoint := c.base.String() + "/v1/customerReviewResponses"
	if err := c.do(ctx, "submit_reply", http.MethodPost, endpoint, payload, &out); err != nil {
		recordRequest("submit_reply", statusOf(err), time.Since(start).Seconds())
		return entity.ReplyResult{}, fmt.Errorf("SubmitReply review_id=%s: %w", reviewID, err)
	}
	recordRequest("submit_reply", "success", time.Since(start).Seconds())

	result := entity.ReplyResult{
		Success:      true,
		ResponseID:   out.Data.ID,
		ResponseDate: c.now(),
	}
	if out.Data.Attributes.LastModifiedDate != nil {
		result.ResponseDate = *out.Data.Attributes.LastModifiedDate
	}
	return result, nil
}

// do runs one API call with retry and circuit breaking. A 401 invalidates the
// cached token and the call is repeated once with a freshly signed token.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body []byte, out any) error {
	reauthorized := false
	for {
		err := retry.WithBackoff(ctx, c.cfg.Retry, func() error {
			return c.breaker.Do(func() error {
				return c.attempt(ctx, method, rawURL, body, out)
			})
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrUnauthorized) && !reauthorized:
			reauthorized = true
			c.tokens.Invalidate()
			slog.Warn("appstore token rejected, retrying with a new token", slog.String("operation", op))
			continue
		case circuitbreaker.IsOpenStateError(err):
			return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		case retry.IsRetryable(err):
			return fmt.Errorf("%w: %w", ErrTransient, err)
		default:
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	httpErr := &retry.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    apiErrorMessage(data),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, httpErr)
	}
	return httpErr
}

// checkSameOrigin refuses pagination links that would send the token to another host.
func (c *Client) checkSameOrigin(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse next link: %w", err)
	}
	if u.Scheme != c.base.Scheme || u.Host != c.base.Host {
		return fmt.Errorf("next link %q leaves %s", rawURL, c.base.Host)
	}
	return nil
}

type apiErrors struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func apiErrorMessage(body []byte) string {
	var e apiErrors
	if err := json.Unmarshal(body, &e); err == nil && len(e.Errors) > 0 {
		first := e.Errors[0]
		if first.Detail != "" {
			return first.Code + ": " + first.Detail
		}
		return first.Code + ": " + first.Title
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	default:
		return "error"
	}
}
