// Package callback is the inbound HTTP endpoint the chat platform calls with
// events: URL verification handshakes, card button presses and bot messages.
package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"protalk/internal/handler/http/respond"
	"protalk/internal/observability/logging"
	"protalk/internal/observability/metrics"
	"protalk/internal/observability/tracing"
	"protalk/internal/usecase/connection"
)

// MaxBodyBytes caps one callback payload.
const MaxBodyBytes = 1 << 20

// EventPath is the route the platform is configured to call.
const EventPath = "/callback/event"

// EventHandler receives decoded events; connection.Mode implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev connection.Event) error
}

// DedupStore remembers processed event ids; the platform redelivers events it
// did not see acknowledged in time.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Handler serves POST /callback/event.
type Handler struct {
	events EventHandler
	token  string
	dedup  DedupStore
}

// Option configures a Handler.
type Option func(*Handler)

// WithDedup drops events whose id was already processed.
func WithDedup(s DedupStore) Option {
	return func(h *Handler) { h.dedup = s }
}

// NewHandler returns a handler dispatching to events. An empty token
// disables verification.
func NewHandler(events EventHandler, verificationToken string, opts ...Option) *Handler {
	h := &Handler{events: events, token: verificationToken}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the callback route on r.
func (h *Handler) Register(r chi.Router) {
	r.Post(EventPath, h.ServeEvent)
}

// NewRouter returns a router with request ids, panic recovery, tracing and
// request metrics around the callback route.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(metricsMiddleware)
	h.Register(r)
	return r
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

type ackResponse struct {
	Code int `json:"code"`
}

// ServeEvent handles one platform callback.
//
// Responses:
//   - 200 {"challenge": ...} for url_verification
//   - 200 {"code": 0} once the event was dispatched (or was a duplicate)
//   - 400 for an unreadable or undecodable body
//   - 401 when the verification token does not match
//   - 422 when the registered handler rejected the event
func (h *Handler) ServeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithRequestID(ctx, logging.FromContext(ctx))

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, http.StatusRequestEntityTooLarge, ErrBodyTooLarge)
			return
		}
		respond.SafeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	env, err := connection.DecodeEnvelope(data)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	if h.token != "" && env.VerificationToken() != h.token {
		logger.Warn("callback rejected: verification token mismatch",
			slog.String("event_type", env.Header.EventType))
		respond.Error(w, http.StatusUnauthorized, ErrTokenMismatch)
		return
	}

	if env.IsURLVerification() {
		respond.JSON(w, http.StatusOK, challengeResponse{Challenge: env.Challenge})
		return
	}

	ev, err := env.ToEvent()
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	logger = logger.With(
		slog.String("event_id", ev.ID),
		slog.String("event_kind", ev.Kind.String()))
	ctx = logging.WithLogger(ctx, logger)

	if h.isDuplicate(ctx, ev.ID) {
		logger.Info("duplicate callback event ignored")
		respond.JSON(w, http.StatusOK, ackResponse{})
		return
	}

	if err := h.events.HandleEvent(ctx, ev); err != nil {
		logger.Warn("callback event rejected", slog.Any("error", err))
		respond.SafeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	h.markHandled(ctx, ev.ID)

	respond.JSON(w, http.StatusOK, ackResponse{})
}

func (h *Handler) isDuplicate(ctx context.Context, eventID string) bool {
	if h.dedup == nil || eventID == "" {
		return false
	}
	seen, err := h.dedup.Seen(ctx, dedupKey(eventID))
	if err != nil {
		// 判定不能なら処理を続行する
		logging.FromContext(ctx).Warn("event dedup lookup failed", slog.Any("error", err))
		return false
	}
	return seen
}

func (h *Handler) markHandled(ctx context.Context, eventID string) {
	if h.dedup == nil || eventID == "" {
		return
	}
	if err := h.dedup.Mark(ctx, dedupKey(eventID)); err != nil {
		logging.FromContext(ctx).Warn("event dedup mark failed", slog.Any("error", err))
	}
}

func dedupKey(eventID string) string {
	return "callback_event:" + eventID
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start), int(r.ContentLength))
	})
}
