// Package notify turns reviews into chat cards and hands them to the active
// connection mode. It is the deliver step of the sync pipeline and the last step
// of the reply round-trip.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"protalk/internal/domain/entity"
	"protalk/internal/usecase/review"
)

// Renderer builds the card body for a review announced as kind.
type Renderer interface {
	Render(r entity.Review, kind entity.PushType) (json.RawMessage, error)
}

// Pusher accepts rendered messages. connection.Mode implements it.
// Pushes are fire-and-forget; delivery failures are handled behind it.
type Pusher interface {
	PushMessage(ctx context.Context, msg entity.Message) error
	PushBatch(ctx context.Context, msgs []entity.Message) error
}

// Service renders review announcements and pushes them.
type Service struct {
	renderer Renderer
	pusher   Pusher
}

// NewService creates a notify service.
//
// Parameters:
//   - renderer: Card renderer (card.Renderer in production)
//   - pusher: Active connection mode
//
// Returns:
//   - *Service: Configured notify service
func NewService(renderer Renderer, pusher Pusher) *Service {
	return &Service{renderer: renderer, pusher: pusher}
}

// NotifyReviews renders every review as kind and pushes the rendered messages
// in one batch, preserving input order.
//
// A review that fails to render is logged and skipped; it never blocks the rest
// of the batch.
//
// Parameters:
//   - ctx: Context for cancellation
//   - kind: Announcement kind; must be new, historical or updated
//   - reviews: Reviews to announce
//
// Returns:
//   - int: Number of messages pushed
//   - error: ErrInvalidKind, or the push error from the connection mode
func (s *Service) NotifyReviews(ctx context.Context, kind entity.PushType, reviews []entity.Review) (int, error) {
	if !kind.Valid() || kind == entity.PushTypeReply {
		return 0, fmt.Errorf("NotifyReviews: %w: %q", ErrInvalidKind, kind)
	}
	if len(reviews) == 0 {
		return 0, nil
	}

	msgs := make([]entity.Message, 0, len(reviews))
	for _, r := range reviews {
		msg, err := s.render(r, kind)
		if err != nil {
			slog.Warn("skipping review notification",
				slog.String("review_id", r.ID),
				slog.String("app_id", r.AppID),
				slog.String("kind", string(kind)),
				slog.Any("error", err))
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := s.pusher.PushBatch(ctx, msgs); err != nil {
		RecordPushError(string(kind))
		return 0, fmt.Errorf("NotifyReviews kind=%s: %w", kind, err)
	}
	RecordPushed(string(kind), len(msgs))
	slog.Debug("review notifications pushed",
		slog.String("kind", string(kind)),
		slog.Int("count", len(msgs)))
	return len(msgs), nil
}

// NotifyReply announces a developer reply that was just posted.
//
// Parameters:
//   - ctx: Context for cancellation
//   - r: The review with its new response attached
//
// Returns:
//   - error: ErrRenderFailed, or the push error from the connection mode
func (s *Service) NotifyReply(ctx context.Context, r entity.Review) error {
	msg, err := s.render(r, entity.PushTypeReply)
	if err != nil {
		return fmt.Errorf("NotifyReply review_id=%s: %w", r.ID, err)
	}
	if err := s.pusher.PushMessage(ctx, msg); err != nil {
		RecordPushError(string(entity.PushTypeReply))
		return fmt.Errorf("NotifyReply review_id=%s: %w", r.ID, err)
	}
	RecordPushed(string(entity.PushTypeReply), 1)
	return nil
}

func (s *Service) render(r entity.Review, kind entity.PushType) (entity.Message, error) {
	body, err := s.renderer.Render(r, kind)
	if err != nil {
		RecordRendered(string(kind), false)
		return entity.Message{}, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	RecordRendered(string(kind), true)
	return entity.Message{
		ReviewID:    r.ID,
		Kind:        kind,
		Fingerprint: review.Fingerprint(r),
		Body:        body,
	}, nil
}
