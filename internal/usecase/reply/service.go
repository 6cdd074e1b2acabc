// Package reply implements the reply round-trip: an operator answers a review
// from chat, the answer is posted to the marketplace, stored, and announced back
// to chat.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/repository"
	"protalk/internal/usecase/connection"
)

// Card action and command vocabulary.
const (
	ActionReply    = "reply"
	FieldAction    = "action"
	FieldReviewID  = "review_id"
	FieldReplyText = "reply_text"
	CommandReply   = "reply"
)

// Submitter posts a developer response to the marketplace.
type Submitter interface {
	SubmitReply(ctx context.Context, reviewID, body string) (entity.ReplyResult, error)
}

// Notifier announces a posted reply to chat.
type Notifier interface {
	NotifyReply(ctx context.Context, r entity.Review) error
}

// Result describes a completed reply.
type Result struct {
	ReviewID     string
	ResponseDate time.Time
	// Replaced is true when the review already had a developer response.
	Replaced bool
	// Notified is false when the chat announcement could not be pushed.
	Notified bool
}

// Service runs the reply round-trip.
type Service struct {
	submitter Submitter
	repo      repository.ReviewRepository
	notifier  Notifier
}

// NewService creates a reply service.
//
// Parameters:
//   - submitter: Marketplace client
//   - repo: Review store
//   - notifier: Chat announcer
//
// Returns:
//   - *Service: Configured reply service
func NewService(submitter Submitter, repo repository.ReviewRepository, notifier Notifier) *Service {
	return &Service{submitter: submitter, repo: repo, notifier: notifier}
}

// Reply validates body, posts it as the developer response to reviewID, stores it
// and announces the updated review.
//
// The marketplace is only contacted for reviews present in the store. Once the
// marketplace accepts the reply, a failed chat announcement is logged and
// reported through Result.Notified rather than as an error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - reviewID: Review to answer
//   - body: Response text, 1 to entity.MaxReplyLength characters
//
// Returns:
//   - Result: Outcome of the round-trip
//   - error: *entity.ValidationError, ErrReviewNotFound, ErrSubmitFailed, or a store error
func (s *Service) Reply(ctx context.Context, reviewID, body string) (Result, error) {
	start := time.Now()
	defer func() { replyDuration.Observe(time.Since(start).Seconds()) }()

	body = strings.TrimSpace(body)
	if err := entity.ValidateReply(reviewID, body); err != nil {
		return Result{}, fmt.Errorf("Reply: %w", err)
	}
	logger := slog.With(slog.String("review_id", reviewID))

	stored, err := s.repo.GetReviewsByIDs(ctx, []string{reviewID})
	if err != nil {
		return Result{}, fmt.Errorf("Reply: load review: %w", err)
	}
	if _, ok := stored[reviewID]; !ok {
		return Result{}, fmt.Errorf("Reply review_id=%s: %w", reviewID, ErrReviewNotFound)
	}

	replaced, err := s.repo.HasReply(ctx, reviewID)
	if err != nil {
		return Result{}, fmt.Errorf("Reply: check existing reply: %w", err)
	}

	res, err := s.submitter.SubmitReply(ctx, reviewID, body)
	if err != nil {
		return Result{}, fmt.Errorf("Reply review_id=%s: %w: %w", reviewID, ErrSubmitFailed, err)
	}
	if res.ResponseDate.IsZero() {
		res.ResponseDate = time.Now().UTC()
	}

	if err := s.repo.UpdateReply(ctx, reviewID, body, res.ResponseDate); err != nil {
		return Result{}, fmt.Errorf("Reply: store reply: %w", err)
	}
	out := Result{ReviewID: reviewID, ResponseDate: res.ResponseDate, Replaced: replaced}

	reloaded, err := s.repo.GetReviewsByIDs(ctx, []string{reviewID})
	if err != nil {
		return out, fmt.Errorf("Reply: reload review: %w", err)
	}
	updated, ok := reloaded[reviewID]
	if !ok {
		return out, fmt.Errorf("Reply review_id=%s: reload: %w", reviewID, ErrReviewNotFound)
	}

	if err := s.notifier.NotifyReply(ctx, updated); err != nil {
		logger.Warn("reply stored but announcement failed", slog.Any("error", err))
	} else {
		out.Notified = true
	}

	logger.Info("developer reply posted",
		slog.String("app_id", updated.AppID),
		slog.Bool("replaced", replaced),
		slog.Bool("notified", out.Notified))
	return out, nil
}

// Handlers returns the connection handler slots that drive Reply from chat:
// the reply card form and the "/reply <review_id> <text>" command.
func (s *Service) Handlers() connection.Handlers {
	return connection.Handlers{
		OnCardAction: s.handleCardAction,
		OnCommand:    s.handleCommand,
	}
}

func (s *Service) handleCardAction(ctx context.Context, action connection.CardAction) error {
	if action.Value[FieldAction] != ActionReply {
		slog.Debug("ignoring card action",
			slog.String("action", action.Value[FieldAction]),
			slog.String("operator_id", action.OperatorID))
		return nil
	}
	reviewID := action.Value[FieldReviewID]
	if reviewID == "" {
		recordSubmission("card", "invalid")
		return fmt.Errorf("card action: %w", ErrUsage)
	}
	return s.replyFrom(ctx, "card", reviewID, action.Value[FieldReplyText], action.OperatorID)
}

func (s *Service) handleCommand(ctx context.Context, cmd connection.Command) error {
	if cmd.Name != CommandReply {
		return nil
	}
	reviewID, text, ok := strings.Cut(cmd.Args, " ")
	if !ok || reviewID == "" || strings.TrimSpace(text) == "" {
		recordSubmission("command", "invalid")
		return fmt.Errorf("command: %w", ErrUsage)
	}
	return s.replyFrom(ctx, "command", reviewID, text, cmd.Message.SenderID)
}

func (s *Service) replyFrom(ctx context.Context, source, reviewID, text, operator string) error {
	_, err := s.Reply(ctx, reviewID, text)
	recordSubmission(source, statusOf(err))
	if err != nil {
		slog.Warn("reply from chat failed",
			slog.String("source", source),
			slog.String("review_id", reviewID),
			slog.String("operator_id", operator),
			slog.Any("error", err))
		return err
	}
	return nil
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, entity.ErrValidationFailed):
		return "invalid"
	case errors.Is(err, ErrReviewNotFound):
		return "not_found"
	default:
		return "error"
	}
}
