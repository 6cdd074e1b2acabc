// Package reviewsync runs the review sync pipeline for one or many applications:
// fetch from the marketplace, classify against the store, persist, announce and
// checkpoint.
package reviewsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"protalk/internal/domain/entity"
	"protalk/internal/observability/logging"
	"protalk/internal/observability/metrics"
	"protalk/internal/observability/tracing"
	"protalk/internal/repository"
	"protalk/internal/usecase/review"
)

// Strategy selects how step 3 decides what to announce.
type Strategy string

const (
	// StrategyBaseline announces every new review as new and every known review
	// as updated, unconditionally.
	StrategyBaseline Strategy = "baseline"
	// StrategySmart loads stored records and runs the push decision engine.
	StrategySmart Strategy = "smart"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyBaseline || s == StrategySmart
}

// announceOrder is the order in which kinds are delivered within one run.
var announceOrder = []entity.PushType{entity.PushTypeNew, entity.PushTypeHistorical, entity.PushTypeUpdated}

// ReviewSource fetches every review of an application, handling pagination.
type ReviewSource interface {
	FetchReviews(ctx context.Context, appID string) ([]entity.Review, error)
}

// Notifier announces reviews of one kind. notify.Service implements it.
type Notifier interface {
	NotifyReviews(ctx context.Context, kind entity.PushType, reviews []entity.Review) (int, error)
}

// Config controls the orchestrator.
type Config struct {
	Strategy Strategy
	// Concurrency is the number of applications synced in parallel by SyncAllApps.
	// Values <= 1 sync sequentially in the given order.
	Concurrency int
	// MaxReviews caps the batch handed to the review processor; <= 0 uses its default.
	MaxReviews int
	// Policy feeds the push decision engine of the smart strategy.
	Policy review.Policy
}

// DefaultConfig returns the smart strategy, sequential, with the default policy.
func DefaultConfig() Config {
	return Config{
		Strategy:    StrategySmart,
		Concurrency: 1,
		MaxReviews:  review.DefaultMaxCount,
		Policy:      review.DefaultPolicy(),
	}
}

// Result is the outcome of one per-application run.
type Result struct {
	SyncID   string
	AppID    string
	Strategy Strategy

	Total   int
	New     int
	Updated int
	Pushed  int
	Skipped int
	Invalid int
	// Errors lists the non-fatal validation failures of the run.
	Errors []string

	Duration time.Duration
}

// AggregateResult is the outcome of SyncAllApps.
type AggregateResult struct {
	TotalApps    int
	SuccessApps  int
	FailedApps   []string
	TotalReviews int
	TotalNew     int
	TotalUpdated int
	Duration     time.Duration

	Results []Result
}

// Service is the sync orchestrator.
type Service struct {
	source   ReviewSource
	reviews  repository.ReviewRepository
	state    repository.SyncStateRepository
	notifier Notifier
	engine   *review.Engine
	cfg      Config
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the clock used for first-sync stamps, the watermark and
// the decision engine.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a sync orchestrator. Collaborators are required.
//
// Parameters:
//   - source: Marketplace review source
//   - reviews: Review store
//   - state: Sync watermark store
//   - notifier: Announcer for pushed reviews
//   - cfg: Strategy, concurrency and push policy
//
// Returns:
//   - *Service: Configured orchestrator
func NewService(
	source ReviewSource,
	reviews repository.ReviewRepository,
	state repository.SyncStateRepository,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) *Service {
	if !cfg.Strategy.Valid() {
		cfg.Strategy = StrategySmart
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	s := &Service{
		source:   source,
		reviews:  reviews,
		state:    state,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = review.NewEngine(cfg.Policy, review.WithClock(s.now))
	return s
}

// SyncReviews runs the pipeline once for appID.
//
// Steps run strictly in order: fetch, load known ids, classify, persist the
// reconciled set in one upsert, deliver grouped by announcement kind, and
// finally write the watermark. A failing step returns an *AbortError (matching
// ErrPipelineAbort) and leaves the watermark untouched.
//
// Parameters:
//   - ctx: Context for cancellation
//   - appID: Application to sync
//
// Returns:
//   - Result: Counts for the run; partial when an error is returned
//   - error: ErrInvalidAppID or *AbortError
func (s *Service) SyncReviews(ctx context.Context, appID string) (Result, error) {
	res := Result{SyncID: uuid.NewString(), AppID: appID, Strategy: s.cfg.Strategy, Errors: []string{}}
	if appID == "" {
		return res, ErrInvalidAppID
	}
	start := time.Now()

	ctx = logging.WithAttrs(ctx, slog.String("sync_id", res.SyncID), slog.String("app_id", appID))
	logger := logging.FromContext(ctx)
	ctx, span := tracing.GetTracer().Start(ctx, "reviewsync.SyncReviews",
		trace.WithAttributes(
			attribute.String("app_id", appID),
			attribute.String("sync_id", res.SyncID),
			attribute.String("strategy", string(s.cfg.Strategy)),
		))
	defer span.End()

	err := s.run(ctx, appID, &res)
	res.Duration = time.Since(start)
	metrics.RecordSyncRun(appID, string(s.cfg.Strategy), err == nil, res.Duration)

	if err != nil {
		var ae *AbortError
		if errors.As(err, &ae) {
			metrics.RecordSyncError(appID, ae.Step)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("review sync failed", slog.Any("error", err), slog.Duration("duration", res.Duration))
		return res, err
	}

	span.SetAttributes(
		attribute.Int("reviews.total", res.Total),
		attribute.Int("reviews.new", res.New),
		attribute.Int("reviews.updated", res.Updated),
		attribute.Int("reviews.pushed", res.Pushed),
	)
	logger.Info("review sync completed",
		slog.String("strategy", string(s.cfg.Strategy)),
		slog.Int("total", res.Total),
		slog.Int("new", res.New),
		slog.Int("updated", res.Updated),
		slog.Int("pushed", res.Pushed),
		slog.Int("skipped", res.Skipped),
		slog.Int("invalid", res.Invalid),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (s *Service) run(ctx context.Context, appID string, res *Result) error {
	logger := logging.FromContext(ctx)

	// watermark is informational only
	if last, err := s.state.GetLastSyncTime(ctx, appID); err != nil {
		logger.Warn("failed to read sync watermark", slog.Any("error", err))
	} else if last != nil {
		logger.Debug("previous sync", slog.Time("last_sync_time", *last))
	}

	// 1. fetch
	raw, err := s.source.FetchReviews(ctx, appID)
	if err != nil {
		return abort(appID, StepFetch, err)
	}
	metrics.RecordReviews(appID, metrics.OutcomeFetched, len(raw))

	// 2. known ids
	existingIDs, err := s.reviews.GetExistingReviewIDs(ctx, appID)
	if err != nil {
		return abort(appID, StepLoad, err)
	}

	// 3. classify
	batch := review.ProcessReviewBatch(raw, existingIDs, s.cfg.MaxReviews)
	res.Invalid = len(batch.Invalid)
	for _, e := range batch.Invalid {
		res.Errors = append(res.Errors, e.Error())
	}
	res.New = len(batch.New)
	res.Updated = len(batch.Updated)
	res.Total = res.New + res.Updated

	now := s.now().UTC()
	for i := range batch.New {
		if batch.New[i].FirstSyncAt.IsZero() {
			batch.New[i].FirstSyncAt = now
		}
	}

	var toPersist []entity.Review
	var toPush map[entity.PushType][]entity.Review
	switch s.cfg.Strategy {
	case StrategyBaseline:
		toPersist, toPush = s.classifyBaseline(batch)
	default:
		toPersist, toPush, err = s.classifySmart(ctx, batch)
		if err != nil {
			return abort(appID, StepLoad, err)
		}
	}
	for _, list := range toPush {
		res.Pushed += len(list)
	}
	res.Skipped = res.Total - res.Pushed

	// 4. persist
	if len(toPersist) > 0 {
		if err := s.reviews.UpsertReviews(ctx, toPersist); err != nil {
			return abort(appID, StepPersist, err)
		}
	}

	// 5. deliver
	for _, kind := range announceOrder {
		list := toPush[kind]
		if len(list) == 0 {
			continue
		}
		if _, err := s.notifier.NotifyReviews(ctx, kind, list); err != nil {
			return abort(appID, StepDeliver, fmt.Errorf("kind=%s: %w", kind, err))
		}
	}

	// 6. checkpoint
	if err := s.state.UpdateSyncTime(ctx, appID, now); err != nil {
		return abort(appID, StepCheckpoint, err)
	}

	metrics.RecordReviews(appID, metrics.OutcomeNew, res.New)
	metrics.RecordReviews(appID, metrics.OutcomeUpdated, res.Updated)
	metrics.RecordReviews(appID, metrics.OutcomePushed, res.Pushed)
	metrics.RecordReviews(appID, metrics.OutcomeSkipped, res.Skipped)
	metrics.RecordReviews(appID, metrics.OutcomeInvalid, res.Invalid)
	return nil
}

func (s *Service) classifyBaseline(batch review.BatchResult) ([]entity.Review, map[entity.PushType][]entity.Review) {
	persist := make([]entity.Review, 0, len(batch.New)+len(batch.Updated))
	push := make(map[entity.PushType][]entity.Review, 2)
	stamp := func(list []entity.Review, kind entity.PushType) {
		for _, r := range list {
			r.IsPushed = true
			r.PushType = kind
			persist = append(persist, r)
			push[kind] = append(push[kind], r)
		}
	}
	stamp(batch.New, entity.PushTypeNew)
	stamp(batch.Updated, entity.PushTypeUpdated)
	return persist, push
}

func (s *Service) classifySmart(ctx context.Context, batch review.BatchResult) ([]entity.Review, map[entity.PushType][]entity.Review, error) {
	existing := map[string]entity.Review{}
	if len(batch.Updated) > 0 {
		ids := make([]string, len(batch.Updated))
		for i, r := range batch.Updated {
			ids[i] = r.ID
		}
		loaded, err := s.reviews.GetReviewsByIDs(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		existing = loaded
	}

	incoming := make([]entity.Review, 0, len(batch.New)+len(batch.Updated))
	incoming = append(incoming, batch.New...)
	for _, r := range batch.Updated {
		if stored, ok := existing[r.ID]; ok {
			r.FirstSyncAt = stored.FirstSyncAt
			r.IsPushed = stored.IsPushed
			r.PushType = stored.PushType
		}
		incoming = append(incoming, r)
	}

	decisions := s.engine.ProcessBatchPushDecisions(incoming, existing)
	logger := logging.FromContext(ctx)
	persist := make([]entity.Review, 0, len(incoming))
	push := make(map[entity.PushType][]entity.Review, len(announceOrder))
	for _, d := range decisions.ToPush {
		persist = append(persist, d.Review)
		push[d.Decision.PushType] = append(push[d.Decision.PushType], d.Review)
	}
	for _, d := range decisions.ToSkip {
		persist = append(persist, d.Review)
		logger.Debug("review not announced",
			slog.String("review_id", d.Review.ID),
			slog.String("reason", d.Decision.Reason))
	}
	logger.Debug("push decisions",
		slog.Int("new", decisions.Summary.New),
		slog.Int("historical", decisions.Summary.Historical),
		slog.Int("updated", decisions.Summary.Updated),
		slog.Int("no_change", decisions.Summary.NoChange),
		slog.Int("skipped", decisions.Summary.Skipped))
	return persist, push, nil
}

// SyncAllApps runs SyncReviews for every application, isolating failures: a
// failed application is recorded in FailedApps and never stops the others.
// With Concurrency > 1 up to that many applications run at once; results keep
// the input order either way.
func (s *Service) SyncAllApps(ctx context.Context, appIDs []string) AggregateResult {
	start := time.Now()
	results := make([]Result, len(appIDs))
	errs := make([]error, len(appIDs))

	if s.cfg.Concurrency <= 1 {
		for i, appID := range appIDs {
			results[i], errs[i] = s.SyncReviews(ctx, appID)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for i, appID := range appIDs {
			g.Go(func() error {
				results[i], errs[i] = s.SyncReviews(ctx, appID)
				return nil
			})
		}
		_ = g.Wait()
	}

	agg := AggregateResult{TotalApps: len(appIDs), FailedApps: []string{}, Results: results}
	for i, res := range results {
		if errs[i] != nil {
			agg.FailedApps = append(agg.FailedApps, appIDs[i])
			continue
		}
		agg.SuccessApps++
		agg.TotalReviews += res.Total
		agg.TotalNew += res.New
		agg.TotalUpdated += res.Updated
	}
	agg.Duration = time.Since(start)
	metrics.RecordSyncCycle(agg.Duration, len(agg.FailedApps))

	logger := logging.FromContext(ctx)
	if len(agg.FailedApps) > 0 {
		logger.Warn("sync cycle completed with failures",
			slog.Int("total_apps", agg.TotalApps),
			slog.Int("success_apps", agg.SuccessApps),
			slog.Any("failed_apps", agg.FailedApps),
			slog.Duration("duration", agg.Duration))
	} else {
		logger.Info("sync cycle completed",
			slog.Int("total_apps", agg.TotalApps),
			slog.Int("total_reviews", agg.TotalReviews),
			slog.Int("total_new", agg.TotalNew),
			slog.Int("total_updated", agg.TotalUpdated),
			slog.Duration("duration", agg.Duration))
	}
	return agg
}
