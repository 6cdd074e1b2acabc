package review

import (
	"strings"
	"time"

	"protalk/internal/domain/entity"
)

// DefaultHistoricalThreshold separates freshly posted reviews from backfilled ones.
const DefaultHistoricalThreshold = 24 * time.Hour

// Decision reasons besides ReasonNoChange.
const (
	ReasonNewReview          = "new_review"
	ReasonHistoricalReview   = "historical_review"
	ReasonNewDisabled        = "push_new_disabled"
	ReasonHistoricalDisabled = "push_historical_disabled"
	ReasonUpdatedDisabled    = "push_updated_disabled"
)

// Policy holds the feature flags consulted by the decision engine.
type Policy struct {
	PushNewReviews         bool
	PushUpdatedReviews     bool
	PushHistoricalReviews  bool
	MarkHistoricalAsPushed bool

	// HistoricalThreshold is the maximum age of a review, measured at first
	// observation, for it to be announced as new.
	HistoricalThreshold time.Duration
}

// DefaultPolicy returns a policy with every flag enabled and a 24h threshold.
func DefaultPolicy() Policy {
	return Policy{
		PushNewReviews:         true,
		PushUpdatedReviews:     true,
		PushHistoricalReviews:  true,
		MarkHistoricalAsPushed: true,
		HistoricalThreshold:    DefaultHistoricalThreshold,
	}
}

// Decision is the outcome of Engine.Decide.
// PushType is set even when ShouldPush is false so skipped items can be audited.
type Decision struct {
	ShouldPush bool
	PushType   entity.PushType
	Reason     string
}

// Engine decides whether and how a review should be announced.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a decision engine for the given policy.
// A non-positive HistoricalThreshold falls back to DefaultHistoricalThreshold.
func NewEngine(policy Policy, opts ...EngineOption) *Engine {
	if policy.HistoricalThreshold <= 0 {
		policy.HistoricalThreshold = DefaultHistoricalThreshold
	}
	e := &Engine{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Decide applies the push rules to one review.
//
// Rules, in order:
//  1. no stored record, age <= threshold: new, gated by PushNewReviews
//  2. no stored record, age > threshold: historical, gated by PushHistoricalReviews
//  3. stored record with identical fingerprint: no push, reason no_change
//  4. stored record that changed: updated, gated by PushUpdatedReviews;
//     reason lists the changed fields
//
// Age is measured from CreatedDate to FirstSyncAt, or to now when the review
// has not been observed before.
func (e *Engine) Decide(incoming entity.Review, existing *entity.Review) Decision {
	if existing == nil {
		if e.isHistorical(incoming) {
			if !e.policy.PushHistoricalReviews {
				return Decision{PushType: entity.PushTypeHistorical, Reason: ReasonHistoricalDisabled}
			}
			return Decision{ShouldPush: true, PushType: entity.PushTypeHistorical, Reason: ReasonHistoricalReview}
		}
		if !e.policy.PushNewReviews {
			return Decision{PushType: entity.PushTypeNew, Reason: ReasonNewDisabled}
		}
		return Decision{ShouldPush: true, PushType: entity.PushTypeNew, Reason: ReasonNewReview}
	}

	change := DetectChanges(incoming, existing)
	if !change.HasChanged {
		return Decision{Reason: ReasonNoChange}
	}
	if !e.policy.PushUpdatedReviews {
		return Decision{PushType: entity.PushTypeUpdated, Reason: ReasonUpdatedDisabled}
	}
	return Decision{
		ShouldPush: true,
		PushType:   entity.PushTypeUpdated,
		Reason:     strings.Join(change.ChangedFields, ","),
	}
}

func (e *Engine) isHistorical(r entity.Review) bool {
	observed := r.FirstSyncAt
	if observed.IsZero() {
		observed = e.now()
	}
	return observed.Sub(r.CreatedDate) > e.policy.HistoricalThreshold
}

// DecidedReview pairs a review with its decision.
type DecidedReview struct {
	Review   entity.Review
	Decision Decision
}

// BatchDecisions is the result of ProcessBatchPushDecisions.
type BatchDecisions struct {
	ToPush  []DecidedReview
	ToSkip  []DecidedReview
	Summary DecisionSummary
}

// DecisionSummary counts decisions per outcome.
type DecisionSummary struct {
	Total      int
	New        int
	Historical int
	Updated    int
	Skipped    int
	NoChange   int
}

// ProcessBatchPushDecisions partitions a whole fetch cycle in one pass.
// Reviews in ToPush are stamped IsPushed with their push type. Skipped
// historical reviews are stamped the same way when MarkHistoricalAsPushed is set,
// so a later cycle does not announce them.
func (e *Engine) ProcessBatchPushDecisions(incoming []entity.Review, existingByID map[string]entity.Review) BatchDecisions {
	var out BatchDecisions
	out.Summary.Total = len(incoming)

	for _, r := range incoming {
		var existing *entity.Review
		if stored, ok := existingByID[r.ID]; ok {
			existing = &stored
		}
		d := e.Decide(r, existing)

		if d.ShouldPush {
			r.IsPushed = true
			r.PushType = d.PushType
			out.ToPush = append(out.ToPush, DecidedReview{Review: r, Decision: d})
			switch d.PushType {
			case entity.PushTypeNew:
				out.Summary.New++
			case entity.PushTypeHistorical:
				out.Summary.Historical++
			case entity.PushTypeUpdated:
				out.Summary.Updated++
			}
			continue
		}

		if d.PushType == entity.PushTypeHistorical && e.policy.MarkHistoricalAsPushed {
			r.IsPushed = true
			r.PushType = entity.PushTypeHistorical
		}
		if d.Reason == ReasonNoChange {
			out.Summary.NoChange++
		}
		out.Summary.Skipped++
		out.ToSkip = append(out.ToSkip, DecidedReview{Review: r, Decision: d})
	}
	return out
}
