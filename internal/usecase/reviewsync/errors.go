package reviewsync

import (
	"errors"
	"fmt"
)

// Sentinel errors for review sync operations.
var (
	// ErrPipelineAbort indicates that a step of a per-application run failed.
	// Nothing is checkpointed, so the next cycle retries the full set.
	ErrPipelineAbort = errors.New("review sync aborted")

	// ErrInvalidAppID indicates an empty application id.
	ErrInvalidAppID = errors.New("invalid app id")
)

// Pipeline steps reported in AbortError.
const (
	StepFetch      = "fetch"
	StepLoad       = "load"
	StepPersist    = "persist"
	StepDeliver    = "deliver"
	StepCheckpoint = "checkpoint"
)

// AbortError is returned by SyncReviews when a pipeline step fails.
// It matches both ErrPipelineAbort and the underlying step error.
type AbortError struct {
	AppID string
	Step  string
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("review sync aborted: app_id=%s step=%s: %v", e.AppID, e.Step, e.Err)
}

func (e *AbortError) Unwrap() []error {
	return []error{ErrPipelineAbort, e.Err}
}

func abort(appID, step string, err error) error {
	return &AbortError{AppID: appID, Step: step, Err: err}
}
