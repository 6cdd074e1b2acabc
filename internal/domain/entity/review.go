// Package entity defines the core domain entities and validation logic for the application.
// It contains the customer review model synchronized from the marketplace, the rendered
// chat message handed to transports, and domain-specific errors.
package entity

import (
	"fmt"
	"time"
)

// PushType is the announcement kind of a review notification.
// It determines the wording and template of the rendered chat message.
type PushType string

const (
	PushTypeNew        PushType = "new"
	PushTypeHistorical PushType = "historical"
	PushTypeUpdated    PushType = "updated"
	PushTypeReply      PushType = "reply"
)

// Valid reports whether t is one of the known announcement kinds.
func (t PushType) Valid() bool {
	switch t {
	case PushTypeNew, PushTypeHistorical, PushTypeUpdated, PushTypeReply:
		return true
	}
	return false
}

// Review represents a customer review fetched from the marketplace.
// The sync-control fields (FirstSyncAt, IsPushed, PushType) are owned by this
// system; everything else mirrors the marketplace's view of the review.
type Review struct {
	ID               string
	AppID            string
	Rating           int
	Title            string
	Body             string
	ReviewerNickname string
	CreatedDate      time.Time
	IsEdited         bool

	// Developer response, nil when the review has not been answered.
	ResponseBody *string
	ResponseDate *time.Time

	FirstSyncAt time.Time
	IsPushed    bool
	PushType    PushType

	// Store-specific fields.
	Territory     string
	AppVersion    string
	ResponseState string

	UpdatedAt time.Time
}

// HasResponse reports whether a developer response is attached to the review.
func (r Review) HasResponse() bool {
	return r.ResponseBody != nil && *r.ResponseBody != ""
}

// SetResponse attaches a developer response to the review.
func (r *Review) SetResponse(body string, at time.Time) {
	b := body
	t := at
	r.ResponseBody = &b
	r.ResponseDate = &t
}

// ReplyResult is the marketplace's acknowledgement of a submitted developer reply.
type ReplyResult struct {
	Success      bool
	ResponseID   string
	ResponseDate time.Time
}

// String implements fmt.Stringer for log output.
func (r Review) String() string {
	return fmt.Sprintf("Review{id=%s app=%s rating=%d}", r.ID, r.AppID, r.Rating)
}
