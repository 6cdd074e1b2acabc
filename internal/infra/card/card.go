// Package card renders review notifications as interactive chat cards.
package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"protalk/internal/domain/entity"
)

const (
	// Card element limits
	maxBodyRunes  = 2000
	maxReplyRunes = 1000
	maxTitleRunes = 150

	truncationSuffix = "..."

	// ActionReply is the card action value that asks for a reply round-trip.
	ActionReply = "reply"
	// FieldReviewID and FieldReplyText are the action/form keys read by the reply handler.
	FieldReviewID  = "review_id"
	FieldReplyText = "reply_text"
)

// ErrUnknownKind is returned for an announcement kind without a template.
var ErrUnknownKind = errors.New("card: unknown announcement kind")

type template struct {
	color string
	title string
}

var templates = map[entity.PushType]template{
	entity.PushTypeNew:        {color: "blue", title: "New review"},
	entity.PushTypeHistorical: {color: "grey", title: "Historical review"},
	entity.PushTypeUpdated:    {color: "orange", title: "Review updated"},
	entity.PushTypeReply:      {color: "green", title: "Developer reply posted"},
}

// Renderer builds card payloads. AppNames maps app ids to display names; ids
// without a name are shown as-is.
type Renderer struct {
	AppNames map[string]string
}

// NewRenderer returns a renderer using the given display names.
func NewRenderer(appNames map[string]string) *Renderer {
	return &Renderer{AppNames: appNames}
}

// Payload is the interactive message envelope accepted by both transports.
type Payload struct {
	MsgType string `json:"msg_type"`
	Card    Card   `json:"card"`
}

type Card struct {
	Config   Config    `json:"config"`
	Header   Header    `json:"header"`
	Elements []Element `json:"elements"`
}

type Config struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type Header struct {
	Title    Text   `json:"title"`
	Template string `json:"template"`
}

type Text struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// Element is one card block. Only the fields relevant to Tag are set.
type Element struct {
	Tag         string            `json:"tag"`
	Name        string            `json:"name,omitempty"`
	Content     string            `json:"content,omitempty"`
	Text        *Text             `json:"text,omitempty"`
	Elements    []Element         `json:"elements,omitempty"`
	Placeholder *Text             `json:"placeholder,omitempty"`
	MaxLength   int               `json:"max_length,omitempty"`
	Type        string            `json:"type,omitempty"`
	ActionType  string            `json:"action_type,omitempty"`
	Value       map[string]string `json:"value,omitempty"`
}

// Render builds the card JSON for review announced as kind.
//
// The card contains:
//   - Header: kind title and app name, colored per kind
//   - Rating stars, review title and body
//   - Note: reviewer nickname, territory, creation date
//   - Existing developer reply, when present
//   - Reply form: text input plus a submit button carrying the review id
func (r *Renderer) Render(review entity.Review, kind entity.PushType) (json.RawMessage, error) {
	tpl, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if review.ID == "" {
		return nil, fmt.Errorf("render card: %w: empty review id", entity.ErrInvalidInput)
	}

	elements := []Element{
		markdown(reviewText(review)),
		{Tag: "note", Elements: []Element{plain(footer(review))}},
	}
	if review.HasResponse() {
		elements = append(elements,
			Element{Tag: "hr"},
			markdown("**Developer reply**\n"+truncate(*review.ResponseBody, maxReplyRunes)),
		)
	}
	if kind != entity.PushTypeReply {
		elements = append(elements, Element{Tag: "hr"}, replyForm(review.ID))
	}

	payload := Payload{
		MsgType: "interactive",
		Card: Card{
			Config: Config{WideScreenMode: true},
			Header: Header{
				Title:    Text{Tag: "plain_text", Content: fmt.Sprintf("%s · %s", tpl.title, r.appName(review.AppID))},
				Template: tpl.color,
			},
			Elements: elements,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal card: %w", err)
	}
	return body, nil
}

func (r *Renderer) appName(appID string) string {
	if name, ok := r.AppNames[appID]; ok && name != "" {
		return name
	}
	return appID
}

func reviewText(review entity.Review) string {
	var b strings.Builder
	b.WriteString(Stars(review.Rating))
	if review.Title != "" {
		b.WriteString("  **")
		b.WriteString(truncate(review.Title, maxTitleRunes))
		b.WriteString("**")
	}
	if review.IsEdited {
		b.WriteString("  _(edited)_")
	}
	b.WriteString("\n")
	b.WriteString(truncate(review.Body, maxBodyRunes))
	return b.String()
}

func footer(review entity.Review) string {
	parts := []string{review.ReviewerNickname}
	if review.Territory != "" {
		parts = append(parts, review.Territory)
	}
	if review.AppVersion != "" {
		parts = append(parts, "v"+review.AppVersion)
	}
	parts = append(parts, review.CreatedDate.UTC().Format("2006-01-02 15:04 MST"))
	return strings.Join(parts, " · ")
}

func replyForm(reviewID string) Element {
	return Element{
		Tag:  "form",
		Name: "reply_form_" + reviewID,
		Elements: []Element{
			{
				Tag:         "input",
				Name:        FieldReplyText,
				Placeholder: &Text{Tag: "plain_text", Content: "Write a reply to this review"},
				MaxLength:   entity.MaxReplyLength,
			},
			{
				Tag:        "button",
				Name:       "submit_reply",
				Text:       &Text{Tag: "plain_text", Content: "Reply"},
				Type:       "primary",
				ActionType: "form_submit",
				Value:      map[string]string{"action": ActionReply, FieldReviewID: reviewID},
			},
		},
	}
}

// Stars renders a 1-5 rating as filled and empty stars.
func Stars(rating int) string {
	rating = max(0, min(rating, entity.MaxRating))
	return strings.Repeat("★", rating) + strings.Repeat("☆", entity.MaxRating-rating)
}

func markdown(content string) Element {
	return Element{Tag: "div", Text: &Text{Tag: "lark_md", Content: content}}
}

func plain(content string) Element {
	return Element{Tag: "plain_text", Content: content}
}

// truncate shortens s to at most n runes, appending a suffix when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-utf8.RuneCountInString(truncationSuffix)]) + truncationSuffix
}
