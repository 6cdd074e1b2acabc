package connection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the closed set of inbound event kinds.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCardAction
	EventMessage
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventCardAction:
		return "card_action"
	case EventMessage:
		return "message"
	case EventCommand:
		return "command"
	}
	return "unknown"
}

// Platform event type names.
const (
	PlatformEventCardAction     = "card.action.trigger"
	PlatformEventMessageReceive = "im.message.receive_v1"
	PlatformURLVerification     = "url_verification"
)

// Event is an inbound platform event. Exactly one payload field is set,
// matching Kind; unknown events carry only Type and Raw.
type Event struct {
	ID   string
	Type string
	Kind EventKind

	CardAction *CardAction
	Message    *InboundMessage
	Command    *Command

	Raw json.RawMessage
}

// CardAction is a button press on an interactive card.
type CardAction struct {
	OperatorID string
	MessageID  string
	ChatID     string
	Value      map[string]string
}

// InboundMessage is a plain chat message sent to the bot.
type InboundMessage struct {
	MessageID string
	ChatID    string
	SenderID  string
	Text      string
}

// Command is a chat message of the form "/name arg...".
type Command struct {
	Name    string
	Args    string
	Message InboundMessage
}

// ParseCommand splits "/name rest of text" into a Command.
// Returns false when text is not a command.
func ParseCommand(msg InboundMessage) (Command, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return Command{}, false
	}
	name, args, _ := strings.Cut(text[1:], " ")
	return Command{
		Name:    strings.ToLower(name),
		Args:    strings.TrimSpace(args),
		Message: msg,
	}, true
}

// Envelope is the platform's event envelope (schema 2.0), plus the legacy
// url_verification handshake fields.
type Envelope struct {
	Schema string `json:"schema"`
	Header struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event json.RawMessage `json:"event"`

	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Token     string `json:"token"`
}

// DecodeEnvelope parses a raw platform payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return env, nil
}

// IsURLVerification reports whether the envelope is a callback handshake.
func (e Envelope) IsURLVerification() bool {
	return e.Type == PlatformURLVerification
}

// VerificationToken returns the token from whichever envelope version is present.
func (e Envelope) VerificationToken() string {
	if e.Header.Token != "" {
		return e.Header.Token
	}
	return e.Token
}

type cardActionPayload struct {
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
	Action struct {
		Value     map[string]any `json:"value"`
		FormValue map[string]any `json:"form_value"`
	} `json:"action"`
	Context struct {
		OpenMessageID string `json:"open_message_id"`
		OpenChatID    string `json:"open_chat_id"`
	} `json:"context"`
}

type messagePayload struct {
	Sender struct {
		SenderID struct {
			OpenID string `json:"open_id"`
		} `json:"sender_id"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		ChatID      string `json:"chat_id"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	} `json:"message"`
}

// ToEvent maps the envelope onto the closed event set.
// Unrecognised event types map to EventUnknown without error.
func (e Envelope) ToEvent() (Event, error) {
	ev := Event{ID: e.Header.EventID, Type: e.Header.EventType, Raw: e.Event}

	switch e.Header.EventType {
	case PlatformEventCardAction:
		var p cardActionPayload
		if err := json.Unmarshal(e.Event, &p); err != nil {
			return Event{}, fmt.Errorf("%w: card action: %w", ErrInvalidEvent, err)
		}
		// form inputs are merged over the button value
		value := make(map[string]string, len(p.Action.Value)+len(p.Action.FormValue))
		for k, v := range p.Action.Value {
			value[k] = fmt.Sprint(v)
		}
		for k, v := range p.Action.FormValue {
			value[k] = fmt.Sprint(v)
		}
		ev.Kind = EventCardAction
		ev.CardAction = &CardAction{
			OperatorID: p.Operator.OpenID,
			MessageID:  p.Context.OpenMessageID,
			ChatID:     p.Context.OpenChatID,
			Value:      value,
		}

	case PlatformEventMessageReceive:
		var p messagePayload
		if err := json.Unmarshal(e.Event, &p); err != nil {
			return Event{}, fmt.Errorf("%w: message: %w", ErrInvalidEvent, err)
		}
		msg := InboundMessage{
			MessageID: p.Message.MessageID,
			ChatID:    p.Message.ChatID,
			SenderID:  p.Sender.SenderID.OpenID,
		}
		if p.Message.MessageType == "text" {
			var content struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(p.Message.Content), &content); err != nil {
				return Event{}, fmt.Errorf("%w: message content: %w", ErrInvalidEvent, err)
			}
			msg.Text = content.Text
		}
		if cmd, ok := ParseCommand(msg); ok {
			ev.Kind = EventCommand
			ev.Command = &cmd
		} else {
			ev.Kind = EventMessage
			ev.Message = &msg
		}
	}
	return ev, nil
}
