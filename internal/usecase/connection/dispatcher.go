package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handlers are the typed callback slots for inbound events.
// A nil slot means events of that kind are accepted and counted as unhandled.
type Handlers struct {
	OnCardAction func(ctx context.Context, action CardAction) error
	OnMessage    func(ctx context.Context, msg InboundMessage) error
	OnCommand    func(ctx context.Context, cmd Command) error
}

// dispatcher routes events to the registered slots. Shared by both modes.
type dispatcher struct {
	mode string

	mu       sync.RWMutex
	handlers Handlers

	unhandled atomic.Int64
}

func (d *dispatcher) setHandlers(h Handlers) {
	d.mu.Lock()
	d.handlers = h
	d.mu.Unlock()
}

func (d *dispatcher) slots() Handlers {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers
}

func (d *dispatcher) handleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventCardAction:
		if ev.CardAction != nil {
			return d.handleCardAction(ctx, *ev.CardAction)
		}
	case EventMessage:
		if ev.Message != nil {
			return d.handleMessage(ctx, *ev.Message)
		}
	case EventCommand:
		if ev.Command != nil {
			return d.handleCommand(ctx, *ev.Command)
		}
	}
	d.markUnhandled(ev.Kind, ev.Type)
	return nil
}

func (d *dispatcher) handleCardAction(ctx context.Context, action CardAction) error {
	h := d.slots().OnCardAction
	if h == nil {
		d.markUnhandled(EventCardAction, "")
		return nil
	}
	return h(ctx, action)
}

func (d *dispatcher) handleMessage(ctx context.Context, msg InboundMessage) error {
	h := d.slots().OnMessage
	if h == nil {
		d.markUnhandled(EventMessage, "")
		return nil
	}
	return h(ctx, msg)
}

func (d *dispatcher) handleCommand(ctx context.Context, cmd Command) error {
	h := d.slots().OnCommand
	if h == nil {
		d.markUnhandled(EventCommand, "")
		return nil
	}
	return h(ctx, cmd)
}

func (d *dispatcher) markUnhandled(kind EventKind, platformType string) {
	d.unhandled.Add(1)
	recordUnhandledEvent(d.mode, kind)
	slog.Debug("unhandled platform event",
		slog.String("mode", d.mode),
		slog.String("kind", kind.String()),
		slog.String("event_type", platformType))
}
