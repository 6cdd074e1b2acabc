package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"protalk/internal/domain/entity"
)

// RequestResponseMode is the variant used when the platform calls us.
// It always reports connected; pushes are only accounted for because
// transmission belongs to the inbound-call handler.
type RequestResponseMode struct {
	dispatcher dispatcher
	now        func() time.Time
	logger     *slog.Logger

	messageCount  atomic.Int64
	errorCount    atomic.Int64
	lastHeartbeat atomic.Int64 // unix nanos
}

// NewRequestResponseMode creates a request-response mode.
func NewRequestResponseMode() *RequestResponseMode {
	m := &RequestResponseMode{
		dispatcher: dispatcher{mode: ModeRequestResponse},
		now:        time.Now,
		logger:     slog.Default().With(slog.String("mode", ModeRequestResponse)),
	}
	m.touch()
	return m
}

func (m *RequestResponseMode) touch() {
	m.lastHeartbeat.Store(m.now().UnixNano())
}

// Initialize implements Mode.
func (m *RequestResponseMode) Initialize(ctx context.Context) error {
	recordConnected(ModeRequestResponse, true)
	m.logger.Info("request-response mode initialized")
	return nil
}

// Connect implements Mode; there is no connection to open.
func (m *RequestResponseMode) Connect(ctx context.Context) error {
	m.touch()
	return nil
}

// Disconnect implements Mode; the mode stays connected.
func (m *RequestResponseMode) Disconnect(ctx context.Context) error {
	return nil
}

// Reconnect implements Mode.
func (m *RequestResponseMode) Reconnect(ctx context.Context) error {
	return m.Connect(ctx)
}

// PushMessage counts msg without sending it.
func (m *RequestResponseMode) PushMessage(ctx context.Context, msg entity.Message) error {
	m.messageCount.Add(1)
	recordMessage(ModeRequestResponse, string(msg.Kind))
	m.logger.Debug("message accounted",
		slog.String("review_id", msg.ReviewID),
		slog.String("kind", string(msg.Kind)))
	return nil
}

// PushBatch counts each message.
func (m *RequestResponseMode) PushBatch(ctx context.Context, msgs []entity.Message) error {
	for _, msg := range msgs {
		_ = m.PushMessage(ctx, msg)
	}
	return nil
}

// SetHandlers implements Mode.
func (m *RequestResponseMode) SetHandlers(h Handlers) {
	m.dispatcher.setHandlers(h)
}

// HandleEvent implements Mode.
func (m *RequestResponseMode) HandleEvent(ctx context.Context, ev Event) error {
	m.touch()
	err := m.dispatcher.handleEvent(ctx, ev)
	if err != nil {
		m.errorCount.Add(1)
		recordError(ModeRequestResponse)
	}
	return err
}

// HandleMessage implements Mode.
func (m *RequestResponseMode) HandleMessage(ctx context.Context, msg InboundMessage) error {
	return m.HandleEvent(ctx, Event{Kind: EventMessage, Message: &msg})
}

// HandleCommand implements Mode.
func (m *RequestResponseMode) HandleCommand(ctx context.Context, cmd Command) error {
	return m.HandleEvent(ctx, Event{Kind: EventCommand, Command: &cmd})
}

// IsConnected always returns true.
func (m *RequestResponseMode) IsConnected() bool {
	return true
}

// Status implements Mode.
func (m *RequestResponseMode) Status() Status {
	return Status{
		Mode:            ModeRequestResponse,
		State:           StateConnected,
		Connected:       true,
		LastHeartbeat:   time.Unix(0, m.lastHeartbeat.Load()),
		ErrorCount:      m.errorCount.Load(),
		MessageCount:    m.messageCount.Load(),
		UnhandledEvents: m.dispatcher.unhandled.Load(),
	}
}

// Shutdown implements Mode.
func (m *RequestResponseMode) Shutdown(ctx context.Context) error {
	return nil
}
