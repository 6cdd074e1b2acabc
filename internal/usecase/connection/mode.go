package connection

import (
	"context"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/usecase/delivery"
)

// Mode names reported in Status.
const (
	ModeStreaming       = "streaming"
	ModeRequestResponse = "request_response"
)

// State is the connection state machine position.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Status is the ConnectionStatus surfaced to health and ops endpoints.
type Status struct {
	Mode              string           `json:"mode"`
	State             State            `json:"state"`
	Connected         bool             `json:"connected"`
	LastHeartbeat     time.Time        `json:"lastHeartbeat"`
	ErrorCount        int64            `json:"errorCount"`
	MessageCount      int64            `json:"messageCount"`
	UnhandledEvents   int64            `json:"unhandledEvents"`
	ReconnectAttempts int              `json:"reconnectAttempts"`
	Exhausted         bool             `json:"exhausted"`
	LastError         string           `json:"lastError,omitempty"`
	Queue             *delivery.Status `json:"queue,omitempty"`
}

// Mode is the lifecycle and push contract shared by both connection variants.
// Pushes are fire-and-forget: connection failures are never returned to the
// push caller.
type Mode interface {
	Initialize(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error

	PushMessage(ctx context.Context, msg entity.Message) error
	PushBatch(ctx context.Context, msgs []entity.Message) error

	HandleEvent(ctx context.Context, ev Event) error
	HandleMessage(ctx context.Context, msg InboundMessage) error
	HandleCommand(ctx context.Context, cmd Command) error
	SetHandlers(h Handlers)

	IsConnected() bool
	Status() Status
	Shutdown(ctx context.Context) error
}

// DedupStore remembers which message contents were already delivered.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Scheduler runs fn after delay and returns a function that cancels it.
type Scheduler func(delay time.Duration, fn func()) (cancel func())

func timerScheduler(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}
