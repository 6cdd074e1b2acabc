// Package transport owns the physical connection to the chat platform.
// It knows nothing about review semantics: it opens, holds and closes one
// connection and moves opaque message payloads across it.
package transport

import (
	"context"
	"errors"
	"time"

	"protalk/internal/domain/entity"
)

// ErrNotConnected is returned by Send when the client has no open connection.
// Callers treat it as a retry signal; the client never reconnects on its own.
var ErrNotConnected = errors.New("transport: not connected")

// Handlers are the typed event slots a Client fires. Nil slots are skipped.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Status is a snapshot of a client's connection state.
type Status struct {
	Kind          string
	Connected     bool
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	MessagesSent  int64
	LastError     string
}

// Client is one connection to the notification platform.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Send(ctx context.Context, msg entity.Message) error
	IsConnected() bool
	Status() Status
	SetHandlers(h Handlers)
}

func (h Handlers) open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handlers) message(data []byte) {
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) close(code int, reason string) {
	if h.OnClose != nil {
		h.OnClose(code, reason)
	}
}
