package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/infra/transport"
)

// fakeClient is a transport.Client whose behaviour is scripted per test.
type fakeClient struct {
	mu          sync.Mutex
	handlers    transport.Handlers
	connected   bool
	connectErrs []error // consumed in order; nil entries succeed
	// closeOnConnect makes that many successful connects close immediately.
	closeOnConnect int
	connects    int
	sendErr     error
	sent        []entity.Message
	closes      int
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if c.closeOnConnect > 0 {
		// handshake succeeds, then the server sends a close frame before
		// Connect returns
		c.closeOnConnect--
		h := c.handlers
		c.mu.Unlock()
		if h.OnClose != nil {
			h.OnClose(1008, "policy violation")
		}
		return nil
	}
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.connected = false
	return nil
}

func (c *fakeClient) Send(ctx context.Context, msg entity.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Status() transport.Status {
	return transport.Status{Kind: "fake", Connected: c.IsConnected()}
}

func (c *fakeClient) SetHandlers(h transport.Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// dropConnection simulates the server dropping the stream.
func (c *fakeClient) dropConnection() {
	c.mu.Lock()
	c.connected = false
	h := c.handlers
	c.mu.Unlock()
	if h.OnError != nil {
		h.OnError(errors.New("connection reset"))
	}
	if h.OnClose != nil {
		h.OnClose(1006, "abnormal")
	}
}

func (c *fakeClient) deliver(data []byte) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	h.OnMessage(data)
}

func (c *fakeClient) sentIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.ReviewID
	}
	return out
}

// manualScheduler records reconnect timers; tests fire them explicitly.
type manualScheduler struct {
	mu        sync.Mutex
	delays    []time.Duration
	pending   []func()
	cancelled int
}

func (s *manualScheduler) schedule(delay time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, delay)
	idx := len(s.pending)
	s.pending = append(s.pending, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending[idx] != nil {
			s.pending[idx] = nil
			s.cancelled++
		}
	}
}

// fireNext runs the oldest pending timer. Returns false when none is pending.
func (s *manualScheduler) fireNext() bool {
	s.mu.Lock()
	var fn func()
	for i, f := range s.pending {
		if f != nil {
			fn = f
			s.pending[i] = nil
			break
		}
	}
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (s *manualScheduler) scheduledDelays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// memoryDedup is an in-test DedupStore.
type memoryDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memoryDedup) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *memoryDedup) Mark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys == nil {
		d.keys = map[string]bool{}
	}
	d.keys[key] = true
	return nil
}

func message(id string) entity.Message {
	return entity.Message{ReviewID: id, Kind: entity.PushTypeNew, Fingerprint: "fp-" + id, Body: []byte(`{}`)}
}
