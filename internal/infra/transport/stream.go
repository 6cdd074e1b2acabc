package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"protalk/internal/domain/entity"

	"nhooyr.io/websocket"
)

// StreamConfig configures the long-lived event stream transport.
type StreamConfig struct {
	URL string

	// Token is sent as a bearer credential when set.
	Token string

	// Header carries additional handshake headers.
	Header http.Header

	DialTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

// StreamClient holds one websocket connection to the platform's event stream.
// Frames read from the stream are delivered to OnMessage. A read failure fires
// OnError then OnClose and leaves the client disconnected.
type StreamClient struct {
	config StreamConfig
	now    func() time.Time

	mu       sync.RWMutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	handlers Handlers
	status   Status
}

// NewStreamClient creates a stream transport; call Connect to dial.
func NewStreamClient(config StreamConfig) *StreamClient {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 1 << 20
	}
	return &StreamClient{
		config: config,
		now:    time.Now,
		status: Status{Kind: "stream"},
	}
}

// SetHandlers implements Client.
func (c *StreamClient) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Connect dials the stream and starts the read and ping loops.
// Connecting an already connected client is a no-op.
func (c *StreamClient) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	header := http.Header{}
	for k, v := range c.config.Header {
		header[k] = append([]string(nil), v...)
	}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		c.mu.Lock()
		c.status.LastError = err.Error()
		c.mu.Unlock()
		return fmt.Errorf("dial stream: %w", err)
	}
	conn.SetReadLimit(c.config.ReadLimit)

	// The loops outlive the Connect call; they stop on Close or read failure.
	loopCtx, cancel := context.WithCancel(context.Background())
	now := c.now()

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.status.Connected = true
	c.status.ConnectedAt = now
	c.status.LastHeartbeat = now
	c.status.LastError = ""
	h := c.handlers
	c.mu.Unlock()

	slog.Info("stream connected", slog.String("url", c.config.URL))
	h.open()

	go c.readLoop(loopCtx, conn)
	go c.pingLoop(loopCtx, conn)
	return nil
}

// Close closes the connection with a normal closure status.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.status.Connected = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "client closing")
	cancel()
	if err != nil && !isClosedError(err) {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Send writes the message body as one text frame.
func (c *StreamClient) Send(ctx context.Context, msg entity.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, msg.Body); err != nil {
		c.mu.Lock()
		c.status.LastError = err.Error()
		c.mu.Unlock()
		return fmt.Errorf("write stream frame: %w", err)
	}

	c.mu.Lock()
	c.status.MessagesSent++
	c.mu.Unlock()
	return nil
}

// IsConnected implements Client.
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Connected
}

// Status implements Client.
func (c *StreamClient) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleReadFailure(conn, err)
			return
		}
		c.mu.Lock()
		c.status.LastHeartbeat = c.now()
		h := c.handlers
		c.mu.Unlock()
		h.message(data)
	}
}

func (c *StreamClient) handleReadFailure(conn *websocket.Conn, err error) {
	c.mu.Lock()
	// Close already detached this connection.
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.status.Connected = false
	c.status.LastError = err.Error()
	h := c.handlers
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	code := int(websocket.CloseStatus(err))
	reason := ""
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		reason = closeErr.Reason
	}

	slog.Warn("stream disconnected",
		slog.Int("code", code),
		slog.String("reason", reason),
		slog.Any("error", err))

	h.fail(fmt.Errorf("read stream: %w", err))
	h.close(code, reason)
}

func (c *StreamClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Warn("stream ping failed", slog.Any("error", err))
				continue
			}
			c.mu.Lock()
			c.status.LastHeartbeat = c.now()
			c.mu.Unlock()
		}
	}
}

func isClosedError(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled)
}
