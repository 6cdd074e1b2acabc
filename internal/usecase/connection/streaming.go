package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/infra/transport"
	"protalk/internal/usecase/delivery"
)

// Reconnect defaults.
const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultConnectTimeout       = 30 * time.Second
)

// StreamingConfig tunes a StreamingMode.
type StreamingConfig struct {
	// ReconnectInterval is the base backoff delay; attempt n waits
	// ReconnectInterval * 2^(n-1).
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration

	Queue delivery.Config
}

// StreamingOption configures a StreamingMode.
type StreamingOption func(*StreamingMode)

// WithDedupStore skips messages whose content was already delivered.
func WithDedupStore(s DedupStore) StreamingOption {
	return func(m *StreamingMode) { m.dedup = s }
}

// WithScheduler replaces the reconnect timer.
func WithScheduler(s Scheduler) StreamingOption {
	return func(m *StreamingMode) { m.schedule = s }
}

// WithStreamingClock replaces the clock used for heartbeats.
func WithStreamingClock(now func() time.Time) StreamingOption {
	return func(m *StreamingMode) { m.now = now }
}

// WithOnDrop forwards permanently failed deliveries.
func WithOnDrop(fn func(delivery.Task, error)) StreamingOption {
	return func(m *StreamingMode) { m.onDrop = fn }
}

// StreamingMode owns a transport client and a delivery queue.
//
// State machine: disconnected -> connecting -> connected. An unexpected close
// moves it back to disconnected and schedules a reconnect with exponential
// backoff. After MaxReconnectAttempts failed reconnects the mode stays
// disconnected with ErrReconnectExhausted until Reconnect is called.
type StreamingMode struct {
	cfg      StreamingConfig
	client   transport.Client
	queue    *delivery.Queue
	dedup    DedupStore
	schedule Scheduler
	now      func() time.Time
	onDrop   func(delivery.Task, error)
	logger   *slog.Logger

	dispatcher dispatcher
	connecting atomic.Bool

	// baseCtx scopes background work (reconnects, inbound dispatch).
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu               sync.Mutex
	initialized      bool
	state            State
	lastHeartbeat    time.Time
	errorCount       int64
	messageCount     int64
	attempts         int
	exhausted        bool
	lastError        string
	userDisconnected bool
	// closedDuringConnect is set when the transport closes while Connect is
	// still waiting on it.
	closedDuringConnect bool
	cancelReconnect     func()
}

// NewStreamingMode creates a streaming mode over client.
func NewStreamingMode(client transport.Client, cfg StreamingConfig, opts ...StreamingOption) *StreamingMode {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = ModeStreaming
	}
	m := &StreamingMode{
		cfg:        cfg,
		client:     client,
		schedule:   timerScheduler,
		now:        time.Now,
		logger:     slog.Default().With(slog.String("mode", ModeStreaming)),
		dispatcher: dispatcher{mode: ModeStreaming},
		state:      StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	qopts := []delivery.Option{delivery.WithLogger(m.logger)}
	if m.onDrop != nil {
		qopts = append(qopts, delivery.WithOnDrop(m.onDrop))
	}
	m.queue = delivery.NewQueue(cfg.Queue, m.processBatch, qopts...)
	return m
}

// Queue exposes the delivery queue for flushing and inspection.
func (m *StreamingMode) Queue() *delivery.Queue {
	return m.queue
}

// Initialize installs transport handlers and starts the delivery queue.
// It does not connect.
func (m *StreamingMode) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.baseCtx, m.baseCancel = context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Unlock()

	m.client.SetHandlers(transport.Handlers{
		OnOpen:    m.onOpen,
		OnMessage: m.onMessage,
		OnError:   m.onError,
		OnClose:   m.onClose,
	})
	m.queue.Start(m.baseCtx)
	m.logger.Info("streaming mode initialized",
		slog.Duration("reconnect_interval", m.cfg.ReconnectInterval),
		slog.Int("max_reconnect_attempts", m.cfg.MaxReconnectAttempts))
	return nil
}

// Connect opens the transport. Concurrent calls are rejected with
// ErrConnectInProgress. A failed attempt schedules a reconnect and returns the error.
func (m *StreamingMode) Connect(ctx context.Context) error {
	if !m.isInitialized() {
		return ErrNotInitialized
	}
	if !m.connecting.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer m.connecting.Store(false)

	m.mu.Lock()
	m.state = StateConnecting
	m.userDisconnected = false
	m.closedDuringConnect = false
	m.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := m.client.Connect(connectCtx); err != nil {
		m.connectFailed(err)
		return fmt.Errorf("connect transport: %w", err)
	}

	alive := m.client.IsConnected()
	m.mu.Lock()
	if !alive || m.closedDuringConnect {
		m.mu.Unlock()
		m.connectFailed(ErrClosedDuringConnect)
		return ErrClosedDuringConnect
	}
	m.state = StateConnected
	m.lastHeartbeat = m.now()
	m.attempts = 0
	m.exhausted = false
	m.lastError = ""
	m.mu.Unlock()
	recordConnected(ModeStreaming, true)
	m.logger.Info("streaming mode connected")
	return nil
}

func (m *StreamingMode) connectFailed(err error) {
	m.mu.Lock()
	m.state = StateDisconnected
	m.errorCount++
	m.lastError = err.Error()
	m.mu.Unlock()
	recordError(ModeStreaming)
	recordConnected(ModeStreaming, false)
	m.logger.Warn("connect failed", slog.Any("error", err))
	m.scheduleReconnect()
}

// Disconnect closes the transport and cancels any pending reconnect.
func (m *StreamingMode) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.userDisconnected = true
	m.state = StateDisconnected
	if m.cancelReconnect != nil {
		m.cancelReconnect()
		m.cancelReconnect = nil
	}
	m.mu.Unlock()
	recordConnected(ModeStreaming, false)

	if err := m.client.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	m.logger.Info("streaming mode disconnected")
	return nil
}

// Reconnect closes the transport, resets the attempt counter and connects again.
func (m *StreamingMode) Reconnect(ctx context.Context) error {
	if err := m.Disconnect(ctx); err != nil {
		m.logger.Warn("close before reconnect failed", slog.Any("error", err))
	}
	m.mu.Lock()
	m.attempts = 0
	m.exhausted = false
	m.mu.Unlock()
	return m.Connect(ctx)
}

// PushMessage enqueues msg; it never blocks on network I/O.
func (m *StreamingMode) PushMessage(ctx context.Context, msg entity.Message) error {
	return m.PushBatch(ctx, []entity.Message{msg})
}

// PushBatch enqueues msgs in order.
func (m *StreamingMode) PushBatch(ctx context.Context, msgs []entity.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tasks := make([]delivery.Task, len(msgs))
	for i, msg := range msgs {
		tasks[i] = delivery.NewTask(msg)
	}
	if err := m.queue.EnqueueBatch(tasks); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	return nil
}

// SetHandlers registers the inbound event slots.
func (m *StreamingMode) SetHandlers(h Handlers) {
	m.dispatcher.setHandlers(h)
}

// HandleEvent routes ev to its slot. Handler errors are counted in Status.
func (m *StreamingMode) HandleEvent(ctx context.Context, ev Event) error {
	err := m.dispatcher.handleEvent(ctx, ev)
	if err != nil {
		m.mu.Lock()
		m.errorCount++
		m.lastError = err.Error()
		m.mu.Unlock()
		recordError(ModeStreaming)
	}
	return err
}

// HandleMessage routes a chat message to OnMessage.
func (m *StreamingMode) HandleMessage(ctx context.Context, msg InboundMessage) error {
	return m.dispatcher.handleMessage(ctx, msg)
}

// HandleCommand routes a chat command to OnCommand.
func (m *StreamingMode) HandleCommand(ctx context.Context, cmd Command) error {
	return m.dispatcher.handleCommand(ctx, cmd)
}

// IsConnected reports whether the state machine is connected.
func (m *StreamingMode) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// Status returns the connection status including the queue snapshot.
func (m *StreamingMode) Status() Status {
	q := m.queue.Status()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Mode:              ModeStreaming,
		State:             m.state,
		Connected:         m.state == StateConnected,
		LastHeartbeat:     m.lastHeartbeat,
		ErrorCount:        m.errorCount,
		MessageCount:      m.messageCount,
		UnhandledEvents:   m.dispatcher.unhandled.Load(),
		ReconnectAttempts: m.attempts,
		Exhausted:         m.exhausted,
		LastError:         m.lastError,
		Queue:             &q,
	}
}

// Shutdown drains the queue while still connected, then disconnects.
func (m *StreamingMode) Shutdown(ctx context.Context) error {
	m.queue.Stop(ctx)
	err := m.Disconnect(ctx)
	m.mu.Lock()
	if m.baseCancel != nil {
		m.baseCancel()
	}
	m.mu.Unlock()
	return err
}

func (m *StreamingMode) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// scheduleReconnect arms the next backoff timer unless the mode was
// disconnected on purpose, a reconnect is already pending, or attempts ran out.
func (m *StreamingMode) scheduleReconnect() {
	m.mu.Lock()
	if m.userDisconnected || m.cancelReconnect != nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateDisconnected
		m.exhausted = true
		m.lastError = ErrReconnectExhausted.Error()
		attempts := m.attempts
		m.mu.Unlock()
		recordReconnectExhausted(ModeStreaming)
		m.logger.Error("reconnect attempts exhausted",
			slog.Int("attempts", attempts),
			slog.Any("error", ErrReconnectExhausted))
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := m.backoff(attempt)
	m.cancelReconnect = m.schedule(delay, m.reconnectAttempt)
	m.mu.Unlock()

	recordReconnectAttempt(ModeStreaming)
	m.logger.Info("reconnect scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
}

// backoff returns ReconnectInterval * 2^(attempt-1).
func (m *StreamingMode) backoff(attempt int) time.Duration {
	return m.cfg.ReconnectInterval * time.Duration(1<<(attempt-1))
}

func (m *StreamingMode) reconnectAttempt() {
	m.mu.Lock()
	m.cancelReconnect = nil
	skip := m.userDisconnected
	ctx := m.baseCtx
	m.mu.Unlock()
	if skip || ctx.Err() != nil {
		return
	}

	err := m.Connect(ctx)
	if errors.Is(err, ErrConnectInProgress) {
		return
	}
	if err != nil {
		m.logger.Warn("reconnect attempt failed", slog.Any("error", err))
	}
}

func (m *StreamingMode) onOpen() {
	m.mu.Lock()
	m.lastHeartbeat = m.now()
	m.mu.Unlock()
}

func (m *StreamingMode) onMessage(data []byte) {
	m.mu.Lock()
	m.lastHeartbeat = m.now()
	ctx := m.baseCtx
	m.mu.Unlock()

	env, err := DecodeEnvelope(data)
	if err != nil {
		m.logger.Warn("discarding undecodable frame", slog.Any("error", err))
		return
	}
	ev, err := env.ToEvent()
	if err != nil {
		m.logger.Warn("discarding malformed event", slog.Any("error", err))
		return
	}
	if err := m.HandleEvent(ctx, ev); err != nil {
		m.logger.Error("event handler failed",
			slog.String("event_id", ev.ID),
			slog.String("kind", ev.Kind.String()),
			slog.Any("error", err))
	}
}

func (m *StreamingMode) onError(err error) {
	m.mu.Lock()
	m.errorCount++
	m.lastError = err.Error()
	m.mu.Unlock()
	recordError(ModeStreaming)
}

func (m *StreamingMode) onClose(code int, reason string) {
	m.mu.Lock()
	if m.state == StateConnecting && !m.userDisconnected {
		m.closedDuringConnect = true
		m.mu.Unlock()
		m.logger.Warn("transport closed while connecting",
			slog.Int("code", code),
			slog.String("reason", reason))
		return
	}
	if m.userDisconnected || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.lastHeartbeat = m.now()
	m.mu.Unlock()
	recordConnected(ModeStreaming, false)

	m.logger.Warn("transport closed unexpectedly",
		slog.Int("code", code),
		slog.String("reason", reason))
	m.scheduleReconnect()
}

// processBatch is the queue callback: it sends each task in order and fails
// the batch on the first send error. Tasks already delivered in an earlier
// attempt are skipped by content key.
func (m *StreamingMode) processBatch(ctx context.Context, batch []delivery.Task) error {
	for _, task := range batch {
		key := task.Message.DedupKey()
		if m.dedup != nil {
			seen, err := m.dedup.Seen(ctx, key)
			if err != nil {
				m.logger.Warn("dedup lookup failed", slog.String("key", key), slog.Any("error", err))
			} else if seen {
				recordDedupSkipped(ModeStreaming)
				continue
			}
		}

		if err := m.client.Send(ctx, task.Message); err != nil {
			m.mu.Lock()
			m.errorCount++
			m.lastError = err.Error()
			m.mu.Unlock()
			recordError(ModeStreaming)
			return fmt.Errorf("send task %s: %w", task.ID, err)
		}

		m.mu.Lock()
		m.messageCount++
		m.lastHeartbeat = m.now()
		m.mu.Unlock()
		recordMessage(ModeStreaming, string(task.Kind))

		if m.dedup != nil {
			if err := m.dedup.Mark(ctx, key); err != nil {
				m.logger.Warn("dedup mark failed", slog.String("key", key), slog.Any("error", err))
			}
		}
	}
	return nil
}
