package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pingMessage = "ping"

// FrameHandler receives every raw text frame, in arrival order, on the
// connection's read goroutine.
type FrameHandler func(data []byte)

// StateObserver is told about every state transition. Observers run with the
// manager's lock held and must not call back into the Manager.
type StateObserver func(from, to State)

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy overrides the keepalive and reconnect policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager drives one live connection through the lifecycle described by
// Transition. At most one connection exists at a time and reconnect attempts
// are strictly sequential. Every goroutine and timer it starts is tagged
// with a generation; work from a superseded generation is discarded.
type Manager struct {
	endpoint string
	dialer   Dialer
	policy   Policy
	onFrame  FrameHandler
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	attempts  int
	gen       uint64
	conn      Conn
	stopPing  chan struct{}
	retry     *time.Timer
	dialStop  context.CancelFunc
	observers []StateObserver
	pings     int

	wg sync.WaitGroup
}

// NewManager creates a Manager for endpoint in the Disconnected state.
// Nothing is dialled until Connect is called.
func NewManager(endpoint string, onFrame FrameHandler, opts ...Option) *Manager {
	m := &Manager{
		endpoint: endpoint,
		dialer:   WebsocketDialer{},
		policy:   DefaultPolicy(),
		onFrame:  onFrame,
		logger:   slog.Default(),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.policy = m.policy.withDefaults()
	m.logger = m.logger.With("component", "live")
	if m.onFrame == nil {
		m.onFrame = func([]byte) {}
	}
	return m
}

// Endpoint returns the URL the manager dials.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// OnStateChange registers an observer for state transitions.
func (m *Manager) OnStateChange(fn StateObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts made since the last
// successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// PingsSent returns the number of keepalive frames written so far.
func (m *Manager) PingsSent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// Connect starts connecting. It is a no-op while Connecting or Connected.
// Called while Reconnecting it skips the remaining delay. Called while
// Disconnected it starts with a fresh attempt budget.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !m.apply(EventConnect) {
		return
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if from == StateDisconnected {
		m.attempts = 0
	}
	m.dialLocked()
}

// Disconnect tears the channel down and cancels any pending retry, dial or
// keepalive. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.dialStop != nil {
		m.dialStop()
		m.dialStop = nil
	}
	if m.stopPing != nil {
		close(m.stopPing)
		m.stopPing = nil
	}
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	changed := m.apply(EventDisconnect)
	m.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
	if changed {
		m.logger.Info("disconnected", "endpoint", m.endpoint)
	}
}

// Close disconnects and waits for the manager's goroutines to exit. It must
// not be called from a FrameHandler.
func (m *Manager) Close() {
	m.Disconnect()
	m.wg.Wait()
}

// apply runs ev through Transition and notifies observers. Caller holds mu.
func (m *Manager) apply(ev Event) bool {
	next, ok := Transition(m.state, ev, m.attempts, m.policy.MaxAttempts)
	if !ok {
		return false
	}
	prev := m.state
	m.state = next
	m.logger.Debug("state change", "from", prev, "to", next, "event", ev, "attempts", m.attempts)
	for _, fn := range m.observers {
		fn(prev, next)
	}
	return true
}

// dialLocked starts a dial for a new generation. Caller holds mu.
func (m *Manager) dialLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.dialStop = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		conn, err := m.dialer.Dial(ctx, m.endpoint)
		cancel()
		m.dialed(gen, conn, err)
	}()
}

func (m *Manager) dialed(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			closeConn(conn)
		}
		return
	}
	m.dialStop = nil

	if err != nil {
		m.logger.Warn("connect failed", "endpoint", m.endpoint, "attempts", m.attempts, "error", err)
		m.lostLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.attempts = 0
	m.apply(EventOpened)
	stop := make(chan struct{})
	m.stopPing = stop
	m.wg.Add(2)
	m.mu.Unlock()

	m.logger.Info("connected", "endpoint", m.endpoint)
	go m.readLoop(gen, conn)
	go m.pingLoop(gen, conn, stop)
}

// lostLocked handles the end of a connection or a failed dial and schedules
// the next attempt if the budget allows. It returns the connection that the
// caller must close once mu is released. Caller holds mu.
func (m *Manager) lostLocked() Conn {
	if m.stopPing != nil {
		close(m.stopPing)
		m.stopPing = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++

	if !m.apply(EventLost) {
		return conn
	}
	if m.state != StateReconnecting {
		m.logger.Warn("reconnect attempts exhausted", "attempts", m.attempts, "max_attempts", m.policy.MaxAttempts)
		return conn
	}

	gen := m.gen
	delay := m.policy.NextDelay(m.attempts + 1)
	m.retry = time.AfterFunc(delay, func() { m.retryFired(gen) })
	m.logger.Info("reconnect scheduled", "attempt", m.attempts+1, "max_attempts", m.policy.MaxAttempts, "delay", delay)
	return conn
}

func (m *Manager) retryFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.retry = nil
	if !m.apply(EventRetry) {
		return
	}
	m.attempts++
	m.dialLocked()
}

func (m *Manager) connLost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("connection lost", "endpoint", m.endpoint, "error", err)
	conn := m.lostLocked()
	m.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	defer m.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connLost(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.onFrame(data)
	}
}

// pingLoop writes the keepalive frame every PingInterval, and only while
// this generation is Connected.
func (m *Manager) pingLoop(gen uint64, conn Conn, stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.policy.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			ok := gen == m.gen && m.state == StateConnected
			if ok {
				m.pings++
			}
			m.mu.Unlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(pingMessage)); err != nil {
				m.connLost(gen, err)
				return
			}
		}
	}
}
