package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tradecore/pkg/exception"
)

var ErrNilDialer = errors.New("websocket: nil dialer")

// Config defines the manager runtime configuration.
type Config struct {
	// Name identifies the connection in errors.
	Name    string
	Dialer  Dialer
	Backoff Backoff
	// MaxReconnectAttempts bounds consecutive failed reconnects. Zero retries
	// forever.
	MaxReconnectAttempts int
	// PingInterval enables keepalive pings. Pair it with a dialer read
	// timeout so a silent peer surfaces as a read error.
	PingInterval time.Duration
	// OnConnect runs on every fresh connection before any message is routed.
	// It owns the connection for the duration of the call and is where
	// authentication and subscription happen.
	OnConnect func(ctx context.Context, conn Conn) error
	// OnMessage receives data frames in arrival order on the Run goroutine.
	OnMessage func(msgType MessageType, payload []byte)
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(state State, attempt int, err error)
}

// Manager owns one logical WebSocket connection and re-establishes it on
// failure.
type Manager struct {
	cfg    Config
	state  atomic.Uint32
	closed atomic.Bool

	mu   sync.Mutex
	conn Conn
}

// NewManager validates config and builds a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, ErrNilDialer
	}
	if cfg.Backoff.Min == 0 && cfg.Backoff.Max == 0 && cfg.Backoff.Factor == 0 && cfg.Backoff.Jitter == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{cfg: cfg}, nil
}

// Connect performs the first dial and handshake.
func (m *Manager) Connect(ctx context.Context) error {
	m.setState(StateConnecting, 0, nil)
	conn, err := m.establish(ctx)
	if err != nil {
		m.setState(StateFailed, 0, err)
		return err
	}
	m.setConn(conn)
	m.setState(StateConnected, 0, nil)
	return nil
}

// Run routes inbound frames and reconnects on failure. It blocks until ctx
// is done, Close is called, or reconnect attempts are exhausted.
func (m *Manager) Run(ctx context.Context) error {
	var (
		conn    = m.current()
		attempt int
		lastErr error
	)
	for {
		if m.closed.Load() {
			return nil
		}
		if conn == nil {
			attempt++
			if m.cfg.MaxReconnectAttempts > 0 && attempt > m.cfg.MaxReconnectAttempts {
				m.setState(StateFailed, attempt-1, lastErr)
				return exception.ErrReconnectExhausted
			}
			m.setState(StateReconnecting, attempt, lastErr)
			if !m.sleepBackoff(ctx, attempt) {
				m.setState(StateClosed, 0, nil)
				return ctx.Err()
			}
			c, err := m.establish(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			if m.closed.Load() {
				_ = c.Close(CloseGoingAway, "shutdown")
				return nil
			}
			conn = c
			attempt = 0
			m.setConn(conn)
			m.setState(StateConnected, 0, nil)
		}

		err := m.runSession(ctx, conn)
		m.clearConn()
		_ = conn.Close(CloseNormal, "session_end")
		conn = nil

		if m.closed.Load() {
			return nil
		}
		if ctx.Err() != nil {
			m.setState(StateClosed, 0, nil)
			return ctx.Err()
		}
		lastErr = &exception.ConnectionError{Endpoint: m.cfg.Name, Op: "read", Err: err}
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Close stops the manager and closes the current connection.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	conn := m.current()
	m.setState(StateClosed, 0, nil)
	if conn == nil {
		return nil
	}
	return conn.Close(CloseGoingAway, "shutdown")
}

func (m *Manager) establish(ctx context.Context) (Conn, error) {
	conn, err := m.cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, &exception.ConnectionError{Endpoint: m.cfg.Name, Op: "dial", Err: err}
	}
	if m.cfg.OnConnect != nil {
		if err := m.cfg.OnConnect(ctx, conn); err != nil {
			_ = conn.Close(CloseNormal, "on_connect_failed")
			return nil, &exception.ConnectionError{Endpoint: m.cfg.Name, Op: "handshake", Err: err}
		}
	}
	return conn, nil
}

func (m *Manager) runSession(ctx context.Context, conn Conn) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go m.readLoop(sessionCtx, conn, errCh)

	var ping <-chan time.Time
	if m.cfg.PingInterval > 0 {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ping:
			if err := conn.WriteMessage(sessionCtx, MessagePing, nil); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, errCh chan<- error) {
	for {
		msgType, payload, err := conn.ReadMessage(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if msgType != MessageText && msgType != MessageBinary {
			continue
		}
		if len(payload) == 0 || m.cfg.OnMessage == nil {
			continue
		}
		m.cfg.OnMessage(msgType, payload)
	}
}

func (m *Manager) setState(s State, attempt int, err error) {
	m.state.Store(uint32(s))
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s, attempt, err)
	}
}

func (m *Manager) current() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Manager) setConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) clearConn() {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

func (m *Manager) sleepBackoff(ctx context.Context, attempt int) bool {
	wait := m.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
