package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"autovrs-client/internal/errdefs"
	"autovrs-client/internal/logger"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/protocol"
)

// Status is the transport connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Options configures a Manager.
type Options struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	OnMessage         func(payload []byte)
	OnStatus          func(Status)
	Metrics           *metrics.Metrics
}

// Manager owns the physical websocket connection: dialing, teardown,
// fixed-delay reconnect scheduling and the keepalive heartbeat. Inbound
// payloads are handed to OnMessage in arrival order; a reconnect always fully
// tears down the prior connection before the new one delivers anything.
type Manager struct {
	mu      sync.Mutex
	writeMu sync.Mutex

	dialer *websocket.Dialer
	conn   *websocket.Conn

	endpoint         string
	status           Status
	epoch            uint64
	reconnectEnabled bool
	reconnectTimer   *time.Timer
	keepaliveStop    chan struct{}
	lastErr          error

	heartbeat      time.Duration
	reconnectDelay time.Duration
	onMessage      func([]byte)
	onStatus       func(Status)
	metrics        *metrics.Metrics
}

// NewManager creates a disconnected Manager.
func NewManager(opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Manager{
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		status:         StatusDisconnected,
		heartbeat:      opts.HeartbeatInterval,
		reconnectDelay: opts.ReconnectDelay,
		onMessage:      opts.OnMessage,
		onStatus:       opts.OnStatus,
		metrics:        opts.Metrics,
	}
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether the transport is Connected.
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// LastError returns the most recent transport-level error record.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect establishes a connection to the endpoint. Calling it while already
// connected tears the prior connection down cleanly first, so no duplicate
// event delivery is possible. Connect re-enables reconnection after a prior
// Disconnect.
func (m *Manager) Connect(endpoint string) error {
	m.mu.Lock()
	m.teardownLocked()
	m.endpoint = endpoint
	m.reconnectEnabled = true
	epoch := m.epoch
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	logger.Info("Transport", "Connecting to %s", endpoint)
	conn, _, err := m.dialer.Dial(endpoint, nil)

	m.mu.Lock()
	if m.epoch != epoch {
		// A concurrent Disconnect or Connect superseded this attempt.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		m.lastErr = errdefs.Transport("dial failed", err)
		m.setStatusLocked(StatusDisconnected)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		logger.Error("Transport", "Dial failed: %v", err)
		return m.LastError()
	}

	m.conn = conn
	stop := make(chan struct{})
	m.keepaliveStop = stop
	m.setStatusLocked(StatusConnected)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Connected.Store(1)
	}
	logger.Info("Transport", "Connected to %s", endpoint)

	go m.readLoop(conn, epoch)
	go m.keepaliveLoop(stop)
	return nil
}

// Disconnect tears the connection down deterministically: keepalive and any
// pending reconnect timer are cancelled, the socket is closed and the status
// flips to Disconnected. Reconnection stays disabled until the next Connect.
// Safe to call repeatedly and before any connection was ever established.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.reconnectEnabled = false
	m.teardownLocked()
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Connected.Store(0)
	}
	logger.Info("Transport", "Disconnected")
}

// Send writes one message to the station. While disconnected the message is
// dropped: the loss is recorded as an observable NotConnected error and
// returned, but it must never crash the caller.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.status == StatusConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		err := errdefs.NotConnected("outbound message dropped")
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SendErrors.Add(1)
		}
		logger.Warn("Transport", "Send while disconnected, message dropped")
		return err
	}

	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, payload)
	m.writeMu.Unlock()
	if err != nil {
		terr := errdefs.Transport("write failed", err)
		m.mu.Lock()
		m.lastErr = terr
		m.mu.Unlock()
		return terr
	}
	return nil
}

// teardownLocked invalidates the current connection epoch, cancels both
// timers and closes the socket. Late events from the old connection become
// no-ops once the epoch is bumped.
func (m *Manager) teardownLocked() {
	m.epoch++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// setStatusLocked updates the status and emits the change to the observer
// outside the lock.
func (m *Manager) setStatusLocked(status Status) {
	if m.status == status {
		return
	}
	m.status = status
	cb := m.onStatus
	if cb == nil {
		return
	}
	m.mu.Unlock()
	cb(status)
	m.mu.Lock()
}

// scheduleReconnectLocked arms the single reconnect timer. Any pending timer
// is cancelled first so at most one is ever outstanding.
func (m *Manager) scheduleReconnectLocked() {
	if !m.reconnectEnabled {
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	endpoint := m.endpoint
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		enabled := m.reconnectEnabled
		m.reconnectTimer = nil
		m.mu.Unlock()
		if enabled {
			_ = m.Connect(endpoint)
		}
	})
	if m.metrics != nil {
		m.metrics.Reconnects.Add(1)
	}
	logger.Info("Transport", "Reconnect scheduled in %v", m.reconnectDelay)
}

func (m *Manager) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(epoch, err)
			return
		}

		m.mu.Lock()
		stale := m.epoch != epoch
		m.mu.Unlock()
		if stale {
			return
		}

		if m.metrics != nil {
			m.metrics.BytesReceived.Add(uint64(len(payload)))
		}
		if m.onMessage != nil {
			m.onMessage(payload)
		}
	}
}

func (m *Manager) handleReadError(epoch uint64, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		// Connection was torn down on purpose; nothing to do.
		m.mu.Unlock()
		return
	}
	m.lastErr = errdefs.Transport("connection lost", err)
	m.teardownLocked()
	cur := m.epoch
	m.setStatusLocked(StatusDisconnected)
	if m.epoch == cur {
		// No newer Connect raced in while the status observer ran.
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Connected.Store(0)
	}
	logger.Warn("Transport", "Connection lost: %v", err)
}

func (m *Manager) keepaliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			payload, err := protocol.EncodePing(time.Now())
			if err != nil {
				continue
			}
			if err := m.Send(payload); err != nil {
				// Message loss while disconnected is expected; the read
				// loop owns reconnect scheduling.
				continue
			}
			if m.metrics != nil {
				m.metrics.PingsSent.Add(1)
			}
			logger.Debug("Transport", "Keepalive ping sent")
		}
	}
}
