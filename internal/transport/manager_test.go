package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autovrs-client/internal/errdefs"
	"autovrs-client/internal/metrics"
)

// station is a minimal in-process stand-in for the inspection station.
type station struct {
	srv   *httptest.Server
	mu    sync.Mutex
	dials int
	conns chan *websocket.Conn
	recv  chan []byte
}

func newStation(t *testing.T) *station {
	t.Helper()
	st := &station{
		conns: make(chan *websocket.Conn, 8),
		recv:  make(chan []byte, 32),
	}
	upgrader := websocket.Upgrader{}
	st.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		st.mu.Lock()
		st.dials++
		st.mu.Unlock()
		st.conns <- conn
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			st.recv <- payload
		}
	}))
	t.Cleanup(st.srv.Close)
	return st
}

func (s *station) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *station) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *station) acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("station accepted no connection")
		return nil
	}
}

// statusRecorder collects status transitions emitted by the manager.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func TestConnectDeliversMessagesInOrder(t *testing.T) {
	st := newStation(t)
	rec := &statusRecorder{}

	var mu sync.Mutex
	var got []string
	m := NewManager(Options{
		OnMessage: func(payload []byte) {
			mu.Lock()
			got = append(got, string(payload))
			mu.Unlock()
		},
		OnStatus: rec.record,
	})
	defer m.Disconnect()

	require.NoError(t, m.Connect(st.url()))
	assert.True(t, m.IsConnected())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, rec.all())

	conn := st.acceptConn(t)
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
	mu.Unlock()
}

func TestSendWhileDisconnected(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(Options{Metrics: m})

	err := mgr.Send([]byte(`{"type":"get_status"}`))
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotConnected))
	assert.True(t, errdefs.IsKind(mgr.LastError(), errdefs.KindNotConnected))
	assert.Equal(t, uint64(1), m.SendErrors.Load())
}

func TestSendReachesStation(t *testing.T) {
	st := newStation(t)
	m := NewManager(Options{})
	defer m.Disconnect()

	require.NoError(t, m.Connect(st.url()))
	st.acceptConn(t)
	require.NoError(t, m.Send([]byte(`{"type":"get_status"}`)))

	select {
	case payload := <-st.recv:
		assert.JSONEq(t, `{"type":"get_status"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("station received nothing")
	}
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	st := newStation(t)
	rec := &statusRecorder{}
	m := metrics.New()
	mgr := NewManager(Options{
		ReconnectDelay: 20 * time.Millisecond,
		OnStatus:       rec.record,
		Metrics:        m,
	})
	defer mgr.Disconnect()

	require.NoError(t, mgr.Connect(st.url()))
	conn := st.acceptConn(t)

	// Station drops the connection; the client must come back on its own.
	conn.Close()

	require.Eventually(t, func() bool {
		return st.dialCount() == 2 && mgr.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []Status{
		StatusConnecting, StatusConnected,
		StatusDisconnected,
		StatusConnecting, StatusConnected,
	}, rec.all())
	assert.GreaterOrEqual(t, m.Reconnects.Load(), uint64(1))
	assert.True(t, errdefs.IsKind(mgr.LastError(), errdefs.KindTransportError))
}

func TestDisconnectStopsReconnection(t *testing.T) {
	st := newStation(t)
	m := NewManager(Options{ReconnectDelay: 20 * time.Millisecond})

	require.NoError(t, m.Connect(st.url()))
	st.acceptConn(t)

	m.Disconnect()
	assert.Equal(t, StatusDisconnected, m.Status())

	// No redial may happen after an intentional disconnect.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, st.dialCount())
	assert.False(t, m.IsConnected())
}

func TestDisconnectBeforeConnectIsSafe(t *testing.T) {
	m := NewManager(Options{})
	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestDialFailureSchedulesRetry(t *testing.T) {
	st := newStation(t)
	endpoint := st.url()
	st.srv.Close() // nobody home

	m := metrics.New()
	mgr := NewManager(Options{ReconnectDelay: 20 * time.Millisecond, Metrics: m})
	defer mgr.Disconnect()

	err := mgr.Connect(endpoint)
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindTransportError))
	assert.Equal(t, StatusDisconnected, mgr.Status())

	// The retry timer keeps firing against the dead endpoint.
	require.Eventually(t, func() bool {
		return m.Reconnects.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectWhileConnectedSupersedes(t *testing.T) {
	st := newStation(t)

	var mu sync.Mutex
	var got []string
	m := NewManager(Options{
		OnMessage: func(payload []byte) {
			mu.Lock()
			got = append(got, string(payload))
			mu.Unlock()
		},
	})
	defer m.Disconnect()

	require.NoError(t, m.Connect(st.url()))
	first := st.acceptConn(t)

	require.NoError(t, m.Connect(st.url()))
	second := st.acceptConn(t)
	require.True(t, m.IsConnected())

	// The first connection is gone; only the second one delivers.
	require.Eventually(t, func() bool {
		return first.WriteMessage(websocket.TextMessage, []byte("stale")) != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("fresh")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"fresh"}, got)
	mu.Unlock()
}

func TestKeepalivePings(t *testing.T) {
	st := newStation(t)
	m := metrics.New()
	mgr := NewManager(Options{HeartbeatInterval: 15 * time.Millisecond, Metrics: m})
	defer mgr.Disconnect()

	require.NoError(t, mgr.Connect(st.url()))
	st.acceptConn(t)

	select {
	case payload := <-st.recv:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, "ping", msg["type"])
		assert.Greater(t, msg["timestamp"].(float64), 0.0)
	case <-time.After(2 * time.Second):
		t.Fatal("no keepalive ping arrived")
	}

	require.Eventually(t, func() bool {
		return m.PingsSent.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
