package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openreach/browserpilot/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// wsServer is a minimal live-channel peer for exercising the Manager.
type wsServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	// accepted receives each new connection; closed receives a signal when
	// a previously accepted connection dies.
	accepted chan *websocket.Conn
	closed   chan struct{}
	inbound  chan []byte
}

func newWSServer(t *testing.T) (*wsServer, string) {
	t.Helper()
	ws := &wsServer{
		t:        t,
		accepted: make(chan *websocket.Conn, 8),
		closed:   make(chan struct{}, 8),
		inbound:  make(chan []byte, 8),
	}
	server := httptest.NewServer(http.HandlerFunc(ws.handle))
	t.Cleanup(func() {
		ws.mu.Lock()
		for _, conn := range ws.conns {
			_ = conn.Close()
		}
		ws.mu.Unlock()
		server.Close()
	})
	return ws, "ws" + strings.TrimPrefix(server.URL, "http")
}

func (ws *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.mu.Lock()
	ws.conns = append(ws.conns, conn)
	ws.mu.Unlock()
	ws.accepted <- conn

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				ws.closed <- struct{}{}
				return
			}
			ws.inbound <- data
		}
	}()
}

func waitConn(t *testing.T, ws *wsServer) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ws.accepted:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to accept a connection")
		return nil
	}
}

func waitClosed(t *testing.T, ws *wsServer) {
	t.Helper()
	select {
	case <-ws.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection to close")
	}
}

func newTestManager(t *testing.T, baseURL string, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(baseURL, opts...)
	t.Cleanup(m.Disconnect)
	return m
}

func TestConnectReplacesExistingChannel(t *testing.T) {
	ws, baseURL := newWSServer(t)
	m := newTestManager(t, baseURL)

	require.NoError(t, m.Connect(context.Background(), "a"))
	waitConn(t, ws)
	assert.Equal(t, StatusConnected, m.Status())

	// Connecting to B must close A's channel first; at most one channel is
	// ever open per manager.
	require.NoError(t, m.Connect(context.Background(), "b"))
	waitClosed(t, ws)
	waitConn(t, ws)
	assert.Equal(t, StatusConnected, m.Status())
}

func TestSendWhileNotConnectedIsSilentNoOp(t *testing.T) {
	ws, baseURL := newWSServer(t)
	m := newTestManager(t, baseURL)

	// Never connected: must not panic, must not dial.
	m.SendText("dropped")
	assert.Equal(t, StatusIdle, m.Status())
	select {
	case data := <-ws.inbound:
		t.Fatalf("unexpected frame reached the server: %s", data)
	case <-time.After(50 * time.Millisecond):
	}

	// Connected then disconnected: same contract.
	require.NoError(t, m.Connect(context.Background(), "s1"))
	waitConn(t, ws)
	m.Disconnect()
	m.SendText("also dropped")

	select {
	case data := <-ws.inbound:
		t.Fatalf("unexpected frame reached the server after disconnect: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendDeliversFramesInOrder(t *testing.T) {
	ws, baseURL := newWSServer(t)
	m := newTestManager(t, baseURL)

	require.NoError(t, m.Connect(context.Background(), "s1"))
	waitConn(t, ws)

	m.SendText("first")
	m.SendMultimodalQuery("second", "")

	first := <-ws.inbound
	second := <-ws.inbound
	assert.Contains(t, string(first), `"text_input"`)
	assert.Contains(t, string(first), `"first"`)
	assert.Contains(t, string(second), `"multimodal_query"`)
}

func TestConcurrentSendersShareOneChannel(t *testing.T) {
	ws, baseURL := newWSServer(t)
	m := newTestManager(t, baseURL)

	require.NoError(t, m.Connect(context.Background(), "s1"))
	waitConn(t, ws)

	const senders = 4
	const perSender = 16

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				m.SendText("burst")
			}
		}()
	}

	received := 0
	deadline := time.After(5 * time.Second)
	for received < senders*perSender {
		select {
		case data := <-ws.inbound:
			assert.Contains(t, string(data), `"text_input"`)
			received++
		case <-deadline:
			t.Fatalf("received %d of %d frames before timing out", received, senders*perSender)
		}
	}
	wg.Wait()
	assert.Equal(t, StatusConnected, m.Status())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ws, baseURL := newWSServer(t)
	m := newTestManager(t, baseURL)

	require.NoError(t, m.Connect(context.Background(), "s1"))
	waitConn(t, ws)

	m.Disconnect()
	assert.Equal(t, StatusIdle, m.Status())
	m.Disconnect()
	assert.Equal(t, StatusIdle, m.Status())
}

func TestSessionReadyFrameIsLogged(t *testing.T) {
	ws, baseURL := newWSServer(t)

	events := make(chan schemas.LiveEvent, 8)
	m := newTestManager(t, baseURL, WithEventHandler(func(e schemas.LiveEvent) {
		events <- e
	}))

	require.NoError(t, m.Connect(context.Background(), "s1"))
	conn := waitConn(t, ws)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"session_ready","session_id":"s1"}`)))

	select {
	case event := <-events:
		require.Equal(t, schemas.EventSessionReady, event.Kind)
		require.NotNil(t, event.SessionReady)
		assert.Equal(t, "s1", event.SessionReady.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the session_ready event")
	}

	log := m.Events()
	require.Len(t, log, 1)
	assert.Equal(t, schemas.EventSessionReady, log[0].Kind)
	assert.Equal(t, StatusConnected, m.Status())
}

func TestMalformedFrameSynthesizesOneErrorEvent(t *testing.T) {
	ws, baseURL := newWSServer(t)

	events := make(chan schemas.LiveEvent, 8)
	m := newTestManager(t, baseURL, WithEventHandler(func(e schemas.LiveEvent) {
		events <- e
	}))

	require.NoError(t, m.Connect(context.Background(), "s1"))
	conn := waitConn(t, ws)

	// A malformed frame followed by a valid one: both must be logged, in
	// receive order, with the malformed frame as exactly one error entry.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not-json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"text_response","answer":"ok"}`)))

	for i := 0; i < 2; i++ {
		select {
		case <-events:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	log := m.Events()
	require.Len(t, log, 2)
	require.Equal(t, schemas.EventError, log[0].Kind)
	require.NotNil(t, log[0].Err)
	assert.NotEmpty(t, log[0].Err.Message)
	assert.Equal(t, schemas.EventTextResponse, log[1].Kind)
}

func TestServerCloseReturnsManagerToIdle(t *testing.T) {
	ws, baseURL := newWSServer(t)

	statuses := make(chan Status, 8)
	m := newTestManager(t, baseURL, WithStatusHandler(func(s Status) {
		statuses <- s
	}))

	require.NoError(t, m.Connect(context.Background(), "s1"))
	conn := waitConn(t, ws)

	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-statuses:
			if s == StatusIdle {
				assert.Equal(t, StatusIdle, m.Status())
				return
			}
		case <-deadline:
			t.Fatal("manager never returned to idle after a normal close")
		}
	}
}

func TestDialFailureRecordsTransportFault(t *testing.T) {
	// Nothing is listening here.
	m := newTestManager(t, "ws://127.0.0.1:1")

	err := m.Connect(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, StatusError, m.Status())

	log := m.Events()
	require.Len(t, log, 1)
	assert.Equal(t, schemas.EventError, log[0].Kind)

	// error -> idle on close.
	m.Disconnect()
	assert.Equal(t, StatusIdle, m.Status())
}

func TestEventLogSurvivesReconnect(t *testing.T) {
	ws, baseURL := newWSServer(t)

	events := make(chan schemas.LiveEvent, 8)
	m := newTestManager(t, baseURL, WithEventHandler(func(e schemas.LiveEvent) {
		events <- e
	}))

	require.NoError(t, m.Connect(context.Background(), "a"))
	conn := waitConn(t, ws)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"session_ready","session_id":"a"}`)))
	<-events

	require.NoError(t, m.Connect(context.Background(), "b"))
	waitConn(t, ws)

	// The log is owned by the manager, not the channel: reconnecting must
	// not truncate it.
	assert.Equal(t, 1, m.Log().Len())
}
