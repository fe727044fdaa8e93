package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openreach/browserpilot/api/schemas"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024 * 1024 // 4MB
)

// Status is the connection state of the live channel.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// Manager owns at most one live channel to the pilot service at a time.
// Connect is not additive: it always tears down the previous channel before
// opening a new one. Send while not connected is a silent no-op by contract.
// Transport and parse failures never escape as errors to the pump loop; they
// are recorded on the event log and reflected in the status machine.
// All methods are safe for concurrent use.
type Manager struct {
	baseURL  string
	dialer   *websocket.Dialer
	logger   *zap.Logger
	onStatus func(Status)
	onEvent  func(schemas.LiveEvent)

	// log is created once and survives reconnects; it is never truncated.
	log *EventLog

	// writeMu serializes data writes to the connection; the peer forbids
	// concurrent writers. Control frames (ping, close) are exempt and stay
	// unguarded.
	writeMu sync.Mutex

	mu     sync.Mutex
	status Status
	conn   *websocket.Conn
	// gen identifies the current channel handle. Pumps capture the value
	// they were started with; a mismatch means their channel was torn down
	// and anything they deliver late must be discarded.
	gen  int
	done chan struct{}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger.Named("stream") }
}

// WithDialer swaps the websocket dialer, typically for tests or proxying.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = dialer }
}

// WithStatusHandler registers a callback fired on every status change.
// The callback must not call back into the Manager.
func WithStatusHandler(fn func(Status)) Option {
	return func(m *Manager) { m.onStatus = fn }
}

// WithEventHandler registers a callback fired for every logged event.
// The callback must not call back into the Manager.
func WithEventHandler(fn func(schemas.LiveEvent)) Option {
	return func(m *Manager) { m.onEvent = fn }
}

// NewManager builds a Manager for the service rooted at baseURL
// (ws:// or wss://). The manager starts idle with an empty event log.
func NewManager(baseURL string, opts ...Option) *Manager {
	m := &Manager{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		logger:  zap.NewNop(),
		log:     NewEventLog(),
		status:  StatusIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status reports the current channel state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Events returns a snapshot of the event log in arrival order.
func (m *Manager) Events() []schemas.LiveEvent {
	return m.log.Events()
}

// Log exposes the underlying event log.
func (m *Manager) Log() *EventLog {
	return m.log
}

// Connect opens the live channel for a session, unconditionally tearing down
// any existing channel first so at most one is ever open. The dial error, if
// any, is also recorded on the event log and in the status machine so
// declarative consumers observe the failure.
func (m *Manager) Connect(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.teardownLocked()
	m.status = StatusConnecting
	gen := m.gen
	m.mu.Unlock()
	m.notify(StatusConnecting)

	endpoint := m.baseURL + "/live/" + sessionID
	m.logger.Debug("opening live channel", zap.String("endpoint", endpoint))

	conn, _, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		m.mu.Lock()
		faulted := gen == m.gen
		if faulted {
			m.status = StatusError
			m.log.Append(transportFault(err))
		}
		m.mu.Unlock()
		if faulted {
			m.notify(StatusError)
		}
		return fmt.Errorf("opening live channel for session %q: %w", sessionID, err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// A disconnect or another connect raced the handshake; this
		// handle lost and must be released, not installed.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.status = StatusConnected
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go m.readPump(conn, gen)
	go m.pingLoop(conn, done)

	m.notify(StatusConnected)
	m.logger.Info("live channel connected", zap.String("session_id", sessionID))
	return nil
}

// Disconnect closes the live channel and returns the manager to idle. It is
// idempotent and is the sole release path for the channel handle; component
// teardown must always route through it.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	changed := m.status != StatusIdle
	m.teardownLocked()
	m.mu.Unlock()
	if changed {
		m.notify(StatusIdle)
		m.logger.Info("live channel disconnected")
	}
}

// Send marshals one outbound frame onto the channel. While the channel is
// not connected this is a silent no-op: no error, no queueing, no retry.
func (m *Manager) Send(frame any) {
	m.mu.Lock()
	if m.status != StatusConnected || m.conn == nil {
		m.mu.Unlock()
		m.logger.Debug("send skipped, channel not connected")
		return
	}
	conn := m.conn
	gen := m.gen
	m.mu.Unlock()

	raw, err := jsonAPI.Marshal(frame)
	if err != nil {
		m.logger.Error("failed to encode outbound frame", zap.Error(err))
		return
	}

	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, raw)
	m.writeMu.Unlock()
	if err != nil {
		m.channelFault(gen, err)
	}
}

// SendText sends a text_input frame.
func (m *Manager) SendText(text string) {
	m.Send(schemas.NewTextInput(text))
}

// SendAudioChunk sends an audio_chunk frame.
func (m *Manager) SendAudioChunk(audioB64 string, timestamp float64) {
	m.Send(schemas.NewAudioChunk(audioB64, timestamp))
}

// SendVideoFrame sends a video_frame frame.
func (m *Manager) SendVideoFrame(imageB64 string, timestamp float64) {
	m.Send(schemas.NewVideoFrame(imageB64, timestamp))
}

// SendMultimodalQuery sends a multimodal_query frame.
func (m *Manager) SendMultimodalQuery(text, imageB64 string) {
	m.Send(schemas.NewMultimodalQuery(text, imageB64))
}

// teardownLocked releases the current handle, if any, and resets to idle.
// Bumping gen first guarantees in-flight pumps see their channel as stale.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = m.conn.Close()
		m.conn = nil
	}
	m.status = StatusIdle
}

// readPump reads frames off one channel handle until it dies. Every frame,
// malformed or not, becomes exactly one logged event in receive order.
func (m *Manager) readPump(conn *websocket.Conn, gen int) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.readClosed(gen, err)
			return
		}
		m.dispatch(gen, data)
	}
}

// dispatch normalizes and logs one inbound frame, unless the frame belongs
// to a channel that has since been torn down.
func (m *Manager) dispatch(gen int, data []byte) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	event := Normalize(data)
	m.log.Append(event)
	cb := m.onEvent
	m.mu.Unlock()

	if event.Kind == schemas.EventError && event.Err != nil {
		m.logger.Warn("live channel error event", zap.String("message", event.Err.Message))
	}
	if cb != nil {
		cb(event)
	}
}

// readClosed handles the end of a read pump: a normal close returns the
// manager to idle, anything else is a transport fault.
func (m *Manager) readClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// This pump's channel was already replaced or released.
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	next := StatusError
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		next = StatusIdle
	} else {
		m.log.Append(transportFault(err))
	}
	m.status = next
	m.mu.Unlock()

	if next == StatusError {
		m.logger.Warn("live channel fault", zap.Error(err))
	}
	m.notify(next)
}

// channelFault tears down the current handle after a write failure.
func (m *Manager) channelFault(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.status = StatusError
	m.log.Append(transportFault(err))
	m.mu.Unlock()

	m.logger.Warn("live channel write fault", zap.Error(err))
	m.notify(StatusError)
}

// pingLoop keeps one channel handle alive until it is released.
func (m *Manager) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (m *Manager) notify(status Status) {
	if m.onStatus != nil {
		m.onStatus(status)
	}
}

// transportFault synthesizes the log entry for a channel-level failure.
func transportFault(err error) schemas.LiveEvent {
	return schemas.LiveEvent{
		Kind: schemas.EventError,
		Err:  &schemas.ErrorEvent{Message: "transport: " + err.Error()},
	}
}
