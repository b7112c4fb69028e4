// Package chat manages AI chat sessions and their streaming connections.
// A Manager owns at most one live duplex connection; inbound stream
// fragments accumulate in a buffer that is finalised into an assistant
// message when the end-of-stream frame arrives.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/codecompass/compass-go/api"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State of the current chat session's connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected" // live connection, no generation in flight
	StateStreaming  State = "streaming"
	StateError      State = "error"
)

// Sentinel errors returned by Send. Both leave the session untouched.
var (
	ErrNotConnected = errors.New("no open chat connection")
	ErrStreaming    = errors.New("a response is already streaming")
)

// Inbound frame type tags.
const (
	frameStreamChunk = "stream_chunk"
	frameStreamEnd   = "stream_end"
	frameStreamError = "stream_error"
)

type inboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type outboundFrame struct {
	Message string `json:"message"`
}

// Snapshot is the read-only view handed to the UI layer.
type Snapshot struct {
	SessionID        string
	State            State
	Messages         []api.ChatMessage
	StreamingContent string
}

// Handler receives session updates. Callbacks are invoked outside the
// manager's lock and may be nil.
type Handler struct {
	OnUpdate func(Snapshot)
	OnError  func(error)
}

// Manager is the streaming session manager. It owns the connection handle
// exclusively; no other component reads or writes it.
type Manager struct {
	api       *api.Client
	wsBaseURL string
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	handler   Handler
	nowTime   func() time.Time

	lock      sync.Mutex
	sessionID string
	state     State
	messages  []api.ChatMessage
	buffer    strings.Builder
	conn      *websocket.Conn
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger.With().Str("component", "chat").Logger() }
}

func WithHandler(handler Handler) ManagerOption {
	return func(m *Manager) { m.handler = handler }
}

func WithDialer(dialer *websocket.Dialer) ManagerOption {
	return func(m *Manager) { m.dialer = dialer }
}

// WithNowTime sets the clock used for message timestamps (for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// NewManager creates a streaming session manager. wsBaseURL is the
// streaming collaborator root, e.g. "wss://host".
func NewManager(apiClient *api.Client, wsBaseURL string, options ...ManagerOption) *Manager {
	manager := &Manager{
		api:       apiClient,
		wsBaseURL: strings.TrimRight(wsBaseURL, "/"),
		dialer:    websocket.DefaultDialer,
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
		state:     StateIdle,
	}
	for _, opt := range options {
		opt(manager)
	}
	return manager
}

// SelectSession loads a session's history from the REST collaborator and
// opens its streaming connection, tearing down any previously open
// connection first. A session holds at most one live connection.
func (m *Manager) SelectSession(ctx context.Context, sessionID string) error {
	chatSession, err := m.api.GetChatSession(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "[Manager.SelectSession] GetChatSession")
	}

	m.teardown()

	m.lock.Lock()
	m.sessionID = sessionID
	m.messages = append([]api.ChatMessage(nil), chatSession.Messages...)
	m.buffer.Reset()
	m.state = StateConnecting
	m.lock.Unlock()
	m.notifyUpdate()

	conn, _, err := m.dialer.DialContext(ctx, m.wsBaseURL+"/ws/chat/"+sessionID+"/", nil)
	if err != nil {
		m.lock.Lock()
		m.state = StateError
		m.lock.Unlock()
		m.notifyUpdate()
		return errors.Wrap(err, "[Manager.SelectSession] dial")
	}

	m.lock.Lock()
	m.conn = conn
	m.state = StateConnected
	m.lock.Unlock()
	m.notifyUpdate()

	m.logger.Info().Str("session_id", sessionID).Msg("chat connected")
	go m.readLoop(conn)
	return nil
}

// Send transmits a user message. It refuses when no connection is open or
// a generation is already streaming; either way the message list and the
// stream buffer are left untouched. The user message is appended
// optimistically, without waiting for server acknowledgment.
func (m *Manager) Send(content string) error {
	m.lock.Lock()
	if m.conn == nil {
		m.lock.Unlock()
		return ErrNotConnected
	}
	if m.state == StateStreaming {
		m.lock.Unlock()
		return ErrStreaming
	}

	m.messages = append(m.messages, api.ChatMessage{
		Role:      api.MessageRoleUser,
		Content:   content,
		CreatedAt: m.nowTime(),
	})
	m.buffer.Reset()
	m.state = StateStreaming
	conn := m.conn
	m.lock.Unlock()
	m.notifyUpdate()

	if err := conn.WriteJSON(outboundFrame{Message: content}); err != nil {
		m.lock.Lock()
		if m.conn == conn {
			m.state = StateError
			m.buffer.Reset()
		}
		m.lock.Unlock()
		m.notifyError(err)
		return errors.Wrap(err, "[Manager.Send] write")
	}
	return nil
}

// Disconnect closes the live connection, discarding any in-progress
// stream buffer without emitting a partial message. Idempotent.
func (m *Manager) Disconnect() {
	m.lock.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateIdle
	m.buffer.Reset()
	m.lock.Unlock()

	if conn != nil {
		_ = conn.Close()
		m.logger.Info().Msg("chat disconnected")
	}
}

// Snapshot returns a copy of the session state for the UI layer.
func (m *Manager) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return Snapshot{
		SessionID:        m.sessionID,
		State:            m.state,
		Messages:         append([]api.ChatMessage(nil), m.messages...),
		StreamingContent: m.buffer.String(),
	}
}

// FetchSessions lists the user's chat sessions.
func (m *Manager) FetchSessions(ctx context.Context) ([]api.ChatSession, error) {
	return m.api.ListChatSessions(ctx)
}

// CreateSession creates a new conversation thread. The caller follows up
// with SelectSession to open its connection.
func (m *Manager) CreateSession(ctx context.Context, contextType string) (*api.ChatSession, error) {
	return m.api.CreateChatSession(ctx, contextType)
}

// teardown closes the current connection, whatever its state.
func (m *Manager) teardown() {
	m.lock.Lock()
	conn := m.conn
	m.conn = nil
	m.lock.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop delivers inbound frames in transport order until the
// connection dies or is replaced.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.lock.Lock()
			current := m.conn == conn
			if current {
				// Transport failure on the live connection.
				m.conn = nil
				m.state = StateError
				m.buffer.Reset()
			}
			m.lock.Unlock()

			if current {
				m.logger.Warn().Err(err).Msg("chat connection lost")
				m.notifyError(err)
				m.notifyUpdate()
			}
			return
		}
		m.handleFrame(conn, raw)
	}
}

// handleFrame dispatches one inbound frame by its type tag. Frames that
// fail to parse as the expected envelope are dropped.
func (m *Manager) handleFrame(conn *websocket.Conn, raw []byte) {
	frame, err := parseFrame(raw)
	if err != nil {
		m.logger.Debug().Err(err).Msg("dropping unparseable chat frame")
		return
	}

	m.lock.Lock()
	if m.conn != conn {
		// Frame from a torn-down connection.
		m.lock.Unlock()
		return
	}

	switch frame.Type {
	case frameStreamChunk:
		// Arrival order is concatenation order.
		m.buffer.WriteString(frame.Content)
		m.lock.Unlock()
		m.notifyUpdate()

	case frameStreamEnd:
		m.messages = append(m.messages, api.ChatMessage{
			ID:        frame.MessageID,
			Role:      api.MessageRoleAssistant,
			Content:   m.buffer.String(),
			CreatedAt: m.nowTime(),
		})
		m.buffer.Reset()
		m.state = StateConnected
		m.lock.Unlock()
		m.notifyUpdate()

	case frameStreamError:
		m.buffer.Reset()
		m.state = StateConnected
		m.lock.Unlock()
		m.logger.Warn().Str("error", frame.Error).Msg("stream error frame")
		m.notifyError(errors.New(frame.Error))
		m.notifyUpdate()

	default:
		m.lock.Unlock()
		m.logger.Debug().Str("type", frame.Type).Msg("dropping unknown chat frame")
	}
}

func parseFrame(raw []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return inboundFrame{}, err
	}
	return frame, nil
}

func (m *Manager) notifyUpdate() {
	if m.handler.OnUpdate != nil {
		m.handler.OnUpdate(m.Snapshot())
	}
}

func (m *Manager) notifyError(err error) {
	if m.handler.OnError != nil {
		m.handler.OnError(err)
	}
}
