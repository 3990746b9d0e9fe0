// Package session maintains the single resilient WebSocket connection to the
// notes application: authenticated dial, automatic reconnection with a fixed
// delay, typed outbound senders, and a correlation table for request/response
// exchanges multiplexed over the same stream.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jamesshedden/clawcontrol-openclaw/internal/metrics"
	"github.com/jamesshedden/clawcontrol-openclaw/pkg/protocol"
)

const (
	// DefaultRequestTimeout bounds a request/response exchange when the
	// caller does not supply a timeout.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultReconnectDelay is the fixed wait before a reconnect attempt.
	// No backoff growth, no retry cap.
	DefaultReconnectDelay = 3 * time.Second
)

// ErrRequestTimeout is returned by SendRequest when no matching response
// arrives before the deadline.
var ErrRequestTimeout = errors.New("request timed out")

// Config holds session configuration.
type Config struct {
	BaseURL        string // http(s) address of the notes app plugin
	Token          string // shared secret sent as the ws token query parameter
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// pendingRequest tracks one in-flight request/response exchange.
type pendingRequest struct {
	createdAt time.Time
	deadline  time.Time
	result    chan json.RawMessage
}

// Session owns the socket. All other components observe it only through Send
// and the registered inbound callbacks.
type Session struct {
	baseURL        string
	token          string
	reconnectDelay time.Duration
	requestTimeout time.Duration
	log            *zap.Logger

	mu             sync.Mutex
	state          State
	retired        bool
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	pending        map[string]*pendingRequest
	threads        []protocol.Thread

	onThreadList  func([]protocol.Thread)
	onUserMessage func(protocol.UserMessage)
	onSyncPush    func(protocol.FileSyncPush)
	onSnapshotAck func(protocol.FileSnapshotAck)

	writeMu    sync.Mutex
	reqCounter atomic.Uint64
}

// New creates a session. It does not connect; call Connect.
func New(cfg Config) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		reconnectDelay: cfg.ReconnectDelay,
		requestTimeout: cfg.RequestTimeout,
		log:            cfg.Logger,
		state:          StateDisconnected,
		pending:        make(map[string]*pendingRequest),
	}
}

// OnThreadList registers the observer notified when a fresh thread list
// replaces the cache.
func (s *Session) OnThreadList(fn func([]protocol.Thread)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onThreadList = fn
}

// OnUserMessage registers the callback for inbound conversational messages.
func (s *Session) OnUserMessage(fn func(protocol.UserMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUserMessage = fn
}

// OnSyncPush registers the handler for remotely-originated file changes.
func (s *Session) OnSyncPush(fn func(protocol.FileSyncPush)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSyncPush = fn
}

// OnSnapshotAck registers the handler for snapshot acknowledgments.
func (s *Session) OnSnapshotAck(fn func(protocol.FileSnapshotAck)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSnapshotAck = fn
}

// Connect starts a connection attempt in the background. Idempotent: a
// session that is already connecting, connected, or permanently retired is
// left alone.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return
	}
	next, _ := Transition(s.state, EventDial)
	if next == s.state {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	go s.dial()
}

// Disconnect tears the session down intentionally: cancels any scheduled
// reconnect and closes the transport. No reconnect follows. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.state == StateDisconnected && s.conn == nil {
		s.mu.Unlock()
		return
	}
	var effect Effect
	s.state, effect = Transition(s.state, EventDisconnect)
	conn := s.conn
	s.mu.Unlock()

	if effect == EffectCloseTransport && conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	metrics.SetConnected(false)
}

// IsConnected reports whether the session currently holds an open socket.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Threads returns a copy of the most recently received thread list.
func (s *Session) Threads() []protocol.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Thread(nil), s.threads...)
}

func (s *Session) dial() {
	endpoint, err := Endpoint(s.baseURL, s.token)
	if err != nil {
		s.log.Error("invalid base address", zap.String("base_url", s.baseURL), zap.Error(err))
		s.transitionClose(false)
		return
	}

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		s.log.Warn("dial failed", zap.Error(err))
		s.transitionClose(false)
		return
	}

	s.mu.Lock()
	var effect Effect
	s.state, effect = Transition(s.state, EventOpen)
	if effect != EffectHandshake {
		// Disconnect won the race; discarding the socket is this dial's
		// close event, and it must settle the state machine too.
		s.state, _ = Transition(s.state, EventClose)
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	metrics.SetConnected(true)
	s.log.Info("connected", zap.String("server", s.baseURL))
	s.Send(protocol.Handshake{Type: protocol.TypeConnected})

	go s.readLoop(conn)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			superseded := errors.As(err, &ce) && ce.Code == protocol.CloseSuperseded
			if superseded {
				s.log.Info("session superseded by a newer connection, retiring")
			} else {
				s.log.Warn("connection closed", zap.Error(err))
			}
			s.transitionClose(superseded)
			return
		}
		s.dispatch(data)
	}
}

// transitionClose drives the state machine for a close event and schedules
// the fixed-delay reconnect when the close was neither intentional nor
// superseded. Pending requests are left to their own deadlines: a fast
// reconnect can still deliver a late response.
func (s *Session) transitionClose(superseded bool) {
	ev := EventClose
	if superseded {
		ev = EventCloseSuperseded
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	var effect Effect
	s.state, effect = Transition(s.state, ev)
	if effect == EffectRetire {
		s.retired = true
	}
	schedule := effect == EffectReconnect && s.reconnectTimer == nil
	if schedule {
		s.reconnectTimer = time.AfterFunc(s.reconnectDelay, func() {
			s.mu.Lock()
			s.reconnectTimer = nil
			s.mu.Unlock()
			s.Connect()
		})
	}
	s.mu.Unlock()

	metrics.SetConnected(false)
	if schedule {
		metrics.RecordReconnectScheduled()
		s.log.Info("reconnect scheduled", zap.Duration("delay", s.reconnectDelay))
	}
}

// Send transmits a frame when connected. While disconnected it logs and
// drops; it never fails the caller.
func (s *Session) Send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return
	}
	env, _ := protocol.DecodeEnvelope(data)
	s.sendRaw(env.Type, data)
}

func (s *Session) sendRaw(frameType string, data []byte) {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected && conn != nil
	s.mu.Unlock()

	if !connected {
		s.log.Debug("dropping frame while disconnected", zap.String("type", frameType))
		metrics.RecordFrameDropped()
		return
	}

	s.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		// the read loop observes the broken socket as a close and recovers
		s.log.Warn("write failed", zap.String("type", frameType), zap.Error(err))
		return
	}
	metrics.RecordFrameSent(frameType)
}

// SendText emits a chunk of agent reply text, optionally scoped to a
// conversation id and thread id.
func (s *Session) SendText(id, threadID, content string) {
	s.Send(protocol.AgentText{Type: protocol.TypeAgentText, ID: id, ThreadID: threadID, Content: content})
}

// SendTyping signals that the agent is composing a reply.
func (s *Session) SendTyping(id, threadID string) {
	s.Send(protocol.AgentSignal{Type: protocol.TypeAgentTyping, ID: id, ThreadID: threadID})
}

// SendDone signals that the agent finished its reply.
func (s *Session) SendDone(id, threadID string) {
	s.Send(protocol.AgentSignal{Type: protocol.TypeAgentDone, ID: id, ThreadID: threadID})
}

// SendError reports a failure as text on the wire.
func (s *Session) SendError(id, threadID, message string) {
	s.Send(protocol.ErrorFrame{Type: protocol.TypeErrorFrame, ID: id, ThreadID: threadID, Error: message})
}

// SendPulse emits a liveness frame.
func (s *Session) SendPulse(content string) {
	s.Send(protocol.Pulse{Type: protocol.TypePulse, Content: content})
}

// SendRequest sends a request frame and waits for the response carrying the
// same requestId, or fails with ErrRequestTimeout at the deadline. Responses
// are matched purely by correlation id, never by send order, so any number
// of requests may be outstanding at once. A connection drop does not fail
// pending requests; they run to their own deadlines.
func (s *Session) SendRequest(ctx context.Context, kind string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.requestTimeout
	}
	id := s.nextRequestID()
	data, err := protocol.Request(kind, id, params)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	now := time.Now()
	pr := &pendingRequest{
		createdAt: now,
		deadline:  now.Add(timeout),
		result:    make(chan json.RawMessage, 1),
	}
	s.mu.Lock()
	s.pending[id] = pr
	s.mu.Unlock()
	metrics.RequestStarted()
	defer metrics.RequestFinished()

	s.sendRaw(kind, data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case raw := <-pr.result:
		return raw, nil
	case <-timer.C:
		s.removePending(id)
		metrics.RecordRequestTimeout()
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrRequestTimeout)
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	}
}

// RequestThreadList asks the app for the current thread list. The refreshed
// list also arrives as a thread_list frame and updates the cache.
func (s *Session) RequestThreadList(ctx context.Context) (json.RawMessage, error) {
	return s.SendRequest(ctx, protocol.TypeThreadListRequest, nil, 0)
}

// RequestThreadInfo asks the app for details about one thread.
func (s *Session) RequestThreadInfo(ctx context.Context, threadID string) (json.RawMessage, error) {
	return s.SendRequest(ctx, protocol.TypeThreadInfoRequest, map[string]any{"threadId": threadID}, 0)
}

func (s *Session) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// nextRequestID combines a timestamp with a monotonic counter so ids stay
// unique across reconnects.
func (s *Session) nextRequestID() string {
	return fmt.Sprintf("req-%d-%d", time.Now().UnixMilli(), s.reqCounter.Add(1))
}

// dispatch routes one inbound frame by its type discriminant. Malformed or
// unrecognized frames are logged and dropped; the connection stays open.
func (s *Session) dispatch(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.log.Warn("protocol error: undecodable frame", zap.Error(err))
		metrics.RecordProtocolError()
		return
	}
	metrics.RecordFrameReceived(env.Type)

	switch env.Type {
	case protocol.TypeResponse:
		s.mu.Lock()
		pr, ok := s.pending[env.RequestID]
		if ok {
			delete(s.pending, env.RequestID)
		}
		s.mu.Unlock()
		if !ok {
			// unknown or already expired; drop silently
			s.log.Debug("response without a pending request", zap.String("request_id", env.RequestID))
			return
		}
		pr.result <- json.RawMessage(data)

	case protocol.TypeThreadList:
		var tl protocol.ThreadList
		if err := json.Unmarshal(data, &tl); err != nil {
			s.log.Warn("protocol error: bad thread_list frame", zap.Error(err))
			metrics.RecordProtocolError()
			return
		}
		s.mu.Lock()
		s.threads = tl.Threads
		fn := s.onThreadList
		threads := append([]protocol.Thread(nil), tl.Threads...)
		s.mu.Unlock()
		s.log.Debug("thread list replaced", zap.Int("threads", len(threads)))
		if fn != nil {
			fn(threads)
		}

	case protocol.TypeUserMessage:
		var msg protocol.UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("protocol error: bad user_message frame", zap.Error(err))
			metrics.RecordProtocolError()
			return
		}
		if msg.Content == "" {
			s.log.Debug("user message without content ignored", zap.String("id", msg.ID))
			return
		}
		s.mu.Lock()
		fn := s.onUserMessage
		s.mu.Unlock()
		if fn != nil {
			fn(msg)
		}

	case protocol.TypeFileSyncPush:
		var push protocol.FileSyncPush
		if err := json.Unmarshal(data, &push); err != nil {
			s.log.Warn("protocol error: bad file_sync_push frame", zap.Error(err))
			metrics.RecordProtocolError()
			return
		}
		s.mu.Lock()
		fn := s.onSyncPush
		s.mu.Unlock()
		if fn == nil {
			s.log.Debug("file_sync_push dropped, no handler registered")
			return
		}
		fn(push)

	case protocol.TypeFileSnapshotAck:
		var ack protocol.FileSnapshotAck
		if err := json.Unmarshal(data, &ack); err != nil {
			s.log.Warn("protocol error: bad file_snapshot_ack frame", zap.Error(err))
			metrics.RecordProtocolError()
			return
		}
		s.mu.Lock()
		fn := s.onSnapshotAck
		s.mu.Unlock()
		if fn == nil {
			s.log.Debug("file_snapshot_ack dropped, no handler registered")
			return
		}
		fn(ack)

	default:
		s.log.Warn("protocol error: unrecognized frame type", zap.String("type", env.Type))
		metrics.RecordProtocolError()
	}
}
