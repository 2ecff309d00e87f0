package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/shardgate/internal/shard"
)

// Option configures a Shard.
type Option func(*Shard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shard) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObjectSink forwards dispatched objects to sink.
func WithObjectSink(sink shard.ObjectSink) Option {
	return func(s *Shard) {
		s.objects = sink
	}
}

// WithSigner signs the WebSocket upgrade request.
func WithSigner(signer HandshakeSigner) Option {
	return func(s *Shard) {
		s.signer = signer
	}
}

// Shard is one WebSocket connection to the gateway.
type Shard struct {
	id      int
	cfg     Config
	sink    shard.Sink
	objects shard.ObjectSink
	signer  HandshakeSigner
	logger  *slog.Logger

	status atomic.Int32

	mu          sync.Mutex
	sessionID   string
	seq         int64
	current     *attempt
	closed      bool
	connectedAt time.Time
	attempts    int64
}

// attempt is one dial-to-disconnect cycle.
type attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	done    chan struct{}
	failed  chan error
	lastAck atomic.Int64
}

// New creates a disconnected shard that reports lifecycle signals to sink.
func New(id int, cfg Config, sink shard.Sink, opts ...Option) *Shard {
	s := &Shard{
		id:     id,
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("shard_id", id)
	return s
}

func (s *Shard) ID() int { return s.id }

func (s *Shard) Status() shard.Status { return shard.Status(s.status.Load()) }

func (s *Shard) Connecting() bool { return s.Status().Connecting() }

func (s *Shard) Ready() bool { return s.Status() == shard.StatusReady }

func (s *Shard) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Seq returns the last dispatch sequence number seen.
func (s *Shard) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SetSession seeds the session to resume on the next Connect.
func (s *Shard) SetSession(sessionID string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.seq = seq
}

// Connect moves the shard to connecting and dials in the background. It is
// a no-op unless the shard is disconnected and open.
func (s *Shard) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("connect on closed shard ignored")
		return
	}
	if s.current != nil || s.Status() != shard.StatusDisconnected {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		failed: make(chan error, 1),
	}
	a.logger = s.logger.With("attempt_id", a.id)
	s.current = a
	s.attempts++
	s.status.Store(int32(shard.StatusConnecting))

	go s.run(a)
}

// Close ends the current attempt, if any, and prevents new ones. The
// in-flight attempt reports shard.ErrClosed.
func (s *Shard) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	a := s.current
	s.mu.Unlock()

	if a == nil {
		return nil
	}
	a.cancel()

	a.connMu.Lock()
	conn := a.conn
	a.connMu.Unlock()
	if conn == nil {
		return nil
	}

	a.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	a.writeMu.Unlock()
	return conn.Close()
}

// Info is a point-in-time view of a shard for diagnostics.
type Info struct {
	ID          int       `json:"id"`
	Status      string    `json:"status"`
	SessionID   string    `json:"session_id,omitempty"`
	Seq         int64     `json:"seq"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	Attempts    int64     `json:"attempts"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Info returns a diagnostic snapshot.
func (s *Shard) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:          s.id,
		Status:      s.Status().String(),
		SessionID:   s.sessionID,
		Seq:         s.seq,
		Attempts:    s.attempts,
		ConnectedAt: s.connectedAt,
	}
	if s.current != nil {
		info.AttemptID = s.current.id
	}
	return info
}

func (s *Shard) run(a *attempt) {
	err := s.handshakeAndServe(a)

	select {
	case ferr := <-a.failed:
		err = ferr
	default:
	}
	close(a.done)
	a.cancel()

	a.connMu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.connMu.Unlock()

	s.mu.Lock()
	if s.closed {
		err = shard.ErrClosed
	}
	s.current = nil
	s.connectedAt = time.Time{}
	s.status.Store(int32(shard.StatusDisconnected))
	s.mu.Unlock()

	a.logger.Info("shard disconnected", "error", err)
	s.sink.ShardDisconnected(s.id, err)
}

func (s *Shard) handshakeAndServe(a *attempt) error {
	header, err := s.handshakeHeader()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(a.ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()

	// Close may have run between DialContext returning and conn being
	// published; it would not have seen the connection.
	if a.ctx.Err() != nil {
		return shard.ErrClosed
	}

	s.status.Store(int32(shard.StatusHandshaking))
	a.logger.Debug("websocket connected", "url", s.cfg.URL)

	hello, err := s.readHello(a)
	if err != nil {
		return err
	}

	if err := s.sendHandshake(a); err != nil {
		return err
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = s.cfg.HeartbeatInterval
	}
	a.lastAck.Store(time.Now().UnixNano())
	go s.heartbeatLoop(a, interval)

	return s.readLoop(a)
}

func (s *Shard) handshakeHeader() (http.Header, error) {
	header := http.Header{}
	if s.signer != nil {
		path := "/"
		if u, err := url.Parse(s.cfg.URL); err == nil && u.Path != "" {
			path = u.Path
		}
		signed, err := s.signer.HandshakeHeader(path)
		if err != nil {
			return nil, fmt.Errorf("sign handshake: %w", err)
		}
		header = signed
	}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	return header, nil
}

func (s *Shard) readHello(a *attempt) (Hello, error) {
	if s.cfg.HandshakeTimeout > 0 {
		a.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		defer a.conn.SetReadDeadline(time.Time{})
	}

	f, err := readFrame(a.conn)
	if err != nil {
		return Hello{}, fmt.Errorf("read hello: %w", err)
	}
	if f.Op != OpHello {
		return Hello{}, fmt.Errorf("%w: got %q before hello", ErrUnexpectedFrame, f.Op)
	}

	var hello Hello
	if len(f.D) > 0 {
		if err := json.Unmarshal(f.D, &hello); err != nil {
			return Hello{}, fmt.Errorf("decode hello: %w", err)
		}
	}
	return hello, nil
}

// sendHandshake resumes when a session is known and identifies otherwise.
func (s *Shard) sendHandshake(a *attempt) error {
	s.mu.Lock()
	sessionID, seq := s.sessionID, s.seq
	s.mu.Unlock()

	var (
		f   Frame
		err error
	)
	if sessionID != "" {
		a.logger.Debug("resuming session", "session_id", sessionID, "seq", seq)
		f, err = newFrame(OpResume, Resume{Token: s.cfg.Token, SessionID: sessionID, Seq: seq})
	} else {
		count := s.cfg.ShardCount
		if count <= 0 {
			count = 1
		}
		f, err = newFrame(OpIdentify, Identify{Token: s.cfg.Token, Shard: [2]int{s.id, count}})
	}
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	if err := s.write(a, f); err != nil {
		return fmt.Errorf("send %s: %w", f.Op, err)
	}
	return nil
}

func (s *Shard) readLoop(a *attempt) error {
	for {
		f, err := readFrame(a.conn)
		if err != nil {
			if a.ctx.Err() != nil {
				return shard.ErrClosed
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if f.S > 0 {
			s.mu.Lock()
			s.seq = f.S
			s.mu.Unlock()
		}

		switch f.Op {
		case OpDispatch:
			if err := s.handleDispatch(a, f); err != nil {
				return err
			}
		case OpHeartbeatAck:
			a.lastAck.Store(time.Now().UnixNano())
		case OpHeartbeat:
			if err := s.sendHeartbeat(a); err != nil {
				a.logger.Debug("failed to answer heartbeat", "error", err)
			}
		case OpReconnect:
			return ErrReconnectRequested
		case OpInvalidSession:
			var ev InvalidSessionEvent
			if len(f.D) > 0 {
				if err := json.Unmarshal(f.D, &ev); err != nil {
					// Keep the session; the next attempt's resume settles it.
					a.logger.Debug("malformed invalid_session payload", "error", err)
					return ErrInvalidSession
				}
			}
			if !ev.Resumable {
				s.SetSession("", 0)
			}
			return ErrInvalidSession
		default:
			a.logger.Debug("ignoring frame", "op", f.Op)
		}
	}
}

func (s *Shard) handleDispatch(a *attempt, f Frame) error {
	switch f.T {
	case EventReady:
		var ev ReadyEvent
		if err := json.Unmarshal(f.D, &ev); err != nil {
			return fmt.Errorf("decode READY: %w", err)
		}
		s.mu.Lock()
		s.sessionID = ev.SessionID
		s.connectedAt = time.Now()
		s.mu.Unlock()
		s.status.Store(int32(shard.StatusReady))

		a.logger.Info("shard ready", "session_id", ev.SessionID)
		s.sink.SessionStartAcknowledged(s.id)
		s.sink.ShardReady(s.id)

	case EventResumed:
		s.mu.Lock()
		s.connectedAt = time.Now()
		s.mu.Unlock()
		s.status.Store(int32(shard.StatusReady))

		a.logger.Info("shard resumed")
		s.sink.ShardResumed(s.id)

	default:
		if s.objects == nil || len(f.D) == 0 {
			return nil
		}
		var ref objectRef
		if err := json.Unmarshal(f.D, &ref); err != nil || ref.ID == "" {
			return nil
		}
		s.objects.Dispatch(s.id, shard.Object{ID: ref.ID, Kind: f.T, Data: f.D})
	}
	return nil
}

// heartbeatLoop sends heartbeats and fails the attempt when acks stop.
func (s *Shard) heartbeatLoop(a *attempt, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			lastAck := time.Unix(0, a.lastAck.Load())
			if s.cfg.HeartbeatTimeout > 0 && time.Since(lastAck) > s.cfg.HeartbeatTimeout {
				a.logger.Warn("no heartbeat ack, connection stale",
					"last_ack", lastAck,
					"timeout", s.cfg.HeartbeatTimeout,
				)
				a.fail(ErrStaleConnection)
				return
			}
			if err := s.sendHeartbeat(a); err != nil {
				a.logger.Debug("failed to send heartbeat", "error", err)
			}
		}
	}
}

func (s *Shard) sendHeartbeat(a *attempt) error {
	f, err := newFrame(OpHeartbeat, Heartbeat{Seq: s.Seq()})
	if err != nil {
		return err
	}
	return s.write(a, f)
}

func (s *Shard) write(a *attempt, f Frame) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		a.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return a.conn.WriteJSON(f)
}

// fail records err as the reason for ending the attempt and unblocks the
// read loop.
func (a *attempt) fail(err error) {
	select {
	case a.failed <- err:
	default:
	}
	a.connMu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.connMu.Unlock()
}

func readFrame(conn *websocket.Conn) (Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

var _ shard.Shard = (*Shard)(nil)
