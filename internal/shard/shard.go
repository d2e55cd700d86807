package shard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/queue"
	"github.com/rickgao/discord-data/internal/zlibstream"
)

const (
	gatewayVersion   = "10"
	identifyName     = "discord-data"
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	redialWait       = 1 * time.Second
)

// Shard is one gateway connection.
type Shard interface {
	// Start begins the connect/reconnect loop.
	Start(ctx context.Context) error

	// Stop shuts the shard down. The close frame uses an application close
	// code so the gateway keeps the session resumable for a later restart.
	Stop(ctx context.Context) error

	// Events returns the ordered event stream: dispatches plus lifecycle
	// pseudo-events. The channel is closed once the shard shuts down.
	// Consumers must keep up; the shard blocks rather than drop events.
	Events() <-chan discord.Event

	// Send writes a command payload (presence update, voice state update,
	// guild member request) to the gateway. Returns ErrNotConnected unless
	// the shard is in the Connected state.
	Send(ctx context.Context, op discord.Opcode, d any) error

	// Status returns the current lifecycle state.
	Status() Status

	// Session returns a copy of the current resumable session.
	Session() discord.Session

	// Latency returns the most recent heartbeat round-trip time.
	Latency() time.Duration

	// ID returns the shard's position in the shard set.
	ID() discord.ShardID

	// RestoreSession seeds the shard with a previously persisted session
	// so its first connection attempts a resume. Ignored after Start.
	RestoreSession(sess discord.Session)
}

// shard is the internal implementation.
type shard struct {
	cfg    Config
	queue  queue.Queue
	logger *slog.Logger

	events chan discord.Event

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	status  atomic.Int32
	latency atomic.Int64 // nanoseconds

	// Write serialization
	writeMu sync.Mutex

	mu      sync.RWMutex
	conn    *websocket.Conn // live socket, nil between connections
	session discord.Session
}

// NewShard creates a shard. The queue gates identify attempts and is shared
// across the whole shard set.
func NewShard(cfg Config, q queue.Queue, logger *slog.Logger) Shard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultConfig().GatewayURL
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = DefaultConfig().HelloTimeout
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	return &shard{
		cfg:    cfg,
		queue:  q,
		logger: logger.With("shard", cfg.ID.String()),
		events: make(chan discord.Event, cfg.EventBuffer),
	}
}

// Start begins the connect/reconnect loop.
func (s *shard) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	s.logger.Info("shard started",
		"gateway_url", s.cfg.GatewayURL,
		"compression", s.cfg.Compression,
	)
	return nil
}

// Stop shuts the shard down and waits for its goroutines.
func (s *shard) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	s.cancel()

	if conn != nil {
		// Close with an application code: 1000/1001 would tell the
		// gateway to invalidate the session, and a persisted session
		// should survive a restart.
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(4000, "shutting down"),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("shard stopped")
	case <-ctx.Done():
		s.logger.Warn("shard stop timed out")
	}
	return nil
}

func (s *shard) Events() <-chan discord.Event {
	return s.events
}

func (s *shard) Send(ctx context.Context, op discord.Opcode, d any) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil || s.Status() != StatusConnected {
		return ErrNotConnected
	}

	data, err := discord.MarshalPayload(op, d)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *shard) Status() Status {
	return Status(s.status.Load())
}

func (s *shard) Session() discord.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *shard) Latency() time.Duration {
	return time.Duration(s.latency.Load())
}

func (s *shard) ID() discord.ShardID {
	return s.cfg.ID
}

func (s *shard) RestoreSession(sess discord.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.session = sess
	}
}

// run is the reconnect loop: one connect() per socket lifetime.
func (s *shard) run() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		if s.ctx.Err() != nil {
			break
		}
		err := s.connect()
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, queue.ErrQueueClosed) {
			break
		}
		var ce *discord.CloseError
		if errors.As(err, &ce) {
			s.logger.Error("shard shut down by gateway",
				"code", int(ce.Code),
				"reason", ce.Reason,
			)
		} else {
			s.logger.Error("shard shut down", "error", err)
		}
		break
	}
	s.setStatus(StatusShutdown)
}

// connect runs one full socket lifetime. A nil return means reconnect; a
// non-nil return stops the run loop (shutdown, fatal close, queue closed).
func (s *shard) connect() error {
	s.setStatus(StatusConnecting)
	s.emit(discord.EventConnecting)

	target := s.dialTarget()
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(s.ctx, target, nil)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		s.logger.Warn("gateway dial failed", "url", target, "error", err)
		s.setStatus(StatusDisconnected)
		s.emit(discord.EventDisconnected)
		// A dead endpoint must not spin the loop.
		select {
		case <-time.After(redialWait):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
		return nil
	}
	s.logger.Debug("gateway connected", "url", target)

	cs := &connState{conn: conn, done: make(chan struct{})}
	cs.acked.Store(true)
	if s.cfg.Compression {
		cs.inflater = zlibstream.NewInflater()
	}
	defer cs.close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	cause := s.runConnection(cs)

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if errors.Is(cause, queue.ErrQueueClosed) {
		return cause
	}

	fatal := s.classifyTeardown(cause)
	s.setStatus(StatusDisconnected)
	s.emit(discord.EventDisconnected)
	if fatal {
		return cause
	}
	return nil
}

// runConnection drives one connection from Hello to disconnect and returns
// the cause of the teardown.
func (s *shard) runConnection(cs *connState) error {
	s.setStatus(StatusWaitingForHello)
	cs.conn.SetReadDeadline(time.Now().Add(s.cfg.HelloTimeout))
	hello, err := s.awaitHello(cs)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		return err
	}
	cs.conn.SetReadDeadline(time.Time{})

	interval := hello.Interval()
	s.logger.Debug("hello received", "heartbeat_interval", interval)

	s.wg.Add(1)
	go s.heartbeatLoop(cs, interval)

	if sess := s.Session(); sess.Valid() {
		// Resumes bypass the identify queue: they do not count against
		// the session start limit.
		s.setStatus(StatusResuming)
		s.emit(discord.EventResuming)
		s.logger.Info("resuming session", "session", sess.ID, "seq", sess.Sequence)
		err = s.writePayload(cs, discord.OpcodeResume, discord.Resume{
			Token:     s.cfg.Token,
			SessionID: sess.ID,
			Sequence:  sess.Sequence,
		})
	} else {
		s.setStatus(StatusIdentifying)
		s.emit(discord.EventIdentifying)
		if qerr := s.queue.Wait(s.ctx, s.cfg.ID.Index); qerr != nil {
			return qerr
		}
		err = s.writePayload(cs, discord.OpcodeIdentify, s.identifyPayload())
	}
	if err != nil {
		return cs.failure(err)
	}

	return s.pump(cs)
}

// awaitHello reads frames until the first complete payload, which must be a
// well-formed Hello.
func (s *shard) awaitHello(cs *connState) (discord.Hello, error) {
	var hello discord.Hello

	data, err := cs.read()
	if err != nil {
		return hello, fmt.Errorf("%w: %v", ErrExpectedHello, err)
	}
	p, err := discord.ParsePayload(data)
	if err != nil {
		return hello, fmt.Errorf("%w: %v", ErrExpectedHello, err)
	}
	if p.Op != discord.OpcodeHello {
		return hello, fmt.Errorf("%w: got op %d", ErrExpectedHello, p.Op)
	}
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return hello, fmt.Errorf("%w: %v", ErrExpectedHello, err)
	}
	if hello.Interval() <= 0 {
		return hello, fmt.Errorf("%w: heartbeat interval %dms", ErrExpectedHello, hello.HeartbeatInterval)
	}
	return hello, nil
}

// pump reads and handles payloads until the connection dies.
func (s *shard) pump(cs *connState) error {
	for {
		data, err := cs.read()
		if err != nil {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			return cs.failure(translateReadErr(err))
		}

		p, err := discord.ParsePayload(data)
		if err != nil {
			s.logger.Warn("malformed gateway payload", "error", err)
			continue
		}

		switch p.Op {
		case discord.OpcodeDispatch:
			s.handleDispatch(p)

		case discord.OpcodeHeartbeat:
			// The gateway wants an immediate beat.
			if err := s.sendHeartbeat(cs); err != nil {
				return cs.failure(err)
			}

		case discord.OpcodeHeartbeatACK:
			cs.acked.Store(true)
			if sent := cs.lastSent.Load(); sent > 0 {
				s.latency.Store(time.Since(time.Unix(0, sent)).Nanoseconds())
			}

		case discord.OpcodeReconnect:
			s.logger.Info("gateway requested reconnect")
			return errReconnect

		case discord.OpcodeInvalidSession:
			resumable := discord.ParseInvalidSession(p.D)
			s.logger.Warn("gateway invalidated session", "resumable", resumable)
			if !resumable {
				s.discardSession()
			}
			return errInvalidSession

		default:
			s.logger.Debug("unhandled opcode", "op", int(p.Op))
		}
	}
}

// handleDispatch advances the session and forwards the event.
func (s *shard) handleDispatch(p discord.Payload) {
	s.advanceSession(p.S)

	switch p.T {
	case "READY":
		var ready discord.Ready
		if err := json.Unmarshal(p.D, &ready); err != nil {
			s.logger.Warn("malformed ready dispatch", "error", err)
			return
		}
		s.setSession(discord.Session{
			ID:        ready.SessionID,
			Sequence:  p.S,
			ResumeURL: ready.ResumeGatewayURL,
		})
		s.setStatus(StatusConnected)
		s.forward(discord.Event{
			Type:     discord.EventReady,
			Name:     p.T,
			Sequence: p.S,
			Shard:    s.cfg.ID,
			Data:     p.D,
		})
		s.emit(discord.EventConnected)
		s.logger.Info("shard ready", "session", ready.SessionID)

	case "RESUMED":
		s.setStatus(StatusConnected)
		s.forward(discord.Event{
			Type:     discord.EventResumed,
			Name:     p.T,
			Sequence: p.S,
			Shard:    s.cfg.ID,
			Data:     p.D,
		})
		s.emit(discord.EventConnected)
		s.logger.Info("session resumed")

	default:
		s.forward(discord.Event{
			Type:     discord.ClassifyDispatch(p.T),
			Name:     p.T,
			Sequence: p.S,
			Shard:    s.cfg.ID,
			Data:     p.D,
		})
	}
}

// heartbeatLoop sends beats on schedule and kills the connection when an
// acknowledgement goes missing.
func (s *shard) heartbeatLoop(cs *connState, interval time.Duration) {
	defer s.wg.Done()

	// Jitter the first beat across the interval so a fleet of shards does
	// not heartbeat in lockstep.
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(interval))))
	defer timer.Stop()

	for {
		select {
		case <-cs.done:
			return
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		if !cs.acked.Load() {
			s.logger.Warn("heartbeat not acknowledged, closing zombied connection")
			cs.fail(ErrHeartbeatTimeout)
			return
		}
		if err := s.sendHeartbeat(cs); err != nil {
			cs.fail(err)
			return
		}

		// Keep beats exactly an interval apart even if this tick ran late
		// or an op 1 request sent one in between.
		next := interval - time.Since(time.Unix(0, cs.lastSent.Load()))
		if next < 0 {
			next = 0
		}
		timer.Reset(next)
	}
}

func (s *shard) sendHeartbeat(cs *connState) error {
	seq := s.Session().Sequence
	if err := s.writePayload(cs, discord.OpcodeHeartbeat, discord.HeartbeatBody(seq)); err != nil {
		return err
	}
	cs.lastSent.Store(time.Now().UnixNano())
	cs.acked.Store(false)
	s.logger.Debug("heartbeat sent", "seq", seq)
	return nil
}

// classifyTeardown disposes of the session according to the disconnect
// cause. True means the shard must not reconnect.
func (s *shard) classifyTeardown(cause error) bool {
	var ce *discord.CloseError
	switch {
	case errors.As(cause, &ce):
		if ce.Code.IsFatal() {
			s.discardSession()
			return true
		}
		if !ce.Code.CanResume() {
			s.logger.Warn("gateway closed connection, session not resumable",
				"code", int(ce.Code),
				"reason", ce.Reason,
			)
			s.discardSession()
		} else {
			s.logger.Warn("gateway closed connection",
				"code", int(ce.Code),
				"reason", ce.Reason,
			)
		}
	case errors.Is(cause, ErrExpectedHello):
		s.logger.Warn("gateway broke protocol, starting fresh session", "error", cause)
		s.discardSession()
	case errors.Is(cause, zlibstream.ErrCorruptStream):
		s.logger.Warn("compressed stream corrupt, starting fresh session", "error", cause)
		s.discardSession()
	case errors.Is(cause, errReconnect), errors.Is(cause, errInvalidSession):
		// Session disposition already handled; just reconnect.
	default:
		s.logger.Warn("gateway connection lost", "error", cause)
	}
	return false
}

// dialTarget builds the websocket URL, preferring the session's resume URL
// when one is known.
func (s *shard) dialTarget() string {
	base := s.cfg.GatewayURL
	if sess := s.Session(); sess.Valid() && sess.ResumeURL != "" {
		base = sess.ResumeURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := url.Values{}
	q.Set("v", gatewayVersion)
	q.Set("encoding", "json")
	if s.cfg.Compression {
		q.Set("compress", "zlib-stream")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *shard) identifyPayload() discord.Identify {
	return discord.Identify{
		Token: s.cfg.Token,
		Properties: discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: identifyName,
			Device:  identifyName,
		},
		LargeThreshold: s.cfg.LargeThreshold,
		Shard:          s.cfg.ID,
		Intents:        s.cfg.Intents,
	}
}

func (s *shard) writePayload(cs *connState, op discord.Opcode, d any) error {
	data, err := discord.MarshalPayload(op, d)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.conn.WriteMessage(websocket.TextMessage, data)
}

// forward delivers an event to the consumer, blocking to preserve order.
func (s *shard) forward(ev discord.Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// emit sends a lifecycle pseudo-event.
func (s *shard) emit(t discord.EventType) {
	s.forward(discord.Event{Type: t, Shard: s.cfg.ID})
}

func (s *shard) setStatus(st Status) {
	s.status.Store(int32(st))
}

func (s *shard) setSession(sess discord.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *shard) advanceSession(seq uint64) {
	if seq == 0 {
		return
	}
	s.mu.Lock()
	s.session.Advance(seq)
	s.mu.Unlock()
}

func (s *shard) discardSession() {
	s.mu.Lock()
	s.session = discord.Session{}
	s.mu.Unlock()
}

// connState is the per-socket state shared between the pump and the
// heartbeat goroutine.
type connState struct {
	conn     *websocket.Conn
	inflater *zlibstream.Inflater

	done      chan struct{}
	closeOnce sync.Once

	acked    atomic.Bool
	lastSent atomic.Int64 // UnixNano of the last outbound heartbeat

	causeMu sync.Mutex
	cause   error
}

// read returns the next complete payload, inflating frames when transport
// compression is on.
func (cs *connState) read() ([]byte, error) {
	for {
		_, data, err := cs.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if cs.inflater == nil {
			return data, nil
		}
		msg, ok, err := cs.inflater.Feed(data)
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}
	}
}

// fail records the first disconnect cause and kills the socket so the pump
// unblocks.
func (cs *connState) fail(err error) {
	cs.causeMu.Lock()
	if cs.cause == nil {
		cs.cause = err
	}
	cs.causeMu.Unlock()
	cs.conn.Close()
}

// failure prefers a recorded cause over the raw read error, which is just
// "use of closed network connection" noise after fail.
func (cs *connState) failure(fallback error) error {
	cs.causeMu.Lock()
	defer cs.causeMu.Unlock()
	if cs.cause != nil {
		return cs.cause
	}
	return fallback
}

func (cs *connState) close() {
	cs.closeOnce.Do(func() { close(cs.done) })
	cs.conn.Close()
}

// translateReadErr converts a close frame into the package's close error.
func translateReadErr(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &discord.CloseError{Code: discord.CloseCode(ce.Code), Reason: ce.Text}
	}
	return err
}
