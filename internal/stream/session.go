package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

// State is the connection state of one endpoint session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateFailed
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "backoff", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a read-only snapshot of one session.
type Status struct {
	Endpoint      string    `json:"endpoint"`
	State         State     `json:"state"`
	Attempt       int       `json:"attempt"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitzero"`
	ConnectedAt   time.Time `json:"connectedAt,omitzero"`
	Delivered     uint64    `json:"delivered"`
	Superseded    uint64    `json:"superseded"`
	Failures      uint64    `json:"failures"`
	LastSequence  uint64    `json:"lastSequence"`
	LastAck       uint64    `json:"lastAck"`
	LastError     string    `json:"lastError,omitempty"`
}

// HostInfoFunc answers a collector get_info request.
type HostInfoFunc func(ctx context.Context) (model.HostInfo, error)

// SessionOptions is shared by every session of a supervisor; zero timeouts get defaults.
type SessionOptions struct {
	Logger         *slog.Logger
	Codec          Codec
	Dialer         Dialer
	AgentID        string
	HostInfo       HostInfoFunc
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	// OnFailed is called exactly once when the session reaches StateFailed.
	OnFailed func(endpoint string, err error)
}

// Session owns the connection to one endpoint. Only Run mutates its state; Offer and
// Status are safe from any goroutine.
type Session struct {
	endpoint  config.Endpoint
	opts      SessionOptions
	logger    *slog.Logger
	identity  model.Identity
	mailbox   *slot
	decodeLog rate.Sometimes

	mu     sync.RWMutex
	status Status

	running  atomic.Bool
	failOnce sync.Once
	done     chan struct{}
}

// NewSession builds an idle session for ep. Nothing is dialed until Run.
func NewSession(ep config.Endpoint, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Codec == nil {
		opts.Codec = msgpackFormat
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer(nil, 0)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	s := &Session{
		endpoint:  ep,
		opts:      opts,
		logger:    opts.Logger.With("endpoint", ep.Name),
		identity:  model.Identity{AgentID: opts.AgentID, Endpoint: ep.Name},
		mailbox:   newSlot(),
		decodeLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
		status:    Status{Endpoint: ep.Name, State: StateDisconnected},
		done:      make(chan struct{}),
	}
	sessionState.WithLabelValues(ep.Name).Set(float64(StateDisconnected))
	return s
}

func (s *Session) Endpoint() string { return s.endpoint.Name }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Offer hands a sample to the session without blocking. An undelivered older sample is
// replaced. It returns false once the session has failed or stopped.
func (s *Session) Offer(sample *model.Sample) bool {
	if sample == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	if s.Status().State == StateFailed {
		return false
	}
	if s.mailbox.put(sample) {
		s.update(func(st *Status) { st.Superseded++ })
		samplesSuperseded.WithLabelValues(s.endpoint.Name).Inc()
	}
	return true
}

// Run drives the connect, deliver and backoff cycle until ctx is cancelled or the session
// fails. It returns nil in both cases so one endpoint never stops the others.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	defer close(s.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return nil
			}
			attempt++
			s.recordFailure(err)
			if !s.backoff(ctx, attempt, err) {
				return nil
			}
			continue
		}

		attempt = 0
		now := time.Now()
		s.update(func(st *Status) {
			st.State = StateConnected
			st.Attempt = 0
			st.NextAttemptAt = time.Time{}
			st.ConnectedAt = now
		})
		sessionState.WithLabelValues(s.endpoint.Name).Set(float64(StateConnected))
		s.logger.Info("endpoint connected")

		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		var term *TerminatedError
		if errors.As(err, &term) {
			s.fail("terminated", err)
			return nil
		}
		attempt = 1
		s.recordFailure(err)
		if !s.backoff(ctx, attempt, err) {
			return nil
		}
	}
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	conn, err := s.opts.Dialer.Dial(dctx, s.endpoint)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "dial", Err: redact(err, s.endpoint.Secret)}
		}
		return nil, err
	}
	return conn, nil
}

// backoff waits out the delay for attempt, or fails the session when the policy is exhausted.
// It returns false when Run must stop.
func (s *Session) backoff(ctx context.Context, attempt int, cause error) bool {
	policy := s.endpoint.Connection
	if policy.Exhausted(attempt) {
		s.fail("exhausted", &ExhaustedRetriesError{Endpoint: s.endpoint.Name, Attempts: attempt, Last: cause})
		return false
	}
	delay := policy.Delay(attempt)
	next := time.Now().Add(delay)
	s.update(func(st *Status) {
		st.State = StateBackoff
		st.Attempt = attempt
		st.NextAttemptAt = next
	})
	sessionState.WithLabelValues(s.endpoint.Name).Set(float64(StateBackoff))
	s.logger.Warn("endpoint unavailable, backing off", "attempt", attempt, "delay", delay, "error", cause)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		s.setState(StateDisconnected)
		return false
	case <-t.C:
		return true
	}
}

func (s *Session) fail(reason string, err error) {
	s.failOnce.Do(func() {
		s.update(func(st *Status) {
			st.State = StateFailed
			st.NextAttemptAt = time.Time{}
			st.LastError = err.Error()
		})
		sessionState.WithLabelValues(s.endpoint.Name).Set(float64(StateFailed))
		sessionsFailed.WithLabelValues(s.endpoint.Name, reason).Inc()
		s.logger.Error("endpoint session failed", "reason", reason, "error", err)
		if s.opts.OnFailed != nil {
			s.opts.OnFailed(s.endpoint.Name, err)
		}
	})
}

func (s *Session) recordFailure(err error) {
	op := "unknown"
	var te *TransportError
	if errors.As(err, &te) {
		op = te.Op
	}
	connectFailures.WithLabelValues(s.endpoint.Name, op).Inc()
	s.update(func(st *Status) {
		st.Failures++
		st.LastError = err.Error()
	})
}

// serve runs one connected period. The reader and pinger stop when serve returns.
func (s *Session) serve(ctx context.Context, conn Conn) error {
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 2)
	control := make(chan ControlMessage, 4)
	go s.readLoop(connCtx, conn, control, errs)
	go s.pingLoop(connCtx, conn, errs)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "agent shutdown")
			return ctx.Err()
		case err := <-errs:
			_ = conn.Close(websocket.StatusInternalError, "reconnect")
			return err
		case msg := <-control:
			if err := s.handleControl(ctx, conn, msg); err != nil {
				if ctx.Err() != nil {
					_ = conn.Close(websocket.StatusNormalClosure, "agent shutdown")
					return ctx.Err()
				}
				var term *TerminatedError
				if !errors.As(err, &term) {
					_ = conn.Close(websocket.StatusInternalError, "reconnect")
				}
				return err
			}
		case <-s.mailbox.ready():
			sample := s.mailbox.take()
			if sample == nil {
				continue
			}
			if err := s.deliver(ctx, conn, sample); err != nil {
				if ctx.Err() != nil {
					_ = conn.Close(websocket.StatusNormalClosure, "agent shutdown")
					return ctx.Err()
				}
				_ = conn.Close(websocket.StatusInternalError, "reconnect")
				return err
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn Conn, control chan<- ControlMessage, errs chan<- error) {
	for {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			select {
			case errs <- &TransportError{Op: "read", Err: redact(err, s.endpoint.Secret)}:
			case <-ctx.Done():
			}
			return
		}
		msg, err := DecodeControl(CodecForMessageType(typ), b)
		if err != nil {
			decodeErrors.WithLabelValues(s.endpoint.Name).Inc()
			s.decodeLog.Do(func() {
				s.logger.Warn("discarding inbound frame", "error", err)
			})
			continue
		}
		select {
		case control <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) pingLoop(ctx context.Context, conn Conn, errs chan<- error) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case errs <- &TransportError{Op: "ping", Err: redact(err, s.endpoint.Secret)}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (s *Session) handleControl(ctx context.Context, conn Conn, msg ControlMessage) error {
	switch msg.Type {
	case model.MessageTypeAck:
		s.update(func(st *Status) {
			if msg.Sequence > st.LastAck {
				st.LastAck = msg.Sequence
			}
		})
	case model.MessageTypeConfig:
		s.logger.Info("collector requested a new metrics interval, restart to apply", "interval", msg.MetricsInterval)
	case model.MessageTypeTerminate:
		s.logger.Warn("collector terminated the session", "reason", msg.Reason)
		_ = conn.Close(websocket.StatusNormalClosure, "terminated")
		return &TerminatedError{Endpoint: s.endpoint.Name, Reason: msg.Reason}
	case model.MessageTypeGetInfo:
		return s.replyHostInfo(ctx, conn)
	}
	return nil
}

func (s *Session) replyHostInfo(ctx context.Context, conn Conn) error {
	if s.opts.HostInfo == nil {
		s.logger.Debug("get_info ignored, no host info source")
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	info, err := s.opts.HostInfo(rctx)
	cancel()
	if err != nil {
		s.logger.Warn("host info read failed", "error", err)
		return nil
	}
	env, err := EncodeHostInfo(s.opts.Codec, info, s.identity, time.Now(), s.endpoint.Secret)
	if err != nil {
		s.logger.Error("encode host info failed", "error", err)
		return nil
	}
	return s.write(ctx, conn, env)
}

// deliver writes one sample. A failed write is not retried on the next connection.
func (s *Session) deliver(ctx context.Context, conn Conn, sample *model.Sample) error {
	env, err := Encode(s.opts.Codec, sample, s.identity, s.endpoint.Secret)
	if err != nil {
		s.logger.Error("encode sample failed", "sequence", sample.Sequence, "error", err)
		return nil
	}
	if err := s.write(ctx, conn, env); err != nil {
		return err
	}
	s.update(func(st *Status) {
		st.Delivered++
		st.LastSequence = sample.Sequence
	})
	samplesDelivered.WithLabelValues(s.endpoint.Name).Inc()
	return nil
}

// write is bounded by the write timeout and abandoned when ctx ends.
func (s *Session) write(ctx context.Context, conn Conn, env Envelope) error {
	wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	started := time.Now()
	err := conn.Write(wctx, env.FrameType(), env.payload)
	writeDuration.WithLabelValues(s.endpoint.Name).Observe(time.Since(started).Seconds())
	if err != nil {
		return &TransportError{Op: "write", Err: redact(err, s.endpoint.Secret)}
	}
	return nil
}

func (s *Session) setState(state State) {
	s.update(func(st *Status) {
		st.State = state
		if state != StateBackoff {
			st.NextAttemptAt = time.Time{}
		}
	})
	sessionState.WithLabelValues(s.endpoint.Name).Set(float64(state))
}

func (s *Session) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
