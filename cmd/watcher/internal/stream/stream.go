package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateRetrying
	StateExhausted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Clock abstracts the reconnect timer.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Config struct {
	URL         string
	BufferSize  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:         url,
		BufferSize:  DefaultBufferSize,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Stream keeps one logical subscription alive over a transport that may be recreated.
// Every close, including a failed dial, schedules a reconnect with exponential backoff
// until MaxAttempts consecutive reconnects have failed; a successful open starts the
// count again.
type Stream struct {
	cfg    Config
	dialer Dialer
	clock  Clock
	logger *zap.Logger
	buffer *TickBuffer

	onTicker       func(models.Quote)
	onNotification func(protocol.Notification)
	onWelcome      func(ts int64)
	onState        func(State)

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	conn     Conn
	cancel   context.CancelFunc
	stopped  bool
}

type Option func(*Stream)

func WithClock(c Clock) Option { return func(s *Stream) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Stream) { s.logger = l } }

// OnTicker is called for every tick that was new to the buffer.
func OnTicker(fn func(models.Quote)) Option { return func(s *Stream) { s.onTicker = fn } }

func OnNotification(fn func(protocol.Notification)) Option {
	return func(s *Stream) { s.onNotification = fn }
}

func OnWelcome(fn func(ts int64)) Option { return func(s *Stream) { s.onWelcome = fn } }

// OnStateChange is called after every transition, outside the stream's lock.
func OnStateChange(fn func(State)) Option { return func(s *Stream) { s.onState = fn } }

func New(cfg Config, dialer Dialer, opts ...Option) *Stream {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Stream{
		cfg:    cfg,
		dialer: dialer,
		clock:  realClock{},
		logger: zap.NewNop(),
		buffer: NewTickBuffer(cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the state machine until the stream is stopped, ctx ends, or reconnects are
// exhausted. Only exhaustion is reported as an error.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for {
		if !s.transition(StateConnecting) {
			return nil
		}

		conn, err := s.dialer.Dial(ctx, s.cfg.URL)
		if err == nil {
			err = s.serve(ctx, conn)
		} else if !errors.Is(err, ErrTransportError) {
			err = errors.Join(ErrTransportError, err)
		}
		if ctx.Err() != nil {
			s.halt()
			return nil
		}
		s.setErr(err)
		s.logger.Warn("Stream closed", zap.String("url", s.cfg.URL), zap.Error(err))

		delay, ok := s.nextDelay()
		if !ok {
			s.transition(StateExhausted)
			s.logger.Error("Reconnect attempts exhausted", zap.Int("max_attempts", s.cfg.MaxAttempts))
			return ErrReconnectExhausted
		}
		if !s.transition(StateRetrying) {
			return nil
		}
		s.logger.Info("Reconnecting", zap.Duration("delay", delay), zap.Int("attempt", s.Attempts()))

		select {
		case <-ctx.Done():
			s.halt()
			return nil
		case <-s.clock.After(delay):
		}
	}
}

// serve reads frames until the transport ends and returns why it ended.
func (s *Stream) serve(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	s.conn = conn
	s.attempts = 0
	s.lastErr = nil
	s.mu.Unlock()

	s.transition(StateOpen)
	s.logger.Info("Stream open", zap.String("url", s.cfg.URL))

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, ErrTransportClosed) && !errors.Is(err, ErrTransportError) {
				err = errors.Join(ErrTransportError, err)
			}
			return err
		}
		if ctx.Err() != nil {
			return ErrTransportClosed
		}
		s.dispatch(data)
	}
}

func (s *Stream) dispatch(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.logger.Debug("Ignoring undecodable frame", zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeWelcome:
		if s.onWelcome != nil {
			s.onWelcome(env.TS)
		}
	case protocol.TypeTicker:
		q, err := env.Quote()
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			s.logger.Debug("Ignoring bad ticker", zap.Error(err))
			return
		}
		if s.buffer.Add(q) && s.onTicker != nil {
			s.onTicker(q)
		}
	case protocol.TypeNotification:
		n, err := env.Notification()
		if err != nil {
			s.logger.Debug("Ignoring bad notification", zap.Error(err))
			return
		}
		if s.onNotification != nil {
			s.onNotification(n)
		}
	default:
		s.logger.Debug("Ignoring unknown message type", zap.String("type", env.Type))
	}
}

// nextDelay consumes one reconnect attempt, or reports that none are left.
func (s *Stream) nextDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts >= s.cfg.MaxAttempts {
		return 0, false
	}
	d := Backoff(s.attempts, s.cfg.BaseDelay, s.cfg.MaxDelay)
	s.attempts++
	return d, true
}

// transition moves to next unless the stream was stopped, and reports whether it did.
func (s *Stream) transition(next State) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	changed := s.state != next
	s.state = next
	s.mu.Unlock()

	if changed && s.onState != nil {
		s.onState(next)
	}
	return true
}

func (s *Stream) halt() {
	s.mu.Lock()
	already := s.state == StateStopped
	s.stopped = true
	s.state = StateStopped
	s.mu.Unlock()

	if !already && s.onState != nil {
		s.onState(StateStopped)
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Stop cancels a pending reconnect, closes the live transport and freezes the state.
// It is safe to call from any goroutine and more than once.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.mu.Unlock()

	s.halt()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Reset re-arms an exhausted stream so Run can be called again.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateExhausted {
		return
	}
	s.attempts = 0
	s.lastErr = nil
	s.state = StateIdle
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is ErrReconnectExhausted once exhausted, otherwise the last transport failure.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExhausted {
		return ErrReconnectExhausted
	}
	return s.lastErr
}

func (s *Stream) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Stream) Buffer() *TickBuffer { return s.buffer }
