package preview

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/typlive/typlive/internal/errors"
	"github.com/typlive/typlive/pkg/middleware"
)

// RefreshMessage is the text frame pushed to a client after each
// recompilation.
const RefreshMessage = "refresh"

// SessionState is the state of a notification session.
type SessionState int32

const (
	// StateWaiting means the session is blocked on the change signal.
	StateWaiting SessionState = iota
	// StateSending means the session is writing a refresh to its client.
	StateSending
	// StateTerminated means the session loop has exited.
	StateTerminated
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateSending:
		return "sending"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Waiter is the part of the change signal a session consumes.
// *notify.Signal implements it.
type Waiter interface {
	// Generation returns the number of notifications so far.
	Generation() uint64
	// WaitAfter blocks until the generation is past seen.
	WaitAfter(ctx context.Context, seen uint64) (uint64, error)
}

// MessageWriter is the part of a WebSocket connection a session writes to.
// *websocket.Conn implements it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// deadlineSetter is implemented by connections that support write deadlines.
type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

// SessionConfig configures a notification session.
type SessionConfig struct {
	// MaxBrokenPipes is the number of consecutive broken-pipe sends tolerated
	// before the session gives up. Zero or less means no limit.
	MaxBrokenPipes int

	// WriteTimeout bounds each refresh write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxBrokenPipes: 1,
		WriteTimeout:   10 * time.Second,
	}
}

// sendOutcome classifies the result of one refresh write.
type sendOutcome int

const (
	outcomeSent sendOutcome = iota
	outcomeTransient
	outcomeFatal
)

// classifySend decides which send failures a session survives. A broken pipe
// means the peer went away without a close handshake; everything else ends
// the session.
func classifySend(err error) sendOutcome {
	switch {
	case err == nil:
		return outcomeSent
	case stderrors.Is(err, syscall.EPIPE):
		return outcomeTransient
	default:
		return outcomeFatal
	}
}

// Session forwards change notifications to exactly one client. It owns the
// connection's write side; nothing else writes data frames to it.
type Session struct {
	id     uint64
	conn   MessageWriter
	signal Waiter
	config SessionConfig
	logger *slog.Logger

	// seen is the last signal generation this session handled.
	seen        uint64
	brokenPipes int
	state       atomic.Int32
	sent        atomic.Uint64
}

// NewSession creates a session for conn. Notifications that happened before
// the session was created are not delivered to it.
func NewSession(id uint64, conn MessageWriter, signal Waiter, config SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:     id,
		conn:   conn,
		signal: signal,
		config: config,
		logger: logger.With("session", id),
		seen:   signal.Generation(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uint64 { return s.id }

// State returns the current state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Sent returns the number of refreshes delivered.
func (s *Session) Sent() uint64 { return s.sent.Load() }

// Run loops waiting for a change and sending a refresh until a send fails
// fatally or ctx is cancelled. It returns the terminal send error, or nil
// when the session ended because ctx was cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateTerminated)

	for {
		s.setState(StateWaiting)
		gen, err := s.signal.WaitAfter(ctx, s.seen)
		if err != nil {
			s.logger.Debug("session stopped", "reason", err)
			return nil
		}
		s.seen = gen

		s.logger.Debug("document recompiled, sending refresh")
		s.setState(StateSending)
		next, err := s.afterSend(s.send())
		if next == StateTerminated {
			return err
		}
		s.logger.Debug("waiting for the next recompilation")
	}
}

// send performs exactly one write attempt.
func (s *Session) send() error {
	if d, ok := s.conn.(deadlineSetter); ok && s.config.WriteTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(RefreshMessage))
}

// afterSend applies the tolerance policy to a send result and returns the
// next state. A non-nil error is returned only with StateTerminated.
func (s *Session) afterSend(err error) (SessionState, error) {
	switch classifySend(err) {
	case outcomeSent:
		s.brokenPipes = 0
		s.sent.Add(1)
		middleware.RecordRefreshSent()
		return StateWaiting, nil

	case outcomeTransient:
		s.brokenPipes++
		middleware.RecordSendError("broken_pipe")
		if s.config.MaxBrokenPipes > 0 && s.brokenPipes > s.config.MaxBrokenPipes {
			s.logger.Debug("client gone, closing session", "error", err, "broken_pipes", s.brokenPipes)
			return StateTerminated, errors.New("T131").
				WithDetail("The client stopped accepting writes.").
				Wrap(err)
		}
		s.logger.Debug("client connection broken, keeping session", "error", err, "broken_pipes", s.brokenPipes)
		return StateWaiting, nil

	default:
		middleware.RecordSendError("fatal")
		s.logger.Error("failed to send refresh to the client", "error", err)
		return StateTerminated, errors.New("T131").Wrap(err)
	}
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}
