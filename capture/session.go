package capture

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type SessionState string

const (
	SessionClosed    SessionState = "CLOSED"
	SessionOpen      SessionState = "OPEN"
	SessionRecording SessionState = "RECORDING"
)

// Session owns at most one open stream at a time. Open on an already-open
// session is a no-op returning the existing stream; Close is idempotent and
// must run on every exit path so the device lock is never leaked.
type Session struct {
	mu       sync.Mutex
	provider DeviceProvider
	stream   Stream
	state    SessionState
}

func NewSession(provider DeviceProvider) *Session {
	return &Session{
		provider: provider,
		state:    SessionClosed,
	}
}

func (s *Session) Open(ctx context.Context, c Constraints) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return s.stream, nil
	}

	stream, err := s.provider.OpenStream(ctx, c)
	if err != nil {
		if _, ok := err.(*DeviceError); ok {
			return nil, err
		}
		return nil, &DeviceError{Kind: DeviceOther, Err: err}
	}

	zerolog.Ctx(ctx).Debug().Str("stream_id", stream.ID()).Msg("capture stream opened")
	s.stream = stream
	s.state = SessionOpen
	return stream, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}

	err := s.provider.CloseStream(s.stream)
	s.stream = nil
	s.state = SessionClosed
	return err
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stream returns the current stream handle, nil when closed.
func (s *Session) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) markRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionOpen {
		return false
	}
	s.state = SessionRecording
	return true
}

func (s *Session) markOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionRecording {
		s.state = SessionOpen
	}
}
