package voice

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/repositories"
)

// Session owns every resource of one live conversation. Resources are
// attached while Start progresses and released exactly once.
type Session struct {
	ID     string
	config Config

	ctx    context.Context
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once

	outbound chan domain.AudioBlob

	// guarded by Manager.mu
	transcript Transcript

	mu       sync.Mutex
	closed   bool
	opened   bool
	cause    error
	capture  repositories.CaptureStream
	playback repositories.PlaybackContext
	sched    *Scheduler
	conn     repositories.LiveConnection

	releaseOnce sync.Once
	releaseErr  error
}

func newSession(config Config, sendQueue int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:       uuid.NewString(),
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		outbound: make(chan domain.AudioBlob, sendQueue),
	}
}

// attach runs fn unless the session was already released
func (s *Session) attach(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) scheduler() *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

func (s *Session) captureStream() repositories.CaptureStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

func (s *Session) markReady() bool {
	s.mu.Lock()
	if s.closed || s.opened {
		s.mu.Unlock()
		return false
	}
	s.opened = true
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	return true
}

func (s *Session) isOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Session) setCause(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause == nil {
		s.cause = err
	}
}

func (s *Session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// release tears the session down: stop scheduled playback, detach the
// microphone, close both audio contexts, then close the remote connection
// without waiting for it. Every step runs even if an earlier one fails.
// Concurrent callers block until the first release finished.
func (s *Session) release(logger *zap.Logger) error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		sched, capture, playback, conn := s.sched, s.capture, s.playback, s.conn
		s.mu.Unlock()

		s.cancel()

		var err error
		if sched != nil {
			err = multierr.Append(err, sched.Close())
		}
		if capture != nil {
			err = multierr.Append(err, capture.Close())
		}
		if playback != nil {
			err = multierr.Append(err, playback.Close())
		}
		if conn != nil {
			go func() {
				if cerr := conn.Close(); cerr != nil {
					logger.Debug("Live connection close failed",
						zap.String("sessionID", s.ID),
						zap.Error(cerr))
				}
			}()
		}
		s.releaseErr = err
	})
	return s.releaseErr
}
