// Package voice runs a realtime voice conversation with a remote model:
// microphone frames stream out, spoken audio and transcripts stream back and
// are played gaplessly, with barge-in interruption and a single teardown path.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/repositories"
)

// Devices bundles the audio hardware a manager drives
type Devices struct {
	Capture  repositories.AudioCapture
	Playback repositories.AudioPlayback
}

// Manager owns at most one live Session at a time
type Manager struct {
	devices  Devices
	model    repositories.LiveModel
	observer Observer
	opts     Options
	metrics  *Metrics
	logger   *zap.Logger

	// startMu serializes device acquisition between overlapping starts
	startMu sync.Mutex

	mu      sync.Mutex
	session *Session
	// retired is the most recently detached session; its release may still be running
	retired *Session
	state   State
}

// NewManager creates an idle manager. A nil observer or metrics is replaced
// by a no-op implementation.
func NewManager(devices Devices, model repositories.LiveModel, observer Observer, opts Options, metrics *Metrics, logger *zap.Logger) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		devices:  devices,
		model:    model,
		observer: observer,
		opts:     opts.withDefaults(),
		metrics:  metrics,
		logger:   logger,
		state:    State{Phase: PhaseIdle},
	}
}

// State returns a snapshot of the observable state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start opens a new session, first tearing down any session that is still
// active. It returns once the remote signalled ready, or with the error that
// ended the attempt.
func (m *Manager) Start(ctx context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s := newSession(config, m.opts.SendQueue)
	started := time.Now()

	m.startMu.Lock()
	m.mu.Lock()
	prev := m.retired
	old := m.detachLocked()
	m.session = s
	m.state = State{
		SessionID:       s.ID,
		Phase:           PhaseConnecting,
		InputTranscript: m.opts.ConnectingPrompt,
	}
	m.notifyLocked()
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("Replacing active voice session",
			zap.String("oldSessionID", old.ID),
			zap.String("sessionID", s.ID))
		m.teardown(old, nil)
	}
	if prev != nil {
		// wait for a teardown that another goroutine may still be running
		prev.release(m.logger)
	}

	m.metrics.SessionsStarted.Inc()
	m.logger.Info("Starting voice session",
		zap.String("sessionID", s.ID),
		zap.String("voice", string(config.Voice)))

	err := m.openDevices(ctx, s)
	m.startMu.Unlock()
	if err == nil {
		err = m.connect(ctx, s, started)
	}
	if err != nil {
		if !errors.Is(err, ErrSessionStopped) {
			m.end(s, err)
		}
		return err
	}
	return nil
}

// Stop ends the active session, if any. The observable state flips to
// Closing before any resource is released and ends in Idle. Stop is safe to
// call repeatedly and when nothing was started.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.detachLocked()
	retired := m.retired
	m.mu.Unlock()

	if s == nil {
		if retired != nil {
			retired.release(m.logger)
		}
		return
	}

	m.logger.Info("Stopping voice session", zap.String("sessionID", s.ID))
	m.teardown(s, nil)
}

// openDevices acquires capture and playback for s. Devices are never opened
// for a session that was already released.
func (m *Manager) openDevices(ctx context.Context, s *Session) error {
	if s.isClosed() {
		return ErrSessionStopped
	}
	capture, err := m.devices.Capture.Open(ctx, repositories.CaptureFormat{
		SampleRate: m.opts.CaptureRate,
		FrameSize:  m.opts.FrameSize,
	})
	if err != nil {
		return captureError(err)
	}
	if !s.attach(func() { s.capture = capture }) {
		capture.Close()
		return ErrSessionStopped
	}

	if s.isClosed() {
		return ErrSessionStopped
	}
	out, err := m.devices.Playback.Open(ctx, m.opts.PlaybackRate)
	if err != nil {
		return fmt.Errorf("%w: playback: %v", ErrDeviceUnavailable, err)
	}
	if !s.attach(func() {
		s.playback = out
		s.sched = NewScheduler(out)
	}) {
		out.Close()
		return ErrSessionStopped
	}
	return nil
}

// connect dials the remote and waits for its ready transition
func (m *Manager) connect(ctx context.Context, s *Session, started time.Time) error {
	hctx, cancel := m.handshakeContext(ctx)
	defer cancel()

	model := s.config.Model
	if model == "" {
		model = m.opts.Model
	}
	conn, err := m.model.Connect(hctx, repositories.LiveConfig{
		Model:             model,
		SystemInstruction: s.config.instruction(),
		Voice:             s.config.Voice,
		Transcription:     true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if hctx.Err() != nil {
			return &ConnectionError{Op: "connect", Err: ErrHandshakeTimeout}
		}
		return &ConnectionError{Op: "connect", Err: err}
	}
	if !s.attach(func() { s.conn = conn }) {
		go conn.Close()
		return ErrSessionStopped
	}

	go m.sendLoop(s, conn)
	go m.receiveLoop(s, conn)

	select {
	case <-s.ready:
		m.metrics.HandshakeLatency.Observe(time.Since(started).Seconds())
		return nil
	case <-s.ctx.Done():
		if err := s.failure(); err != nil {
			return err
		}
		return ErrSessionStopped
	case <-hctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionError{Op: "handshake", Err: ErrHandshakeTimeout}
	}
}

func (m *Manager) handshakeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.HandshakeTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	}
	return context.WithCancel(ctx)
}

// detachLocked unlinks the active session and resets the indicators.
// The caller must release the returned session.
func (m *Manager) detachLocked() *Session {
	s := m.session
	if s == nil {
		return nil
	}
	m.session = nil
	m.retired = s
	m.state = State{SessionID: s.ID, Phase: PhaseClosing}
	m.notifyLocked()
	return s
}

// end is the single exit path for errors and remote close
func (m *Manager) end(s *Session, cause error) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	m.mu.Unlock()

	if cause != nil {
		m.metrics.SessionsFailed.WithLabelValues(failureReason(cause)).Inc()
		m.logger.Error("Voice session failed",
			zap.String("sessionID", s.ID),
			zap.Error(cause))
	}
	m.teardown(s, cause)
}

func (m *Manager) teardown(s *Session, cause error) {
	s.setCause(cause)
	if err := s.release(m.logger); err != nil {
		m.logger.Warn("Voice session teardown reported errors",
			zap.String("sessionID", s.ID),
			zap.Error(err))
	}
	// no session becomes ready once released
	if s.isOpened() {
		m.metrics.SessionsActive.Dec()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil && m.state.SessionID == s.ID {
		m.state = State{Phase: PhaseIdle}
		m.notifyLocked()
	}
	m.observer.SessionEnded(s.ID, cause)
}

func (m *Manager) notifyLocked() {
	m.observer.StateChanged(m.state)
}

// update applies fn to the state if s is still the active session
func (m *Manager) update(s *Session, fn func(st *State) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return
	}
	if fn(&m.state) {
		m.notifyLocked()
	}
}
