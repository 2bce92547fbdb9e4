package voice

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
)

var errClosedBeforeReady = errors.New("remote closed before ready")

func (m *Manager) receiveLoop(s *Session, conn repositories.LiveConnection) {
	for {
		msg, err := conn.Receive()
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			m.end(s, &ConnectionError{Op: "receive", Err: err})
			return
		}
		if !m.dispatch(s, msg) {
			return
		}
	}
}

// dispatch handles one inbound message in arrival order. It returns false
// once the message ended the session.
func (m *Manager) dispatch(s *Session, msg domain.ServerMessage) bool {
	switch msg := msg.(type) {
	case domain.Ready:
		m.opened(s)
	case domain.InputTranscript:
		m.update(s, func(st *State) bool {
			st.InputTranscript = s.transcript.AppendInput(msg.Text)
			return true
		})
	case domain.OutputTranscript:
		m.update(s, func(st *State) bool {
			st.OutputTranscript = s.transcript.AppendOutput(msg.Text)
			return true
		})
	case domain.TurnComplete:
		m.completeTurn(s)
	case domain.Audio:
		m.playAudio(s, msg)
	case domain.Interrupted:
		m.interrupt(s)
	case domain.MalformedAudio:
		m.metrics.DecodeErrors.Inc()
		m.logger.Warn("Skipping undecodable audio chunk",
			zap.String("sessionID", s.ID),
			zap.Error(&DecodeError{Err: msg.Err}))
	case domain.ServerError:
		m.end(s, &ConnectionError{Op: "remote", Err: msg.Err})
		return false
	case domain.Closed:
		m.remoteClosed(s, msg.Reason)
		return false
	default:
		m.logger.Warn("Ignoring unknown server message",
			zap.String("sessionID", s.ID),
			zap.String("type", typeName(msg)))
	}
	return true
}

func (m *Manager) opened(s *Session) {
	if !s.markReady() {
		return
	}
	if stream, ok := s.captureStream().(repositories.ActivatableStream); ok {
		stream.Activate()
	}
	m.metrics.SessionsActive.Inc()
	m.update(s, func(st *State) bool {
		st.Phase = PhaseOpen
		st.InputTranscript = m.opts.ListeningPrompt
		return true
	})
	m.logger.Info("Voice session open", zap.String("sessionID", s.ID))
	go m.captureLoop(s)
}

func (m *Manager) completeTurn(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return
	}

	in, out := s.transcript.Flush()
	if in == "" {
		in = m.opts.UserPlaceholder
	}
	if out == "" {
		out = m.opts.AssistantPlaceholder
	}
	now := time.Now()
	m.observer.TurnCompleted(
		entities.ChatEntry{Timestamp: now, Role: entities.MessageRoleUser, Text: in},
		entities.ChatEntry{Timestamp: now, Role: entities.MessageRoleAssistant, Text: out},
	)
	m.metrics.TurnsCompleted.Inc()

	m.state.InputTranscript = m.opts.IdlePrompt
	m.state.OutputTranscript = ""
	m.notifyLocked()
}

func (m *Manager) playAudio(s *Session, msg domain.Audio) {
	chunk, err := audio.DecodeChunk(msg.Data, msg.MIMEType, m.opts.PlaybackRate)
	if err != nil {
		m.metrics.DecodeErrors.Inc()
		m.logger.Warn("Skipping undecodable audio chunk",
			zap.String("sessionID", s.ID),
			zap.Error(&DecodeError{MIMEType: msg.MIMEType, Size: len(msg.Data), Err: err}))
		return
	}

	sched := s.scheduler()
	if sched == nil {
		return
	}
	start, err := sched.Schedule(chunk, func() { m.playbackIdle(s) })
	if err != nil {
		if s.ctx.Err() == nil {
			m.logger.Warn("Failed to schedule audio chunk",
				zap.String("sessionID", s.ID),
				zap.Error(err))
		}
		return
	}
	m.metrics.ChunksScheduled.Inc()
	m.logger.Debug("Scheduled audio chunk",
		zap.String("sessionID", s.ID),
		zap.Duration("startAt", start),
		zap.Duration("duration", chunk.Duration()))

	m.update(s, func(st *State) bool {
		if st.AssistantTalking {
			return false
		}
		st.AssistantTalking = true
		return true
	})
}

// playbackIdle runs when the last scheduled source finished playing
func (m *Manager) playbackIdle(s *Session) {
	sched := s.scheduler()
	m.update(s, func(st *State) bool {
		// a chunk may have been scheduled since the callback was queued
		if !st.AssistantTalking || sched.Pending() > 0 {
			return false
		}
		st.AssistantTalking = false
		return true
	})
}

// interrupt takes effect before any further audio of the interrupted turn
// can start: sources are stopped and the cursor rewound synchronously.
func (m *Manager) interrupt(s *Session) {
	if sched := s.scheduler(); sched != nil {
		n, err := sched.Interrupt()
		if err != nil {
			m.logger.Debug("Stopping interrupted playback reported errors",
				zap.String("sessionID", s.ID),
				zap.Error(err))
		}
		m.logger.Debug("Playback interrupted",
			zap.String("sessionID", s.ID),
			zap.Int("stoppedSources", n))
	}
	m.metrics.Interruptions.Inc()
	m.update(s, func(st *State) bool {
		if !st.AssistantTalking {
			return false
		}
		st.AssistantTalking = false
		return true
	})
}

func (m *Manager) remoteClosed(s *Session, reason string) {
	if !s.isOpened() {
		m.end(s, &ConnectionError{Op: "handshake", Err: errClosedBeforeReady})
		return
	}
	m.logger.Info("Remote closed voice session",
		zap.String("sessionID", s.ID),
		zap.String("reason", reason))
	m.end(s, nil)
}

func typeName(msg domain.ServerMessage) string {
	if msg == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", msg)
}
