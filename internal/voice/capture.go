package voice

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
)

// captureLoop runs from the ready transition until teardown
func (m *Manager) captureLoop(s *Session) {
	stream := s.captureStream()
	if stream == nil {
		return
	}
	frames := stream.Frames()
	mimeType := audio.PCMMIMEType(m.opts.CaptureRate)

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if s.ctx.Err() == nil {
					m.end(s, fmt.Errorf("%w: capture stream ended", ErrDeviceUnavailable))
				}
				return
			}
			m.processFrame(s, frame, mimeType)
		}
	}
}

// processFrame updates the speaking indicators and queues the frame for
// sending. It never waits for the network: a full queue drops the frame.
func (m *Manager) processFrame(s *Session, frame []float32, mimeType string) {
	rms := audio.RMSWithGain(frame, m.opts.InputGain)
	volume := audio.Level(rms, m.opts.VolumeScale, m.opts.VolumeCeiling)
	speaking := volume > m.opts.SpeakingThreshold

	m.update(s, func(st *State) bool {
		if st.InputVolume == volume && st.UserSpeaking == speaking {
			return false
		}
		st.InputVolume = volume
		st.UserSpeaking = speaking
		return true
	})

	blob := domain.AudioBlob{
		Data:     audio.EncodePCM16(frame, m.opts.InputGain),
		MIMEType: mimeType,
	}
	select {
	case s.outbound <- blob:
	default:
		m.metrics.FramesDropped.Inc()
	}
}

func (m *Manager) sendLoop(s *Session, conn repositories.LiveConnection) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case blob := <-s.outbound:
			if err := conn.SendAudio(blob); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				m.metrics.SendErrors.Inc()
				m.logger.Warn("Failed to send audio frame",
					zap.String("sessionID", s.ID),
					zap.Error(err))
				continue
			}
			m.metrics.FramesSent.Inc()
		}
	}
}
