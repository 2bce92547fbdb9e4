package repositories

import (
	"context"
	"time"

	"github.com/fitmind/voicecoach/internal/audio"
)

// CaptureFormat describes the frames a capture stream must deliver
type CaptureFormat struct {
	SampleRate int
	FrameSize  int
}

// AudioCapture gives access to a microphone.
// Open fails with voice.ErrPermissionDenied or voice.ErrDeviceUnavailable
// (or errors wrapping them) when access cannot be granted.
type AudioCapture interface {
	Open(ctx context.Context, format CaptureFormat) (CaptureStream, error)
}

// CaptureStream delivers fixed-size mono frames in [-1, 1] until closed.
// Close detaches the stream and releases the device; it must be safe to call twice.
type CaptureStream interface {
	Frames() <-chan []float32
	Close() error
}

// ActivatableStream is a CaptureStream that discards input until Activate
// is called. The voice manager activates it when the remote becomes ready.
type ActivatableStream interface {
	CaptureStream
	Activate()
}

// AudioPlayback gives access to a speaker running at a fixed sample rate
type AudioPlayback interface {
	Open(ctx context.Context, sampleRate int) (PlaybackContext, error)
}

// PlaybackContext schedules decoded chunks on the output device clock.
//
// onEnded must be invoked at most once, from a goroutine other than the one
// calling Schedule, when the chunk finishes playing. It is not invoked for
// sources stopped through PlaybackSource.Stop.
type PlaybackContext interface {
	CurrentTime() time.Duration
	Schedule(chunk audio.Chunk, at time.Duration, onEnded func()) (PlaybackSource, error)
	Close() error
}

// PlaybackSource is a scheduled or playing chunk
type PlaybackSource interface {
	Stop() error
}
