package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
	"github.com/fitmind/voicecoach/internal/voice"
)

const captureBuffer = 8

// messageSink queues an outbound message for the client
type messageSink interface {
	enqueue(msg interface{}) bool
}

// remoteCapture is the microphone of the browser on the other end of the socket.
// Samples arrive in websocket messages of any length and are re-blocked into
// the frame size requested by Open.
type remoteCapture struct {
	mu         sync.Mutex
	permission bool
	gone       bool
	stream     *captureStream
}

func newRemoteCapture() *remoteCapture {
	return &remoteCapture{permission: true}
}

// setPermission records whether the user allowed microphone access
func (c *remoteCapture) setPermission(granted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permission = granted
}

// disconnect marks the socket as gone and ends any open stream
func (c *remoteCapture) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone = true
	if c.stream != nil {
		c.stream.closeLocked()
		c.stream = nil
	}
}

func (c *remoteCapture) Open(ctx context.Context, format repositories.CaptureFormat) (repositories.CaptureStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.permission {
		return nil, voice.ErrPermissionDenied
	}
	if c.gone {
		return nil, fmt.Errorf("%w: client disconnected", voice.ErrDeviceUnavailable)
	}
	if c.stream != nil {
		c.stream.closeLocked()
	}

	c.stream = &captureStream{
		owner:  c,
		rate:   format.SampleRate,
		framer: audio.NewFramer(format.FrameSize),
		frames: make(chan []float32, captureBuffer),
	}
	return c.stream, nil
}

// push feeds samples into the open stream. It returns false when no stream
// is live, the rate does not match, or frames had to be dropped. Samples
// arriving before the stream is activated are discarded, not buffered.
func (c *remoteCapture) push(samples []float32, rate int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stream
	if s == nil || !s.live {
		return false
	}
	if rate != 0 && rate != s.rate {
		return false
	}

	ok := true
	for _, frame := range s.framer.Push(samples) {
		select {
		case s.frames <- frame:
		default:
			ok = false
		}
	}
	return ok
}

type captureStream struct {
	owner  *remoteCapture
	rate   int
	framer *audio.Framer
	frames chan []float32
	live   bool
	closed bool
}

func (s *captureStream) Frames() <-chan []float32 {
	return s.frames
}

// Activate starts accepting pushed samples
func (s *captureStream) Activate() {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.live = true
}

func (s *captureStream) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.closeLocked()
	if s.owner.stream == s {
		s.owner.stream = nil
	}
	return nil
}

// closeLocked must be called with owner.mu held
func (s *captureStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}

// remotePlayback is the speaker of the browser. The server keeps the playback
// timeline on its own clock and tells the client when each chunk starts.
type remotePlayback struct {
	sink  messageSink
	clock clock.Clock
}

func newRemotePlayback(sink messageSink, clk clock.Clock) *remotePlayback {
	return &remotePlayback{sink: sink, clock: clk}
}

func (p *remotePlayback) Open(ctx context.Context, sampleRate int) (repositories.PlaybackContext, error) {
	return &playbackTimeline{
		sink:  p.sink,
		clock: p.clock,
		rate:  sampleRate,
		epoch: p.clock.Now(),
	}, nil
}

type playbackTimeline struct {
	sink  messageSink
	clock clock.Clock
	rate  int
	epoch time.Time

	mu      sync.Mutex
	closed  bool
	sources map[*playbackSource]struct{}
}

func (t *playbackTimeline) CurrentTime() time.Duration {
	return t.clock.Since(t.epoch)
}

func (t *playbackTimeline) Schedule(chunk audio.Chunk, at time.Duration, onEnded func()) (repositories.PlaybackSource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: playback closed", voice.ErrDeviceUnavailable)
	}

	src := &playbackSource{timeline: t, id: uuid.NewString()}
	msg := &AudioChunkMessage{
		BaseMessage: newBase(MessageTypeAudioChunk),
		SourceID:    src.id,
		StartAtMs:   at.Milliseconds(),
		DurationMs:  chunk.Duration().Milliseconds(),
		SampleRate:  t.rate,
		AudioData:   audio.EncodeBase64(audio.EncodePCM16(chunk.Samples, 1)),
	}
	if !t.sink.enqueue(msg) {
		return nil, fmt.Errorf("%w: client send buffer full", voice.ErrDeviceUnavailable)
	}

	until := at + chunk.Duration() - t.CurrentTime()
	src.mu.Lock()
	src.timer = t.clock.AfterFunc(until, func() {
		if src.finish() {
			onEnded()
		}
	})
	src.mu.Unlock()

	if t.sources == nil {
		t.sources = make(map[*playbackSource]struct{})
	}
	t.sources[src] = struct{}{}
	return src, nil
}

func (t *playbackTimeline) Close() error {
	t.mu.Lock()
	t.closed = true
	sources := t.sources
	t.sources = nil
	t.mu.Unlock()

	for src := range sources {
		src.cancel()
	}
	return nil
}

func (t *playbackTimeline) forget(src *playbackSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sources, src)
}

type playbackSource struct {
	timeline *playbackTimeline
	id       string
	timer    *clock.Timer

	mu   sync.Mutex
	done bool
}

// finish reports whether the chunk ended naturally
func (s *playbackSource) finish() bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return false
	}
	s.done = true
	s.mu.Unlock()
	s.timeline.forget(s)
	return true
}

// cancel silences the source without notifying the client
func (s *playbackSource) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
	return true
}

// Stop cancels the source and tells the client to drop it
func (s *playbackSource) Stop() error {
	if !s.cancel() {
		return nil
	}
	s.timeline.forget(s)
	s.timeline.sink.enqueue(&AudioStopMessage{
		BaseMessage: newBase(MessageTypeAudioStop),
		SourceID:    s.id,
	})
	return nil
}
