package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain"
	"github.com/fitmind/voicecoach/domain/entities"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
)

var errConnClosed = errors.New("connection closed")

type fakeCapture struct {
	mu     sync.Mutex
	err    error
	opened int
	stream *fakeStream

	// exclusive ends the previous stream on Open, as a single microphone does
	exclusive bool

	// gate holds the next Open until it is closed
	gate chan struct{}
}

func (c *fakeCapture) Open(ctx context.Context, format repositories.CaptureFormat) (repositories.CaptureStream, error) {
	c.mu.Lock()
	c.opened++
	gate := c.gate
	c.gate = nil
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.exclusive && c.stream != nil {
		c.stream.end()
	}
	c.stream = &fakeStream{frames: make(chan []float32), done: make(chan struct{})}
	return c.stream, nil
}

func (c *fakeCapture) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *fakeCapture) current() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

type fakeStream struct {
	frames    chan []float32
	done      chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once

	mu     sync.Mutex
	active bool
}

func (s *fakeStream) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}

func (s *fakeStream) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeStream) Frames() <-chan []float32 { return s.frames }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// end closes the frame channel as a device that went away would
func (s *fakeStream) end() {
	s.endOnce.Do(func() { close(s.frames) })
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// push hands a frame to the capture loop, failing if nobody reads it
func (s *fakeStream) push(frame []float32, wait time.Duration) bool {
	select {
	case s.frames <- frame:
		return true
	case <-time.After(wait):
		return false
	}
}

type fakePlayback struct {
	mu  sync.Mutex
	err error
	out *fakeOutput
}

func (p *fakePlayback) Open(ctx context.Context, sampleRate int) (repositories.PlaybackContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.out = &fakeOutput{rate: sampleRate}
	return p.out, nil
}

func (p *fakePlayback) current() *fakeOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

type fakeOutput struct {
	mu      sync.Mutex
	rate    int
	now     time.Duration
	sources []*fakeSource
	closed  bool
}

func (o *fakeOutput) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

func (o *fakeOutput) Schedule(chunk audio.Chunk, at time.Duration, onEnded func()) (repositories.PlaybackSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errors.New("output closed")
	}
	src := &fakeSource{at: at, duration: chunk.Duration(), onEnded: onEnded}
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *fakeOutput) scheduled() []*fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSource(nil), o.sources...)
}

type fakeSource struct {
	mu       sync.Mutex
	at       time.Duration
	duration time.Duration
	onEnded  func()
	stopped  bool
	finished bool
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// finish simulates natural end of playback
func (s *fakeSource) finish() {
	s.mu.Lock()
	if s.stopped || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	fn := s.onEnded
	s.mu.Unlock()
	fn()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeModel struct {
	mu      sync.Mutex
	err     error
	block   bool
	configs []repositories.LiveConfig
	conns   []*fakeConn
}

func (m *fakeModel) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveConnection, error) {
	m.mu.Lock()
	m.configs = append(m.configs, config)
	err, block := m.err, m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	conn := newFakeConn()
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	return conn, nil
}

func (m *fakeModel) connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.configs)
}

func (m *fakeModel) conn(i int) *fakeConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.conns) {
		return nil
	}
	return m.conns[i]
}

type fakeConn struct {
	inbox     chan domain.ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []domain.AudioBlob
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox: make(chan domain.ServerMessage, 64),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) SendAudio(blob domain.AudioBlob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, blob)
	return nil
}

func (c *fakeConn) Receive() (domain.ServerMessage, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.done:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentFrames() []domain.AudioBlob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.AudioBlob(nil), c.sent...)
}

type recorder struct {
	mu     sync.Mutex
	states []State
	turns  [][2]entities.ChatEntry
	ended  []error
}

func (r *recorder) StateChanged(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) TurnCompleted(user, assistant entities.ChatEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, [2]entities.ChatEntry{user, assistant})
}

func (r *recorder) SessionEnded(sessionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, err)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, s := range r.states {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}

func (r *recorder) endings() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.ended...)
}

func (r *recorder) completed() [][2]entities.ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]entities.ChatEntry(nil), r.turns...)
}

type harness struct {
	capture  *fakeCapture
	playback *fakePlayback
	model    *fakeModel
	observer *recorder
	metrics  *Metrics
	manager  *Manager
}

func newHarness(opts Options) *harness {
	return newHarnessWithLogger(opts, nil)
}

func newHarnessWithLogger(opts Options, logger *zap.Logger) *harness {
	h := &harness{
		capture:  &fakeCapture{},
		playback: &fakePlayback{},
		model:    &fakeModel{},
		observer: &recorder{},
		metrics:  NewMetrics(nil),
	}
	h.manager = NewManager(
		Devices{Capture: h.capture, Playback: h.playback},
		h.model, h.observer, opts, h.metrics, logger,
	)
	return h
}

func testConfig() Config {
	return Config{SystemPrompt: "You are a coach.", Voice: entities.VoiceKore, UserContext: "User: Lin"}
}

// startAsync runs Start in the background and returns its result channel
func (h *harness) startAsync(config Config) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.manager.Start(context.Background(), config) }()
	return done
}

// open starts a session and completes the handshake
func (h *harness) open(t *testing.T) *fakeConn {
	t.Helper()
	n := h.model.connects()
	done := h.startAsync(testConfig())
	waitFor(t, "connect", func() bool { return h.model.conn(n) != nil })
	conn := h.model.conn(n)
	conn.inbox <- domain.Ready{}
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func pcmChunk(samples int) []byte {
	return make([]byte, samples*2)
}

func constantFrame(n int, v float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}
