package voice

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/audio"
)

// ErrSchedulerClosed is returned by Schedule after Close
var ErrSchedulerClosed = errors.New("playback scheduler closed")

// Scheduler chains output chunks on the playback clock with no gap and no
// overlap. Each chunk starts at max(now, cursor) and the cursor advances by
// the chunk duration as soon as it is scheduled, so chunks play in the order
// Schedule is called regardless of how long decoding took.
type Scheduler struct {
	out repositories.PlaybackContext

	mu      sync.Mutex
	cursor  time.Duration
	sources map[uint64]repositories.PlaybackSource
	seq     uint64
	closed  bool
}

// NewScheduler creates a scheduler on top of a playback context
func NewScheduler(out repositories.PlaybackContext) *Scheduler {
	return &Scheduler{
		out:     out,
		sources: make(map[uint64]repositories.PlaybackSource),
	}
}

// Schedule queues chunk after everything scheduled so far and returns its
// start time. onIdle runs when a source finishes and none remain.
func (s *Scheduler) Schedule(chunk audio.Chunk, onIdle func()) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSchedulerClosed
	}

	start := s.out.CurrentTime()
	if s.cursor > start {
		start = s.cursor
	}

	s.seq++
	id := s.seq
	src, err := s.out.Schedule(chunk, start, func() { s.ended(id, onIdle) })
	if err != nil {
		return 0, err
	}
	s.sources[id] = src
	s.cursor = start + chunk.Duration()
	return start, nil
}

func (s *Scheduler) ended(id uint64, onIdle func()) {
	s.mu.Lock()
	_, ok := s.sources[id]
	delete(s.sources, id)
	idle := ok && len(s.sources) == 0
	s.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}

// Interrupt stops every scheduled source, forgets them and rewinds the
// cursor so the next chunk starts immediately. It returns how many sources
// were stopped; a failing Stop does not prevent the others.
func (s *Scheduler) Interrupt() (int, error) {
	s.mu.Lock()
	sources := s.drainLocked()
	s.mu.Unlock()
	return len(sources), stopAll(sources)
}

// Close interrupts playback and rejects further chunks
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	sources := s.drainLocked()
	s.mu.Unlock()
	return stopAll(sources)
}

// Pending returns the number of sources scheduled and not yet finished
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Cursor returns the start time of the next chunk if it arrived now
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) drainLocked() []repositories.PlaybackSource {
	sources := make([]repositories.PlaybackSource, 0, len(s.sources))
	for _, src := range s.sources {
		sources = append(sources, src)
	}
	s.sources = make(map[uint64]repositories.PlaybackSource)
	s.cursor = 0
	return sources
}

func stopAll(sources []repositories.PlaybackSource) (err error) {
	for _, src := range sources {
		err = multierr.Append(err, src.Stop())
	}
	return err
}
