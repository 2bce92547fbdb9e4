package audio

// Framer re-blocks sample slices of arbitrary length into fixed-size frames.
// It is not safe for concurrent use.
type Framer struct {
	size    int
	pending []float32
}

// NewFramer creates a framer emitting frames of size samples
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 2048
	}
	return &Framer{size: size, pending: make([]float32, 0, size)}
}

// Push appends samples and returns every complete frame. Each returned
// frame is a fresh slice owned by the caller.
func (f *Framer) Push(samples []float32) [][]float32 {
	var frames [][]float32
	for len(samples) > 0 {
		n := f.size - len(f.pending)
		if n > len(samples) {
			n = len(samples)
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.pending)
			frames = append(frames, frame)
			f.pending = f.pending[:0]
		}
	}
	return frames
}

// Buffered returns the number of samples waiting for a full frame
func (f *Framer) Buffered() int {
	return len(f.pending)
}

// Reset drops any partial frame
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
