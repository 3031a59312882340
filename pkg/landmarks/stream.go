package landmarks

import (
	"context"
	"sync"
	"time"
)

// DefaultStreamMaxAge is how long a pushed frame stays usable.
const DefaultStreamMaxAge = 250 * time.Millisecond

// StreamDetector serves frames pushed by a remote detector (for example a
// browser running Face Mesh and posting over the dashboard websocket).
// Detect ignores its image argument and returns the newest pushed frame.
type StreamDetector struct {
	mu       sync.Mutex
	latest   Frame
	pushedAt time.Time
	received bool
	maxAge   time.Duration
	now      func() time.Time
}

// NewStreamDetector creates a stream detector. maxAge <= 0 uses DefaultStreamMaxAge.
func NewStreamDetector(maxAge time.Duration) *StreamDetector {
	if maxAge <= 0 {
		maxAge = DefaultStreamMaxAge
	}
	return &StreamDetector{maxAge: maxAge, now: time.Now}
}

// Push stores a frame. Short or malformed frames are stored too; the
// estimator decides what to do with them.
func (s *StreamDetector) Push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = f.Clone()
	s.pushedAt = s.now()
	s.received = true
}

// Detect returns the newest frame, ErrModelNotReady before the first push,
// or ErrNoFace once the newest frame is older than maxAge.
func (s *StreamDetector) Detect(ctx context.Context, _ []byte) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.received {
		return Frame{}, ErrModelNotReady
	}
	if s.now().Sub(s.pushedAt) > s.maxAge {
		return Frame{}, ErrNoFace
	}
	return s.latest.Clone(), nil
}

// NeedsImage reports false: the stream source brings its own frames.
func (s *StreamDetector) NeedsImage() bool {
	return false
}

// Close implements Detector.
func (s *StreamDetector) Close() error {
	return nil
}
