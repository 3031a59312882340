// Package tracking runs the capture loop: grab a frame, detect landmarks,
// fuse, and publish the result to the shared state slot.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/debug"
	"github.com/teslashibe/go-facerig/pkg/fusion"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
	"github.com/teslashibe/go-facerig/pkg/state"
)

var (
	// ErrAlreadyRunning is returned by Run on a tracker whose loop is active.
	ErrAlreadyRunning = errors.New("tracking: already running")

	// ErrNoVideo is returned when the detector needs images and no source is set.
	ErrNoVideo = errors.New("tracking: detector needs images but no video source is set")
)

// VideoSource captures frames. Any error it returns is treated as fatal for
// the loop: sources handle transient read failures themselves.
type VideoSource interface {
	CaptureJPEG() ([]byte, error)
}

// imageless is implemented by detectors that bring their own frames.
type imageless interface {
	NeedsImage() bool
}

// Status is a point-in-time view of the loop.
type Status struct {
	Running     bool    `json:"running"`
	DetectionHz float64 `json:"detection_hz"`
	Misses      int     `json:"misses"`
	Ticks       uint64  `json:"ticks"`
	Faces       uint64  `json:"faces"`
	Neutral     bool    `json:"neutral"`
	Error       string  `json:"error,omitempty"`
}

// Tracker owns the capture loop.
type Tracker struct {
	config   Config
	video    VideoSource
	detector landmarks.Detector
	engine   *fusion.Engine
	slot     *state.Slot
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
	misses  int
	neutral bool
	ticks   uint64
	faces   uint64
	lastErr error

	detectTickerReset chan time.Duration
}

// New creates a tracker. video may be nil when the detector brings its own
// frames.
func New(config Config, video VideoSource, detector landmarks.Detector, engine *fusion.Engine, slot *state.Slot) *Tracker {
	return &Tracker{
		config:            config,
		video:             video,
		detector:          detector,
		engine:            engine,
		slot:              slot,
		logger:            log.Component("tracking"),
		neutral:           true,
		detectTickerReset: make(chan time.Duration, 1),
	}
}

// Run ticks until ctx is cancelled or the video source fails. A slow tick
// delays the next one; ticks are never queued. A source failure clears the
// vision state and is returned without retrying.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.running = true
	t.lastErr = nil
	interval := t.config.DetectionInterval
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("tracking started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracking stopped")
			return nil

		case newInterval := <-t.detectTickerReset:
			ticker.Reset(newInterval)
			t.logger.Info("detection rate changed", "interval", newInterval)

		case <-ticker.C:
			if err := t.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.mu.Lock()
				t.lastErr = err
				t.mu.Unlock()
				t.engine.Reset()
				t.slot.ClearVision()
				t.logger.Error("video source failed, tracking stopped", "error", err)
				return err
			}
		}
	}
}

// Tick runs one capture → detect → fuse → publish pass. It only returns an
// error when the video source fails.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	t.ticks++
	video := t.video
	t.mu.Unlock()

	var img []byte
	if t.needsImage() {
		if video == nil {
			return ErrNoVideo
		}
		var err error
		if img, err = video.CaptureJPEG(); err != nil {
			return fmt.Errorf("tracking: capture: %w", err)
		}
	}

	frame, err := t.detector.Detect(ctx, img)
	if err != nil {
		if !landmarks.IsMiss(err) && ctx.Err() == nil {
			t.logger.Warn("landmark detection failed", "error", err)
		}
		t.miss()
		return nil
	}

	if err := frame.Validate(); err != nil {
		// Hold: a malformed frame is noise, not absence.
		t.engine.Update(frame)
		debug.FrameLog("holding on malformed frame", "error", err)
		return nil
	}

	fused := t.engine.Update(frame)
	t.slot.StoreVision(state.Vision{
		Expressions: fused,
		Head:        t.engine.HeadRotation(),
		Landmarks:   frame,
		VisionOnly:  t.engine.VisionOnly(),
	})

	t.mu.Lock()
	if t.misses >= t.config.LogMissesAt {
		t.logger.Info("face reacquired", "after_misses", t.misses)
	}
	t.misses = 0
	t.neutral = false
	t.faces++
	t.mu.Unlock()
	return nil
}

// miss counts a tick without a face and returns to neutral once the streak
// is sustained. Single misses hold the previous state.
func (t *Tracker) miss() {
	t.mu.Lock()
	t.misses++
	misses := t.misses
	reset := misses >= t.config.NeutralAfterMisses && !t.neutral
	if reset {
		t.neutral = true
	}
	t.mu.Unlock()

	if misses == t.config.LogMissesAt {
		t.logger.Info("lost face", "misses", misses)
	}
	if reset {
		t.engine.Reset()
		t.slot.ClearVision()
		t.logger.Info("face absent, returning to neutral", "misses", misses)
	}
}

func (t *Tracker) needsImage() bool {
	if d, ok := t.detector.(imageless); ok {
		return d.NeedsImage()
	}
	return true
}

// SetVideo replaces the video source between runs.
func (t *Tracker) SetVideo(video VideoSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyRunning
	}
	t.video = video
	return nil
}

// NeedsImage reports whether the detector consumes camera frames.
func (t *Tracker) NeedsImage() bool {
	return t.needsImage()
}

// Status returns the loop status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Status{
		Running:     t.running,
		DetectionHz: t.config.DetectionHz(),
		Misses:      t.misses,
		Ticks:       t.ticks,
		Faces:       t.faces,
		Neutral:     t.neutral,
	}
	if t.lastErr != nil {
		s.Error = t.lastErr.Error()
	}
	return s
}

// Err returns the error that stopped the last run, if any.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// IsRunning reports whether the loop is active.
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
