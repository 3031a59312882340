// Package fusion combines landmark-derived expressions with emotion classifier
// scores into one expression vector per capture tick.
package fusion

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/debug"
	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/estimator"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
)

// Config holds the fusion rule constants.
type Config struct {
	Alpha               float64 // EMA weight for channels no rule resolved
	SnapThreshold       float64 // Anything below reads as exactly 0
	SuppressThreshold   float64 // Emotion intensity that starts damping mouthOpen
	MaxMouthSuppression float64 // mouthOpen *= 1 - intensity*MaxMouthSuppression
}

// DefaultConfig returns the tuned fusion constants.
func DefaultConfig() Config {
	return Config{
		Alpha:               0.4,
		SnapThreshold:       0.1,
		SuppressThreshold:   0.3,
		MaxMouthSuppression: 0.7,
	}
}

// Channels the classifier overrides when scores are available.
var emotionChannels = []expression.Channel{
	expression.MouthSmileLeft,
	expression.MouthSmileRight,
	expression.MouthFrownLeft,
	expression.MouthFrownRight,
	expression.NoseSneerLeft,
	expression.NoseSneerRight,
	expression.CheekPuff,
}

// Engine fuses vision and emotion once per capture tick. It is safe for
// concurrent use: the capture loop calls Update while the classifier
// callback calls OnEmotionScores.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	mapping emotion.Mapping
	est     *estimator.Estimator
	logger  *slog.Logger

	fused  expression.Vector
	head   expression.HeadRotation
	frame  landmarks.Frame
	scores emotion.Scores

	visionOnly bool
	latchErr   error

	subs   map[int]func(emotion.Scores)
	nextID int
}

// New creates a fusion engine around est.
func New(cfg Config, est *estimator.Estimator, mapping emotion.Mapping) *Engine {
	if mapping == nil {
		mapping = emotion.DefaultMapping()
	}
	return &Engine{
		cfg:     cfg,
		mapping: mapping,
		est:     est,
		logger:  log.Component("fusion"),
		subs:    make(map[int]func(emotion.Scores)),
	}
}

// Update estimates from frame and runs one fusion pass. Invalid frames hold
// the estimator state, so the pass reuses the previous vision reading.
func (e *Engine) Update(frame landmarks.Frame) expression.Vector {
	vision, head := e.est.Update(frame)

	e.mu.Lock()
	e.head = head
	if frame.Validate() == nil {
		e.frame = frame.Clone()
	}
	scores := e.scores
	e.mu.Unlock()

	return e.Fuse(vision, scores)
}

// Fuse runs the rule set once against the previous fused vector and stores
// the result. Scores are ignored once the engine is vision-only.
func (e *Engine) Fuse(vision expression.Vector, scores emotion.Scores) expression.Vector {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.visionOnly {
		scores = nil
	}
	e.fused = fuse(e.cfg, e.mapping, e.fused, vision, scores)

	debug.FrameLog("fused",
		"mouthOpen", e.fused[expression.MouthOpen],
		"jawOpen", e.fused[expression.JawOpen],
		"smileL", e.fused[expression.MouthSmileLeft],
		"visionOnly", e.visionOnly)

	return e.fused
}

// fuse applies the ordered rules:
// copy vision, override emotion channels, damp mouthOpen by smile or frown
// intensity, max-merge eyeWide, snap, then smooth what no rule resolved.
// A smoothed channel snaps to 0 only while its target is also below the
// threshold, so rising and steady values are never cut off.
func fuse(cfg Config, m emotion.Mapping, prev, vision expression.Vector, scores emotion.Scores) expression.Vector {
	out := vision
	var resolved [expression.NumChannels]bool

	var emo expression.Vector
	if len(scores) > 0 {
		emo = m.Vector(scores)
		for _, ch := range emotionChannels {
			out[ch] = emo[ch]
			resolved[ch] = true
		}
	}

	intensity := max(
		out[expression.MouthSmileLeft], out[expression.MouthSmileRight],
		out[expression.MouthFrownLeft], out[expression.MouthFrownRight],
	)
	if intensity > cfg.SuppressThreshold {
		out[expression.MouthOpen] *= 1 - intensity*cfg.MaxMouthSuppression
	}

	out[expression.EyeWideLeft] = max(out[expression.EyeWideLeft], emo[expression.EyeWideLeft])
	out[expression.EyeWideRight] = max(out[expression.EyeWideRight], emo[expression.EyeWideRight])

	resolved[expression.MouthOpen] = true
	resolved[expression.JawOpen] = true
	resolved[expression.EyeWideLeft] = true
	resolved[expression.EyeWideRight] = true

	snap(&out, cfg.SnapThreshold)
	target := out

	for ch := range out {
		if resolved[ch] {
			continue
		}
		out[ch] = prev[ch]*(1-cfg.Alpha) + target[ch]*cfg.Alpha
		if out[ch] < cfg.SnapThreshold && target[ch] < cfg.SnapThreshold {
			out[ch] = 0
		}
	}
	return out
}

func snap(v *expression.Vector, threshold float64) {
	for i, x := range v {
		if x < threshold {
			v[i] = 0
		}
	}
}

// OnEmotionScores records the classifier's latest scores and notifies
// subscribers. Ignored once the engine is vision-only.
func (e *Engine) OnEmotionScores(scores emotion.Scores) {
	e.mu.Lock()
	if e.visionOnly {
		e.mu.Unlock()
		return
	}
	e.scores = scores.Clone()
	subs := make([]func(emotion.Scores), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(scores.Clone())
	}
}

// OnClassifierError switches the engine to vision-only for the rest of the
// session. There is no way back.
func (e *Engine) OnClassifierError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.visionOnly {
		return
	}
	e.visionOnly = true
	e.latchErr = err
	e.scores = nil
	e.logger.Warn("emotion classifier unavailable, continuing vision-only", "error", err)
}

// SubscribeEmotions registers fn for every accepted score update and returns
// a function that removes it.
func (e *Engine) SubscribeEmotions(fn func(emotion.Scores)) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Expressions returns the latest fused vector.
func (e *Engine) Expressions() expression.Vector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fused
}

// HeadRotation returns the latest smoothed head rotation.
func (e *Engine) HeadRotation() expression.HeadRotation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.head
}

// Landmarks returns a copy of the latest valid frame, or an empty frame.
func (e *Engine) Landmarks() landmarks.Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame.Clone()
}

// Scores returns a copy of the last known emotion scores.
func (e *Engine) Scores() emotion.Scores {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scores.Clone()
}

// VisionOnly reports whether the classifier has been latched off.
func (e *Engine) VisionOnly() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visionOnly
}

// LatchError returns the error that latched vision-only mode, if any.
func (e *Engine) LatchError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latchErr
}

// SetAlpha changes the fusion EMA weight at runtime.
func (e *Engine) SetAlpha(alpha float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Alpha = expression.Clamp01(alpha)
}

// Estimator returns the landmark estimator feeding the engine.
func (e *Engine) Estimator() *estimator.Estimator {
	return e.est
}

// Config returns the current fusion constants.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Reset clears fused, head and landmark state back to neutral. Emotion
// scores and the vision-only latch survive.
func (e *Engine) Reset() {
	e.est.Reset()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fused = expression.Vector{}
	e.head = expression.HeadRotation{}
	e.frame = landmarks.Frame{}
}
