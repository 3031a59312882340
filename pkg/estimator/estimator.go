// Package estimator turns facial landmark frames into expression intensities
// and a head rotation.
//
// Every feature is a normalized geometric ratio compared against a neutral-pose
// ratio. Raw values are clamped, zeroed below a per-channel threshold, and only
// then smoothed, so a real movement that clears the threshold is not dragged
// down by averaging in near-zero noise.
package estimator

import (
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/debug"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
)

// Estimator holds the smoothed expression state for one face.
type Estimator struct {
	mu     sync.RWMutex
	config Config
	logger *slog.Logger

	expr     expression.Vector
	head     expression.HeadRotation
	hasHead  bool
	accepted uint64
	rejected uint64
}

// New creates an estimator in the neutral state.
func New(config Config) *Estimator {
	return &Estimator{
		config: config,
		logger: log.Component("estimator"),
	}
}

// Update folds one landmark frame into the smoothed state and returns it.
// A malformed or short frame is logged and ignored: the previous state is
// returned unchanged.
func (e *Estimator) Update(frame landmarks.Frame) (expression.Vector, expression.HeadRotation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := frame.Validate(); err != nil {
		e.rejected++
		if e.rejected == 1 || e.rejected%100 == 0 {
			e.logger.Debug("ignoring landmark frame", "error", err, "rejected", e.rejected)
		}
		return e.expr, e.head
	}

	raw, head := Measure(e.config, frame)
	e.expr = e.expr.Smooth(raw, e.config.Alpha)
	e.head = e.head.Smooth(head, e.config.Alpha)
	e.hasHead = true
	e.accepted++

	debug.FrameLog("estimate",
		"mouthOpen", e.expr[expression.MouthOpen],
		"jawOpen", e.expr[expression.JawOpen],
		"pitch", e.head.Pitch, "yaw", e.head.Yaw, "roll", e.head.Roll)

	return e.expr, e.head
}

// Current returns the smoothed state without updating it.
func (e *Estimator) Current() (expression.Vector, expression.HeadRotation) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expr, e.head
}

// HasHead reports whether at least one frame has been accepted since the last reset.
func (e *Estimator) HasHead() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasHead
}

// Reset returns to the neutral state. Only a sustained absence of faces should trigger this.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expr = expression.Vector{}
	e.head = expression.HeadRotation{}
	e.hasHead = false
}

// Alpha returns the EMA weight.
func (e *Estimator) Alpha() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.Alpha
}

// SetAlpha changes the EMA weight at runtime.
func (e *Estimator) SetAlpha(alpha float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Alpha = expression.Clamp01(alpha)
}

// Stats returns how many frames were accepted and rejected.
func (e *Estimator) Stats() (accepted, rejected uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accepted, e.rejected
}

// Measure computes the thresholded, unsmoothed expression vector and head
// rotation of a valid frame.
func Measure(cfg Config, f landmarks.Frame) (expression.Vector, expression.HeadRotation) {
	p := f.At

	faceH := math.Max(p(landmarks.Forehead).Dist2D(p(landmarks.NoseTip)), cfg.MinFaceHeight)
	faceW := math.Max(p(landmarks.RightCheek).Dist2D(p(landmarks.LeftCheek)), cfg.MinFaceWidth)

	var v expression.Vector
	set := func(ch expression.Channel, raw float64) {
		x := expression.Clamp01(raw)
		if x < cfg.zeroThreshold(ch) {
			x = 0
		}
		v[ch] = x
	}

	// Mouth
	gap := p(landmarks.UpperLipIn).Dist2D(p(landmarks.LowerLipIn)) / faceH
	set(expression.MouthOpen, (gap-cfg.NeutralMouthGap)*cfg.MouthOpenScale)

	jaw := p(landmarks.Chin).Dist2D(p(landmarks.NoseTip)) / faceH
	set(expression.JawOpen, (jaw-cfg.NeutralJawRatio)*cfg.JawOpenScale)

	base := p(landmarks.NoseBase)
	liftR := (base.Y-p(landmarks.MouthCornerR).Y)/faceH - cfg.NeutralCornerLift
	liftL := (base.Y-p(landmarks.MouthCornerL).Y)/faceH - cfg.NeutralCornerLift
	set(expression.MouthSmileRight, liftR*cfg.SmileScale)
	set(expression.MouthSmileLeft, liftL*cfg.SmileScale)
	set(expression.MouthFrownRight, -liftR*cfg.FrownScale)
	set(expression.MouthFrownLeft, -liftL*cfg.FrownScale)

	width := p(landmarks.MouthCornerR).Dist2D(p(landmarks.MouthCornerL)) / faceW
	set(expression.MouthPucker, (cfg.NeutralMouthWidth-width)*cfg.PuckerScale)

	side := (p(landmarks.Chin).X - p(landmarks.NoseTip).X) / faceW
	set(expression.JawLeft, side*cfg.JawSideScale)
	set(expression.JawRight, -side*cfg.JawSideScale)

	sneer := (p(landmarks.UpperLipIn).Y - base.Y) / faceH
	set(expression.NoseSneerLeft, (cfg.NeutralSneerGap-sneer)*cfg.SneerScale)
	set(expression.NoseSneerRight, (cfg.NeutralSneerGap-sneer)*cfg.SneerScale)

	// Brows
	innerR := (p(landmarks.RightEyeIn).Y-p(landmarks.RightBrowIn).Y)/faceH - cfg.NeutralBrowInner
	innerL := (p(landmarks.LeftEyeIn).Y-p(landmarks.LeftBrowIn).Y)/faceH - cfg.NeutralBrowInner
	set(expression.BrowInnerUp, (innerR+innerL)/2*cfg.BrowUpScale)
	set(expression.BrowDownRight, -innerR*cfg.BrowDownScale)
	set(expression.BrowDownLeft, -innerL*cfg.BrowDownScale)

	outerR := (p(landmarks.RightEyeOut).Y-p(landmarks.RightBrowOut).Y)/faceH - cfg.NeutralBrowOuter
	outerL := (p(landmarks.LeftEyeOut).Y-p(landmarks.LeftBrowOut).Y)/faceH - cfg.NeutralBrowOuter
	set(expression.BrowOuterUpRight, outerR*cfg.BrowUpScale)
	set(expression.BrowOuterUpLeft, outerL*cfg.BrowUpScale)

	// Eyes
	eye := func(up, low, out, in int, blink, wide, squint expression.Channel) {
		w := math.Max(p(out).Dist2D(p(in)), cfg.MinEyeWidth)
		open := (p(low).Y - p(up).Y) / w
		closing := (cfg.NeutralEyeOpen - open) / cfg.NeutralEyeOpen
		set(blink, closing*cfg.BlinkScale)
		set(wide, (open-cfg.NeutralEyeOpen)*cfg.WideScale)
		// squint covers the partly-closed range only; a full blink is not a squint
		if closing < 0.5 {
			set(squint, closing*cfg.SquintScale)
		}
	}
	eye(landmarks.RightEyeUp, landmarks.RightEyeLow, landmarks.RightEyeOut, landmarks.RightEyeIn,
		expression.EyeBlinkRight, expression.EyeWideRight, expression.EyeSquintRight)
	eye(landmarks.LeftEyeUp, landmarks.LeftEyeLow, landmarks.LeftEyeOut, landmarks.LeftEyeIn,
		expression.EyeBlinkLeft, expression.EyeWideLeft, expression.EyeSquintLeft)

	return v, measureHead(cfg, f)
}

// measureHead derives pitch, yaw and roll from nose, eye and chin geometry.
func measureHead(cfg Config, f landmarks.Frame) expression.HeadRotation {
	p := f.At

	innerR, innerL := p(landmarks.RightEyeIn), p(landmarks.LeftEyeIn)
	eyeMid := innerR.Mid(innerL)
	ocular := math.Max(innerR.Dist2D(innerL), cfg.MinEyeWidth)
	nose := p(landmarks.NoseTip)
	chin := p(landmarks.Chin)

	yaw := (nose.X - eyeMid.X) / ocular * cfg.YawScale

	var pitch float64
	if span := chin.Y - eyeMid.Y; math.Abs(span) > cfg.MinEyeWidth {
		pitch = ((nose.Y-eyeMid.Y)/span - cfg.NeutralPitchRatio) * cfg.PitchScale
	}

	eyeLine := p(landmarks.LeftEyeOut).Sub(p(landmarks.RightEyeOut))
	roll := math.Atan2(eyeLine.Y, eyeLine.X) * cfg.RollScale

	return expression.HeadRotation{Pitch: pitch, Yaw: yaw, Roll: roll}
}
