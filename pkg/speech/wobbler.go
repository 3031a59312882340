// Package speech analyzes playback audio for the avatar: a band spectrum for
// lip-sync and a loudness-driven head sway while the character talks.
package speech

import (
	"math"
	"sync"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

// WobbleConfig tunes the speech sway.
type WobbleConfig struct {
	SampleRate int
	FrameMS    int // RMS window
	HopMS      int // Step between offsets

	// Voice activity hysteresis (dBFS)
	VADOnDB    float64
	VADOffDB   float64
	VADAttack  int // ms
	VADRelease int // ms

	EnvFollow float64 // Envelope smoothing gain
	Master    float64 // Overall amplitude multiplier

	// Oscillators: frequency in Hz, amplitude in degrees
	PitchHz, YawHz, RollHz    float64
	PitchDeg, YawDeg, RollDeg float64

	// Loudness mapping (dBFS)
	LoudLowDB   float64
	LoudHighDB  float64
	LoudGamma   float64
	Sensitivity float64 // dB added before mapping

	SwayAttack  int // ms
	SwayRelease int // ms
}

// DefaultWobbleConfig returns a subtle sway at 16 kHz.
func DefaultWobbleConfig() WobbleConfig {
	return WobbleConfig{
		SampleRate: 16000,
		FrameMS:    20,
		HopMS:      10,

		VADOnDB:    -35,
		VADOffDB:   -45,
		VADAttack:  40,
		VADRelease: 250,

		EnvFollow: 0.65,
		Master:    1.5,

		PitchHz: 2.2, YawHz: 0.6, RollHz: 1.3,
		PitchDeg: 4.5, YawDeg: 7.5, RollDeg: 2.25,

		LoudLowDB:   -46,
		LoudHighDB:  -18,
		LoudGamma:   0.9,
		Sensitivity: 4,

		SwayAttack:  50,
		SwayRelease: 250,
	}
}

func (c WobbleConfig) frames(ms int) int {
	return max(1, ms/c.HopMS)
}

// Wobbler turns speech loudness into small additive head rotation offsets.
type Wobbler struct {
	mu  sync.Mutex
	cfg WobbleConfig

	// OnOffset, if set, is called with each new offset while the lock is held.
	OnOffset func(expression.HeadRotation)

	frameSize, hopSize int
	window             []float64 // Last frameSize samples
	pending            int

	vadOn              bool
	vadAbove, vadBelow int

	env              float64
	swayUp, swayDown int

	phasePitch, phaseYaw, phaseRoll float64
	t                               float64

	offset expression.HeadRotation
}

// NewWobbler creates a wobbler. A zero config uses the defaults.
func NewWobbler(cfg WobbleConfig) *Wobbler {
	if cfg.SampleRate <= 0 || cfg.HopMS <= 0 || cfg.FrameMS < cfg.HopMS {
		cfg = DefaultWobbleConfig()
	}
	w := &Wobbler{
		cfg:        cfg,
		frameSize:  cfg.SampleRate * cfg.FrameMS / 1000,
		hopSize:    cfg.SampleRate * cfg.HopMS / 1000,
		phasePitch: 0.7,
		phaseYaw:   2.1,
		phaseRoll:  4.2,
	}
	w.window = make([]float64, 0, w.frameSize)
	w.swayDown = cfg.frames(cfg.SwayRelease)
	return w
}

// Reset returns the wobbler to silence with a zero offset.
func (w *Wobbler) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.window = w.window[:0]
	w.pending = 0
	w.vadOn = false
	w.vadAbove, w.vadBelow = 0, 0
	w.env = 0
	w.swayUp, w.swayDown = 0, w.cfg.frames(w.cfg.SwayRelease)
	w.t = 0
	w.offset = expression.HeadRotation{}
}

// Feed consumes int16 PCM at sampleRate.
func (w *Wobbler) Feed(samples []int16, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	floats := toFloat(samples, sampleRate, w.cfg.SampleRate)

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range floats {
		if len(w.window) == w.frameSize {
			copy(w.window, w.window[1:])
			w.window = w.window[:w.frameSize-1]
		}
		w.window = append(w.window, s)
		w.pending++
		if w.pending >= w.hopSize {
			w.pending = 0
			w.hop()
		}
	}
}

// Offset returns the most recent head offset in radians.
func (w *Wobbler) Offset() expression.HeadRotation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// hop advances the detector and oscillators by one step.
func (w *Wobbler) hop() {
	c := w.cfg
	w.t += float64(c.HopMS) / 1000.0
	db := rmsDBFS(w.window)

	switch {
	case db >= c.VADOnDB:
		w.vadAbove++
		w.vadBelow = 0
		if !w.vadOn && w.vadAbove >= c.frames(c.VADAttack) {
			w.vadOn = true
		}
	case db <= c.VADOffDB:
		w.vadBelow++
		w.vadAbove = 0
		if w.vadOn && w.vadBelow >= c.frames(c.VADRelease) {
			w.vadOn = false
		}
	}

	attack, release := c.frames(c.SwayAttack), c.frames(c.SwayRelease)
	var target float64
	if w.vadOn {
		w.swayUp = min(attack, w.swayUp+1)
		w.swayDown = 0
		target = float64(w.swayUp) / float64(attack)
	} else {
		w.swayDown = min(release, w.swayDown+1)
		w.swayUp = 0
		target = 1 - float64(w.swayDown)/float64(release)
	}
	w.env = clamp(w.env+c.EnvFollow*(target-w.env), 0, 1)

	amp := w.loudness(db) * c.Master * w.env
	w.offset = expression.HeadRotation{
		Pitch: radians(c.PitchDeg) * amp * math.Sin(2*math.Pi*c.PitchHz*w.t+w.phasePitch),
		Yaw:   radians(c.YawDeg) * amp * math.Sin(2*math.Pi*c.YawHz*w.t+w.phaseYaw),
		Roll:  radians(c.RollDeg) * amp * math.Sin(2*math.Pi*c.RollHz*w.t+w.phaseRoll),
	}
	if w.OnOffset != nil {
		w.OnOffset(w.offset)
	}
}

// loudness maps dBFS onto [0,1].
func (w *Wobbler) loudness(db float64) float64 {
	c := w.cfg
	t := clamp((db+c.Sensitivity-c.LoudLowDB)/(c.LoudHighDB-c.LoudLowDB), 0, 1)
	if c.LoudGamma != 1 {
		t = math.Pow(t, c.LoudGamma)
	}
	return t
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
