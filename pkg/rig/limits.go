package rig

import (
	"errors"
	"math"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

// Limits bound the head rotation in degrees. Pitch is asymmetric: looking
// down has more range than looking up.
type Limits struct {
	PitchMinDeg float64 `yaml:"pitch_min_deg"`
	PitchMaxDeg float64 `yaml:"pitch_max_deg"`
	YawDeg      float64 `yaml:"yaw_deg"`  // Symmetric: ±YawDeg
	RollDeg     float64 `yaml:"roll_deg"` // Symmetric: ±RollDeg
}

// DefaultLimits returns -60°..+90° pitch, ±60° yaw and ±45° roll.
func DefaultLimits() Limits {
	return Limits{PitchMinDeg: -60, PitchMaxDeg: 90, YawDeg: 60, RollDeg: 45}
}

// Clamp restricts each axis independently.
func (l Limits) Clamp(h expression.HeadRotation) expression.HeadRotation {
	return expression.HeadRotation{
		Pitch: clamp(h.Pitch, Radians(l.PitchMinDeg), Radians(l.PitchMaxDeg)),
		Yaw:   clamp(h.Yaw, -Radians(l.YawDeg), Radians(l.YawDeg)),
		Roll:  clamp(h.Roll, -Radians(l.RollDeg), Radians(l.RollDeg)),
	}
}

func (l Limits) validate() error {
	if l.PitchMinDeg > 0 || l.PitchMaxDeg < 0 || l.YawDeg < 0 || l.RollDeg < 0 {
		return errors.New("limits must include the rest pose")
	}
	return nil
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func clamp(x, lo, hi float64) float64 {
	if x != x {
		return 0
	}
	return math.Max(lo, math.Min(hi, x))
}
