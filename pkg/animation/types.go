// Package animation layers keyframe clips on top of the tracked face.
//
// Clips are grouped by state (idle breathing and blinks, talking gestures)
// and are loaded from JSON files. The Animator switches state on the speaking
// flag, crossfading from the old clip to a new randomly chosen variant.
package animation

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

// State is the animation state.
type State int

const (
	// Idle plays breathing and blink clips.
	Idle State = iota

	// Talking plays gesture clips while the character speaks.
	Talking
)

// String returns the state name used in clip files.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Talking:
		return "talking"
	default:
		return "unknown"
	}
}

// ParseState parses a clip file state name.
func ParseState(name string) (State, error) {
	switch name {
	case "idle":
		return Idle, nil
	case "talking":
		return Talking, nil
	default:
		return 0, fmt.Errorf("%w: unknown state %q", ErrInvalidClip, name)
	}
}

// HeadOffset is a head rotation in degrees as written in clip files.
type HeadOffset struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Keyframe is one sample of a clip.
type Keyframe struct {
	// Morphs are destination morph values in [0,1].
	Morphs map[string]float64 `json:"morphs"`

	// Head is an additive head offset in degrees.
	Head HeadOffset `json:"head"`
}

// ClipData is the raw JSON structure of a clip file.
type ClipData struct {
	Description string     `json:"description"`
	State       string     `json:"state"`
	Time        []float64  `json:"time"`
	Keyframes   []Keyframe `json:"keyframes"`
}

// Clip is a loaded, playable clip. Clips loop for as long as they are
// selected.
type Clip struct {
	Name        string
	Description string
	State       State
	Duration    time.Duration
	Keyframes   []Keyframe
	Timestamps  []float64 // Seconds, strictly increasing, first is 0
}

// Pose is the clip contribution for one frame.
type Pose struct {
	Morphs map[string]float64
	Head   expression.HeadRotation // Radians, additive
}
