// Package expression defines the fixed set of facial expression channels and
// the vectors that carry their intensities through the pipeline.
//
// A Vector is an array indexed by Channel, so every channel is always present
// and zero until something writes it. Channel names follow the ARKit blendshape
// naming, plus a separate mouthOpen channel for the lip gap.
package expression

import "fmt"

// Channel identifies one expression intensity.
type Channel int

// Expression channels.
const (
	BrowDownLeft Channel = iota
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthOpen
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight
	TongueOut

	// NumChannels is the number of expression channels.
	NumChannels
)

var channelNames = [NumChannels]string{
	BrowDownLeft:        "browDownLeft",
	BrowDownRight:       "browDownRight",
	BrowInnerUp:         "browInnerUp",
	BrowOuterUpLeft:     "browOuterUpLeft",
	BrowOuterUpRight:    "browOuterUpRight",
	CheekPuff:           "cheekPuff",
	CheekSquintLeft:     "cheekSquintLeft",
	CheekSquintRight:    "cheekSquintRight",
	EyeBlinkLeft:        "eyeBlinkLeft",
	EyeBlinkRight:       "eyeBlinkRight",
	EyeLookDownLeft:     "eyeLookDownLeft",
	EyeLookDownRight:    "eyeLookDownRight",
	EyeLookInLeft:       "eyeLookInLeft",
	EyeLookInRight:      "eyeLookInRight",
	EyeLookOutLeft:      "eyeLookOutLeft",
	EyeLookOutRight:     "eyeLookOutRight",
	EyeLookUpLeft:       "eyeLookUpLeft",
	EyeLookUpRight:      "eyeLookUpRight",
	EyeSquintLeft:       "eyeSquintLeft",
	EyeSquintRight:      "eyeSquintRight",
	EyeWideLeft:         "eyeWideLeft",
	EyeWideRight:        "eyeWideRight",
	JawForward:          "jawForward",
	JawLeft:             "jawLeft",
	JawOpen:             "jawOpen",
	JawRight:            "jawRight",
	MouthClose:          "mouthClose",
	MouthDimpleLeft:     "mouthDimpleLeft",
	MouthDimpleRight:    "mouthDimpleRight",
	MouthFrownLeft:      "mouthFrownLeft",
	MouthFrownRight:     "mouthFrownRight",
	MouthFunnel:         "mouthFunnel",
	MouthLeft:           "mouthLeft",
	MouthLowerDownLeft:  "mouthLowerDownLeft",
	MouthLowerDownRight: "mouthLowerDownRight",
	MouthOpen:           "mouthOpen",
	MouthPressLeft:      "mouthPressLeft",
	MouthPressRight:     "mouthPressRight",
	MouthPucker:         "mouthPucker",
	MouthRight:          "mouthRight",
	MouthRollLower:      "mouthRollLower",
	MouthRollUpper:      "mouthRollUpper",
	MouthShrugLower:     "mouthShrugLower",
	MouthShrugUpper:     "mouthShrugUpper",
	MouthSmileLeft:      "mouthSmileLeft",
	MouthSmileRight:     "mouthSmileRight",
	MouthStretchLeft:    "mouthStretchLeft",
	MouthStretchRight:   "mouthStretchRight",
	MouthUpperUpLeft:    "mouthUpperUpLeft",
	MouthUpperUpRight:   "mouthUpperUpRight",
	NoseSneerLeft:       "noseSneerLeft",
	NoseSneerRight:      "noseSneerRight",
	TongueOut:           "tongueOut",
}

var channelsByName = func() map[string]Channel {
	m := make(map[string]Channel, NumChannels)
	for c, name := range channelNames {
		m[name] = Channel(c)
	}
	return m
}()

// String returns the channel's blendshape name.
func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

// ParseChannel looks up a channel by its blendshape name.
func ParseChannel(name string) (Channel, bool) {
	c, ok := channelsByName[name]
	return c, ok
}

// Channels returns every channel in index order.
func Channels() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler so channels work as map keys and YAML scalars.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("expression: invalid channel %d", int(c))
	}
	return []byte(channelNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, ok := ParseChannel(string(text))
	if !ok {
		return fmt.Errorf("expression: unknown channel %q", string(text))
	}
	*c = parsed
	return nil
}
