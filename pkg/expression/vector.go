package expression

import (
	"encoding/json"
	"math"
)

// Vector holds one intensity in [0,1] per channel.
// The zero value is the neutral face.
type Vector [NumChannels]float64

// Get returns the intensity of c, or 0 for an invalid channel.
func (v *Vector) Get(c Channel) float64 {
	if !c.Valid() {
		return 0
	}
	return v[c]
}

// Set stores a clamped intensity for c. Invalid channels are ignored.
func (v *Vector) Set(c Channel, value float64) {
	if !c.Valid() {
		return
	}
	v[c] = Clamp01(value)
}

// IsZero reports whether every channel is exactly zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Max returns the channel-wise maximum of v and other.
func (v Vector) Max(other Vector) Vector {
	for i := range v {
		if other[i] > v[i] {
			v[i] = other[i]
		}
	}
	return v
}

// Smooth applies an exponential moving average: old*(1-alpha) + raw*alpha.
func (v Vector) Smooth(raw Vector, alpha float64) Vector {
	alpha = Clamp01(alpha)
	for i := range v {
		v[i] = v[i]*(1-alpha) + raw[i]*alpha
	}
	return v
}

// Map returns the non-zero channels keyed by name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64)
	for i, x := range v {
		if x != 0 {
			out[channelNames[i]] = x
		}
	}
	return out
}

// MarshalJSON encodes the vector as an object of every channel name to value.
func (v Vector) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, NumChannels)
	for i, x := range v {
		out[channelNames[i]] = x
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object of channel names. Unknown names are ignored
// and absent channels are zero.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var in map[string]float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*v = Vector{}
	for name, x := range in {
		if c, ok := ParseChannel(name); ok {
			v[c] = Clamp01(x)
		}
	}
	return nil
}

// HeadRotation is a head orientation in radians.
// Positive pitch looks down, positive yaw turns to the subject's left,
// positive roll tilts toward the subject's left shoulder.
type HeadRotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Smooth applies the same EMA as Vector.Smooth to each axis.
func (h HeadRotation) Smooth(raw HeadRotation, alpha float64) HeadRotation {
	alpha = Clamp01(alpha)
	return HeadRotation{
		Pitch: h.Pitch*(1-alpha) + raw.Pitch*alpha,
		Yaw:   h.Yaw*(1-alpha) + raw.Yaw*alpha,
		Roll:  h.Roll*(1-alpha) + raw.Roll*alpha,
	}
}

// IsFinite reports whether all three axes are finite numbers.
func (h HeadRotation) IsFinite() bool {
	return isFinite(h.Pitch) && isFinite(h.Yaw) && isFinite(h.Roll)
}

// Clamp01 restricts x to [0,1]; NaN becomes 0.
func Clamp01(x float64) float64 {
	if x != x || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
