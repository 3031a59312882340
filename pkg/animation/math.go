package animation

import (
	"math"
	"sort"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// InterpolateKeyframes blends two keyframes at t in [0,1]. A morph present
// in only one keyframe is treated as 0 in the other.
func InterpolateKeyframes(a, b Keyframe, t float64) Keyframe {
	t = expression.Clamp01(t)

	morphs := make(map[string]float64, len(a.Morphs)+len(b.Morphs))
	for name, v := range a.Morphs {
		morphs[name] = lerp(v, b.Morphs[name], t)
	}
	for name, v := range b.Morphs {
		if _, ok := a.Morphs[name]; !ok {
			morphs[name] = lerp(0, v, t)
		}
	}

	return Keyframe{
		Morphs: morphs,
		Head: HeadOffset{
			Pitch: lerp(a.Head.Pitch, b.Head.Pitch, t),
			Yaw:   lerp(a.Head.Yaw, b.Head.Yaw, t),
			Roll:  lerp(a.Head.Roll, b.Head.Roll, t),
		},
	}
}

// KeyframeToPose converts degrees to radians and clamps morphs.
func KeyframeToPose(kf Keyframe) Pose {
	morphs := make(map[string]float64, len(kf.Morphs))
	for name, v := range kf.Morphs {
		morphs[name] = expression.Clamp01(v)
	}
	return Pose{
		Morphs: morphs,
		Head: expression.HeadRotation{
			Pitch: radians(kf.Head.Pitch),
			Yaw:   radians(kf.Head.Yaw),
			Roll:  radians(kf.Head.Roll),
		},
	}
}

// At returns the clip pose at t seconds, wrapping past the end.
func (c *Clip) At(t float64) Pose {
	if len(c.Keyframes) == 0 {
		return Pose{}
	}
	if d := c.Duration.Seconds(); d > 0 {
		t = math.Mod(t, d)
		if t < 0 {
			t += d
		}
	}

	ts := c.Timestamps
	idx := sort.Search(len(ts), func(i int) bool { return ts[i] > t })
	if idx == 0 {
		return KeyframeToPose(c.Keyframes[0])
	}
	if idx >= len(ts) {
		return KeyframeToPose(c.Keyframes[len(c.Keyframes)-1])
	}

	alpha := (t - ts[idx-1]) / (ts[idx] - ts[idx-1])
	return KeyframeToPose(InterpolateKeyframes(c.Keyframes[idx-1], c.Keyframes[idx], alpha))
}

// Blend mixes two poses: a*(1-w) + b*w.
func Blend(a, b Pose, w float64) Pose {
	w = expression.Clamp01(w)
	kf := InterpolateKeyframes(
		Keyframe{Morphs: a.Morphs, Head: HeadOffset{a.Head.Pitch, a.Head.Yaw, a.Head.Roll}},
		Keyframe{Morphs: b.Morphs, Head: HeadOffset{b.Head.Pitch, b.Head.Yaw, b.Head.Roll}},
		w,
	)
	return Pose{
		Morphs: kf.Morphs,
		Head:   expression.HeadRotation{Pitch: kf.Head.Pitch, Yaw: kf.Head.Yaw, Roll: kf.Head.Roll},
	}
}
