package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/estimator"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
)

func newEngine() *Engine {
	return New(DefaultConfig(), estimator.New(estimator.DefaultConfig()), nil)
}

func TestFuse_MouthSuppressedByEmotion(t *testing.T) {
	e := newEngine()

	var vision expression.Vector
	vision[expression.MouthOpen] = 0.5

	out := e.Fuse(vision, emotion.Scores{emotion.Joy: 0.8})

	want := 0.5 * (1 - 0.8*0.7)
	if math.Abs(out[expression.MouthOpen]-want) > 1e-9 {
		t.Errorf("mouthOpen = %v, want %v", out[expression.MouthOpen], want)
	}
	if math.Abs(out[expression.MouthSmileLeft]-0.8) > 1e-9 {
		t.Errorf("smile should come from the classifier, got %v", out[expression.MouthSmileLeft])
	}
}

func TestFuse_WeakEmotionDoesNotSuppress(t *testing.T) {
	e := newEngine()

	var vision expression.Vector
	vision[expression.MouthOpen] = 0.5

	out := e.Fuse(vision, emotion.Scores{emotion.Joy: 0.2})
	if out[expression.MouthOpen] != 0.5 {
		t.Errorf("mouthOpen = %v, want 0.5", out[expression.MouthOpen])
	}
}

func TestFuse_EyeWideTakesMax(t *testing.T) {
	tests := []struct {
		name     string
		vision   float64
		surprise float64
		want     float64
	}{
		{"vision stronger", 0.9, 0.4, 0.9},
		{"emotion stronger", 0.3, 0.7, 0.7},
		{"no emotion", 0.6, 0, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			var vision expression.Vector
			vision[expression.EyeWideLeft] = tt.vision
			vision[expression.EyeWideRight] = tt.vision

			out := e.Fuse(vision, emotion.Scores{emotion.Surprise: tt.surprise})
			if math.Abs(out[expression.EyeWideLeft]-tt.want) > 1e-9 {
				t.Errorf("eyeWideLeft = %v, want %v", out[expression.EyeWideLeft], tt.want)
			}
		})
	}
}

func TestFuse_JawSnapsToZeroInOneTick(t *testing.T) {
	e := newEngine()

	var open expression.Vector
	open[expression.JawOpen] = 0.8
	e.Fuse(open, nil)

	var closing expression.Vector
	closing[expression.JawOpen] = 0.05
	out := e.Fuse(closing, nil)

	if out[expression.JawOpen] != 0 {
		t.Errorf("jawOpen = %v, want exactly 0", out[expression.JawOpen])
	}
}

func TestFuse_UnresolvedChannelsAreSmoothedAndSnapped(t *testing.T) {
	e := newEngine()

	var v expression.Vector
	v[expression.BrowInnerUp] = 1
	out := e.Fuse(v, nil)
	if math.Abs(out[expression.BrowInnerUp]-0.4) > 1e-9 {
		t.Errorf("first pass = %v, want 0.4", out[expression.BrowInnerUp])
	}

	var zero expression.Vector
	for i := 0; i < 10; i++ {
		out = e.Fuse(zero, nil)
	}
	if out[expression.BrowInnerUp] != 0 {
		t.Errorf("decayed channel should snap to exactly 0, got %v", out[expression.BrowInnerUp])
	}
}

func TestFuse_SteadyValuesAboveSnapConverge(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"just above threshold", 0.12},
		{"mid", 0.2},
		{"below threshold over alpha", 0.24},
		{"large", 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()

			var v expression.Vector
			v[expression.BrowInnerUp] = tt.value
			v[expression.EyeBlinkLeft] = tt.value
			var out expression.Vector
			for i := 0; i < 60; i++ {
				out = e.Fuse(v, nil)
			}
			for _, ch := range []expression.Channel{expression.BrowInnerUp, expression.EyeBlinkLeft} {
				if math.Abs(out[ch]-tt.value) > 1e-6 {
					t.Errorf("%s = %v, want %v", ch, out[ch], tt.value)
				}
			}

			var zero expression.Vector
			for i := 0; i < 30; i++ {
				out = e.Fuse(zero, nil)
			}
			if out[expression.BrowInnerUp] != 0 || out[expression.EyeBlinkLeft] != 0 {
				t.Errorf("decay did not reach exactly 0: brow %v, blink %v",
					out[expression.BrowInnerUp], out[expression.EyeBlinkLeft])
			}
		})
	}
}

func TestFuse_RisingValueIsNotCutOff(t *testing.T) {
	e := newEngine()

	var v expression.Vector
	v[expression.BrowDownLeft] = 0.15
	out := e.Fuse(v, nil)
	// 0.4 * 0.15 is below the snap threshold but the target is not.
	if math.Abs(out[expression.BrowDownLeft]-0.06) > 1e-9 {
		t.Errorf("first pass = %v, want 0.06", out[expression.BrowDownLeft])
	}
}

func TestFuse_VisionSmileDampsMouthWithoutScores(t *testing.T) {
	e := newEngine()
	e.OnClassifierError(emotion.ErrRateLimited)

	var vision expression.Vector
	vision[expression.MouthOpen] = 0.5
	vision[expression.MouthSmileLeft] = 0.8

	out := e.Fuse(vision, nil)
	want := 0.5 * (1 - 0.8*0.7)
	if math.Abs(out[expression.MouthOpen]-want) > 1e-9 {
		t.Errorf("mouthOpen = %v, want %v", out[expression.MouthOpen], want)
	}
}

func TestEngine_VisionOnlyLatchIsOneWay(t *testing.T) {
	e := newEngine()
	e.OnEmotionScores(emotion.Scores{emotion.Joy: 0.9})

	e.OnClassifierError(emotion.ErrRateLimited)
	if !e.VisionOnly() {
		t.Fatal("Expected vision-only after classifier error")
	}
	if !errors.Is(e.LatchError(), emotion.ErrRateLimited) {
		t.Errorf("LatchError = %v", e.LatchError())
	}

	e.OnEmotionScores(emotion.Scores{emotion.Joy: 1})
	e.OnClassifierError(errors.New("second"))

	if len(e.Scores()) != 0 {
		t.Errorf("latched engine kept scores: %v", e.Scores())
	}
	if !errors.Is(e.LatchError(), emotion.ErrRateLimited) {
		t.Error("latch error was overwritten")
	}

	out := e.Fuse(expression.Vector{}, emotion.Scores{emotion.Joy: 1})
	if out[expression.MouthSmileLeft] != 0 {
		t.Errorf("latched engine applied scores: smile = %v", out[expression.MouthSmileLeft])
	}

	e.Reset()
	if !e.VisionOnly() {
		t.Error("Reset must not clear the vision-only latch")
	}
}

func TestEngine_SubscribeEmotions(t *testing.T) {
	e := newEngine()

	var got []emotion.Scores
	cancel := e.SubscribeEmotions(func(s emotion.Scores) { got = append(got, s) })

	e.OnEmotionScores(emotion.Scores{emotion.Fear: 0.3})
	cancel()
	cancel()
	e.OnEmotionScores(emotion.Scores{emotion.Fear: 0.6})

	if len(got) != 1 || got[0].Get(emotion.Fear) != 0.3 {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestEngine_UpdateHoldsOnInvalidFrame(t *testing.T) {
	e := newEngine()
	for i := 0; i < 30; i++ {
		e.Update(landmarks.Synthetic{MouthGap: 0.03}.Frame())
	}
	before := e.Expressions()
	if before[expression.MouthOpen] == 0 {
		t.Fatal("Expected mouth open after valid frames")
	}
	if e.Landmarks().Len() != landmarks.MinPoints {
		t.Errorf("Expected landmarks cached, got %d points", e.Landmarks().Len())
	}

	empty := landmarks.Frame{Points: make([]landmarks.Point, landmarks.MinPoints)}
	after := e.Update(empty)
	if after[expression.MouthOpen] != before[expression.MouthOpen] {
		t.Errorf("mouthOpen changed on all-zero frame: %v -> %v", before[expression.MouthOpen], after[expression.MouthOpen])
	}

	e.Reset()
	if !e.Expressions().IsZero() || e.Landmarks().Len() != 0 {
		t.Error("Reset did not clear state")
	}
}
