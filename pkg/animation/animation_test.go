package animation

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testClip(name string, s State, morph string, values []float64) *Clip {
	kfs := make([]Keyframe, len(values))
	ts := make([]float64, len(values))
	for i, v := range values {
		kfs[i] = Keyframe{Morphs: map[string]float64{morph: v}, Head: HeadOffset{Pitch: v * 10}}
		ts[i] = float64(i)
	}
	return &Clip{
		Name:       name,
		State:      s,
		Duration:   time.Duration(ts[len(ts)-1] * float64(time.Second)),
		Keyframes:  kfs,
		Timestamps: ts,
	}
}

func TestListEmbedded(t *testing.T) {
	names, err := ListEmbedded()
	if err != nil {
		t.Fatalf("ListEmbedded: %v", err)
	}
	if len(names) != 6 {
		t.Errorf("embedded clips = %d, want 6", len(names))
	}
}

func TestRegistry_BuiltInVariants(t *testing.T) {
	reg := NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		t.Fatalf("LoadBuiltIn: %v", err)
	}

	tests := []struct {
		state State
		want  []string
	}{
		{Idle, []string{"idle1", "idle2", "idle3"}},
		{Talking, []string{"talk1", "talk2", "talk3"}},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			got := reg.Variants(tt.state)
			if len(got) != len(tt.want) {
				t.Fatalf("variants = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("variant %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := reg.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestLoadEmbedded_ClipsLoopSeamlessly(t *testing.T) {
	names, _ := ListEmbedded()
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			clip, err := LoadEmbedded(name)
			if err != nil {
				t.Fatalf("LoadEmbedded: %v", err)
			}
			if clip.Duration <= 0 || clip.Description == "" {
				t.Errorf("duration %v, description %q", clip.Duration, clip.Description)
			}

			first, last := clip.Keyframes[0], clip.Keyframes[len(clip.Keyframes)-1]
			if math.Abs(first.Head.Pitch-last.Head.Pitch) > 0.05 ||
				math.Abs(first.Head.Yaw-last.Head.Yaw) > 0.05 ||
				math.Abs(first.Head.Roll-last.Head.Roll) > 0.05 {
				t.Errorf("head jumps at wrap: %+v -> %+v", last.Head, first.Head)
			}
		})
	}
}

func TestParseClipJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown state", `{"state":"dancing","time":[0,1],"keyframes":[{},{}]}`},
		{"single keyframe", `{"state":"idle","time":[0],"keyframes":[{}]}`},
		{"mismatched", `{"state":"idle","time":[0,1,2],"keyframes":[{},{}]}`},
		{"late start", `{"state":"idle","time":[0.5,1],"keyframes":[{},{}]}`},
		{"not increasing", `{"state":"idle","time":[0,1,1],"keyframes":[{},{},{}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseClipJSON("bad", []byte(tt.data)); !errors.Is(err, ErrInvalidClip) {
				t.Errorf("error = %v, want ErrInvalidClip", err)
			}
		})
	}
}

func TestRegistry_LoadCustomDir(t *testing.T) {
	dir := t.TempDir()
	clip := `{"description":"wink","state":"idle","time":[0,0.5],
		"keyframes":[{"morphs":{"eyeBlinkLeft":0}},{"morphs":{"eyeBlinkLeft":1}}]}`
	if err := os.WriteFile(filepath.Join(dir, "wink.json"), []byte(clip), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadCustomDir(dir); err != nil {
		t.Fatalf("LoadCustomDir: %v", err)
	}

	got, err := reg.Get("wink")
	if err != nil {
		t.Fatalf("Get(wink): %v", err)
	}
	if got.Duration != 500*time.Millisecond || got.State != Idle {
		t.Errorf("wink = %v %v, want 500ms idle", got.Duration, got.State)
	}
	if n := len(reg.Variants(Idle)); n != 4 {
		t.Errorf("idle variants = %d, want 4", n)
	}
}

func TestClip_AtInterpolatesAndWraps(t *testing.T) {
	clip := testClip("c", Idle, "jawOpen", []float64{0, 1, 0})

	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.25, 0.75},
		{2.5, 0.5}, // wraps to 0.5
	}
	for _, tt := range tests {
		got := clip.At(tt.t)
		if math.Abs(got.Morphs["jawOpen"]-tt.want) > 1e-9 {
			t.Errorf("At(%v) jawOpen = %v, want %v", tt.t, got.Morphs["jawOpen"], tt.want)
		}
	}

	if p := clip.At(1).Head.Pitch; math.Abs(p-10*math.Pi/180) > 1e-9 {
		t.Errorf("head pitch = %v, want 10 degrees in radians", p)
	}
}

func TestBlend_MissingMorphIsZero(t *testing.T) {
	a := Pose{Morphs: map[string]float64{"x": 1}}
	b := Pose{Morphs: map[string]float64{"y": 1}}

	got := Blend(a, b, 0.25)
	if math.Abs(got.Morphs["x"]-0.75) > 1e-9 || math.Abs(got.Morphs["y"]-0.25) > 1e-9 {
		t.Errorf("Blend = %v, want x=0.75 y=0.25", got.Morphs)
	}
}

func newTestAnimator(t *testing.T) *Animator {
	t.Helper()
	reg := NewRegistry()
	reg.Register(testClip("idleA", Idle, "a", []float64{0.2, 0.2}))
	reg.Register(testClip("idleB", Idle, "b", []float64{0.2, 0.2}))
	reg.Register(testClip("talkA", Talking, "t", []float64{1, 1}))
	reg.Register(testClip("talkB", Talking, "t", []float64{1, 1}))
	reg.Register(testClip("talkC", Talking, "t", []float64{1, 1}))

	a, err := NewAnimator(reg, Options{Crossfade: 300 * time.Millisecond, Seed: 7})
	if err != nil {
		t.Fatalf("NewAnimator: %v", err)
	}
	return a
}

func TestAnimator_CrossfadeWeightsSumToOne(t *testing.T) {
	a := newTestAnimator(t)
	if prev, cur := a.Weights(); prev != 0 || cur != 1 {
		t.Fatalf("initial weights = %v/%v, want 0/1", prev, cur)
	}

	a.SetTalking(true)
	if a.State() != Talking {
		t.Fatalf("state = %v, want talking", a.State())
	}

	var last float64
	for i := 0; i < 20; i++ {
		pose := a.Advance(0.02)
		prev, cur := a.Weights()
		if math.Abs(prev+cur-1) > 1e-12 {
			t.Fatalf("step %d: weights %v + %v != 1", i, prev, cur)
		}
		if cur < last {
			t.Fatalf("step %d: incoming weight fell from %v to %v", i, last, cur)
		}
		last = cur

		// The talking morph fades in at the incoming weight.
		if got := pose.Morphs["t"]; math.Abs(got-cur) > 1e-9 {
			t.Fatalf("step %d: t = %v, want %v", i, got, cur)
		}
	}

	// 0.4s is past the 0.3s crossfade.
	if prev, cur := a.Weights(); prev != 0 || cur != 1 {
		t.Errorf("weights after crossfade = %v/%v, want 0/1", prev, cur)
	}
}

func TestAnimator_NeverRepeatsVariantBackToBack(t *testing.T) {
	a := newTestAnimator(t)

	prev := map[State]string{Idle: a.Clip()}
	for i := 0; i < 200; i++ {
		talking := i%2 == 0
		a.SetTalking(talking)
		s := a.State()
		clip := a.Clip()
		if clip == prev[s] {
			t.Fatalf("transition %d: %s repeated for %v", i, clip, s)
		}
		prev[s] = clip
		a.Advance(0.5)
	}
}

func TestAnimator_SameStateIsNoop(t *testing.T) {
	a := newTestAnimator(t)
	clip := a.Clip()

	a.SetTalking(false)
	if a.Clip() != clip {
		t.Errorf("clip changed to %s without a state change", a.Clip())
	}
	if prev, _ := a.Weights(); prev != 0 {
		t.Errorf("crossfade started without a state change")
	}
}

func TestAnimator_RotatesVariantAtClipEnd(t *testing.T) {
	a := newTestAnimator(t)
	first := a.Clip()

	a.Advance(1.01) // test clips last 1s
	if a.Clip() == first {
		t.Errorf("clip %s still playing after it ended", first)
	}
}

func TestAnimator_MissingStateKeepsClip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testClip("only", Idle, "a", []float64{0.5, 0.5}))
	a, err := NewAnimator(reg, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	a.SetTalking(true)
	if a.Clip() != "only" {
		t.Errorf("clip = %s, want only", a.Clip())
	}
	if got := a.Advance(0.1).Morphs["a"]; got != 0.5 {
		t.Errorf("a = %v, want 0.5", got)
	}

	if _, err := NewAnimator(NewRegistry(), DefaultOptions()); !errors.Is(err, ErrNoVariants) {
		t.Errorf("empty registry error = %v, want ErrNoVariants", err)
	}
}
