package mesh

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/rig"
)

var _ rig.Mesh = (*Mesh)(nil)

func TestDefault(t *testing.T) {
	m := Default()
	if got := len(m.MorphIndex()); got != int(expression.NumChannels) {
		t.Errorf("morphs = %d, want %d", got, expression.NumChannels)
	}
	if _, ok := m.MorphIndex()["jawOpen"]; !ok {
		t.Error("jawOpen missing")
	}
	if names := m.BoneNames(); len(names) != 2 || names[0] != "Head" || names[1] != "Neck" {
		t.Errorf("bones = %v, want [Head Neck]", names)
	}
}

func TestParse(t *testing.T) {
	// 90 degrees about X
	s := math.Sqrt(0.5)
	data := []byte(`{"name":"fox","morphs":["jawOpen","eyeBlinkLeft"],
		"bones":[{"name":"Head","rest":[2,2,0,0]},{"name":"Neck"}]}`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name() != "fox" {
		t.Errorf("name = %q", m.Name())
	}

	head, ok := m.Bone("Head")
	if !ok {
		t.Fatal("Head missing")
	}
	want := mgl64.Quat{W: s, V: mgl64.Vec3{s, 0, 0}}
	if !head.Rest().ApproxEqualThreshold(want, 1e-9) {
		t.Errorf("rest = %v, want normalized %v", head.Rest(), want)
	}
	if !head.Rotation().ApproxEqualThreshold(head.Rest(), 1e-12) {
		t.Error("bone does not start at rest")
	}
	if _, ok := m.Bone("Spine"); ok {
		t.Error("Spine should be missing")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `[`},
		{"empty", `{}`},
		{"duplicate morph", `{"morphs":["a","a"]}`},
		{"unnamed morph", `{"morphs":[""]}`},
		{"duplicate bone", `{"bones":[{"name":"Head"},{"name":"Head"}]}`},
		{"zero rest", `{"bones":[{"name":"Head","rest":[0,0,0,0]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); !errors.Is(err, ErrInvalidManifest) {
				t.Errorf("error = %v, want ErrInvalidManifest", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.json")
	if err := os.WriteFile(path, []byte(`{"morphs":["jawOpen"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.MorphIndex()) != 1 {
		t.Errorf("morphs = %v", m.MorphIndex())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMorphs(t *testing.T) {
	m := Default()
	i := m.MorphIndex()["jawOpen"]

	m.SetMorph(i, 0.4)
	m.SetMorph(-1, 1)
	m.SetMorph(1000, 1)

	if got := m.Morph(i); got != 0.4 {
		t.Errorf("Morph = %v, want 0.4", got)
	}
	if got := m.Morph(1000); got != 0 {
		t.Errorf("out of range Morph = %v, want 0", got)
	}
	if got := m.Morphs(); len(got) != 1 || got["jawOpen"] != 0.4 {
		t.Errorf("Morphs = %v, want only jawOpen", got)
	}

	// The index is a copy.
	idx := m.MorphIndex()
	idx["jawOpen"] = 99
	if m.MorphIndex()["jawOpen"] != i {
		t.Error("MorphIndex exposed internal map")
	}
}

func TestBone_Offset(t *testing.T) {
	m, err := New(Manifest{Bones: []BoneSpec{{Name: "Head", Rest: &[4]float64{math.Cos(0.05), math.Sin(0.05), 0, 0}}}})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Bone("Head")
	head := b.(*Bone)

	yaw, pitch, roll := 0.3, -0.2, 0.1
	rot := mgl64.QuatRotate(yaw, mgl64.Vec3{0, 1, 0}).
		Mul(mgl64.QuatRotate(pitch, mgl64.Vec3{1, 0, 0})).
		Mul(mgl64.QuatRotate(roll, mgl64.Vec3{0, 0, 1}))
	head.SetRotation(head.Rest().Mul(rot))

	got := head.Offset()
	tests := []struct {
		name      string
		got, want float64
	}{
		{"pitch", got.Pitch, pitch},
		{"yaw", got.Yaw, yaw},
		{"roll", got.Roll, roll},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	head.SetRotation(head.Rest())
	if off := head.Offset(); math.Abs(off.Pitch)+math.Abs(off.Yaw)+math.Abs(off.Roll) > 1e-9 {
		t.Errorf("offset at rest = %+v, want zero", off)
	}
}

func TestMesh_DrivenByController(t *testing.T) {
	m := Default()
	ctrl, err := rig.NewController(rig.DefaultConfig(), m)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	var fused expression.Vector
	fused.Set(expression.JawOpen, 0.5)
	for i := 0; i < 60; i++ {
		ctrl.Update(rig.Input{Fused: fused}, 1.0/60)
	}

	if got := m.Morph(m.MorphIndex()["jawOpen"]); math.Abs(got-0.5) > 0.01 {
		t.Errorf("jawOpen = %v, want ~0.5", got)
	}
}
