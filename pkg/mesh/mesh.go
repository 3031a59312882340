// Package mesh is an in-memory rig target: a morph dictionary and named bones
// with rest orientations. It stands in for a scene graph mesh and is what the
// dashboard reads back to show the avatar's current pose.
package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/rig"
)

// ErrInvalidManifest is returned for unusable manifests.
var ErrInvalidManifest = errors.New("mesh: invalid manifest")

// BoneSpec describes one bone in a manifest. Rest is a quaternion as
// [w, x, y, z]; omitted means identity.
type BoneSpec struct {
	Name string      `json:"name"`
	Rest *[4]float64 `json:"rest,omitempty"`
}

// Manifest is the JSON description of a mesh.
type Manifest struct {
	Name   string     `json:"name"`
	Morphs []string   `json:"morphs"`
	Bones  []BoneSpec `json:"bones"`
}

// Mesh holds morph values and bones. Reads may happen from any goroutine;
// the render loop is the only writer.
type Mesh struct {
	mu     sync.RWMutex
	name   string
	index  map[string]int
	names  []string
	values []float64
	bones  map[string]*Bone
}

// Bone is a rotatable joint.
type Bone struct {
	mesh     *Mesh
	name     string
	rest     mgl64.Quat
	rotation mgl64.Quat
}

// New builds a mesh from a manifest. Bones start at rest.
func New(m Manifest) (*Mesh, error) {
	if len(m.Morphs) == 0 && len(m.Bones) == 0 {
		return nil, fmt.Errorf("%w: no morphs or bones", ErrInvalidManifest)
	}

	msh := &Mesh{
		name:   m.Name,
		index:  make(map[string]int, len(m.Morphs)),
		names:  make([]string, 0, len(m.Morphs)),
		values: make([]float64, len(m.Morphs)),
		bones:  make(map[string]*Bone, len(m.Bones)),
	}
	for i, name := range m.Morphs {
		if name == "" {
			return nil, fmt.Errorf("%w: morph %d has no name", ErrInvalidManifest, i)
		}
		if _, dup := msh.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate morph %q", ErrInvalidManifest, name)
		}
		msh.index[name] = i
		msh.names = append(msh.names, name)
	}
	for _, b := range m.Bones {
		if b.Name == "" {
			return nil, fmt.Errorf("%w: bone without name", ErrInvalidManifest)
		}
		if _, dup := msh.bones[b.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate bone %q", ErrInvalidManifest, b.Name)
		}
		rest := mgl64.QuatIdent()
		if b.Rest != nil {
			q := mgl64.Quat{W: b.Rest[0], V: mgl64.Vec3{b.Rest[1], b.Rest[2], b.Rest[3]}}
			if q.Len() < 1e-9 {
				return nil, fmt.Errorf("%w: bone %q has a zero rest quaternion", ErrInvalidManifest, b.Name)
			}
			rest = q.Normalize()
		}
		msh.bones[b.Name] = &Bone{mesh: msh, name: b.Name, rest: rest, rotation: rest}
	}
	return msh, nil
}

// Parse decodes a JSON manifest.
func Parse(data []byte) (*Mesh, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return New(m)
}

// Load reads a JSON manifest from disk.
func Load(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: read %s: %w", path, err)
	}
	return Parse(data)
}

// DefaultManifest has one morph per expression channel and Head/Neck bones
// at identity.
func DefaultManifest() Manifest {
	m := Manifest{
		Name:  "default",
		Bones: []BoneSpec{{Name: "Head"}, {Name: "Neck"}},
	}
	for _, c := range expression.Channels() {
		m.Morphs = append(m.Morphs, c.String())
	}
	return m
}

// Default builds the mesh for DefaultManifest.
func Default() *Mesh {
	m, err := New(DefaultManifest())
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the manifest name.
func (m *Mesh) Name() string {
	return m.name
}

// MorphIndex returns a copy of the morph dictionary.
func (m *Mesh) MorphIndex() map[string]int {
	out := make(map[string]int, len(m.index))
	for k, v := range m.index {
		out[k] = v
	}
	return out
}

// Morph returns a morph value; out of range indexes read as 0.
func (m *Mesh) Morph(i int) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.values) {
		return 0
	}
	return m.values[i]
}

// SetMorph stores a morph value; out of range indexes are ignored.
func (m *Mesh) SetMorph(i int, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= 0 && i < len(m.values) {
		m.values[i] = v
	}
}

// Bone looks up a bone by name.
func (m *Mesh) Bone(name string) (rig.Bone, bool) {
	b, ok := m.bones[name]
	if !ok {
		return nil, false
	}
	return b, true
}

// Morphs returns the non-zero morph values by name.
func (m *Mesh) Morphs() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64)
	for i, v := range m.values {
		if v != 0 {
			out[m.names[i]] = v
		}
	}
	return out
}

// BoneNames returns the sorted bone names.
func (m *Mesh) BoneNames() []string {
	names := make([]string, 0, len(m.bones))
	for name := range m.bones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the bone name.
func (b *Bone) Name() string {
	return b.name
}

// Rotation returns the current local rotation.
func (b *Bone) Rotation() mgl64.Quat {
	b.mesh.mu.RLock()
	defer b.mesh.mu.RUnlock()
	return b.rotation
}

// SetRotation stores a new local rotation.
func (b *Bone) SetRotation(q mgl64.Quat) {
	b.mesh.mu.Lock()
	defer b.mesh.mu.Unlock()
	b.rotation = q
}

// Rest returns the rest orientation recorded at load.
func (b *Bone) Rest() mgl64.Quat {
	return b.rest
}

// Offset returns the rotation relative to rest as yaw-pitch-roll radians.
func (b *Bone) Offset() expression.HeadRotation {
	q := b.rest.Inverse().Mul(b.Rotation())
	m := q.Mat4()
	// R = Ry(yaw) * Rx(pitch) * Rz(roll)
	pitch := mgl64.Clamp(-m.At(1, 2), -1, 1)
	return expression.HeadRotation{
		Pitch: math.Asin(pitch),
		Yaw:   math.Atan2(m.At(0, 2), m.At(2, 2)),
		Roll:  math.Atan2(m.At(1, 0), m.At(1, 1)),
	}
}
