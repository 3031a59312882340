package rig

import (
	"log/slog"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/debug"
	"github.com/teslashibe/go-facerig/pkg/expression"
)

// Mesh is the target the controller writes to.
type Mesh interface {
	MorphIndex() map[string]int
	Morph(i int) float64
	SetMorph(i int, v float64)
	Bone(name string) (Bone, bool)
}

// Bone is a rotatable joint with a recorded rest orientation.
type Bone interface {
	Rotation() mgl64.Quat
	SetRotation(q mgl64.Quat)
	Rest() mgl64.Quat
}

// Input is everything that drives one frame.
type Input struct {
	Fused   expression.Vector       // Vision-fused expressions
	Prosody expression.Vector       // Emotion vector of the character's own speech
	Head    expression.HeadRotation // Tracked head rotation
	HasHead bool
	Energy  []float64 // Normalized audio spectrum during playback
	Talking bool

	ClipMorphs map[string]float64      // Animation clip morphs, max-merged
	ClipHead   expression.HeadRotation // Animation clip head offset, additive
	Wobble     expression.HeadRotation // Speech wobble offset, additive
}

// Output reports what the controller targeted this frame.
type Output struct {
	Targets    map[string]float64 // Destination morph targets after merge and override
	LipSync    float64            // Jaw value from audio energy
	LipSyncOn  bool
	HeadTarget mgl64.Quat
	NeckTarget mgl64.Quat
}

// Controller retargets inputs onto a mesh. It is driven from the render loop
// only and is not safe for concurrent use.
type Controller struct {
	cfg    Config
	mesh   Mesh
	logger *slog.Logger

	morphs     map[string]int  // Destination name -> mesh morph index
	skipped    map[string]bool // Destinations the mesh lacks
	head, neck Bone

	headTarget mgl64.Quat
	neckTarget mgl64.Quat
}

// NewController validates cfg and binds it to mesh. Destinations the mesh
// lacks are skipped for the session.
func NewController(cfg Config, mesh Mesh) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		mesh:    mesh,
		logger:  log.Component("rig"),
		morphs:  make(map[string]int),
		skipped: make(map[string]bool),
	}
	c.bind()
	return c, nil
}

func (c *Controller) bind() {
	index := c.mesh.MorphIndex()

	names := append(c.cfg.MorphMap.Destinations(), c.cfg.LipSync.Targets...)
	var missing []string
	for _, name := range names {
		if _, done := c.morphs[name]; done {
			continue
		}
		if i, ok := index[name]; ok {
			c.morphs[name] = i
		} else if !c.skipped[name] {
			c.skipped[name] = true
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		c.logger.Debug("mesh lacks mapped morphs, skipping them", "missing", missing)
	}

	c.headTarget = mgl64.QuatIdent()
	c.neckTarget = mgl64.QuatIdent()
	if b, ok := c.mesh.Bone(c.cfg.Bones.Head); ok {
		c.head = b
		c.headTarget = b.Rest()
	} else {
		c.logger.Warn("head bone not found, head rotation disabled", "bone", c.cfg.Bones.Head)
	}
	if c.cfg.Bones.Neck != "" {
		if b, ok := c.mesh.Bone(c.cfg.Bones.Neck); ok {
			c.neck = b
			c.neckTarget = b.Rest()
		} else {
			c.logger.Debug("neck bone not found, head takes the full rotation", "bone", c.cfg.Bones.Neck)
		}
	}

	c.logger.Info("rig bound", "morphs", len(c.morphs), "missing", len(missing),
		"head", c.head != nil, "neck", c.neck != nil)
}

// Update computes this frame's targets and eases the mesh toward them.
// dt is the frame time in seconds.
func (c *Controller) Update(in Input, dt float64) Output {
	out := Output{Targets: c.morphTargets(in)}

	if in.Talking {
		if v, ok := c.lipSync(in.Energy); ok {
			for _, name := range c.cfg.LipSync.Targets {
				out.Targets[name] = v
			}
			out.LipSync, out.LipSyncOn = v, true
		}
	}

	c.applyMorphs(out.Targets, dt)
	c.updateBones(in, dt)

	out.HeadTarget, out.NeckTarget = c.headTarget, c.neckTarget

	debug.FrameLog("rig",
		"jaw", out.Targets["jawOpen"], "lipSync", out.LipSync,
		"pitch", Degrees(in.Head.Pitch), "yaw", Degrees(in.Head.Yaw))
	return out
}

// morphTargets picks the source vector, maps it and merges clip morphs.
func (c *Controller) morphTargets(in Input) map[string]float64 {
	src := in.Fused
	if !in.Prosody.IsZero() {
		for ch, x := range in.Prosody {
			if x > 0 {
				src[ch] = x
			}
		}
	}

	targets := c.cfg.MorphMap.Apply(src)
	for name, v := range in.ClipMorphs {
		v = expression.Clamp01(v)
		if v > targets[name] {
			targets[name] = v
		}
	}
	return targets
}

// lipSync averages the lowest bins of the spectrum. It reports false when
// there is no energy to speak of.
func (c *Controller) lipSync(energy []float64) (float64, bool) {
	n := min(c.cfg.LipSync.Bins, len(energy))
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, e := range energy[:n] {
		if e > 0 {
			sum += e
		}
	}
	if sum == 0 {
		return 0, false
	}
	v := sum / float64(n) * c.cfg.LipSync.Gain
	return math.Min(v, c.cfg.LipSync.Ceiling), true
}

func (c *Controller) applyMorphs(targets map[string]float64, dt float64) {
	f := c.factor(c.cfg.Interpolation.MorphLerp, dt)
	snap := c.cfg.Interpolation.SnapBelow

	// Clip morphs may name destinations the map does not; bind them on first sight.
	for name := range targets {
		if _, ok := c.morphs[name]; ok || c.skipped[name] {
			continue
		}
		if i, ok := c.mesh.MorphIndex()[name]; ok {
			c.morphs[name] = i
		} else {
			c.skipped[name] = true
			c.logger.Debug("mesh lacks clip morph, skipping it", "morph", name)
		}
	}

	for name, i := range c.morphs {
		target := targets[name]
		v := c.mesh.Morph(i)
		v += (target - v) * f
		if target == 0 && v < snap {
			v = 0
		}
		c.mesh.SetMorph(i, v)
	}
}

// updateBones clamps the head rotation, splits it between head and neck,
// layers clip and wobble offsets on the head and slerps both bones.
// Without head input both bones return toward rest.
func (c *Controller) updateBones(in Input, dt float64) {
	limits := c.cfg.Bones.Limits

	var rot expression.HeadRotation
	if in.HasHead && in.Head.IsFinite() {
		rot = limits.Clamp(in.Head)
	}

	share := c.cfg.Bones.Share
	if c.neck == nil {
		share = Share{Pitch: 1, Yaw: 1, Roll: 1}
	}
	head := expression.HeadRotation{
		Pitch: rot.Pitch * share.Pitch,
		Yaw:   rot.Yaw * share.Yaw,
		Roll:  rot.Roll * share.Roll,
	}
	neck := expression.HeadRotation{
		Pitch: rot.Pitch - head.Pitch,
		Yaw:   rot.Yaw - head.Yaw,
		Roll:  rot.Roll - head.Roll,
	}

	head.Pitch += in.ClipHead.Pitch + in.Wobble.Pitch
	head.Yaw += in.ClipHead.Yaw + in.Wobble.Yaw
	head.Roll += in.ClipHead.Roll + in.Wobble.Roll
	head = limits.Clamp(head)

	f := c.factor(c.cfg.Interpolation.BoneLerp, dt)
	if c.head != nil {
		c.headTarget = c.head.Rest().Mul(toQuat(head))
		c.head.SetRotation(slerp(c.head.Rotation(), c.headTarget, f))
	}
	if c.neck != nil {
		c.neckTarget = c.neck.Rest().Mul(toQuat(neck))
		c.neck.SetRotation(slerp(c.neck.Rotation(), c.neckTarget, f))
	}
}

// factor rescales a per-frame lerp factor to dt when a reference rate is set.
func (c *Controller) factor(f, dt float64) float64 {
	hz := c.cfg.Interpolation.ReferenceHz
	if hz <= 0 || dt <= 0 {
		return f
	}
	return 1 - math.Pow(1-f, dt*hz)
}

// HeadTarget returns the head bone's current target orientation.
func (c *Controller) HeadTarget() mgl64.Quat {
	return c.headTarget
}

// NeckTarget returns the neck bone's current target orientation.
func (c *Controller) NeckTarget() mgl64.Quat {
	return c.neckTarget
}

// Bound returns the destination morphs present on the mesh.
func (c *Controller) Bound() map[string]int {
	out := make(map[string]int, len(c.morphs))
	for k, v := range c.morphs {
		out[k] = v
	}
	return out
}

// Skipped returns the sorted destination morphs the mesh lacks.
func (c *Controller) Skipped() []string {
	out := make([]string, 0, len(c.skipped))
	for name := range c.skipped {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Config returns the rig configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// toQuat builds a rotation applying yaw about Y, then pitch about X, then roll about Z.
func toQuat(h expression.HeadRotation) mgl64.Quat {
	return mgl64.AnglesToQuat(h.Yaw, h.Pitch, h.Roll, mgl64.YXZ)
}

// slerp interpolates along the shorter arc.
func slerp(from, to mgl64.Quat, t float64) mgl64.Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, t).Normalize()
}
