// Package rig retargets expression vectors and head rotation onto a mesh's
// morph channels and head/neck bones.
package rig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

//go:embed default.yaml
var defaultConfigYAML []byte

// ErrInvalidConfig wraps every rig configuration problem.
var ErrInvalidConfig = errors.New("rig: invalid config")

// Target is one destination morph. Amplify overrides the entry's
// amplification when set.
type Target struct {
	Name    string   `yaml:"name"`
	Amplify *float64 `yaml:"amplify,omitempty"`
}

// MorphEntry maps one source channel onto one or more destination morphs.
type MorphEntry struct {
	Source  expression.Channel `yaml:"source"`
	Amplify float64            `yaml:"amplify"` // 0 means 1
	Targets []Target           `yaml:"targets"`
}

// MorphMap is the channel to destination table. Treat it as immutable once loaded.
type MorphMap struct {
	Entries []MorphEntry `yaml:"entries"`
}

// Apply maps v onto destination values. Each value is amplified and clamped
// to [0,1]; a destination fed by several sources takes the maximum. Every
// mapped destination is present in the result, including zeros.
func (m MorphMap) Apply(v expression.Vector) map[string]float64 {
	out := make(map[string]float64)
	for _, e := range m.Entries {
		x := v.Get(e.Source)
		for _, t := range e.Targets {
			amp := e.amplify()
			if t.Amplify != nil {
				amp = *t.Amplify
			}
			val := expression.Clamp01(x * amp)
			if cur, ok := out[t.Name]; !ok || val > cur {
				out[t.Name] = val
			}
		}
	}
	return out
}

// Destinations returns every destination name, once.
func (m MorphMap) Destinations() []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range m.Entries {
		for _, t := range e.Targets {
			if !seen[t.Name] {
				seen[t.Name] = true
				names = append(names, t.Name)
			}
		}
	}
	return names
}

func (e MorphEntry) amplify() float64 {
	if e.Amplify == 0 {
		return 1
	}
	return e.Amplify
}

// BoneConfig names the bones and how the head rotation is shared between them.
type BoneConfig struct {
	Head   string `yaml:"head"`
	Neck   string `yaml:"neck"`
	Share  Share  `yaml:"head_share"` // Head's fraction per axis; the neck gets the rest
	Limits Limits `yaml:"limits"`
}

// Share is a per-axis fraction in [0,1].
type Share struct {
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
	Roll  float64 `yaml:"roll"`
}

// LipSyncConfig controls the audio-driven jaw override.
type LipSyncConfig struct {
	Targets []string `yaml:"targets"` // Jaw destination morphs
	Bins    int      `yaml:"bins"`    // Lowest spectrum bins to average
	Gain    float64  `yaml:"gain"`
	Ceiling float64  `yaml:"ceiling"`
}

// InterpolationConfig controls per-frame easing.
type InterpolationConfig struct {
	MorphLerp float64 `yaml:"morph_lerp"`
	SnapBelow float64 `yaml:"snap_below"`
	BoneLerp  float64 `yaml:"bone_lerp"`
	// ReferenceHz makes the lerp factors frame-rate independent: a factor is
	// exact at this rate and rescaled for other frame times. 0 applies the
	// factors once per frame regardless of dt.
	ReferenceHz float64 `yaml:"reference_hz"`
}

// Config is the full static rig description.
type Config struct {
	MorphMap      MorphMap            `yaml:"morph_map"`
	Bones         BoneConfig          `yaml:"bones"`
	LipSync       LipSyncConfig       `yaml:"lip_sync"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
}

// DefaultConfig returns the embedded rig for ARKit-named avatars.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("rig: embedded default config: %v", err))
	}
	return cfg
}

// LoadConfig reads and validates a rig file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rig: read %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates rig YAML.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for values the controller cannot use.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if len(c.MorphMap.Entries) == 0 {
		add("morph map has no entries")
	}
	for i, e := range c.MorphMap.Entries {
		if !e.Source.Valid() {
			add("entry %d: invalid source channel", i)
		}
		if e.Amplify < 0 {
			add("entry %d (%s): negative amplification", i, e.Source)
		}
		if len(e.Targets) == 0 {
			add("entry %d (%s): no targets", i, e.Source)
		}
		for _, t := range e.Targets {
			if t.Name == "" {
				add("entry %d (%s): target without name", i, e.Source)
			}
			if t.Amplify != nil && *t.Amplify < 0 {
				add("entry %d (%s): target %s has negative amplification", i, e.Source, t.Name)
			}
		}
	}

	if c.Bones.Head == "" {
		add("bones.head is required")
	}
	for _, s := range []float64{c.Bones.Share.Pitch, c.Bones.Share.Yaw, c.Bones.Share.Roll} {
		if s < 0 || s > 1 {
			add("head_share values must be in [0,1]")
			break
		}
	}
	if err := c.Bones.Limits.validate(); err != nil {
		add("%v", err)
	}

	if c.LipSync.Bins < 1 {
		add("lip_sync.bins must be at least 1")
	}
	if c.LipSync.Gain < 0 || c.LipSync.Ceiling < 0 || c.LipSync.Ceiling > 1 {
		add("lip_sync gain must be >= 0 and ceiling in [0,1]")
	}

	in := c.Interpolation
	if in.MorphLerp <= 0 || in.MorphLerp > 1 || in.BoneLerp <= 0 || in.BoneLerp > 1 {
		add("interpolation factors must be in (0,1]")
	}
	if in.SnapBelow < 0 || in.ReferenceHz < 0 {
		add("snap_below and reference_hz must not be negative")
	}

	return errors.Join(errs...)
}
