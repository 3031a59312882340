package animation

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed data/*.json
var embeddedClips embed.FS

// LoadEmbedded loads a built-in clip by name.
func LoadEmbedded(name string) (*Clip, error) {
	data, err := embeddedClips.ReadFile("data/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return parseClipJSON(name, data)
}

// LoadFromFile loads a clip from a JSON file. The clip is named after the
// file without its extension.
func LoadFromFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clip file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	return parseClipJSON(name, data)
}

// LoadFromDirectory loads every *.json clip in dir.
func LoadFromDirectory(dir string) ([]*Clip, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list clip files: %w", err)
	}

	var clips []*Clip
	for _, file := range files {
		clip, err := LoadFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

// ListEmbedded returns the names of the built-in clips.
func ListEmbedded() ([]string, error) {
	entries, err := embeddedClips.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("list embedded clips: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return names, nil
}

func parseClipJSON(name string, data []byte) (*Clip, error) {
	var raw ClipData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidClip, name, err)
	}

	state, err := ParseState(raw.State)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(raw.Time) < 2 || len(raw.Keyframes) != len(raw.Time) {
		return nil, fmt.Errorf("%w: %s needs at least two keyframes with one timestamp each", ErrInvalidClip, name)
	}
	if raw.Time[0] != 0 {
		return nil, fmt.Errorf("%w: %s must start at time 0", ErrInvalidClip, name)
	}
	for i := 1; i < len(raw.Time); i++ {
		if !(raw.Time[i] > raw.Time[i-1]) {
			return nil, fmt.Errorf("%w: %s timestamps must increase", ErrInvalidClip, name)
		}
	}
	for i, kf := range raw.Keyframes {
		for morph, v := range kf.Morphs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s keyframe %d morph %s is not finite", ErrInvalidClip, name, i, morph)
			}
		}
	}

	return &Clip{
		Name:        name,
		Description: raw.Description,
		State:       state,
		Duration:    time.Duration(raw.Time[len(raw.Time)-1] * float64(time.Second)),
		Keyframes:   raw.Keyframes,
		Timestamps:  raw.Time,
	}, nil
}
