package animation

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the clips available to an Animator, grouped by state.
type Registry struct {
	mu    sync.RWMutex
	clips map[string]*Clip
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clips: make(map[string]*Clip)}
}

// LoadBuiltIn registers every embedded clip.
func (r *Registry) LoadBuiltIn() error {
	names, err := ListEmbedded()
	if err != nil {
		return err
	}
	for _, name := range names {
		clip, err := LoadEmbedded(name)
		if err != nil {
			return fmt.Errorf("load clip %q: %w", name, err)
		}
		r.Register(clip)
	}
	return nil
}

// LoadCustomDir registers every clip in dir, replacing built-ins with the
// same name.
func (r *Registry) LoadCustomDir(dir string) error {
	clips, err := LoadFromDirectory(dir)
	if err != nil {
		return err
	}
	for _, clip := range clips {
		r.Register(clip)
	}
	return nil
}

// Register adds or replaces a clip.
func (r *Registry) Register(clip *Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips[clip.Name] = clip
}

// Get retrieves a clip by name.
func (r *Registry) Get(name string) (*Clip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clip, ok := r.clips[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return clip, nil
}

// List returns all clip names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clips))
	for name := range r.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variants returns the sorted clip names for a state.
func (r *Registry) Variants(s State) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, clip := range r.clips {
		if clip.State == s {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered clips.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clips)
}
