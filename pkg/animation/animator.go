package animation

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/go-facerig/internal/log"
)

// Options configures an Animator.
type Options struct {
	// Crossfade is how long a new clip takes to fully replace the old one.
	Crossfade time.Duration

	// Seed makes variant choice reproducible. 0 seeds from the clock.
	Seed uint64
}

// DefaultOptions returns a 0.3s crossfade with a random seed.
func DefaultOptions() Options {
	return Options{Crossfade: 300 * time.Millisecond}
}

type playback struct {
	clip *Clip
	t    float64 // Seconds since the clip started
}

// Animator is the {Idle, Talking} state machine. It is advanced from the
// render loop; the state may be queried from other goroutines.
type Animator struct {
	mu     sync.Mutex
	reg    *Registry
	opts   Options
	rng    *rand.Rand
	logger *slog.Logger

	state    State
	current  *playback
	previous *playback // Fading out, nil when no crossfade is running
	fade     float64   // Seconds into the crossfade
	last     map[State]string
}

// NewAnimator starts in Idle on a random idle clip.
func NewAnimator(reg *Registry, opts Options) (*Animator, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	a := &Animator{
		reg:    reg,
		opts:   opts,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		logger: log.Component("animation"),
		state:  Idle,
		last:   make(map[State]string),
	}

	clip, err := a.pick(Idle)
	if err != nil {
		return nil, err
	}
	a.current = &playback{clip: clip}
	return a, nil
}

// SetTalking switches to Talking or back to Idle. Setting the current state
// again does nothing.
func (a *Animator) SetTalking(talking bool) {
	next := Idle
	if talking {
		next = Talking
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if next == a.state {
		return
	}
	a.state = next
	a.transition()
}

// transition crossfades to a new variant of the current state. With no
// variants for the state the running clip keeps playing.
func (a *Animator) transition() {
	clip, err := a.pick(a.state)
	if err != nil {
		a.logger.Warn("no clip for state, keeping current", "state", a.state, "clip", a.current.clip.Name)
		return
	}
	a.previous = a.current
	a.current = &playback{clip: clip}
	a.fade = 0
	a.logger.Debug("clip started", "state", a.state, "clip", clip.Name, "from", a.previous.clip.Name)
}

// pick chooses a random variant for s other than the one played last.
func (a *Animator) pick(s State) (*Clip, error) {
	names := a.reg.Variants(s)
	if len(names) == 0 {
		return nil, ErrNoVariants
	}

	candidates := names
	if last, ok := a.last[s]; ok && len(names) > 1 {
		candidates = make([]string, 0, len(names)-1)
		for _, n := range names {
			if n != last {
				candidates = append(candidates, n)
			}
		}
	}

	name := candidates[a.rng.IntN(len(candidates))]
	a.last[s] = name
	return a.reg.Get(name)
}

// Advance moves playback forward by dt seconds and returns the blended pose.
// A clip that has played through is replaced by another variant of the
// same state.
func (a *Animator) Advance(dt float64) Pose {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dt < 0 {
		dt = 0
	}
	a.current.t += dt
	if a.previous != nil {
		a.previous.t += dt
		a.fade += dt
	}

	if a.previous == nil && a.current.t >= a.current.clip.Duration.Seconds() &&
		a.current.clip.State == a.state && len(a.reg.Variants(a.state)) > 1 {
		a.transition()
	}

	pose := a.current.clip.At(a.current.t)
	if a.previous == nil {
		return pose
	}
	w := a.weight()
	if w >= 1 {
		a.previous = nil
		return pose
	}
	return Blend(a.previous.clip.At(a.previous.t), pose, w)
}

func (a *Animator) weight() float64 {
	if a.previous == nil || a.opts.Crossfade <= 0 {
		return 1
	}
	return min(1, a.fade/a.opts.Crossfade.Seconds())
}

// Weights returns the outgoing and incoming clip weights. They always sum to 1.
func (a *Animator) Weights() (previous, current float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.weight()
	return 1 - w, w
}

// State returns the current state.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Clip returns the name of the clip fading in or playing.
func (a *Animator) Clip() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.clip.Name
}
