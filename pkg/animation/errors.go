package animation

import "errors"

var (
	// ErrNotFound is returned when a clip is not registered.
	ErrNotFound = errors.New("animation: clip not found")

	// ErrInvalidClip is returned when a clip file is malformed.
	ErrInvalidClip = errors.New("animation: invalid clip data")

	// ErrNoVariants is returned when a state has no clips to play.
	ErrNoVariants = errors.New("animation: no clips for state")
)
