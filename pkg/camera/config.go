// Package camera captures webcam frames for the landmark detector.
// Settings are runtime-configurable through the Manager, following the same
// pattern as pkg/tracking for tunable parameters.
package camera

import (
	"fmt"
	"strconv"
)

// Config holds all camera configuration parameters.
type Config struct {
	// Device is a device index ("0"), a device path or a stream URL.
	Device string `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// Mirror flips frames horizontally so the avatar mirrors the user.
	Mirror bool `json:"mirror"`

	// MaxReadFailures is how many consecutive empty reads mean the stream is lost.
	MaxReadFailures int `json:"max_read_failures"`
}

// Limits for common webcams.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 640x480 at 30 FPS, enough for face mesh landmarks.
func DefaultConfig() Config {
	return Config{
		Device:          "0",
		Width:           640,
		Height:          480,
		Framerate:       30,
		Quality:         85,
		Mirror:          true,
		MaxReadFailures: 30,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.MaxReadFailures < 1 {
		errors = append(errors, "max_read_failures must be at least 1")
	}

	return errors
}

// deviceID returns the device as an index when it parses as one, otherwise
// the string itself. gocv accepts both.
func (c *Config) deviceID() interface{} {
	if id, err := strconv.Atoi(c.Device); err == nil {
		return id
	}
	return c.Device
}
