// Package landmarks provides facial landmark frames and the detectors that produce them.
//
// Frames use the 468-point MediaPipe Face Mesh topology. Coordinates are
// normalized to the image: x grows right, y grows down, both in [0,1] for
// on-screen points. Z is relative depth and may be zero for 2D models.
package landmarks

import (
	"errors"
	"fmt"
	"math"
)

// MinPoints is the smallest frame the estimator accepts.
const MinPoints = 468

// minExtent is the smallest bounding-box side that still counts as a face.
const minExtent = 1e-4

// Face Mesh indices used for calibration geometry.
// Left/right are the subject's, so "left" points sit on the image's right side.
const (
	NoseTip      = 1
	NoseBase     = 2
	Forehead     = 10
	UpperLipIn   = 13
	LowerLipIn   = 14
	RightEyeOut  = 33
	MouthCornerR = 61
	RightBrowOut = 70
	RightBrowIn  = 107
	RightEyeLow  = 145
	Chin         = 152
	RightEyeUp   = 159
	RightEyeIn   = 133
	RightCheek   = 234
	MouthCornerL = 291
	LeftBrowOut  = 300
	LeftBrowIn   = 336
	LeftEyeIn    = 362
	LeftEyeLow   = 374
	LeftEyeUp    = 386
	LeftEyeOut   = 263
	LeftCheek    = 454
)

var (
	// ErrTooFewPoints means a frame is shorter than MinPoints.
	ErrTooFewPoints = errors.New("landmarks: too few points")

	// ErrNonFinite means a frame contains NaN or Inf coordinates.
	ErrNonFinite = errors.New("landmarks: non-finite coordinate")

	// ErrDegenerate means every point collapses to (almost) one location, e.g. an all-zero frame.
	ErrDegenerate = errors.New("landmarks: degenerate frame")
)

// Point is one landmark.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Mid returns the midpoint of p and q.
func (p Point) Mid(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2, Z: (p.Z + q.Z) / 2}
}

// Dist2D returns the image-plane distance between p and q.
func (p Point) Dist2D(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Frame is one detector output for one image.
type Frame struct {
	Points []Point `json:"points"`

	// Width and Height of the source image in pixels, if known.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Len returns the number of points.
func (f Frame) Len() int {
	return len(f.Points)
}

// At returns point i. Callers must Validate first.
func (f Frame) At(i int) Point {
	return f.Points[i]
}

// Validate reports why a frame cannot be used, or nil.
func (f Frame) Validate() error {
	if len(f.Points) < MinPoints {
		return fmt.Errorf("%w: %d < %d", ErrTooFewPoints, len(f.Points), MinPoints)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range f.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	if maxX-minX < minExtent || maxY-minY < minExtent {
		return ErrDegenerate
	}
	return nil
}

// Clone returns a deep copy so readers never share the detector's buffer.
func (f Frame) Clone() Frame {
	out := f
	if f.Points != nil {
		out.Points = make([]Point, len(f.Points))
		copy(out.Points, f.Points)
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
