package landmarks

import (
	"context"
	"math"
	"sync"
	"time"
)

// Synthetic builds a parametric face frame in Face Mesh topology.
// The zero value is a symmetric, frontal, neutral face centred in the image.
// It backs the demo landmark source and calibration checks.
type Synthetic struct {
	MouthGap  float64 // Extra inner-lip gap (normalized units)
	JawDrop   float64 // Extra chin drop
	SmileLift float64 // Mouth corners raised; negative frowns
	BrowRaise float64 // Brows raised; negative furrows
	EyeOpen   float64 // Extra eyelid opening; negative closes
	NoseShift float64 // Horizontal nose/mouth shift, reads as yaw
	NoseDrop  float64 // Vertical nose shift, reads as pitch
	Tilt      float64 // In-plane rotation in radians, reads as roll
}

// neutral positions of the calibration landmarks
var neutralFace = map[int]Point{
	Forehead:     {X: 0.50, Y: 0.30},
	NoseTip:      {X: 0.50, Y: 0.50},
	NoseBase:     {X: 0.50, Y: 0.53},
	UpperLipIn:   {X: 0.50, Y: 0.60},
	LowerLipIn:   {X: 0.50, Y: 0.605},
	Chin:         {X: 0.50, Y: 0.70},
	MouthCornerR: {X: 0.44, Y: 0.60},
	MouthCornerL: {X: 0.56, Y: 0.60},
	RightEyeOut:  {X: 0.38, Y: 0.42},
	RightEyeIn:   {X: 0.46, Y: 0.42},
	RightEyeUp:   {X: 0.42, Y: 0.41},
	RightEyeLow:  {X: 0.42, Y: 0.43},
	LeftEyeIn:    {X: 0.54, Y: 0.42},
	LeftEyeOut:   {X: 0.62, Y: 0.42},
	LeftEyeUp:    {X: 0.58, Y: 0.41},
	LeftEyeLow:   {X: 0.58, Y: 0.43},
	RightBrowIn:  {X: 0.46, Y: 0.37},
	RightBrowOut: {X: 0.38, Y: 0.37},
	LeftBrowIn:   {X: 0.54, Y: 0.37},
	LeftBrowOut:  {X: 0.62, Y: 0.37},
	RightCheek:   {X: 0.35, Y: 0.50},
	LeftCheek:    {X: 0.65, Y: 0.50},
}

// Frame renders the face as a full 468-point frame.
func (s Synthetic) Frame() Frame {
	points := make([]Point, MinPoints)

	// Filler points on the face oval keep the frame non-degenerate.
	for i := range points {
		a := 2 * math.Pi * float64(i) / float64(MinPoints)
		points[i] = Point{X: 0.5 + 0.15*math.Cos(a), Y: 0.5 + 0.2*math.Sin(a)}
	}
	for idx, p := range neutralFace {
		points[idx] = p
	}

	move := func(idx int, dx, dy float64) {
		points[idx].X += dx
		points[idx].Y += dy
	}

	move(LowerLipIn, 0, s.MouthGap+s.JawDrop)
	move(Chin, 0, s.JawDrop)
	move(MouthCornerR, 0, -s.SmileLift)
	move(MouthCornerL, 0, -s.SmileLift)
	for _, idx := range []int{RightBrowIn, RightBrowOut, LeftBrowIn, LeftBrowOut} {
		move(idx, 0, -s.BrowRaise)
	}
	move(RightEyeUp, 0, -s.EyeOpen)
	move(LeftEyeUp, 0, -s.EyeOpen)
	for _, idx := range []int{NoseTip, NoseBase} {
		move(idx, s.NoseShift, s.NoseDrop)
	}

	if s.Tilt != 0 {
		sin, cos := math.Sincos(s.Tilt)
		for i, p := range points {
			dx, dy := p.X-0.5, p.Y-0.5
			points[i] = Point{X: 0.5 + dx*cos - dy*sin, Y: 0.5 + dx*sin + dy*cos, Z: p.Z}
		}
	}

	return Frame{Points: points, Width: 640, Height: 480}
}

// SyntheticDetector animates a synthetic face over time for headless demos.
type SyntheticDetector struct {
	mu    sync.Mutex
	start time.Time
}

// NewSyntheticDetector creates a demo detector.
func NewSyntheticDetector() *SyntheticDetector {
	return &SyntheticDetector{start: time.Now()}
}

// Detect returns a slowly talking, blinking, nodding face.
func (d *SyntheticDetector) Detect(ctx context.Context, _ []byte) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	d.mu.Lock()
	t := time.Since(d.start).Seconds()
	d.mu.Unlock()

	s := Synthetic{
		MouthGap:  0.02 * math.Max(0, math.Sin(2*math.Pi*1.5*t)),
		SmileLift: 0.01 * math.Sin(2*math.Pi*0.2*t),
		BrowRaise: 0.006 * math.Sin(2*math.Pi*0.3*t),
		NoseShift: 0.01 * math.Sin(2*math.Pi*0.1*t),
		Tilt:      0.05 * math.Sin(2*math.Pi*0.07*t),
	}
	// blink for 150ms every 4s
	if math.Mod(t, 4) < 0.15 {
		s.EyeOpen = -0.018
	}
	return s.Frame(), nil
}

// NeedsImage reports false: synthetic frames need no camera.
func (d *SyntheticDetector) NeedsImage() bool {
	return false
}

// Close implements Detector.
func (d *SyntheticDetector) Close() error {
	return nil
}
