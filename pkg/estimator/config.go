package estimator

import "github.com/teslashibe/go-facerig/pkg/expression"

// Config holds the empirically tuned geometry constants.
// Neutral* values are ratios measured on a relaxed frontal face; *Scale values
// map the deviation from neutral onto [0,1].
type Config struct {
	// Smoothing
	Alpha float64 // EMA weight of the new reading (0.15 = heavy smoothing)

	// Normalization floors (normalized image units)
	MinFaceHeight float64 // Forehead-to-nose floor; avoids blow-up on tiny faces
	MinFaceWidth  float64
	MinEyeWidth   float64

	// Mouth
	NeutralMouthGap   float64 // Inner lip gap / face height
	MouthOpenScale    float64
	NeutralJawRatio   float64 // Chin-to-nose / face height
	JawOpenScale      float64
	NeutralCornerLift float64 // (nose base y - corner y) / face height
	SmileScale        float64
	FrownScale        float64
	NeutralMouthWidth float64 // Corner distance / face width
	PuckerScale       float64
	JawSideScale      float64
	NeutralSneerGap   float64 // Upper lip - nose base / face height
	SneerScale        float64

	// Brows
	NeutralBrowInner float64 // (inner eye corner y - inner brow y) / face height
	NeutralBrowOuter float64
	BrowUpScale      float64
	BrowDownScale    float64

	// Eyes
	NeutralEyeOpen float64 // Lid gap / eye width
	BlinkScale     float64
	WideScale      float64
	SquintScale    float64

	// Head rotation
	YawScale          float64
	PitchScale        float64
	RollScale         float64
	NeutralPitchRatio float64 // Nose position along the eye-midpoint-to-chin line

	// ZeroThresholds zero any channel whose raw value falls below it, so jitter
	// around the neutral pose reads as exactly 0. Missing entries use DefaultZeroThreshold.
	ZeroThresholds map[expression.Channel]float64
}

// DefaultZeroThreshold applies to channels without their own threshold.
const DefaultZeroThreshold = 0.05

// DefaultConfig returns constants tuned for MediaPipe Face Mesh landmarks.
func DefaultConfig() Config {
	return Config{
		Alpha: 0.15,

		MinFaceHeight: 0.02,
		MinFaceWidth:  0.02,
		MinEyeWidth:   0.005,

		NeutralMouthGap:   0.025,
		MouthOpenScale:    4.0,
		NeutralJawRatio:   1.0,
		JawOpenScale:      2.5,
		NeutralCornerLift: -0.35,
		SmileScale:        5.0,
		FrownScale:        5.0,
		NeutralMouthWidth: 0.4,
		PuckerScale:       4.0,
		JawSideScale:      4.0,
		NeutralSneerGap:   0.35,
		SneerScale:        5.0,

		NeutralBrowInner: 0.25,
		NeutralBrowOuter: 0.25,
		BrowUpScale:      6.0,
		BrowDownScale:    6.0,

		NeutralEyeOpen: 0.25,
		BlinkScale:     1.2,
		WideScale:      4.0,
		SquintScale:    0.6,

		YawScale:          1.2,
		PitchScale:        2.0,
		RollScale:         1.0,
		NeutralPitchRatio: 2.0 / 7.0,

		ZeroThresholds: map[expression.Channel]float64{
			expression.EyeBlinkLeft:     0.10,
			expression.EyeBlinkRight:    0.10,
			expression.EyeSquintLeft:    0.08,
			expression.EyeSquintRight:   0.08,
			expression.BrowInnerUp:      0.08,
			expression.BrowDownLeft:     0.08,
			expression.BrowDownRight:    0.08,
			expression.BrowOuterUpLeft:  0.08,
			expression.BrowOuterUpRight: 0.08,
			expression.MouthSmileLeft:   0.06,
			expression.MouthSmileRight:  0.06,
			expression.MouthFrownLeft:   0.06,
			expression.MouthFrownRight:  0.06,
		},
	}
}

// zeroThreshold returns the threshold for ch.
func (c Config) zeroThreshold(ch expression.Channel) float64 {
	if t, ok := c.ZeroThresholds[ch]; ok {
		return t
	}
	return DefaultZeroThreshold
}
