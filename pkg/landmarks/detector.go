package landmarks

import (
	"context"
	"errors"
)

var (
	// ErrNoFace means the image was processed but contained no face.
	ErrNoFace = errors.New("landmarks: no face")

	// ErrModelNotReady means the detector is still warming up or has no model loaded.
	ErrModelNotReady = errors.New("landmarks: model not ready")
)

// Detector is the interface for landmark backends.
// ErrNoFace and ErrModelNotReady are expected on some ticks; callers hold
// their previous state when they see them.
type Detector interface {
	// Detect finds one face's landmarks in the JPEG image.
	Detect(ctx context.Context, jpeg []byte) (Frame, error)

	// Close releases resources.
	Close() error
}

// IsMiss reports whether err only means "no landmarks this tick".
func IsMiss(err error) bool {
	return errors.Is(err, ErrNoFace) || errors.Is(err, ErrModelNotReady)
}

// Config holds detector configuration.
type Config struct {
	FaceModelPath    string  // YuNet ONNX model used to find the face box
	MeshModelPath    string  // Face Mesh ONNX model producing 468 points
	ConfidenceThresh float64 // Minimum face box confidence
	FaceInputWidth   int     // YuNet input width
	FaceInputHeight  int     // YuNet input height
	MeshInputSize    int     // Face Mesh square input size
	BoxPadding       float64 // Fraction of the face box added on every side before cropping
	MeshOutput       string  // Output layer holding landmark coordinates (empty = default)
}

// DefaultConfig returns production defaults for YuNet + Face Mesh.
func DefaultConfig() Config {
	return Config{
		FaceModelPath:    "models/face_detection_yunet.onnx",
		MeshModelPath:    "models/face_mesh.onnx",
		ConfidenceThresh: 0.6,
		FaceInputWidth:   320,
		FaceInputHeight:  320,
		MeshInputSize:    192,
		BoxPadding:       0.25,
	}
}
