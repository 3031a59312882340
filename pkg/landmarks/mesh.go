package landmarks

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-facerig/pkg/debug"
	"gocv.io/x/gocv"
)

// MeshDetector finds the face with YuNet, crops it, and runs a Face Mesh ONNX
// model on the crop to get 468 landmarks.
type MeshDetector struct {
	face   gocv.FaceDetectorYN
	mesh   gocv.Net
	config Config
	mu     sync.Mutex // Protects inference
}

// NewMeshDetector loads both models.
func NewMeshDetector(cfg Config) (*MeshDetector, error) {
	for _, path := range []string{cfg.FaceModelPath, cfg.MeshModelPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: model file not found: %s", ErrModelNotReady, path)
		}
	}

	face := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModelPath,
		"",
		image.Pt(cfg.FaceInputWidth, cfg.FaceInputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	mesh := gocv.ReadNetFromONNX(cfg.MeshModelPath)
	if mesh.Empty() {
		face.Close()
		return nil, fmt.Errorf("%w: failed to load mesh model from %s", ErrModelNotReady, cfg.MeshModelPath)
	}
	mesh.SetPreferableBackend(gocv.NetBackendDefault)
	mesh.SetPreferableTarget(gocv.NetTargetCPU)

	return &MeshDetector{face: face, mesh: mesh, config: cfg}, nil
}

// Detect returns the landmarks of the most confident face in the JPEG.
func (d *MeshDetector) Detect(ctx context.Context, jpeg []byte) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return Frame{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return Frame{}, fmt.Errorf("empty image")
	}

	box, ok := d.findFace(img)
	if !ok {
		return Frame{}, ErrNoFace
	}

	crop := img.Region(box)
	defer crop.Close()

	size := image.Pt(d.config.MeshInputSize, d.config.MeshInputSize)
	blob := gocv.BlobFromImage(crop, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mesh.SetInput(blob, "")
	output := d.mesh.Forward(d.config.MeshOutput)
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return Frame{}, fmt.Errorf("read mesh output: %w", err)
	}

	frame := meshToFrame(data, box, img.Cols(), img.Rows(), d.config.MeshInputSize)
	debug.FrameLog("mesh landmarks", "points", frame.Len(), "box", box.String())
	return frame, nil
}

// findFace runs YuNet and returns the padded pixel box of the best face.
func (d *MeshDetector) findFace(img gocv.Mat) (image.Rectangle, bool) {
	d.face.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.face.Detect(img, &faces)

	boxes := make([]FaceBox, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: 0-3 box, 4-13 five keypoints, 14 score
		boxes = append(boxes, FaceBox{
			X:          float64(faces.GetFloatAt(r, 0)),
			Y:          float64(faces.GetFloatAt(r, 1)),
			W:          float64(faces.GetFloatAt(r, 2)),
			H:          float64(faces.GetFloatAt(r, 3)),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	best, ok := SelectBest(boxes)
	if !ok {
		return image.Rectangle{}, false
	}
	if len(boxes) > 1 {
		debug.FrameLog("faces found", "count", len(boxes), "confidence", best.Confidence)
	}

	box := best.CropRect(d.config.BoxPadding, img.Cols(), img.Rows())
	if box.Empty() {
		return image.Rectangle{}, false
	}
	return box, true
}

// meshToFrame maps model-space coordinates (0..inputSize on the crop) back to
// normalized full-image coordinates.
func meshToFrame(data []float32, box image.Rectangle, imgW, imgH, inputSize int) Frame {
	n := len(data) / 3
	if n > MinPoints {
		n = MinPoints
	}

	scaleX := float64(box.Dx()) / float64(inputSize)
	scaleY := float64(box.Dy()) / float64(inputSize)

	points := make([]Point, n)
	for i := 0; i < n; i++ {
		px := float64(box.Min.X) + float64(data[i*3])*scaleX
		py := float64(box.Min.Y) + float64(data[i*3+1])*scaleY
		points[i] = Point{
			X: px / float64(imgW),
			Y: py / float64(imgH),
			Z: float64(data[i*3+2]) * scaleX / float64(imgW),
		}
	}
	return Frame{Points: points, Width: imgW, Height: imgH}
}

// Close releases the detector resources
func (d *MeshDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.face.Close()
	return d.mesh.Close()
}
