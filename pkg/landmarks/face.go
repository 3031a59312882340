package landmarks

import "image"

// FaceBox is one face found by the box detector, in pixels.
type FaceBox struct {
	X, Y, W, H float64 // Top-left corner and size
	Confidence float64
}

// Center returns the center of the box.
func (b FaceBox) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the box area.
func (b FaceBox) Area() float64 {
	return b.W * b.H
}

// SelectBest picks the face to track when several are visible.
// Score: confidence * 0.7 + relative area * 0.3.
func SelectBest(boxes []FaceBox) (FaceBox, bool) {
	switch len(boxes) {
	case 0:
		return FaceBox{}, false
	case 1:
		return boxes[0], true
	}

	maxArea := 0.0
	for _, b := range boxes {
		maxArea = max(maxArea, b.Area())
	}
	if maxArea <= 0 {
		maxArea = 1
	}

	best, bestScore := 0, -1.0
	for i, b := range boxes {
		score := b.Confidence*0.7 + (b.Area()/maxArea)*0.3
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return boxes[best], true
}

// CropRect returns the square crop Face Mesh wants: the box's longer side
// grown by padding on every side, centered on the face and clipped to the image.
func (b FaceBox) CropRect(padding float64, imgW, imgH int) image.Rectangle {
	side := max(b.W, b.H) * (1 + 2*padding)
	cx, cy := b.Center()
	r := image.Rect(int(cx-side/2), int(cy-side/2), int(cx+side/2), int(cy+side/2))
	return r.Intersect(image.Rect(0, 0, imgW, imgH))
}
