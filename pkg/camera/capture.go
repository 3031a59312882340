package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facerig/internal/log"
)

// Sentinel errors. Permission and stream loss are surfaced to the caller and
// never retried automatically.
var (
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrDeviceNotFound   = errors.New("camera: device not found")
	ErrStreamLost       = errors.New("camera: stream lost")
	ErrClosed           = errors.New("camera: closed")
	ErrInvalidConfig    = errors.New("camera: invalid config")
)

// Capture reads frames from a webcam and encodes them as JPEG.
type Capture struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	cap      *gocv.VideoCapture
	frame    gocv.Mat
	failures int
	closed   bool
}

// Open opens the device described by cfg.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}

	vc, err := gocv.OpenVideoCapture(cfg.deviceID())
	if err != nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, classifyOpenError(devicePath(cfg.Device), err)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	c := &Capture{
		cfg:    cfg,
		logger: log.Component("camera"),
		cap:    vc,
		frame:  gocv.NewMat(),
	}
	c.logger.Info("camera opened", "device", cfg.Device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)))
	return c, nil
}

// CaptureJPEG reads one frame. Empty reads are retried until MaxReadFailures
// consecutive failures, at which point ErrStreamLost is returned.
func (c *Capture) CaptureJPEG() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	for !c.cap.Read(&c.frame) || c.frame.Empty() {
		c.failures++
		if c.failures >= c.cfg.MaxReadFailures {
			return nil, fmt.Errorf("%w after %d empty reads", ErrStreamLost, c.failures)
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.failures = 0

	if c.cfg.Mirror {
		gocv.Flip(c.frame, &c.frame, 1)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.frame, []int{gocv.IMWriteJpegQuality, c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Config returns the configuration the capture was opened with.
func (c *Capture) Config() Config {
	return c.cfg
}

// Close releases the device. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	err := c.cap.Close()
	c.logger.Info("camera released", "device", c.cfg.Device)
	return err
}

// devicePath maps a device index to its V4L2 node. Paths and URLs pass through.
func devicePath(device string) string {
	if id, err := strconv.Atoi(device); err == nil {
		return fmt.Sprintf("/dev/video%d", id)
	}
	return device
}

// classifyOpenError explains why a device failed to open by probing its node.
func classifyOpenError(path string, cause error) error {
	f, err := os.Open(path)
	switch {
	case err == nil:
		f.Close()
		if cause != nil {
			return fmt.Errorf("camera: open %s: %w", path, cause)
		}
		return fmt.Errorf("camera: open %s: device busy or unsupported", path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	default:
		return fmt.Errorf("camera: open %s: %w", path, err)
	}
}
