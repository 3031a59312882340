package main

import (
	"fmt"

	"github.com/teslashibe/go-facerig/internal/config"
	"github.com/teslashibe/go-facerig/pkg/animation"
	"github.com/teslashibe/go-facerig/pkg/avatar"
	"github.com/teslashibe/go-facerig/pkg/camera"
	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
	"github.com/teslashibe/go-facerig/pkg/mesh"
	"github.com/teslashibe/go-facerig/pkg/rig"
	"github.com/teslashibe/go-facerig/pkg/tracking"
)

// newDetector builds the configured landmark source. The stream detector is
// also returned so the dashboard can feed it.
func newDetector(s config.LandmarkSettings) (landmarks.Detector, *landmarks.StreamDetector, error) {
	switch s.Source {
	case "stream":
		sd := landmarks.NewStreamDetector(0)
		return sd, sd, nil
	case "synthetic":
		return landmarks.NewSyntheticDetector(), nil, nil
	case "mesh":
		cfg := landmarks.DefaultConfig()
		if s.FaceModelPath != "" {
			cfg.FaceModelPath = s.FaceModelPath
		}
		if s.MeshModelPath != "" {
			cfg.MeshModelPath = s.MeshModelPath
		}
		d, err := landmarks.NewMeshDetector(cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown landmark source %q", s.Source)
	}
}

// loadRig returns the rig config and mesh named by the settings, falling back
// to the embedded defaults.
func loadRig(s config.RigSettings) (rig.Config, *mesh.Mesh, error) {
	cfg := rig.DefaultConfig()
	if s.MorphMapPath != "" {
		c, err := rig.LoadConfig(s.MorphMapPath)
		if err != nil {
			return rig.Config{}, nil, err
		}
		cfg = c
	}

	if s.MeshPath == "" {
		return cfg, mesh.Default(), nil
	}
	m, err := mesh.Load(s.MeshPath)
	if err != nil {
		return rig.Config{}, nil, err
	}
	return cfg, m, nil
}

func loadClips(dir string) (*animation.Registry, error) {
	reg := animation.NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := reg.LoadCustomDir(dir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func cameraConfig(s config.CameraSettings) camera.Config {
	cfg := camera.DefaultConfig()
	if s.Device != "" {
		cfg.Device = s.Device
	}
	if s.Width > 0 {
		cfg.Width = s.Width
	}
	if s.Height > 0 {
		cfg.Height = s.Height
	}
	if s.Framerate > 0 {
		cfg.Framerate = s.Framerate
	}
	return cfg
}

func trackingConfig(s config.TrackingSettings) tracking.Config {
	cfg := tracking.DefaultConfig()
	if d := s.DetectionInterval(); d > 0 {
		cfg.DetectionInterval = d
		cfg.MaxDetectionHz = max(cfg.MaxDetectionHz, s.DetectionHz)
	}
	if s.NeutralAfterMisses > 0 {
		cfg.NeutralAfterMisses = s.NeutralAfterMisses
	}
	return cfg
}

// sessionOptions turns settings into avatar options. The caller owns the
// returned detector until avatar.New succeeds.
func sessionOptions(s config.Settings) (avatar.Options, *landmarks.StreamDetector, error) {
	rigCfg, msh, err := loadRig(s.Rig)
	if err != nil {
		return avatar.Options{}, nil, err
	}
	clips, err := loadClips(s.Rig.ClipsDir)
	if err != nil {
		return avatar.Options{}, nil, err
	}
	det, stream, err := newDetector(s.Landmarks)
	if err != nil {
		return avatar.Options{}, nil, err
	}

	opts := avatar.Options{
		Camera:         cameraConfig(s.Camera),
		Tracking:       trackingConfig(s.Tracking),
		Rig:            rigCfg,
		Mesh:           msh,
		Detector:       det,
		Clips:          clips,
		RenderInterval: s.Rig.RenderInterval(),
	}
	if s.Classifier.URL != "" {
		cc := emotion.DefaultClientConfig()
		cc.URL = s.Classifier.URL
		cc.APIKey = s.Classifier.APIKey
		opts.Classifier = emotion.NewClient(cc)
	}
	return opts, stream, nil
}

func newSession(s config.Settings) (*avatar.Session, *landmarks.StreamDetector, error) {
	opts, stream, err := sessionOptions(s)
	if err != nil {
		return nil, nil, err
	}
	session, err := avatar.New(opts)
	if err != nil {
		_ = opts.Detector.Close()
		return nil, nil, err
	}
	return session, stream, nil
}
