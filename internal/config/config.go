// Package config loads go-facerig runtime settings.
//
// Settings come from (lowest to highest priority) built-in defaults, an
// optional YAML file and FACERIG_* environment variables. Nested keys map to
// env vars with underscores, e.g. tracking.detection_hz -> FACERIG_TRACKING_DETECTION_HZ.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "FACERIG"

// Default settings.
const (
	DefaultConfigName    = "facerig"
	DefaultDashboardPort = "8090"
	DefaultCameraDevice  = "0"
	DefaultDetectionHz   = 24.0
	DefaultRenderHz      = 60.0
)

// Settings is the full application configuration.
type Settings struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	Camera     CameraSettings     `mapstructure:"camera"`
	Landmarks  LandmarkSettings   `mapstructure:"landmarks"`
	Tracking   TrackingSettings   `mapstructure:"tracking"`
	Classifier ClassifierSettings `mapstructure:"classifier"`
	Rig        RigSettings        `mapstructure:"rig"`
	Dashboard  DashboardSettings  `mapstructure:"dashboard"`
}

// CameraSettings selects and sizes the webcam.
type CameraSettings struct {
	Device    string `mapstructure:"device"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	Framerate int    `mapstructure:"framerate"`
}

// LandmarkSettings chooses the landmark source.
// Source is "mesh" (local gocv models), "stream" (frames pushed over the
// dashboard websocket) or "synthetic" (a scripted demo face).
type LandmarkSettings struct {
	Source        string `mapstructure:"source"`
	FaceModelPath string `mapstructure:"face_model"`
	MeshModelPath string `mapstructure:"mesh_model"`
}

// TrackingSettings controls the capture/estimate loop.
type TrackingSettings struct {
	DetectionHz        float64 `mapstructure:"detection_hz"`
	NeutralAfterMisses int     `mapstructure:"neutral_after_misses"`
	AutoStart          bool    `mapstructure:"auto_start"`
}

// ClassifierSettings points at the prosody emotion classifier.
// An empty URL runs fusion in vision-only mode.
type ClassifierSettings struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// RigSettings locates the rig and mesh descriptions.
type RigSettings struct {
	MorphMapPath string  `mapstructure:"morph_map"`
	MeshPath     string  `mapstructure:"mesh"`
	ClipsDir     string  `mapstructure:"clips_dir"`
	RenderHz     float64 `mapstructure:"render_hz"`
}

// DashboardSettings controls the web dashboard.
type DashboardSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// DetectionInterval converts DetectionHz to a ticker period.
func (t TrackingSettings) DetectionInterval() time.Duration {
	return hzToInterval(t.DetectionHz)
}

// RenderInterval converts RenderHz to a ticker period.
func (r RigSettings) RenderInterval() time.Duration {
	return hzToInterval(r.RenderHz)
}

func hzToInterval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	v.SetDefault("camera.device", DefaultCameraDevice)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.framerate", 30)

	v.SetDefault("landmarks.source", "mesh")
	v.SetDefault("landmarks.face_model", "models/face_detection_yunet.onnx")
	v.SetDefault("landmarks.mesh_model", "models/face_mesh.onnx")

	v.SetDefault("tracking.detection_hz", DefaultDetectionHz)
	v.SetDefault("tracking.neutral_after_misses", 30)
	v.SetDefault("tracking.auto_start", true)

	v.SetDefault("classifier.url", "")
	v.SetDefault("classifier.api_key", "")

	v.SetDefault("rig.morph_map", "")
	v.SetDefault("rig.mesh", "")
	v.SetDefault("rig.clips_dir", "")
	v.SetDefault("rig.render_hz", DefaultRenderHz)

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", DefaultDashboardPort)
}

// Load reads settings from v. When path is empty the default config name is
// searched in the working directory and ./config; a missing file is not an error.
func Load(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings that would otherwise fail deep inside a loop.
func (s Settings) Validate() error {
	var problems []string
	if s.Tracking.DetectionHz < 1 || s.Tracking.DetectionHz > 60 {
		problems = append(problems, "tracking.detection_hz must be between 1 and 60")
	}
	if s.Rig.RenderHz < 10 || s.Rig.RenderHz > 240 {
		problems = append(problems, "rig.render_hz must be between 10 and 240")
	}
	switch s.Landmarks.Source {
	case "mesh", "stream", "synthetic":
	default:
		problems = append(problems, "landmarks.source must be mesh, stream or synthetic")
	}
	if s.Landmarks.Source == "stream" && !s.Dashboard.Enabled {
		problems = append(problems, "landmarks.source=stream needs the dashboard enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
