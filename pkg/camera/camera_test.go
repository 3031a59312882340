package camera

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"no device", func(c *Config) { c.Device = "" }, false},
		{"tiny width", func(c *Config) { c.Width = 100 }, false},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, false},
		{"quality too high", func(c *Config) { c.Quality = 101 }, false},
		{"no read failures allowed", func(c *Config) { c.MaxReadFailures = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if errs := cfg.Validate(); (len(errs) == 0) != tt.valid {
				t.Errorf("Validate() = %v, valid %v", errs, tt.valid)
			}
		})
	}
}

func TestPresets_AllValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Errorf("preset %q missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("imax") != nil {
		t.Error("Expected nil for unknown preset")
	}
}

func TestManager_UpdateConfig(t *testing.T) {
	start := DefaultConfig()
	start.Device = "/dev/video2"
	m := NewManager(start)

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset":  Preset720p,
		"quality": float64(60),
		"mirror":  false,
	})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 1280 || got.Quality != 60 || got.Mirror {
		t.Errorf("unexpected config %+v", got)
	}
	if got.Device != "/dev/video2" {
		t.Errorf("preset overwrote device: %q", got.Device)
	}
	if applied != got {
		t.Error("callback did not receive the new config")
	}

	if err := m.UpdateConfig(map[string]interface{}{"width": 10}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if m.GetConfig().Width != 1280 {
		t.Error("invalid update was stored")
	}
}

func TestDevicePath(t *testing.T) {
	if got := devicePath("1"); got != "/dev/video1" {
		t.Errorf("devicePath(1) = %q", got)
	}
	if got := devicePath("rtsp://cam/live"); got != "rtsp://cam/live" {
		t.Errorf("devicePath(url) = %q", got)
	}
}

func TestClassifyOpenError(t *testing.T) {
	dir := t.TempDir()

	if err := classifyOpenError(filepath.Join(dir, "video9"), nil); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}

	locked := filepath.Join(dir, "video0")
	if err := os.WriteFile(locked, nil, 0o000); err != nil {
		t.Fatal(err)
	}
	if os.Geteuid() != 0 {
		if err := classifyOpenError(locked, nil); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Expected ErrPermissionDenied, got %v", err)
		}
	}

	open := filepath.Join(dir, "video1")
	if err := os.WriteFile(open, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := classifyOpenError(open, nil)
	if err == nil || errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected generic open error, got %v", err)
	}
}
