package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	s, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Dashboard.Port != DefaultDashboardPort {
		t.Errorf("Expected port %s, got %s", DefaultDashboardPort, s.Dashboard.Port)
	}
	if s.Tracking.DetectionHz != DefaultDetectionHz {
		t.Errorf("Expected detection hz %v, got %v", DefaultDetectionHz, s.Tracking.DetectionHz)
	}
	if s.Landmarks.Source != "mesh" {
		t.Errorf("Expected mesh landmark source, got %q", s.Landmarks.Source)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facerig.yaml")
	content := `
log_level: debug
tracking:
  detection_hz: 20
rig:
  render_hz: 30
dashboard:
  port: "9999"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FACERIG_TRACKING_DETECTION_HZ", "25")

	s, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %q", s.LogLevel)
	}
	if s.Tracking.DetectionHz != 25 {
		t.Errorf("Expected env override 25, got %v", s.Tracking.DetectionHz)
	}
	if s.Dashboard.Port != "9999" {
		t.Errorf("Expected port 9999, got %q", s.Dashboard.Port)
	}
	if got := s.Rig.RenderInterval(); got != time.Second/30 {
		t.Errorf("Expected render interval %v, got %v", time.Second/30, got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestSettings_Validate(t *testing.T) {
	base := func() Settings {
		return Settings{
			Landmarks: LandmarkSettings{Source: "mesh"},
			Tracking:  TrackingSettings{DetectionHz: 24},
			Rig:       RigSettings{RenderHz: 60},
			Dashboard: DashboardSettings{Enabled: true},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "detection too fast", mutate: func(s *Settings) { s.Tracking.DetectionHz = 120 }, wantErr: "detection_hz"},
		{name: "render too slow", mutate: func(s *Settings) { s.Rig.RenderHz = 5 }, wantErr: "render_hz"},
		{name: "unknown source", mutate: func(s *Settings) { s.Landmarks.Source = "magic" }, wantErr: "landmarks.source"},
		{
			name: "stream without dashboard",
			mutate: func(s *Settings) {
				s.Landmarks.Source = "stream"
				s.Dashboard.Enabled = false
			},
			wantErr: "dashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
