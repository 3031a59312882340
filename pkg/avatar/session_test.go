package avatar

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-facerig/pkg/animation"
	"github.com/teslashibe/go-facerig/pkg/camera"
	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
	"github.com/teslashibe/go-facerig/pkg/mesh"
	"github.com/teslashibe/go-facerig/pkg/state"
	"github.com/teslashibe/go-facerig/pkg/tracking"
)

// imageDetector needs camera frames and returns a smiling face.
type imageDetector struct {
	calls atomic.Int64
}

func (d *imageDetector) Detect(ctx context.Context, img []byte) (landmarks.Frame, error) {
	d.calls.Add(1)
	if len(img) == 0 {
		return landmarks.Frame{}, landmarks.ErrNoFace
	}
	return landmarks.Synthetic{MouthGap: 0.02}.Frame(), nil
}

func (d *imageDetector) Close() error { return nil }

type fakeVideo struct {
	mu     sync.Mutex
	closed bool
}

func (v *fakeVideo) CaptureJPEG() ([]byte, error) { return []byte{0xff, 0xd8}, nil }

func (v *fakeVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeVideo) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func newSession(t *testing.T, open func(camera.Config) (Video, error)) (*Session, *mesh.Mesh) {
	t.Helper()
	m := mesh.Default()
	trk := tracking.DefaultConfig()
	trk.DetectionInterval = 5 * time.Millisecond

	s, err := New(Options{
		Mesh:       m,
		Detector:   &imageDetector{},
		Tracking:   trk,
		Anim:       animation.Options{Crossfade: 300 * time.Millisecond, Seed: 1},
		SpeechRate: 16000,
		OpenCamera: open,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func morph(m *mesh.Mesh, name string) float64 {
	return m.Morph(m.MorphIndex()[name])
}

func TestNew_Requires(t *testing.T) {
	if _, err := New(Options{Detector: &imageDetector{}}); err == nil {
		t.Error("expected error without mesh")
	}
	if _, err := New(Options{Mesh: mesh.Default()}); err == nil {
		t.Error("expected error without detector")
	}
}

func TestStartTracking_CameraErrorsAreExplicit(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission", camera.ErrPermissionDenied},
		{"missing device", camera.ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSession(t, func(camera.Config) (Video, error) {
				return nil, tt.err
			})

			if err := s.StartTracking(); !errors.Is(err, tt.err) {
				t.Fatalf("StartTracking error = %v, want %v", err, tt.err)
			}
			if s.Tracker().IsRunning() {
				t.Error("tracker running after camera failure")
			}
			if err := s.StopTracking(); err != nil {
				t.Errorf("StopTracking after failed start: %v", err)
			}
		})
	}
}

func TestStartStopTracking(t *testing.T) {
	video := &fakeVideo{}
	s, _ := newSession(t, func(camera.Config) (Video, error) { return video, nil })

	if err := s.StartTracking(); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	if err := s.StartTracking(); !errors.Is(err, tracking.ErrAlreadyRunning) {
		t.Errorf("second StartTracking error = %v, want ErrAlreadyRunning", err)
	}

	// The first ticks are still below the fusion snap threshold.
	waitFor(t, func() bool {
		snap := s.Slot().Load()
		return snap.HasHead && snap.Expressions.Get(expression.MouthOpen) > 0
	})

	if err := s.StopTracking(); err != nil {
		t.Fatalf("StopTracking: %v", err)
	}
	if !video.isClosed() {
		t.Error("camera not released")
	}
	if s.Tracker().IsRunning() {
		t.Error("tracker still running")
	}
	snap := s.Slot().Load()
	if snap.HasHead || !snap.Expressions.IsZero() {
		t.Errorf("slot not neutral after stop: %+v", snap)
	}

	// A stopped session can start again.
	video2 := &fakeVideo{}
	s.opts.OpenCamera = func(camera.Config) (Video, error) { return video2, nil }
	if err := s.StartTracking(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := s.StopTracking(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if !video2.isClosed() {
		t.Error("second camera not released")
	}
}

func TestRender_DrivesMeshFromSlot(t *testing.T) {
	s, m := newSession(t, nil)

	var v expression.Vector
	v.Set(expression.JawOpen, 0.5)
	s.Slot().StoreVision(state.Vision{Expressions: v})

	for i := 0; i < 60; i++ {
		s.Render(1.0 / 60)
	}
	if got := morph(m, "jawOpen"); math.Abs(got-0.5) > 0.01 {
		t.Errorf("jawOpen = %v, want ~0.5", got)
	}
	if s.Status().Frames != 60 {
		t.Errorf("frames = %d, want 60", s.Status().Frames)
	}
}

func TestRender_LipSyncOverridesJawWhileSpeaking(t *testing.T) {
	s, _ := newSession(t, nil)

	var v expression.Vector
	v.Set(expression.JawOpen, 0.6)
	s.Slot().StoreVision(state.Vision{Expressions: v})

	// Audio before speaking starts is ignored.
	tone := make([]int16, 4000)
	for i := range tone {
		tone[i] = int16(16000 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	s.FeedSpeechAudio(tone)
	if out := s.Render(1.0 / 60); out.LipSyncOn {
		t.Fatal("lip-sync active while not speaking")
	}

	s.SetSpeaking(true)
	s.FeedSpeechAudio(tone)
	out := s.Render(1.0 / 60)
	if !out.LipSyncOn {
		t.Fatal("lip-sync not active while speaking")
	}
	if out.Targets["jawOpen"] != out.LipSync {
		t.Errorf("jawOpen target = %v, want lip-sync %v", out.Targets["jawOpen"], out.LipSync)
	}
	if out.LipSync <= 0 || out.LipSync > 0.25 {
		t.Errorf("lip-sync = %v, want (0, 0.25]", out.LipSync)
	}
	if s.Status().Animation != "talking" {
		t.Errorf("animation = %s, want talking", s.Status().Animation)
	}

	s.SetSpeaking(false)
	if out := s.Render(1.0 / 60); out.LipSyncOn {
		t.Error("lip-sync active after speaking stopped")
	}
}

func TestProsodyWinsOverFused(t *testing.T) {
	s, _ := newSession(t, nil)

	var fused expression.Vector
	fused.Set(expression.MouthSmileLeft, 0.1)
	s.Slot().StoreVision(state.Vision{Expressions: fused})

	s.SetProsodyScores(emotion.Scores{"joy": 0.5})
	out := s.Render(1.0 / 60)
	// 0.5 joy maps to smile 0.5, amplified 1.2 by the default rig.
	if got := out.Targets["mouthSmileLeft"]; math.Abs(got-0.6) > 1e-9 {
		t.Errorf("mouthSmileLeft target = %v, want 0.6", got)
	}

	s.SetProsody(expression.Vector{})
	out = s.Render(1.0 / 60)
	if got := out.Targets["mouthSmileLeft"]; math.Abs(got-0.12) > 1e-9 {
		t.Errorf("mouthSmileLeft target = %v, want fused 0.12", got)
	}
}

func TestEmotionScoresReachSlot(t *testing.T) {
	s, _ := newSession(t, nil)

	s.Engine().OnEmotionScores(emotion.Scores{"joy": 0.8})
	if got := s.Slot().Load().Emotions.Get("joy"); got != 0.8 {
		t.Errorf("slot joy = %v, want 0.8", got)
	}

	s.Engine().OnClassifierError(emotion.ErrRateLimited)
	st := s.Status()
	if !st.VisionOnly || st.Classifier == "" {
		t.Errorf("status = %+v, want vision-only with classifier error", st)
	}
}

func TestClose(t *testing.T) {
	video := &fakeVideo{}
	s, _ := newSession(t, func(camera.Config) (Video, error) { return video, nil })
	if err := s.StartTracking(); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !video.isClosed() {
		t.Error("camera not released on Close")
	}
	if err := s.StartTracking(); !errors.Is(err, ErrClosed) {
		t.Errorf("StartTracking after Close = %v, want ErrClosed", err)
	}
}

func TestRunRender_StopsOnCancel(t *testing.T) {
	s, _ := newSession(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.RunRender(ctx) }()

	waitFor(t, func() bool { return s.Status().Frames > 2 })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunRender = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunRender did not stop")
	}
}

func TestCameraChangeRestartsCapture(t *testing.T) {
	var (
		mu     sync.Mutex
		opened []camera.Config
		videos []*fakeVideo
	)
	s, _ := newSession(t, func(cfg camera.Config) (Video, error) {
		mu.Lock()
		defer mu.Unlock()
		v := &fakeVideo{}
		opened = append(opened, cfg)
		videos = append(videos, v)
		return v, nil
	})

	// Not tracking: the config is only stored.
	if err := s.Cameras().UpdateConfig(map[string]interface{}{"width": 800}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if len(opened) != 0 {
		t.Fatalf("camera opened while stopped: %v", opened)
	}

	if err := s.StartTracking(); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	if err := s.Cameras().UpdateConfig(map[string]interface{}{"width": 1280, "height": 720}); err != nil {
		t.Fatalf("UpdateConfig while tracking: %v", err)
	}

	mu.Lock()
	if len(opened) != 2 {
		mu.Unlock()
		t.Fatalf("camera opened %d times, want 2", len(opened))
	}
	if opened[0].Width != 800 || opened[1].Width != 1280 || opened[1].Height != 720 {
		t.Errorf("opened configs = %+v", opened)
	}
	first, second := videos[0], videos[1]
	mu.Unlock()

	if !first.isClosed() {
		t.Error("old camera not released on reconfigure")
	}
	waitFor(t, s.Tracker().IsRunning)
	if err := s.StopTracking(); err != nil {
		t.Fatal(err)
	}
	if !second.isClosed() {
		t.Error("new camera not released on stop")
	}
}

func TestStatus_DominantEmotionAndSpeechLevel(t *testing.T) {
	s, _ := newSession(t, nil)

	s.Engine().OnEmotionScores(emotion.Scores{emotion.Joy: 0.3, emotion.Anger: 0.6})
	st := s.Status()
	if st.Emotion != emotion.Anger || st.EmotionMax != 0.6 {
		t.Errorf("dominant = %s %v, want anger 0.6", st.Emotion, st.EmotionMax)
	}
	if st.Level != 0 {
		t.Errorf("speech level while silent = %v, want 0", st.Level)
	}

	tone := make([]int16, 4000)
	for i := range tone {
		tone[i] = int16(16000 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	s.SetSpeaking(true)
	s.FeedSpeechAudio(tone)
	if st := s.Status(); st.Level <= 0 {
		t.Errorf("speech level while speaking = %v, want > 0", st.Level)
	}
}
