// Package avatar wires the face rig together: camera and landmark tracking
// feed fusion, fusion feeds the shared state slot, and a single render loop
// drives the mesh from the slot, the animation clips and speech playback.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/animation"
	"github.com/teslashibe/go-facerig/pkg/camera"
	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/estimator"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/fusion"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
	"github.com/teslashibe/go-facerig/pkg/rig"
	"github.com/teslashibe/go-facerig/pkg/speech"
	"github.com/teslashibe/go-facerig/pkg/state"
	"github.com/teslashibe/go-facerig/pkg/tracking"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("avatar: session closed")

// Video is a frame source the session can release.
type Video interface {
	tracking.VideoSource
	Close() error
}

// Options configures a Session. Zero-valued configs use package defaults.
type Options struct {
	Camera    camera.Config
	Tracking  tracking.Config
	Estimator estimator.Config
	Fusion    fusion.Config
	Rig       rig.Config
	Mapping   emotion.Mapping

	Mesh     rig.Mesh           // Required
	Detector landmarks.Detector // Required; closed with the session
	Clips    *animation.Registry
	Anim     animation.Options

	// Classifier is optional. Without it fusion runs on vision alone.
	Classifier *emotion.Client

	RenderInterval time.Duration
	SpeechRate     int // Sample rate of playback audio

	// OpenCamera opens the video source on StartTracking. Defaults to camera.Open.
	OpenCamera func(camera.Config) (Video, error)
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID  string          `json:"session_id"`
	Tracking   tracking.Status `json:"tracking"`
	Camera     camera.Config   `json:"camera"`
	Speaking   bool            `json:"speaking"`
	Animation  string          `json:"animation"`
	Clip       string          `json:"clip"`
	VisionOnly bool            `json:"vision_only"`
	Classifier string          `json:"classifier_error,omitempty"`
	Emotion    string          `json:"emotion,omitempty"`
	EmotionMax float64         `json:"emotion_score,omitempty"`
	Seq        uint64          `json:"seq"`
	Frames     uint64          `json:"frames"`
	LipSync    float64         `json:"lip_sync"`
	Level      float64         `json:"speech_level"`
}

// Session owns every component of one avatar.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	cameras    *camera.Manager
	detector   landmarks.Detector
	engine     *fusion.Engine
	slot       *state.Slot
	tracker    *tracking.Tracker
	mesh       rig.Mesh
	controller *rig.Controller
	animator   *animation.Animator
	analyzer   *speech.Analyzer
	wobbler    *speech.Wobbler
	classifier *emotion.Client
	unsub      func()

	// Published by other goroutines, applied by the render loop.
	speaking atomic.Bool
	prosody  atomic.Pointer[expression.Vector]

	frames  atomic.Uint64
	lastOut atomic.Pointer[rig.Output]

	mu     sync.Mutex // Tracking lifecycle
	video  Video
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New builds a session. It does not start tracking or rendering.
func New(opts Options) (*Session, error) {
	if opts.Mesh == nil {
		return nil, errors.New("avatar: mesh is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("avatar: detector is required")
	}
	applyDefaults(&opts)

	controller, err := rig.NewController(opts.Rig, opts.Mesh)
	if err != nil {
		return nil, err
	}

	clips := opts.Clips
	if clips == nil {
		clips = animation.NewRegistry()
		if err := clips.LoadBuiltIn(); err != nil {
			return nil, err
		}
	}
	animator, err := animation.NewAnimator(clips, opts.Anim)
	if err != nil {
		return nil, err
	}

	if err := opts.Tracking.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:         uuid.NewString(),
		opts:       opts,
		cameras:    camera.NewManager(opts.Camera),
		detector:   opts.Detector,
		slot:       state.NewSlot(),
		mesh:       opts.Mesh,
		controller: controller,
		animator:   animator,
		analyzer:   speech.NewAnalyzer(speech.DefaultAnalyzerConfig()),
		wobbler:    speech.NewWobbler(speech.DefaultWobbleConfig()),
		classifier: opts.Classifier,
	}
	s.logger = log.Component("avatar").With("session", s.id)
	s.engine = fusion.New(opts.Fusion, estimator.New(opts.Estimator), opts.Mapping)
	s.tracker = tracking.New(opts.Tracking, nil, s.detector, s.engine, s.slot)
	s.unsub = s.engine.SubscribeEmotions(s.slot.StoreEmotions)
	s.cameras.OnConfigChange = s.applyCamera

	if s.classifier != nil {
		s.classifier.OnScores = s.engine.OnEmotionScores
		s.classifier.OnError = s.engine.OnClassifierError
	}

	s.logger.Info("session created", "mesh_morphs", len(controller.Bound()),
		"clips", clips.Count(), "classifier", s.classifier != nil)
	return s, nil
}

func applyDefaults(o *Options) {
	if o.Camera == (camera.Config{}) {
		o.Camera = camera.DefaultConfig()
	}
	if o.Tracking == (tracking.Config{}) {
		o.Tracking = tracking.DefaultConfig()
	}
	if o.Estimator.Alpha == 0 {
		o.Estimator = estimator.DefaultConfig()
	}
	if o.Fusion == (fusion.Config{}) {
		o.Fusion = fusion.DefaultConfig()
	}
	if len(o.Rig.MorphMap.Entries) == 0 {
		o.Rig = rig.DefaultConfig()
	}
	if o.Anim == (animation.Options{}) {
		o.Anim = animation.DefaultOptions()
	}
	if o.RenderInterval <= 0 {
		o.RenderInterval = time.Second / 60
	}
	if o.SpeechRate <= 0 {
		o.SpeechRate = 24000
	}
	if o.OpenCamera == nil {
		o.OpenCamera = func(cfg camera.Config) (Video, error) { return camera.Open(cfg) }
	}
}

// ID returns the session UUID.
func (s *Session) ID() string {
	return s.id
}

// ConnectClassifier dials the emotion classifier. A failure latches fusion
// into vision-only mode and is returned.
func (s *Session) ConnectClassifier(ctx context.Context) error {
	if s.classifier == nil {
		return nil
	}
	if err := s.classifier.Connect(ctx); err != nil {
		s.engine.OnClassifierError(err)
		return err
	}
	return nil
}

// FeedClassifierAudio forwards user audio to the classifier, if any.
func (s *Session) FeedClassifierAudio(pcm []byte) error {
	if s.classifier == nil || s.engine.VisionOnly() {
		return nil
	}
	return s.classifier.SendAudio(pcm)
}

// StartTracking opens the camera if the detector needs images and starts
// the capture loop. Camera failures are returned as camera errors.
func (s *Session) StartTracking() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTracking(s.cameras.GetConfig())
}

func (s *Session) startTracking(cfg camera.Config) error {
	if s.closed {
		return ErrClosed
	}
	if s.done != nil {
		return tracking.ErrAlreadyRunning
	}

	var video Video
	if s.tracker.NeedsImage() {
		v, err := s.opts.OpenCamera(cfg)
		if err != nil {
			s.logger.Error("camera unavailable", "error", err)
			return err
		}
		video = v
	}
	if err := s.tracker.SetVideo(video); err != nil {
		closeVideo(video)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.video, s.cancel, s.done = video, cancel, done

	go func() {
		defer close(done)
		if err := s.tracker.Run(ctx); err != nil {
			s.logger.Error("tracking ended", "error", err)
		}
	}()
	return nil
}

// applyCamera reopens a running camera capture with cfg. Stopped sessions
// and image-less detectors pick the config up on the next StartTracking.
func (s *Session) applyCamera(cfg camera.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil || !s.tracker.NeedsImage() {
		return nil
	}
	if err := s.stopTracking(); err != nil {
		s.logger.Warn("camera release on reconfigure", "error", err)
	}
	s.logger.Info("camera reconfigured", "width", cfg.Width, "height", cfg.Height, "framerate", cfg.Framerate)
	return s.startTracking(cfg)
}

// StopTracking cancels the capture loop, waits for it, releases the camera
// and clears the slot to neutral.
func (s *Session) StopTracking() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTracking()
}

func (s *Session) stopTracking() error {
	if s.done == nil {
		return nil
	}
	s.cancel()
	<-s.done

	_ = s.tracker.SetVideo(nil)
	err := closeVideo(s.video)
	s.video, s.cancel, s.done = nil, nil, nil

	s.engine.Reset()
	s.slot.Clear()
	s.logger.Info("tracking stopped")
	return err
}

// Reap releases the camera when the capture loop stopped on its own.
func (s *Session) Reap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return nil
	}
	select {
	case <-s.done:
		return s.stopTracking()
	default:
		return nil
	}
}

func closeVideo(v Video) error {
	if v == nil {
		return nil
	}
	if err := v.Close(); err != nil {
		return fmt.Errorf("avatar: release camera: %w", err)
	}
	return nil
}

// TrackingErr returns the error that stopped the capture loop, if any.
func (s *Session) TrackingErr() error {
	return s.tracker.Err()
}

// SetSpeaking publishes the speaking flag. Stopping clears the speech analysis.
func (s *Session) SetSpeaking(on bool) {
	if s.speaking.Swap(on) == on {
		return
	}
	if !on {
		s.analyzer.Reset()
		s.wobbler.Reset()
	}
	s.logger.Debug("speaking", "on", on)
}

// Speaking reports the speaking flag.
func (s *Session) Speaking() bool {
	return s.speaking.Load()
}

// SetProsody publishes the emotion vector of the character's own speech.
// A zero vector clears it.
func (s *Session) SetProsody(v expression.Vector) {
	if v.IsZero() {
		s.prosody.Store(nil)
		return
	}
	s.prosody.Store(&v)
}

// SetProsodyScores maps prosody emotion scores through the fusion mapping.
func (s *Session) SetProsodyScores(scores emotion.Scores) {
	m := s.opts.Mapping
	if m == nil {
		m = emotion.DefaultMapping()
	}
	s.SetProsody(m.Vector(scores))
}

// FeedSpeechAudio feeds playback PCM to lip-sync and head wobble.
func (s *Session) FeedSpeechAudio(pcm []int16) {
	if !s.speaking.Load() {
		return
	}
	s.analyzer.Feed(pcm, s.opts.SpeechRate)
	s.wobbler.Feed(pcm, s.opts.SpeechRate)
}

// RunRender drives the mesh at the render interval until ctx is cancelled.
// It is the only writer of the mesh.
func (s *Session) RunRender(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.RenderInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Render(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Render runs one render step of dt seconds.
func (s *Session) Render(dt float64) rig.Output {
	snap := s.slot.Load()
	talking := s.speaking.Load()

	s.animator.SetTalking(talking)
	pose := s.animator.Advance(dt)

	in := rig.Input{
		Fused:      snap.Expressions,
		Head:       snap.Head,
		HasHead:    snap.HasHead,
		Talking:    talking,
		ClipMorphs: pose.Morphs,
		ClipHead:   pose.Head,
	}
	if p := s.prosody.Load(); p != nil {
		in.Prosody = *p
	}
	if talking {
		in.Energy = s.analyzer.Energy()
		in.Wobble = s.wobbler.Offset()
	}

	out := s.controller.Update(in, dt)
	s.lastOut.Store(&out)
	s.frames.Add(1)
	return out
}

// LastOutput returns the most recent render output.
func (s *Session) LastOutput() (rig.Output, bool) {
	if out := s.lastOut.Load(); out != nil {
		return *out, true
	}
	return rig.Output{}, false
}

// Status returns the session status.
func (s *Session) Status() Status {
	snap := s.slot.Load()
	st := Status{
		SessionID:  s.id,
		Tracking:   s.tracker.Status(),
		Camera:     s.cameras.GetConfig(),
		Speaking:   s.speaking.Load(),
		Animation:  s.animator.State().String(),
		Clip:       s.animator.Clip(),
		VisionOnly: s.engine.VisionOnly(),
		Seq:        snap.Seq,
		Frames:     s.frames.Load(),
	}
	if err := s.engine.LatchError(); err != nil {
		st.Classifier = err.Error()
	}
	st.Emotion, st.EmotionMax = snap.Emotions.Dominant()
	if out, ok := s.LastOutput(); ok {
		st.LipSync = out.LipSync
	}
	if st.Speaking {
		st.Level = s.analyzer.Level()
	}
	return st
}

// Close stops tracking and releases every component.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.stopTracking()
	s.mu.Unlock()

	s.unsub()
	if s.classifier != nil {
		err = errors.Join(err, s.classifier.Close())
	}
	err = errors.Join(err, s.detector.Close())
	s.logger.Info("session closed")
	return err
}

// Slot returns the shared state slot.
func (s *Session) Slot() *state.Slot { return s.slot }

// Engine returns the fusion engine.
func (s *Session) Engine() *fusion.Engine { return s.engine }

// Tracker returns the capture loop.
func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

// Cameras returns the camera config manager. Changes restart a running capture.
func (s *Session) Cameras() *camera.Manager { return s.cameras }

// Animator returns the animation state machine.
func (s *Session) Animator() *animation.Animator { return s.animator }

// Detector returns the landmark detector.
func (s *Session) Detector() landmarks.Detector { return s.detector }

// Mesh returns the driven mesh.
func (s *Session) Mesh() rig.Mesh { return s.mesh }
