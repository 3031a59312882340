package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facerig/pkg/avatar"
	"github.com/teslashibe/go-facerig/pkg/camera"
	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/hub"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
	"github.com/teslashibe/go-facerig/pkg/speech"
	"github.com/teslashibe/go-facerig/pkg/tracking"
)

// StateMessage is what /ws/state pushes for every new snapshot.
type StateMessage struct {
	Seq         uint64                  `json:"seq"`
	Expressions expression.Vector       `json:"expressions"`
	Head        expression.HeadRotation `json:"head"`
	HasHead     bool                    `json:"has_head"`
	Emotions    emotion.Scores          `json:"emotions"`
	VisionOnly  bool                    `json:"vision_only"`
	Morphs      map[string]float64      `json:"morphs,omitempty"`
	Speaking    bool                    `json:"speaking"`
}

func (s *Server) stateMessage() StateMessage {
	snap := s.session.Slot().Load()
	msg := StateMessage{
		Seq:         snap.Seq,
		Expressions: snap.Expressions,
		Head:        snap.Head,
		HasHead:     snap.HasHead,
		Emotions:    snap.Emotions,
		VisionOnly:  snap.VisionOnly,
		Speaking:    s.session.Speaking(),
	}
	if out, ok := s.session.LastOutput(); ok {
		msg.Morphs = out.Targets
	}
	return msg
}

func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// handleStatus returns the session status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.Status())
}

// handleExpressions returns the latest snapshot
func (s *Server) handleExpressions(c *fiber.Ctx) error {
	return c.JSON(s.stateMessage())
}

// handleRig returns the last render output
func (s *Server) handleRig(c *fiber.Ctx) error {
	out, ok := s.session.LastOutput()
	if !ok {
		return c.JSON(fiber.Map{"rendered": false})
	}
	head := out.HeadTarget
	neck := out.NeckTarget
	return c.JSON(fiber.Map{
		"rendered":    true,
		"targets":     out.Targets,
		"lip_sync":    out.LipSync,
		"lip_sync_on": out.LipSyncOn,
		"head":        [4]float64{head.W, head.V[0], head.V[1], head.V[2]},
		"neck":        [4]float64{neck.W, neck.V[0], neck.V[1], neck.V[2]},
	})
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.session.Tracker().GetTuningParams())
}

// handleSetTuning applies the non-zero fields of the body
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var params tracking.TuningParams
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if params.EstimatorAlpha > 1 || params.FusionAlpha > 1 {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("alpha must be in (0, 1]"))
	}
	s.session.Tracker().SetTuningParams(params)
	return c.JSON(s.session.Tracker().GetTuningParams())
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"config":  s.session.Cameras().GetConfigJSON(),
		"presets": camera.PresetNames(),
	})
}

// handleSetCamera updates the camera config used by the next StartTracking
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.session.Cameras().UpdateConfig(params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(s.session.Cameras().GetConfigJSON())
}

// SpeakingRequest toggles playback-driven animation.
type SpeakingRequest struct {
	Speaking bool `json:"speaking"`
}

func (s *Server) handleSpeaking(c *fiber.Ctx) error {
	var req SpeakingRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	s.session.SetSpeaking(req.Speaking)
	return c.JSON(fiber.Map{"speaking": s.session.Speaking()})
}

// ProsodyRequest carries emotion scores inferred from the speech being played.
// An empty map clears the prosody layer.
type ProsodyRequest struct {
	Scores emotion.Scores `json:"scores"`
}

func (s *Server) handleProsody(c *fiber.Ctx) error {
	var req ProsodyRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if len(req.Scores) == 0 {
		s.session.SetProsody(expression.Vector{})
	} else {
		s.session.SetProsodyScores(req.Scores)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// handleStartTracking maps camera failures onto distinct status codes so the
// dashboard can tell the user what went wrong.
func (s *Server) handleStartTracking(c *fiber.Ctx) error {
	err := s.session.StartTracking()
	switch {
	case err == nil:
		return c.JSON(s.session.Status())
	case errors.Is(err, camera.ErrPermissionDenied):
		return errorJSON(c, fiber.StatusForbidden, err)
	case errors.Is(err, camera.ErrDeviceNotFound):
		return errorJSON(c, fiber.StatusNotFound, err)
	case errors.Is(err, tracking.ErrAlreadyRunning):
		return errorJSON(c, fiber.StatusConflict, err)
	case errors.Is(err, avatar.ErrClosed):
		return errorJSON(c, fiber.StatusGone, err)
	default:
		s.logger.Error("start tracking failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
}

func (s *Server) handleStopTracking(c *fiber.Ctx) error {
	if err := s.session.StopTracking(); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(s.session.Status())
}

// handlePushLandmarks is the HTTP form of /ws/landmarks.
func (s *Server) handlePushLandmarks(c *fiber.Ctx) error {
	if s.opts.Stream == nil {
		return errorJSON(c, fiber.StatusNotFound, errors.New("landmark ingest disabled"))
	}
	var f landmarks.Frame
	if err := json.Unmarshal(c.Body(), &f); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	s.opts.Stream.Push(f)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleStateWS subscribes a client to the state feed.
func (s *Server) handleStateWS(c *websocket.Conn) {
	hub.NewClient(s.stateHub, c).Run()
}

// handleLandmarksWS reads JSON frames until the client disconnects.
func (s *Server) handleLandmarksWS(c *websocket.Conn) {
	defer c.Close()
	if s.opts.Stream == nil {
		return
	}

	logger := s.logger.With("remote", c.RemoteAddr().String())
	logger.Info("landmark stream connected")
	defer logger.Info("landmark stream disconnected")

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var f landmarks.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Debug("bad landmark frame", "error", err)
			continue
		}
		s.opts.Stream.Push(f)
	}
}

// handleSpeechWS takes binary 16-bit PCM of the audio the avatar is speaking.
// It drives lip-sync and head wobble while the speaking flag is set.
func (s *Server) handleSpeechWS(c *websocket.Conn) {
	defer c.Close()
	for {
		typ, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.BinaryMessage {
			s.session.FeedSpeechAudio(speech.DecodePCM16(data))
		}
	}
}

// handleAudioWS forwards the user's microphone PCM to the emotion classifier.
func (s *Server) handleAudioWS(c *websocket.Conn) {
	defer c.Close()
	for {
		typ, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := s.session.FeedClassifierAudio(data); err != nil {
			s.logger.Debug("classifier audio dropped", "error", err)
		}
	}
}
