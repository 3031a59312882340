// Package web serves the face rig dashboard: status and tuning endpoints, a
// speaking toggle, landmark and audio ingest websockets and a live state feed.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/avatar"
	"github.com/teslashibe/go-facerig/pkg/hub"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
)

// DefaultBroadcastInterval is how often the state feed checks for a new snapshot.
const DefaultBroadcastInterval = time.Second / 30

// Options configures a Server.
type Options struct {
	Addr              string // Listen address, e.g. ":8090"
	StaticDir         string // Optional dashboard assets
	BroadcastInterval time.Duration

	// Stream receives frames from /ws/landmarks. Nil disables ingest.
	Stream *landmarks.StreamDetector
}

// Server is the dashboard server for one session.
type Server struct {
	app     *fiber.App
	opts    Options
	session *avatar.Session
	logger  *slog.Logger

	stateHub *hub.Hub

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer builds the routes. Nothing listens until Start.
func NewServer(session *avatar.Session, opts Options) *Server {
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = DefaultBroadcastInterval
	}
	s := &Server{
		opts:     opts,
		session:  session,
		logger:   log.Component("web"),
		stateHub: hub.New("state"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "facerig",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/expressions", s.handleExpressions)
	api.Get("/rig", s.handleRig)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Post("/speaking", s.handleSpeaking)
	api.Post("/prosody", s.handleProsody)
	api.Post("/tracking/start", s.handleStartTracking)
	api.Post("/tracking/stop", s.handleStopTracking)
	api.Post("/landmarks", s.handlePushLandmarks)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/landmarks", websocket.New(s.handleLandmarksWS))
	app.Get("/ws/speech", websocket.New(s.handleSpeechWS))
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the state hub and broadcaster and serves on ln. It blocks until
// the listener stops.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.stateHub.Run(ctx)
	go func() {
		defer close(done)
		s.broadcastLoop(ctx)
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	cancel()
	return err
}

// Shutdown stops the listener and the broadcaster.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	err := s.app.Shutdown()
	if cancel != nil {
		cancel()
		<-done
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// broadcastLoop publishes the slot whenever its sequence number moves.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.BroadcastInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := s.stateMessage()
			if msg.Seq == last || s.stateHub.ClientCount() == 0 {
				continue
			}
			last = msg.Seq
			if err := s.stateHub.BroadcastMessage("state", msg); err != nil {
				s.logger.Warn("state broadcast failed", "error", err)
			}
		}
	}
}
