package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-facerig/internal/config"
	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/avatar"
	"github.com/teslashibe/go-facerig/pkg/web"
)

// reapInterval is how often run checks for a capture loop that stopped on its own.
const reapInterval = time.Second

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track the webcam and drive the avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, c.settings)
		},
	}

	f := cmd.Flags()
	f.String("source", "", "landmark source: mesh, stream or synthetic")
	f.String("camera", "", "camera device index, path or URL")
	f.String("port", "", "dashboard port")
	f.Bool("dashboard", true, "serve the dashboard")
	f.Bool("auto-start", true, "start tracking immediately")
	f.String("classifier-url", "", "emotion classifier websocket URL (empty: vision only)")
	f.String("clips", "", "directory of extra animation clips")
	bind(c.v, f, map[string]string{
		"landmarks.source":    "source",
		"camera.device":       "camera",
		"dashboard.port":      "port",
		"dashboard.enabled":   "dashboard",
		"tracking.auto_start": "auto-start",
		"classifier.url":      "classifier-url",
		"rig.clips_dir":       "clips",
	})
	return cmd
}

// run owns the session until ctx is cancelled.
func run(ctx context.Context, s config.Settings) error {
	logger := log.Component("facerig")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, stream, err := newSession(s)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close session", "error", err)
		}
	}()

	if err := session.ConnectClassifier(ctx); err != nil {
		logger.Warn("emotion classifier unavailable", "error", err)
	}

	if s.Tracking.AutoStart {
		if err := session.StartTracking(); err != nil {
			// Not fatal: the dashboard can retry once the camera is fixed.
			logger.Error("start tracking", "error", err)
		}
	}

	errc := make(chan error, 1)
	var srv *web.Server
	if s.Dashboard.Enabled {
		srv = web.NewServer(session, web.Options{Addr: ":" + s.Dashboard.Port, Stream: stream})
		go func() {
			if err := srv.Start(ctx); err != nil {
				errc <- err
			}
		}()
	}

	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		_ = session.RunRender(ctx)
	}()

	logger.Info("facerig running", "session", session.ID(), "source", s.Landmarks.Source,
		"dashboard", s.Dashboard.Enabled)

	err = supervise(ctx, session, errc)
	cancel()

	if srv != nil {
		if serr := srv.Shutdown(); serr != nil {
			logger.Warn("dashboard shutdown", "error", serr)
		}
	}
	<-renderDone
	logger.Info("facerig stopped")
	return err
}

// supervise waits for shutdown, releasing the camera whenever the capture loop
// dies on its own. A dashboard failure ends the run.
func supervise(ctx context.Context, session *avatar.Session, errc <-chan error) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case <-ticker.C:
			if err := session.Reap(); err != nil {
				log.Warn("release camera", "error", err, "cause", session.TrackingErr())
			}
		}
	}
}
