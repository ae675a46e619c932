// Package app runs the local recognition loop: it reads the camera, wakes
// up on motion, feeds frames to the recognition engine and hands every
// recognized sign to the plugins and listeners.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ayusman/signvista/internal/capture"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/plugin"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate while somebody is signing.
	ActiveFPS = 15
	// IdleTimeoutMs is how long without motion before switching back to idle.
	IdleTimeoutMs = 2000
)

// DefaultSessionID is the engine session used by the local camera.
const DefaultSessionID = "local"

// Config holds configuration options for the application.
type Config struct {
	Engine *inference.Engine

	// Camera defaults to Source, or to the device DeviceID.
	Camera   capture.Camera
	DeviceID int
	Source   string

	// MotionThreshold is the percentage of changed pixels that counts as
	// motion. Defaults to 1.
	MotionThreshold float64

	SessionID string

	// Dispatcher, when set, receives every recognized sign.
	Dispatcher *plugin.Dispatcher
}

// App is the local camera application.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	engine     *inference.Engine
	dispatcher *plugin.Dispatcher

	mu        sync.RWMutex
	enabled   bool
	cancel    context.CancelFunc
	done      chan struct{}
	last      inference.Result
	listeners []func(inference.Result)
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = 1.0
	}
	if config.SessionID == "" {
		config.SessionID = DefaultSessionID
	}
	cam := config.Camera
	if cam == nil {
		cam = capture.NewSource(capture.Options{DeviceID: config.DeviceID, Source: config.Source})
	}

	return &App{
		config:     config,
		camera:     cam,
		motion:     capture.NewMotionDetector(config.MotionThreshold),
		engine:     config.Engine,
		dispatcher: config.Dispatcher,
		enabled:    true,
	}
}

// SetEnabled pauses or resumes recognition. Frames are still read while
// paused so the motion baseline stays current.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether recognition is running.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// OnRecognized registers fn to be called with every recognized sign.
func (a *App) OnRecognized(fn func(inference.Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// LastResult returns the most recent recognized sign.
func (a *App) LastResult() inference.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// SessionID returns the engine session fed by the camera.
func (a *App) SessionID() string {
	return a.config.SessionID
}

// Start opens the camera and runs the pipeline until [App.Stop] is called
// or ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(IdleFPS)

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.runPipeline(ctx)
	}()

	slog.Info("app: camera pipeline started", "session", a.config.SessionID)
	return nil
}

// Stop halts the pipeline and releases the camera.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if err := a.camera.Close(); err != nil {
		slog.Warn("app: closing camera", "err", err)
	}
	a.motion.Close()
	a.engine.DropSession(a.config.SessionID)

	slog.Info("app: camera pipeline stopped")
}

// Done returns a channel that is closed once the pipeline has finished,
// either through Stop or because a video source ran out of frames. It is
// nil before Start.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// MotionDetector returns the motion detector instance.
func (a *App) MotionDetector() *capture.MotionDetector {
	return a.motion
}
