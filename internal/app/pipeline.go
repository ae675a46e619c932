package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/capture"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/plugin"
)

// activity tracks the idle and active modes of the pipeline.
type activity struct {
	active     bool
	lastMotion time.Time
	timeout    time.Duration
}

// transition is a change of pipeline mode.
type transition int

const (
	stay transition = iota
	wake
	sleep
)

// observe records whether the latest frame had motion and reports a mode
// change. The pipeline wakes on the first motion and sleeps once no motion
// has been seen for the timeout.
func (s *activity) observe(motion bool, now time.Time) transition {
	if motion {
		s.lastMotion = now
		if !s.active {
			s.active = true
			return wake
		}
		return stay
	}
	if s.active && now.Sub(s.lastMotion) > s.timeout {
		s.active = false
		return sleep
	}
	return stay
}

// runPipeline is the capture loop.
//
//  1. Read at IdleFPS while nothing moves.
//  2. On motion, switch to ActiveFPS and run recognition on every frame.
//  3. After IdleTimeoutMs without motion, drop the session buffers and go
//     back to idle so the next sign starts from an empty window.
//
// The loop returns when ctx is done or the input has no more frames.
func (a *App) runPipeline(ctx context.Context) {
	state := activity{timeout: time.Duration(IdleTimeoutMs) * time.Millisecond}

	ticker := time.NewTicker(time.Second / IdleFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) || errors.Is(err, capture.ErrNoFrames) {
			slog.Info("app: input exhausted", "err", err)
			return
		}
		if err != nil {
			slog.Warn("app: reading frame", "err", err)
			continue
		}

		moved, changed := a.motion.Detect(frame)
		switch state.observe(moved, time.Now()) {
		case wake:
			a.camera.SetFPS(ActiveFPS)
			ticker.Reset(time.Second / ActiveFPS)
			slog.Debug("app: switched to active mode", "changed_pct", changed)
		case sleep:
			a.camera.SetFPS(IdleFPS)
			ticker.Reset(time.Second / IdleFPS)
			a.engine.DropSession(a.config.SessionID)
			slog.Debug("app: switched to idle mode")
		}

		if state.active && a.IsEnabled() {
			a.processFrame(ctx, frame)
		}
		frame.Close()
	}
}

// processFrame runs one recognition pass and publishes a recognized sign.
func (a *App) processFrame(ctx context.Context, frame *gocv.Mat) inference.Result {
	res := a.engine.Predict(ctx, a.config.SessionID, frame, inference.Options{})
	if res.Status != inference.StatusReady {
		return res
	}

	slog.Info("app: sign recognized", "word", res.Word, "confidence", res.Confidence, "module", res.Module)

	a.mu.Lock()
	a.last = res
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
	if a.dispatcher != nil {
		a.dispatcher.Notify(plugin.Event{
			SessionID:   a.config.SessionID,
			Word:        res.Word,
			DisplayName: res.DisplayName,
			Confidence:  res.Confidence,
		})
	}
	return res
}
