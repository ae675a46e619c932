package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/capture"
	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/plugin"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

type fixedModule struct {
	word string
	conf float64
}

func (m fixedModule) Name() config.ModuleName { return config.ModuleDetection }

func (m fixedModule) Predict(*gocv.Mat, *session.State, config.ModuleConfig) (*classifier.Prediction, error) {
	return &classifier.Prediction{
		Module:      config.ModuleDetection,
		Word:        m.word,
		DisplayName: vocab.DisplayName(m.word),
		Confidence:  m.conf,
	}, nil
}

func newTestApp(t *testing.T, cam capture.Camera, m fixedModule, d *plugin.Dispatcher) *App {
	t.Helper()
	engine := inference.New(inference.Config{Modules: []classifier.Module{m}})
	return New(Config{Engine: engine, Camera: cam, SessionID: "test", Dispatcher: d})
}

func TestActivity_Observe(t *testing.T) {
	s := activity{timeout: 2 * time.Second}
	t0 := time.Now()

	steps := []struct {
		motion bool
		at     time.Duration
		want   transition
	}{
		{false, 0, stay},
		{true, 100 * time.Millisecond, wake},
		{true, 200 * time.Millisecond, stay},
		{false, 1 * time.Second, stay},
		{false, 2200 * time.Millisecond, stay},
		{false, 2300 * time.Millisecond, sleep},
		{false, 5 * time.Second, stay},
		{true, 6 * time.Second, wake},
	}
	for i, st := range steps {
		if got := s.observe(st.motion, t0.Add(st.at)); got != st.want {
			t.Errorf("step %d: observe(%v, +%s) = %d, want %d", i, st.motion, st.at, got, st.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{Engine: inference.New(inference.Config{}), Camera: capture.NewMockCamera(nil, false)})

	if a.SessionID() != DefaultSessionID {
		t.Errorf("SessionID() = %q, want %q", a.SessionID(), DefaultSessionID)
	}
	if got := a.MotionDetector().Threshold(); got != 1.0 {
		t.Errorf("motion threshold = %f, want 1.0", got)
	}
	if !a.IsEnabled() {
		t.Error("app should start enabled")
	}
	a.SetEnabled(false)
	if a.IsEnabled() {
		t.Error("SetEnabled(false) did not pause the app")
	}
}

func TestApp_ProcessFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	t.Run("publishes a recognized sign", func(t *testing.T) {
		a := newTestApp(t, capture.NewMockCamera(nil, false), fixedModule{word: "thank_you", conf: 0.93}, nil)

		var got []inference.Result
		a.OnRecognized(func(r inference.Result) { got = append(got, r) })

		res := a.processFrame(context.Background(), &frame)
		if res.Status != inference.StatusReady {
			t.Fatalf("status = %s, want ready", res.Status)
		}
		if len(got) != 1 || got[0].Word != "thank_you" {
			t.Errorf("listener got %+v", got)
		}
		if last := a.LastResult(); last.DisplayName != "Thank You" {
			t.Errorf("LastResult().DisplayName = %q, want Thank You", last.DisplayName)
		}
	})

	t.Run("ignores low confidence", func(t *testing.T) {
		a := newTestApp(t, capture.NewMockCamera(nil, false), fixedModule{word: "hello", conf: 0.05}, nil)

		called := false
		a.OnRecognized(func(inference.Result) { called = true })

		res := a.processFrame(context.Background(), &frame)
		if res.Status != inference.StatusLowConfidence {
			t.Errorf("status = %s, want low_confidence", res.Status)
		}
		if called {
			t.Error("listener should not be called for a low confidence pass")
		}
		if a.LastResult().Word != "" {
			t.Error("LastResult() should stay empty")
		}
	})
}

func TestApp_ProcessFrame_NotifiesPlugins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("shell plugins need a POSIX shell")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","actions":["type"]}`
	if err := os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	script := "#!/bin/sh\ncat > request.json\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	mgr := plugin.NewManager(root)
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	d := plugin.NewDispatcher(mgr, plugin.NewExecutor(5000), nil)
	d.Configure(config.PluginsConfig{Bindings: []config.PluginBinding{
		{Word: "hello", Plugin: "recorder", Action: "type"},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	a := newTestApp(t, capture.NewMockCamera(nil, false), fixedModule{word: "hello", conf: 0.9}, d)
	a.processFrame(ctx, &frame)

	var req plugin.Request
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(filepath.Join(dir, "request.json"))
		if err == nil && strings.TrimSpace(string(data)) != "" {
			if err := json.Unmarshal(data, &req); err != nil {
				t.Fatalf("failed to decode request: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("plugin was not invoked")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if req.Word != "hello" || req.SessionID != "test" || req.Action != "type" {
		t.Errorf("unexpected plugin request %+v", req)
	}
}

func TestApp_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer white.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&black, &white}, true)
	a := newTestApp(t, cam, fixedModule{word: "hello", conf: 0.9}, nil)

	recognized := make(chan inference.Result, 16)
	a.OnRecognized(func(r inference.Result) {
		select {
		case recognized <- r:
		default:
		}
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v", err)
	}

	select {
	case r := <-recognized:
		if r.Word != "hello" {
			t.Errorf("recognized %q, want hello", r.Word)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no sign recognized from a moving picture")
	}

	if got := cam.FPS(); got != ActiveFPS {
		t.Errorf("FPS() while moving = %d, want %d", got, ActiveFPS)
	}
	if _, ok := a.engine.Sessions().Lookup("test"); !ok {
		t.Error("expected the camera session to exist while running")
	}

	a.Stop()
	a.Stop()

	if cam.IsOpen() {
		t.Error("camera should be closed after Stop()")
	}
	if _, ok := a.engine.Sessions().Lookup("test"); ok {
		t.Error("Stop() should drop the camera session")
	}
}

func TestApp_Paused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer white.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&black, &white}, true)
	a := newTestApp(t, cam, fixedModule{word: "hello", conf: 0.9}, nil)
	a.SetEnabled(false)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for cam.Reads() < 5 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not read frames")
		}
		time.Sleep(20 * time.Millisecond)
	}
	a.Stop()

	if a.LastResult().Word != "" {
		t.Error("a paused app should not recognize signs")
	}
}

func TestApp_StopsWhenInputRunsOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer white.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&black, &white, &black}, false)
	a := newTestApp(t, cam, fixedModule{word: "hello", conf: 0.9}, nil)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	done := a.Done()
	if done == nil {
		t.Fatal("Done() should not be nil after Start()")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline kept running after the last frame")
	}

	if got := cam.Reads(); got != 3 {
		t.Errorf("Reads() = %d, want 3", got)
	}
	if got := a.LastResult().Word; got != "hello" {
		t.Errorf("LastResult().Word = %q, want hello", got)
	}

	a.Stop()
	if cam.IsOpen() {
		t.Error("camera should be closed after Stop()")
	}
}
