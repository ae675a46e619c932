package detector

import (
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// minFaceSize is the smallest face the gate accepts, in pixels.
var minFaceSize = image.Pt(80, 80)

// FaceGate reports whether a face is in view. Signing without a visible
// signer is treated as noise. A gate without a loaded cascade lets every
// frame through.
type FaceGate struct {
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
	loaded  bool
}

// NewFaceGate loads the Haar cascade at path. An empty or unloadable path
// yields a permissive gate.
func NewFaceGate(path string) *FaceGate {
	g := &FaceGate{}
	if path == "" {
		return g
	}
	g.cascade = gocv.NewCascadeClassifier()
	if !g.cascade.Load(path) {
		slog.Warn("face cascade not loaded, subject gate disabled", "path", path)
		g.cascade.Close()
		return g
	}
	g.loaded = true
	slog.Info("face cascade loaded", "path", path)
	return g
}

// Loaded reports whether a cascade is in use.
func (g *FaceGate) Loaded() bool {
	return g.loaded
}

// Present implements the engine's subject gate.
func (g *FaceGate) Present(frame *gocv.Mat) bool {
	if !g.loaded || frame == nil || frame.Empty() {
		return true
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)

	g.mu.Lock()
	faces := g.cascade.DetectMultiScaleWithParams(gray, 1.1, 5, 0, minFaceSize, image.Point{})
	g.mu.Unlock()

	if len(faces) == 0 {
		slog.Debug("no face in frame")
		return false
	}
	return true
}

// Close releases the cascade.
func (g *FaceGate) Close() error {
	if g.loaded {
		g.loaded = false
		return g.cascade.Close()
	}
	return nil
}
