package detector

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLOConfig configures the hand region detector.
type YOLOConfig struct {
	ConfigPath  string
	WeightsPath string
	// Confidence is the minimum class score for a box to be kept.
	Confidence float64
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float64
	// Size is the square network input size.
	Size int
}

// YOLODetector finds hand bounding boxes with a Darknet YOLO network.
type YOLODetector struct {
	cfg    YOLOConfig
	mu     sync.Mutex
	net    gocv.Net
	layers []string
}

// NewYOLODetector loads the network from disk.
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	for _, p := range []string{cfg.ConfigPath, cfg.WeightsPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("yolo: %w", err)
		}
	}
	if cfg.Size <= 0 {
		cfg.Size = 416
	}

	net := gocv.ReadNetFromDarknet(cfg.ConfigPath, cfg.WeightsPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: failed to load %s", cfg.WeightsPath)
	}

	names := net.GetLayerNames()
	var layers []string
	for _, idx := range net.GetUnconnectedOutLayers() {
		// Layer ids are 1-based.
		if idx > 0 && idx <= len(names) {
			layers = append(layers, names[idx-1])
		}
	}

	slog.Info("yolo hand detector loaded", "weights", cfg.WeightsPath, "outputs", layers)
	return &YOLODetector{cfg: cfg, net: net, layers: layers}, nil
}

// DetectRegions implements classifier.RegionDetector.
func (d *YOLODetector) DetectRegions(frame *gocv.Mat) ([]image.Rectangle, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	iw, ih := float32(frame.Cols()), float32(frame.Rows())

	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(d.cfg.Size, d.cfg.Size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.layers)
	d.mu.Unlock()

	var boxes []image.Rectangle
	var scores []float32
	for _, out := range outputs {
		for r := 0; r < out.Rows(); r++ {
			score := float32(0)
			for c := 5; c < out.Cols(); c++ {
				if s := out.GetFloatAt(r, c); s > score {
					score = s
				}
			}
			if float64(score) <= d.cfg.Confidence {
				continue
			}
			cx, cy := out.GetFloatAt(r, 0)*iw, out.GetFloatAt(r, 1)*ih
			w, h := out.GetFloatAt(r, 2)*iw, out.GetFloatAt(r, 3)*ih
			x, y := int(cx-w/2), int(cy-h/2)
			boxes = append(boxes, image.Rect(x, y, x+int(w), y+int(h)))
			scores = append(scores, score)
		}
		out.Close()
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(d.cfg.Confidence), float32(d.cfg.NMSThreshold))
	result := make([]image.Rectangle, 0, len(keep))
	for _, i := range keep {
		result = append(result, boxes[i])
	}
	return result, nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
