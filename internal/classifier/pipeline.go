package classifier

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

// DefaultTargetSize is the side of the square crop fed to the image classifier.
const DefaultTargetSize = 224

// Pipeline finds hand regions with a detector, merges them into one crop,
// suppresses the background and classifies the result.
type Pipeline struct {
	name    config.ModuleName
	regions RegionDetector
	model   model.Model
	labels  *vocab.Table
}

// NewPipeline builds the detector and classifier module.
func NewPipeline(regions RegionDetector, m model.Model, labels *vocab.Table) *Pipeline {
	return &Pipeline{
		name:    config.ModuleTranslation,
		regions: regions,
		model:   m,
		labels:  labels,
	}
}

// Name implements Module.
func (p *Pipeline) Name() config.ModuleName { return p.name }

// Predict implements Module. The crop is resized to the target_size
// preprocessing parameter.
func (p *Pipeline) Predict(frame *gocv.Mat, _ *session.State, mc config.ModuleConfig) (*Prediction, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	start := time.Now()
	boxes, err := p.regions.DetectRegions(frame)
	if err != nil {
		return nil, fmt.Errorf("detect hand regions: %w", err)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	region := MergeRegions(boxes).Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if region.Empty() {
		return nil, nil
	}

	crop := frame.Region(region)
	defer crop.Close()

	segmented := SegmentSkin(crop)
	defer segmented.Close()

	input, err := ImageTensor(segmented, mc.Int("target_size", DefaultTargetSize))
	if err != nil {
		return nil, fmt.Errorf("prepare crop: %w", err)
	}
	prep := time.Since(start)

	start = time.Now()
	probs, err := p.model.Predict(input)
	if err != nil {
		return nil, fmt.Errorf("classify crop: %w", err)
	}
	infer := time.Since(start)

	idx, conf := model.Argmax(probs)
	if idx < 0 {
		return nil, fmt.Errorf("classify crop: empty output")
	}
	if conf < mc.ConfidenceThreshold {
		return nil, nil
	}

	rects := make([][4]int, len(boxes))
	for i, b := range boxes {
		rects[i] = [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	}

	word := p.labels.Word(idx)
	return &Prediction{
		Module:            p.name,
		ClassIndex:        idx,
		Word:              word,
		DisplayName:       p.labels.DisplayName(word),
		Confidence:        conf,
		PreprocessingTime: prep,
		InferenceTime:     infer,
		Metadata: map[string]any{
			"num_hands_detected": len(boxes),
			"hand_region":        [4]int{region.Min.X, region.Min.Y, region.Max.X, region.Max.Y},
			"hand_boxes":         rects,
		},
		Timestamp: time.Now(),
	}, nil
}

// MergeRegions returns the smallest rectangle containing every box.
func MergeRegions(boxes []image.Rectangle) image.Rectangle {
	if len(boxes) == 0 {
		return image.Rectangle{}
	}
	merged := boxes[0]
	for _, b := range boxes[1:] {
		merged.Min.X = min(merged.Min.X, b.Min.X)
		merged.Min.Y = min(merged.Min.Y, b.Min.Y)
		merged.Max.X = max(merged.Max.X, b.Max.X)
		merged.Max.Y = max(merged.Max.Y, b.Max.Y)
	}
	return merged
}
