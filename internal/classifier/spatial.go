package classifier

import (
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

// Spatial defaults.
const (
	DefaultMargin = 0.15
)

// Spatial classifies a single hand shape per frame. A prediction must lead
// the runner-up by a margin and agree with the previously accepted word of
// the same session before it is reported.
type Spatial struct {
	name      config.ModuleName
	extractor FeatureExtractor
	model     model.Model
	labels    *vocab.Table
}

// NewSpatial builds the hand-shape module.
func NewSpatial(extractor FeatureExtractor, m model.Model, labels *vocab.Table) *Spatial {
	return &Spatial{
		name:      config.ModuleDetection,
		extractor: extractor,
		model:     m,
		labels:    labels,
	}
}

// Name implements Module.
func (s *Spatial) Name() config.ModuleName { return s.name }

// Predict implements Module. The margin and history length come from the
// margin and history_size preprocessing parameters.
func (s *Spatial) Predict(frame *gocv.Mat, sess *session.State, mc config.ModuleConfig) (*Prediction, error) {
	start := time.Now()
	feats, err := s.extractor.Extract(frame)
	if err != nil {
		return nil, fmt.Errorf("extract hand landmarks: %w", err)
	}
	if feats == nil || len(feats.Vector) == 0 {
		return nil, nil
	}
	input := normalizeLandmarks(feats.Vector)
	prep := time.Since(start)

	start = time.Now()
	probs, err := s.model.Predict(model.Tensor{Shape: []int{1, len(input)}, Data: input})
	if err != nil {
		return nil, fmt.Errorf("classify hand shape: %w", err)
	}
	infer := time.Since(start)

	idx, conf, runnerUp := topTwo(probs)
	if idx < 0 {
		return nil, fmt.Errorf("classify hand shape: empty output")
	}
	if margin := conf - runnerUp; margin < mc.Float("margin", DefaultMargin) {
		slog.Debug("spatial: ambiguous prediction", "module", s.name, "confidence", conf, "runner_up", runnerUp)
		return nil, nil
	}
	if conf < mc.ConfidenceThreshold {
		return nil, nil
	}

	word := s.labels.Word(idx)
	if sess != nil {
		h := sess.History(string(s.name), mc.Int("history_size", session.DefaultHistorySize))
		h.Push(word)
		if !h.Stable() {
			slog.Debug("spatial: unstable prediction", "module", s.name, "history", h.Words())
			return nil, nil
		}
	}

	meta := map[string]any{
		"margin": conf - runnerUp,
	}
	for k, v := range feats.Metadata {
		meta[k] = v
	}

	return &Prediction{
		Module:            s.name,
		ClassIndex:        idx,
		Word:              word,
		DisplayName:       s.labels.DisplayName(word),
		Confidence:        conf,
		PreprocessingTime: prep,
		InferenceTime:     infer,
		Metadata:          meta,
		Timestamp:         time.Now(),
	}, nil
}
