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

// DefaultClearThreshold is the confidence at or above which a sequence
// module empties its buffer after answering.
const DefaultClearThreshold = 0.8

// Temporal classifies a sliding window of per-frame pose descriptors. Each
// session accumulates its own window; once a confident answer is produced
// the window is emptied so the same sign is not reported again before the
// signer moves on.
type Temporal struct {
	name      config.ModuleName
	extractor FeatureExtractor
	model     model.Model
	labels    *vocab.Table
}

// NewTemporal builds the sequence module.
func NewTemporal(extractor FeatureExtractor, m model.Model, labels *vocab.Table) *Temporal {
	return &Temporal{
		name:      config.ModuleRecognition,
		extractor: extractor,
		model:     m,
		labels:    labels,
	}
}

// Name implements Module.
func (t *Temporal) Name() config.ModuleName { return t.name }

// Progress implements ProgressReporter.
func (t *Temporal) Progress(sess *session.State) (float64, bool) {
	b, ok := sess.PeekBuffer(string(t.name))
	if !ok {
		return 0, true
	}
	return b.FillRatio(), !b.IsReady()
}

// Predict implements Module. The window is sized by the buffer_size and
// feature_count preprocessing parameters; changing either starts a new
// window for every session.
func (t *Temporal) Predict(frame *gocv.Mat, sess *session.State, mc config.ModuleConfig) (*Prediction, error) {
	if sess == nil {
		return nil, fmt.Errorf("sequence module needs a session")
	}

	start := time.Now()
	feats, err := t.extractor.Extract(frame)
	if err != nil {
		return nil, fmt.Errorf("extract keypoints: %w", err)
	}
	if feats == nil {
		return nil, nil
	}

	bufferSize := mc.Int("buffer_size", session.DefaultBufferSize)
	buf := sess.Buffer(string(t.name), bufferSize, mc.Int("feature_count", session.DefaultFeatureCount))
	buf.Append(feats.Vector)
	if !buf.IsReady() {
		return nil, nil
	}
	seq, _ := buf.Sequence()
	prep := time.Since(start)

	start = time.Now()
	probs, err := t.model.Predict(seq)
	if err != nil {
		return nil, fmt.Errorf("classify sequence: %w", err)
	}
	infer := time.Since(start)

	idx, conf := model.Argmax(probs)
	if idx < 0 {
		return nil, fmt.Errorf("classify sequence: empty output")
	}
	if conf < mc.ConfidenceThreshold {
		return nil, nil
	}

	cleared := false
	if conf >= mc.Float("clear_threshold", DefaultClearThreshold) {
		buf.Clear()
		cleared = true
		slog.Debug("temporal: buffer cleared", "module", t.name, "session", sess.ID(), "confidence", conf)
	}

	word := t.labels.Word(idx)
	return &Prediction{
		Module:            t.name,
		ClassIndex:        idx,
		Word:              word,
		DisplayName:       t.labels.DisplayName(word),
		Confidence:        conf,
		PreprocessingTime: prep,
		InferenceTime:     infer,
		Metadata: map[string]any{
			"buffer_size":    bufferSize,
			"buffer_cleared": cleared,
			"sequence_shape": seq.Shape,
		},
		Timestamp: time.Now(),
	}, nil
}
