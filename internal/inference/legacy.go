package inference

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/observe"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

// fallback runs the legacy sequence model when no module could answer.
// diag, when non-nil, already holds the timings and failures of the modules
// that were tried.
func (e *Engine) fallback(ctx context.Context, cfg *config.Config, sess *session.State, frame *gocv.Mat, diag *Diagnostics) Result {
	if !cfg.FallbackToLegacy() || !e.legacy.available() {
		return Result{Status: StatusNoModel, Diagnostics: diag}
	}

	res := e.runLegacy(ctx, cfg.Legacy, sess, frame)
	if diag != nil {
		diag.Fallback = true
		if res.Status == StatusReady {
			diag.Selected = &Selection{Reason: "legacy_fallback"}
		}
		res.Diagnostics = diag
	}
	return res
}

func (e *Engine) runLegacy(ctx context.Context, lc config.LegacyConfig, sess *session.State, frame *gocv.Mat) Result {
	log := observe.Logger(ctx)
	start := time.Now()

	feats, err := e.legacy.Extractor.Extract(frame)
	if err != nil {
		log.Error("legacy keypoint extraction failed", "session", sess.ID(), "error", err)
		e.metrics.RecordModuleFailure(ctx, vocab.LegacyKey)
		return Result{Status: StatusNoSubject}
	}
	if feats == nil {
		return Result{Status: StatusNoSubject}
	}

	buf := sess.Buffer(vocab.LegacyKey, lc.BufferSize, lc.FeatureCount)
	buf.Append(feats.Vector)
	if !buf.IsReady() {
		return Result{Status: StatusCollecting, Progress: buf.FillRatio()}
	}

	seq, _ := buf.Sequence()
	probs, err := e.legacy.Model.Predict(seq)
	e.metrics.RecordModule(ctx, vocab.LegacyKey, time.Since(start))
	if err != nil {
		log.Error("legacy model failed", "session", sess.ID(), "error", err)
		e.metrics.RecordModuleFailure(ctx, vocab.LegacyKey)
		return Result{Status: StatusLowConfidence}
	}

	idx, conf := model.Argmax(probs)
	if idx < 0 || conf < lc.ConfidenceThreshold {
		return Result{Status: StatusLowConfidence, Confidence: conf}
	}

	// Slide by half a window.
	buf.KeepTail(buf.Size() / 2)

	word := vocab.Unknown
	display := vocab.DisplayName(word)
	if e.legacy.Labels != nil {
		word = e.legacy.Labels.Word(idx)
		display = e.legacy.Labels.DisplayName(word)
	}
	return Result{
		Word:        word,
		DisplayName: display,
		Confidence:  conf,
		Status:      StatusReady,
	}
}
