package classifier

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

// stubExtractor returns a fixed descriptor, nothing, or an error.
type stubExtractor struct {
	vector []float32
	meta   map[string]any
	err    error
	calls  int
}

func (s *stubExtractor) Extract(*gocv.Mat) (*Features, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.vector == nil {
		return nil, nil
	}
	return &Features{Vector: s.vector, Metadata: s.meta}, nil
}

// probs builds a probability vector of n classes with the given values at
// the given indices.
func probs(n int, at map[int]float32) []float32 {
	out := make([]float32, n)
	for i, p := range at {
		out[i] = p
	}
	return out
}

func hand() []float32 {
	v := make([]float32, 42)
	for i := range v {
		v[i] = float32(i) * 0.01
	}
	return v
}

func spatialConfig() config.ModuleConfig {
	return config.Default().Modules.Detection
}

func detectionLabels(t *testing.T) *vocab.Table {
	t.Helper()
	tbl, ok := vocab.Default().Table(string(config.ModuleDetection))
	require.True(t, ok)
	return tbl
}

func TestSpatial_MarginCheck(t *testing.T) {
	labels := detectionLabels(t)
	ext := &stubExtractor{vector: hand(), meta: map[string]any{"num_hands": 1}}

	t.Run("ambiguous prediction is rejected", func(t *testing.T) {
		mc := spatialConfig()
		mc.ConfidenceThreshold = 0.4
		m := NewSpatial(ext, model.Static(probs(35, map[int]float32{9: 0.50, 10: 0.45})...), labels)

		pred, err := m.Predict(nil, session.NewState("s"), mc)
		require.NoError(t, err)
		assert.Nil(t, pred)
	})

	t.Run("clear lead is accepted", func(t *testing.T) {
		mc := spatialConfig()
		mc.ConfidenceThreshold = 0.4
		m := NewSpatial(ext, model.Static(probs(35, map[int]float32{9: 0.80, 10: 0.50})...), labels)

		pred, err := m.Predict(nil, session.NewState("s"), mc)
		require.NoError(t, err)
		require.NotNil(t, pred)
		assert.Equal(t, "A", pred.Word)
		assert.Equal(t, 9, pred.ClassIndex)
		assert.Equal(t, config.ModuleDetection, pred.Module)
		assert.InDelta(t, 0.80, pred.Confidence, 1e-6)
		assert.Equal(t, 1, pred.Metadata["num_hands"])
	})
}

func TestSpatial_ThresholdGate(t *testing.T) {
	ext := &stubExtractor{vector: hand()}
	mc := spatialConfig()
	mc.ConfidenceThreshold = 0.7
	m := NewSpatial(ext, model.Static(probs(35, map[int]float32{0: 0.65})...), detectionLabels(t))

	pred, err := m.Predict(nil, session.NewState("s"), mc)
	require.NoError(t, err)
	assert.Nil(t, pred)

	mc.ConfidenceThreshold = 0.6
	pred, err = m.Predict(nil, session.NewState("s"), mc)
	require.NoError(t, err)
	assert.NotNil(t, pred, "a lowered threshold applies on the next call")
}

func TestSpatial_TemporalSmoothing(t *testing.T) {
	ext := &stubExtractor{vector: hand()}
	answer := 9
	net := model.Func(func(model.Tensor) ([]float32, error) {
		return probs(35, map[int]float32{answer: 0.9}), nil
	})
	m := NewSpatial(ext, net, detectionLabels(t))
	mc := spatialConfig()
	sess := session.NewState("s")

	pred, _ := m.Predict(nil, sess, mc)
	require.NotNil(t, pred, "first word has nothing to disagree with")

	answer = 10
	pred, _ = m.Predict(nil, sess, mc)
	assert.Nil(t, pred, "a change of word must be confirmed first")

	pred, _ = m.Predict(nil, sess, mc)
	require.NotNil(t, pred)
	assert.Equal(t, "B", pred.Word)

	other := session.NewState("other")
	answer = 11
	pred, _ = m.Predict(nil, other, mc)
	assert.NotNil(t, pred, "histories are per session")
}

func TestSpatial_NormalizesInput(t *testing.T) {
	ext := &stubExtractor{vector: []float32{0.5, 0.5, 0.7, 0.1, 0.3, 0.9}}
	var seen model.Tensor
	net := model.Func(func(in model.Tensor) ([]float32, error) {
		seen = in
		return probs(35, map[int]float32{0: 0.99}), nil
	})
	m := NewSpatial(ext, net, detectionLabels(t))

	_, err := m.Predict(nil, nil, spatialConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6}, seen.Shape)
	assert.InDeltaSlice(t, []float32{0, 0, 0.5, -1, -0.5, 1}, seen.Data, 1e-6)
}

func TestSpatial_NoHand(t *testing.T) {
	m := NewSpatial(&stubExtractor{}, model.Static(1), detectionLabels(t))
	pred, err := m.Predict(nil, session.NewState("s"), spatialConfig())
	assert.NoError(t, err)
	assert.Nil(t, pred)
}

func TestSpatial_Failures(t *testing.T) {
	boom := errors.New("boom")

	m := NewSpatial(&stubExtractor{err: boom}, model.Static(1), detectionLabels(t))
	_, err := m.Predict(nil, nil, spatialConfig())
	assert.ErrorIs(t, err, boom)

	failing := model.Func(func(model.Tensor) ([]float32, error) { return nil, boom })
	m = NewSpatial(&stubExtractor{vector: hand()}, failing, detectionLabels(t))
	_, err = m.Predict(nil, nil, spatialConfig())
	assert.ErrorIs(t, err, boom)
}

// sequenceModule returns a recognition module with a window of size frames
// of four features each, and the configuration block that sizes it.
func sequenceModule(t *testing.T, size int, net model.Model, ext FeatureExtractor) (*Temporal, config.ModuleConfig) {
	t.Helper()
	mc := config.Default().Modules.Recognition
	mc.PreprocessingParams["buffer_size"] = size
	mc.PreprocessingParams["feature_count"] = 4
	tbl, ok := vocab.Default().Table(string(config.ModuleRecognition))
	require.True(t, ok)
	return NewTemporal(ext, net, tbl), mc
}

func TestTemporal_CollectsUntilReady(t *testing.T) {
	calls := 0
	net := model.Func(func(in model.Tensor) ([]float32, error) {
		calls++
		assert.Equal(t, []int{1, 5, 4}, in.Shape)
		return []float32{0.1, 0.7, 0.2}, nil
	})
	m, mc := sequenceModule(t, 5, net, &stubExtractor{vector: []float32{1, 2, 3, 4}})
	sess := session.NewState("s")

	for i := 1; i < 5; i++ {
		pred, err := m.Predict(nil, sess, mc)
		require.NoError(t, err)
		assert.Nil(t, pred)
		ratio, collecting := m.Progress(sess)
		assert.True(t, collecting)
		assert.InDelta(t, float64(i)/5, ratio, 1e-9)
	}
	assert.Zero(t, calls, "model must not run before the window is full")

	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, "how_are_you", pred.Word)
	assert.Equal(t, "How Are You", pred.DisplayName)
	assert.Equal(t, false, pred.Metadata["buffer_cleared"])

	_, collecting := m.Progress(sess)
	assert.False(t, collecting, "0.7 is below the clear threshold so the window slides")
}

func TestTemporal_ClearsOnConfidentPrediction(t *testing.T) {
	net := model.Static(0.05, 0.05, 0.9)
	m, mc := sequenceModule(t, 3, net, &stubExtractor{vector: []float32{1, 2, 3, 4}})
	sess := session.NewState("s")

	m.Predict(nil, sess, mc)
	m.Predict(nil, sess, mc)
	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, "thank_you", pred.Word)
	assert.Equal(t, true, pred.Metadata["buffer_cleared"])

	ratio, collecting := m.Progress(sess)
	assert.True(t, collecting)
	assert.Zero(t, ratio)

	m.Predict(nil, sess, mc)
	ratio, _ = m.Progress(sess)
	assert.InDelta(t, 1.0/3, ratio, 1e-9, "next append starts a fresh window")
}

func TestTemporal_ClearThresholdIsInclusive(t *testing.T) {
	net := model.Static(0.2, 0.8)
	m, mc := sequenceModule(t, 1, net, &stubExtractor{vector: []float32{1, 2, 3, 4}})
	sess := session.NewState("s")

	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, true, pred.Metadata["buffer_cleared"])
}

func TestTemporal_LowConfidenceKeepsBuffer(t *testing.T) {
	net := model.Static(0.3, 0.3, 0.4)
	m, mc := sequenceModule(t, 2, net, &stubExtractor{vector: []float32{1, 2, 3, 4}})
	sess := session.NewState("s")

	m.Predict(nil, sess, mc)
	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	assert.Nil(t, pred)

	ratio, collecting := m.Progress(sess)
	assert.False(t, collecting)
	assert.Equal(t, 1.0, ratio)
}

func TestTemporal_NoSubjectDoesNotAppend(t *testing.T) {
	m, mc := sequenceModule(t, 2, model.Static(1), &stubExtractor{})
	sess := session.NewState("s")

	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	assert.Nil(t, pred)
	_, ok := sess.PeekBuffer(string(config.ModuleRecognition))
	assert.False(t, ok)
}

func TestTemporal_SessionsAreIsolated(t *testing.T) {
	m, mc := sequenceModule(t, 2, model.Static(0.1, 0.9), &stubExtractor{vector: []float32{1, 2, 3, 4}})
	a, b := session.NewState("a"), session.NewState("b")

	m.Predict(nil, a, mc)
	m.Predict(nil, b, mc)
	pred, _ := m.Predict(nil, a, mc)
	assert.NotNil(t, pred)

	ratio, _ := m.Progress(b)
	assert.InDelta(t, 0.5, ratio, 1e-9)
}

func TestTemporal_ParametersApplyPerCall(t *testing.T) {
	m, mc := sequenceModule(t, 2, model.Static(0.3, 0.6, 0.1), &stubExtractor{vector: []float32{1, 2, 3, 4}})
	sess := session.NewState("s")

	m.Predict(nil, sess, mc)
	pred, err := m.Predict(nil, sess, mc)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, false, pred.Metadata["buffer_cleared"], "0.6 is below the default clear threshold")

	mc.PreprocessingParams["clear_threshold"] = 0.5
	pred, err = m.Predict(nil, sess, mc)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, true, pred.Metadata["buffer_cleared"])

	mc.PreprocessingParams["buffer_size"] = 3
	m.Predict(nil, sess, mc)
	ratio, collecting := m.Progress(sess)
	assert.True(t, collecting)
	assert.InDelta(t, 1.0/3, ratio, 1e-9, "a new window size starts a new window")
}

func TestMergeRegions(t *testing.T) {
	tests := []struct {
		name  string
		boxes []image.Rectangle
		want  image.Rectangle
	}{
		{"none", nil, image.Rectangle{}},
		{"single", []image.Rectangle{image.Rect(10, 20, 30, 40)}, image.Rect(10, 20, 30, 40)},
		{
			"two hands",
			[]image.Rectangle{image.Rect(100, 50, 200, 150), image.Rect(20, 80, 120, 300)},
			image.Rect(20, 50, 200, 300),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeRegions(tt.boxes))
		})
	}
}

func TestTopTwo(t *testing.T) {
	idx, best, second := topTwo([]float32{0.1, 0.6, 0.3})
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 0.6, best, 1e-6)
	assert.InDelta(t, 0.3, second, 1e-6)

	idx, _, second = topTwo([]float32{0.5, 0.5})
	assert.Equal(t, 0, idx, "first index wins ties")
	assert.InDelta(t, 0.5, second, 1e-6)

	idx, _, _ = topTwo(nil)
	assert.Equal(t, -1, idx)
}

type stubRegions struct {
	boxes []image.Rectangle
}

func (s stubRegions) DetectRegions(*gocv.Mat) ([]image.Rectangle, error) {
	return s.boxes, nil
}

func TestPipeline_Predict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 140, 200, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	tbl, _ := vocab.Default().Table(string(config.ModuleTranslation))
	mc := config.Default().Modules.Translation

	var seen model.Tensor
	net := model.Func(func(in model.Tensor) ([]float32, error) {
		seen = in
		return probs(10, map[int]float32{3: 0.95}), nil
	})

	t.Run("merges and clamps regions", func(t *testing.T) {
		m := NewPipeline(stubRegions{boxes: []image.Rectangle{
			image.Rect(600, 400, 700, 520),
			image.Rect(500, 300, 560, 360),
		}}, net, tbl)

		pred, err := m.Predict(&frame, nil, mc)
		require.NoError(t, err)
		require.NotNil(t, pred)
		assert.Equal(t, "O", pred.Word)
		assert.Equal(t, [4]int{500, 300, 640, 480}, pred.Metadata["hand_region"])
		assert.Equal(t, 2, pred.Metadata["num_hands_detected"])
		assert.Equal(t, []int{1, 224, 224, 3}, seen.Shape)
		for _, v := range seen.Data {
			require.True(t, v >= 0 && v <= 1, "pixel %v outside [0,1]", v)
		}
	})

	t.Run("no regions", func(t *testing.T) {
		m := NewPipeline(stubRegions{}, net, tbl)
		pred, err := m.Predict(&frame, nil, mc)
		require.NoError(t, err)
		assert.Nil(t, pred)
	})
}
