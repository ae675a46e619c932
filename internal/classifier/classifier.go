// Package classifier implements the three kinds of sign classifier modules
// behind a single Module interface.
package classifier

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/session"
)

// Prediction is the output of one module for one frame. It is never
// modified after a module returns it.
type Prediction struct {
	Module            config.ModuleName `json:"module"`
	ClassIndex        int               `json:"class_index"`
	Word              string            `json:"word"`
	DisplayName       string            `json:"display_name"`
	Confidence        float64           `json:"confidence"`
	PreprocessingTime time.Duration     `json:"preprocessing_time"`
	InferenceTime     time.Duration     `json:"inference_time"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Module classifies a frame into a word of its own label space.
//
// Predict reads its thresholds and preprocessing parameters from mc, the
// module's block of the configuration snapshot taken for the current pass.
// It returns (nil, nil) when the module has nothing to report for the
// frame: no subject, a buffer still filling, or a prediction rejected by the
// module's own gates. A non-nil error is a module failure; callers exclude
// the module from the current pass and carry on.
type Module interface {
	Name() config.ModuleName
	Predict(frame *gocv.Mat, sess *session.State, mc config.ModuleConfig) (*Prediction, error)
}

// ProgressReporter is implemented by modules that accumulate frames before
// they can answer.
type ProgressReporter interface {
	// Progress returns the fill ratio of sess's buffer and whether the
	// module is still collecting.
	Progress(sess *session.State) (ratio float64, collecting bool)
}

// Features is a per-frame descriptor produced by a FeatureExtractor.
type Features struct {
	Vector   []float32
	Metadata map[string]any
}

// FeatureExtractor turns a frame into a fixed-length descriptor. It returns
// nil when no subject is found in the frame.
type FeatureExtractor interface {
	Extract(frame *gocv.Mat) (*Features, error)
}

// RegionDetector finds hand regions in a frame.
type RegionDetector interface {
	DetectRegions(frame *gocv.Mat) ([]image.Rectangle, error)
}
