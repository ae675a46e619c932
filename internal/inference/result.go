package inference

import (
	"strconv"
	"time"

	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
)

// Status describes the outcome of one recognition pass.
type Status string

const (
	// StatusReady means a word was recognized.
	StatusReady Status = "ready"
	// StatusCollecting means the legacy path is still filling its buffer.
	StatusCollecting Status = "collecting"
	// StatusLowConfidence means no prediction cleared its threshold.
	StatusLowConfidence Status = "low_confidence"
	// StatusNoSubject means nobody was in view.
	StatusNoSubject Status = "no_subject"
	// StatusNoModel means neither a module nor the legacy model could run.
	StatusNoModel Status = "no_model"
)

// Result is the answer for one frame. Word is empty unless Status is
// [StatusReady].
type Result struct {
	Word        string            `json:"word"`
	DisplayName string            `json:"display_name,omitempty"`
	Confidence  float64           `json:"confidence"`
	Status      Status            `json:"status"`
	Module      config.ModuleName `json:"module,omitempty"`

	// Progress is the fill ratio of a sequence buffer that is still
	// collecting, in [0, 1].
	Progress float64 `json:"progress,omitempty"`

	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Label renders the status the way clients display it, e.g. "collecting_40%".
func (r Result) Label() string {
	if r.Status == StatusCollecting {
		return string(r.Status) + "_" + strconv.Itoa(int(r.Progress*100)) + "%"
	}
	return string(r.Status)
}

// Candidate is one module prediction as reported in diagnostics.
type Candidate struct {
	Module      config.ModuleName `json:"module"`
	Word        string            `json:"word"`
	DisplayName string            `json:"display_name"`
	Confidence  float64           `json:"confidence"`
	ClassIndex  int               `json:"class_index"`
}

func candidateOf(p *classifier.Prediction) Candidate {
	return Candidate{
		Module:      p.Module,
		Word:        p.Word,
		DisplayName: p.DisplayName,
		Confidence:  p.Confidence,
		ClassIndex:  p.ClassIndex,
	}
}

// Timing holds a module's timings for one pass, in milliseconds.
type Timing struct {
	PreprocessingMs float64 `json:"preprocessing_ms"`
	InferenceMs     float64 `json:"inference_ms"`
	TotalMs         float64 `json:"total_ms"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Diagnostics explains how a result was reached.
type Diagnostics struct {
	ActiveModules []config.ModuleName `json:"active_modules"`

	// Candidates are the predictions that passed the threshold gate, by
	// confidence descending.
	Candidates []Candidate `json:"candidates"`

	// Rejected are predictions dropped by the threshold gate.
	Rejected []Candidate `json:"rejected,omitempty"`

	Timings  map[config.ModuleName]Timing `json:"timings"`
	Failures map[config.ModuleName]string `json:"failures,omitempty"`

	Selected *Selection `json:"selected,omitempty"`

	// Fallback is set when the legacy path produced the result.
	Fallback bool `json:"fallback"`

	TotalMs float64 `json:"total_ms"`
}

// Selection names the module that produced the final pick and why.
type Selection struct {
	Module   config.ModuleName `json:"module"`
	Strategy config.Strategy   `json:"strategy"`
	Reason   string            `json:"reason"`
}
