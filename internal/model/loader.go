package model

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Spec describes a model to load and the contract it must satisfy.
type Spec struct {
	Name       string
	Path       string
	InputShape []int
	Classes    int
}

// Loader performs the one-time, fallible load and validation of models at
// startup. The core only ever receives models that passed validation.
type Loader struct {
	open func(path string) (Model, error)
}

// NewLoader returns a Loader that reads ONNX files with OpenCV.
func NewLoader() *Loader {
	return &Loader{open: func(path string) (Model, error) {
		return LoadONNX(path)
	}}
}

// NewLoaderFunc returns a Loader that opens models with open.
func NewLoaderFunc(open func(path string) (Model, error)) *Loader {
	return &Loader{open: open}
}

// Initialize loads the model described by spec and validates it by running
// a zero input through it and checking that it answers one value per class.
// It returns ErrModelUnavailable when no weights exist at spec.Path.
func (l *Loader) Initialize(spec Spec) (Model, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%s: %w: no model path", spec.Name, ErrModelUnavailable)
	}
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", spec.Name, ErrModelUnavailable, err)
	}

	m, err := l.open(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: load %q: %w", spec.Name, spec.Path, err)
	}

	if err := validate(m, spec); err != nil {
		if c, ok := m.(io.Closer); ok {
			c.Close()
		}
		return nil, fmt.Errorf("%s: validate %q: %w", spec.Name, spec.Path, err)
	}

	slog.Info("model loaded", "model", spec.Name, "path", spec.Path, "input", spec.InputShape, "classes", spec.Classes)
	return m, nil
}

func validate(m Model, spec Spec) error {
	if len(spec.InputShape) == 0 {
		return nil
	}
	out, err := m.Predict(Zeros(spec.InputShape))
	if err != nil {
		return fmt.Errorf("warm-up inference: %w", err)
	}
	if spec.Classes > 0 && len(out) != spec.Classes {
		return fmt.Errorf("%w: model answers %d classes, label table has %d", ErrShapeMismatch, len(out), spec.Classes)
	}
	return nil
}
