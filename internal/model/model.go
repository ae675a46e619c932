// Package model defines the contract between the recognition core and the
// trained networks it runs, plus an OpenCV DNN backed implementation.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned when a model has no weights to load.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrShapeMismatch is returned when a tensor's data does not fit its shape
	// or a model's output does not match its label table.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor returns a Tensor after checking that data fills shape exactly.
func NewTensor(shape []int, data []float32) (Tensor, error) {
	if n := Elements(shape); n != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Zeros returns a zero-filled Tensor of the given shape.
func Zeros(shape []int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, Elements(shape))}
}

// Elements returns the number of values a tensor of shape holds.
func Elements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Model runs a single forward pass and returns one probability per class.
type Model interface {
	Predict(in Tensor) ([]float32, error)
}

// Func adapts a plain function to the Model interface.
type Func func(in Tensor) ([]float32, error)

// Predict calls f(in).
func (f Func) Predict(in Tensor) ([]float32, error) {
	return f(in)
}

// Static returns a Model that always answers probs.
func Static(probs ...float32) Model {
	return Func(func(Tensor) ([]float32, error) {
		return append([]float32(nil), probs...), nil
	})
}

// Argmax returns the index and value of the largest probability, or -1 for
// an empty vector. The first index wins ties.
func Argmax(probs []float32) (int, float64) {
	best, bestP := -1, 0.0
	for i, p := range probs {
		if best == -1 || float64(p) > bestP {
			best, bestP = i, float64(p)
		}
	}
	return best, bestP
}
