// Package session holds per-session recognition state: the sliding frame
// buffers of sequence classifiers and the word histories used for smoothing.
package session

import (
	"log/slog"

	"github.com/ayusman/signvista/internal/model"
)

// Default buffer dimensions.
const (
	DefaultBufferSize   = 45
	DefaultFeatureCount = 258
)

// Buffer is a fixed-capacity FIFO window of feature vectors. It is owned by
// a single session and is not safe for concurrent use.
type Buffer struct {
	size   int
	dim    int
	frames [][]float32
}

// NewBuffer returns an empty buffer holding at most size vectors of dim values.
func NewBuffer(size, dim int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if dim <= 0 {
		dim = DefaultFeatureCount
	}
	return &Buffer{
		size:   size,
		dim:    dim,
		frames: make([][]float32, 0, size),
	}
}

// Append adds a copy of v, evicting the oldest vector when full. A vector of
// the wrong dimensionality is dropped and logged; Append reports whether v
// was kept.
func (b *Buffer) Append(v []float32) bool {
	if len(v) != b.dim {
		slog.Warn("session buffer: dropping vector with wrong dimensionality", "got", len(v), "want", b.dim)
		return false
	}

	if len(b.frames) >= b.size {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:b.size-1]
	}
	b.frames = append(b.frames, append([]float32(nil), v...))
	return true
}

// Len returns the number of buffered vectors.
func (b *Buffer) Len() int { return len(b.frames) }

// Size returns the buffer capacity.
func (b *Buffer) Size() int { return b.size }

// Dim returns the expected vector dimensionality.
func (b *Buffer) Dim() int { return b.dim }

// IsReady reports whether the buffer is full.
func (b *Buffer) IsReady() bool { return len(b.frames) == b.size }

// FillRatio returns Len()/Size().
func (b *Buffer) FillRatio() float64 {
	return float64(len(b.frames)) / float64(b.size)
}

// Sequence returns the buffered vectors, oldest first, as a (1, size, dim)
// tensor. ok is false until the buffer is full.
func (b *Buffer) Sequence() (t model.Tensor, ok bool) {
	if !b.IsReady() {
		return model.Tensor{}, false
	}
	data := make([]float32, 0, b.size*b.dim)
	for _, f := range b.frames {
		data = append(data, f...)
	}
	return model.Tensor{Shape: []int{1, b.size, b.dim}, Data: data}, true
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.frames = b.frames[:0]
}

// KeepTail discards all but the n most recent vectors.
func (b *Buffer) KeepTail(n int) {
	if n <= 0 {
		b.Clear()
		return
	}
	if n >= len(b.frames) {
		return
	}
	drop := len(b.frames) - n
	copy(b.frames, b.frames[drop:])
	b.frames = b.frames[:n]
}
