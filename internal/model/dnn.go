package model

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// DNNModel runs an ONNX network through OpenCV's DNN module.
type DNNModel struct {
	net  gocv.Net
	path string
	mu   sync.Mutex
}

// LoadONNX reads the ONNX network at path.
func LoadONNX(path string) (*DNNModel, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("read onnx %q: network is empty", path)
	}
	return &DNNModel{net: net, path: path}, nil
}

// Predict runs one forward pass. gocv.Net is not safe for concurrent use, so
// calls are serialised.
func (m *DNNModel) Predict(in Tensor) ([]float32, error) {
	if Elements(in.Shape) != len(in.Data) {
		return nil, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, in.Shape, Elements(in.Shape), len(in.Data))
	}

	blob, err := gocv.NewMatWithSizesFromBytes(in.Shape, gocv.MatTypeCV32F, float32Bytes(in.Data))
	if err != nil {
		return nil, fmt.Errorf("build input blob: %w", err)
	}
	defer blob.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("forward %q: empty output", m.path)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return append([]float32(nil), data...), nil
}

// Close releases the network.
func (m *DNNModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func float32Bytes(data []float32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
