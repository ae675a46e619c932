package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface. It
// returns a preset observation and counts calls.
type MockDetector struct {
	mu    sync.Mutex
	obs   Observation
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetObservation sets what Detect returns.
func (m *MockDetector) SetObservation(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = obs
}

// SetHands replaces the hands Detect returns and clears the pose.
func (m *MockDetector) SetHands(hands ...HandLandmarks) {
	m.SetObservation(Observation{Hands: hands})
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the preset observation or error.
func (m *MockDetector) Detect(*gocv.Mat) (Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Observation{}, m.err
	}
	return m.obs, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// OpenHand returns a flat hand with spread fingers whose wrist sits at
// (x, y) in normalized image coordinates.
func OpenHand(handedness string, x, y float64) HandLandmarks {
	h := HandLandmarks{Handedness: handedness, Score: 0.95}
	h.Points[Wrist] = Point3D{X: x, Y: y}

	// Five fingers of four joints each, fanning out above the wrist.
	for f := 0; f < 5; f++ {
		dx := float64(f-2) * 0.04
		for j := 0; j < 4; j++ {
			step := float64(j + 1)
			h.Points[1+f*4+j] = Point3D{
				X: x + dx*step*0.6,
				Y: y - 0.05*step,
				Z: -0.01 * step,
			}
		}
	}
	return h
}

// StandingPose returns a full set of pose landmarks, all visible, laid out
// down the middle of the frame.
func StandingPose() []PoseLandmark {
	pose := make([]PoseLandmark, NumPoseLandmarks)
	for i := range pose {
		pose[i] = PoseLandmark{
			Point3D:    Point3D{X: 0.5, Y: 0.1 + float64(i)*0.025},
			Visibility: 0.9,
		}
	}
	return pose
}
