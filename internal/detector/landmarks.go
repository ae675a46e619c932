// Package detector extracts the landmark descriptors consumed by the
// classifier modules: single hand shapes, full-body keypoint vectors, face
// presence and hand bounding boxes.
package detector

// Hand landmark indices following the MediaPipe convention.
const (
	Wrist        = 0
	NumLandmarks = 21
)

// NumPoseLandmarks is the number of body landmarks in a holistic pose.
const NumPoseLandmarks = 33

// Descriptor sizes.
const (
	HandFeatureCount     = NumLandmarks * 2
	PoseFeatureCount     = NumPoseLandmarks * 4
	KeypointFeatureCount = PoseFeatureCount + 2*NumLandmarks*3
)

// Point3D is a landmark position in normalized image coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks are the 21 landmarks of one detected hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// PoseLandmark is one body landmark with its visibility score.
type PoseLandmark struct {
	Point3D
	Visibility float64 `json:"visibility"`
}

// Observation is everything the detector found in one frame.
type Observation struct {
	Hands []HandLandmarks `json:"hands"`
	Pose  []PoseLandmark  `json:"pose"`
}

// Empty reports whether nothing was detected.
func (o Observation) Empty() bool {
	return len(o.Hands) == 0 && len(o.Pose) == 0
}

// Hand returns the first hand with the given handedness.
func (o Observation) Hand(handedness string) (HandLandmarks, bool) {
	for _, h := range o.Hands {
		if h.Handedness == handedness {
			return h, true
		}
	}
	return HandLandmarks{}, false
}

// XY flattens the hand into interleaved x, y values.
func (h HandLandmarks) XY() []float32 {
	out := make([]float32, 0, HandFeatureCount)
	for _, p := range h.Points {
		out = append(out, float32(p.X), float32(p.Y))
	}
	return out
}

// XYZ flattens the hand into interleaved x, y, z values.
func (h HandLandmarks) XYZ() []float32 {
	out := make([]float32, 0, NumLandmarks*3)
	for _, p := range h.Points {
		out = append(out, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return out
}

// Keypoints flattens the observation into the holistic descriptor: pose
// (x, y, z, visibility) for 33 landmarks, then the left and right hand
// (x, y, z) for 21 landmarks each. Missing parts are zero-filled. Returns nil
// for an empty observation.
func (o Observation) Keypoints() []float32 {
	if o.Empty() {
		return nil
	}
	out := make([]float32, KeypointFeatureCount)

	for i, p := range o.Pose {
		if i >= NumPoseLandmarks {
			break
		}
		j := i * 4
		out[j], out[j+1], out[j+2], out[j+3] = float32(p.X), float32(p.Y), float32(p.Z), float32(p.Visibility)
	}
	if h, ok := o.Hand("Left"); ok {
		copy(out[PoseFeatureCount:], h.XYZ())
	}
	if h, ok := o.Hand("Right"); ok {
		copy(out[PoseFeatureCount+NumLandmarks*3:], h.XYZ())
	}
	return out
}
