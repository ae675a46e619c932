package detector

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/classifier"
)

// HandExtractor produces the single-hand descriptor: x, y of the 21
// landmarks of the first detected hand.
type HandExtractor struct {
	det Detector
}

// NewHandExtractor wraps det.
func NewHandExtractor(det Detector) *HandExtractor {
	return &HandExtractor{det: det}
}

// Extract implements classifier.FeatureExtractor.
func (e *HandExtractor) Extract(frame *gocv.Mat) (*classifier.Features, error) {
	obs, err := e.det.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect hands: %w", err)
	}
	if len(obs.Hands) == 0 {
		return nil, nil
	}
	h := obs.Hands[0]
	return &classifier.Features{
		Vector: h.XY(),
		Metadata: map[string]any{
			"num_hands":  len(obs.Hands),
			"handedness": h.Handedness,
		},
	}, nil
}

// KeypointExtractor produces the holistic descriptor described by
// [Observation.Keypoints].
type KeypointExtractor struct {
	det Detector
}

// NewKeypointExtractor wraps det.
func NewKeypointExtractor(det Detector) *KeypointExtractor {
	return &KeypointExtractor{det: det}
}

// Extract implements classifier.FeatureExtractor.
func (e *KeypointExtractor) Extract(frame *gocv.Mat) (*classifier.Features, error) {
	obs, err := e.det.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect keypoints: %w", err)
	}
	kp := obs.Keypoints()
	if kp == nil {
		return nil, nil
	}
	return &classifier.Features{
		Vector: kp,
		Metadata: map[string]any{
			"num_hands": len(obs.Hands),
			"has_pose":  len(obs.Pose) > 0,
		},
	}, nil
}
