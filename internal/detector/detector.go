package detector

import "gocv.io/x/gocv"

// Detector finds body and hand landmarks in a frame.
type Detector interface {
	// Detect returns the landmarks found in frame. An empty Observation
	// means nobody is in view.
	Detect(frame *gocv.Mat) (Observation, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// Script is the holistic landmark service. Empty searches the usual
	// install locations.
	Script string

	// Python is the interpreter used to run Script. Empty prefers a venv.
	Python string

	// MaxHands is the maximum number of hands to report (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
