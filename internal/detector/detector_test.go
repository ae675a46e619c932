package detector

import (
	"errors"
	"testing"
)

func TestObservation_Empty(t *testing.T) {
	if !(Observation{}).Empty() {
		t.Error("zero observation should be empty")
	}
	if (Observation{Pose: StandingPose()}).Empty() {
		t.Error("pose-only observation should not be empty")
	}
}

func TestHandLandmarks_XY(t *testing.T) {
	h := OpenHand("Right", 0.4, 0.8)
	xy := h.XY()

	if len(xy) != HandFeatureCount {
		t.Fatalf("expected %d values, got %d", HandFeatureCount, len(xy))
	}
	if xy[0] != float32(0.4) || xy[1] != float32(0.8) {
		t.Errorf("expected wrist first, got (%f, %f)", xy[0], xy[1])
	}
	last := NumLandmarks - 1
	tip := h.Points[last]
	if xy[last*2] != float32(tip.X) || xy[last*2+1] != float32(tip.Y) {
		t.Errorf("last landmark not interleaved at %d", last*2)
	}
}

func TestObservation_Keypoints(t *testing.T) {
	t.Run("empty observation yields nil", func(t *testing.T) {
		if kp := (Observation{}).Keypoints(); kp != nil {
			t.Errorf("expected nil, got %d values", len(kp))
		}
	})

	t.Run("layout is pose, left hand, right hand", func(t *testing.T) {
		left := OpenHand("Left", 0.3, 0.7)
		right := OpenHand("Right", 0.7, 0.7)
		obs := Observation{Pose: StandingPose(), Hands: []HandLandmarks{right, left}}

		kp := obs.Keypoints()
		if len(kp) != KeypointFeatureCount {
			t.Fatalf("expected %d values, got %d", KeypointFeatureCount, len(kp))
		}
		if KeypointFeatureCount != 258 {
			t.Errorf("expected 258 features, got %d", KeypointFeatureCount)
		}
		if kp[3] != float32(0.9) {
			t.Errorf("expected visibility at index 3, got %f", kp[3])
		}
		if kp[PoseFeatureCount] != float32(0.3) {
			t.Errorf("expected left wrist x at %d, got %f", PoseFeatureCount, kp[PoseFeatureCount])
		}
		if got := kp[PoseFeatureCount+NumLandmarks*3]; got != float32(0.7) {
			t.Errorf("expected right wrist x, got %f", got)
		}
	})

	t.Run("missing parts are zero", func(t *testing.T) {
		obs := Observation{Hands: []HandLandmarks{OpenHand("Right", 0.6, 0.6)}}
		kp := obs.Keypoints()
		for i := 0; i < PoseFeatureCount+NumLandmarks*3; i++ {
			if kp[i] != 0 {
				t.Fatalf("expected zero at %d, got %f", i, kp[i])
			}
		}
	})
}

func TestHandExtractor(t *testing.T) {
	mock := NewMockDetector()
	ext := NewHandExtractor(mock)

	t.Run("no hands", func(t *testing.T) {
		f, err := ext.Extract(nil)
		if err != nil || f != nil {
			t.Errorf("expected nil features and no error, got %v, %v", f, err)
		}
	})

	t.Run("first hand only", func(t *testing.T) {
		mock.SetHands(OpenHand("Left", 0.2, 0.5), OpenHand("Right", 0.8, 0.5))
		f, err := ext.Extract(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Vector) != HandFeatureCount {
			t.Errorf("expected %d values, got %d", HandFeatureCount, len(f.Vector))
		}
		if f.Vector[0] != float32(0.2) {
			t.Errorf("expected first hand, got wrist x %f", f.Vector[0])
		}
		if f.Metadata["num_hands"] != 2 {
			t.Errorf("expected num_hands 2, got %v", f.Metadata["num_hands"])
		}
	})

	t.Run("detector error", func(t *testing.T) {
		boom := errors.New("service died")
		mock.SetError(boom)
		defer mock.SetError(nil)
		if _, err := ext.Extract(nil); !errors.Is(err, boom) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}

func TestKeypointExtractor(t *testing.T) {
	mock := NewMockDetector()
	ext := NewKeypointExtractor(mock)

	f, err := ext.Extract(nil)
	if err != nil || f != nil {
		t.Fatalf("expected nothing for an empty frame, got %v, %v", f, err)
	}

	mock.SetObservation(Observation{Pose: StandingPose()})
	f, err = ext.Extract(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Vector) != KeypointFeatureCount {
		t.Errorf("expected %d values, got %d", KeypointFeatureCount, len(f.Vector))
	}
	if f.Metadata["has_pose"] != true {
		t.Error("expected has_pose")
	}
	if mock.Calls() != 2 {
		t.Errorf("expected 2 detector calls, got %d", mock.Calls())
	}
}

func TestHolisticResponse_Observation(t *testing.T) {
	resp := holisticResponse{
		Hands: []jsonHand{
			{Handedness: "Left", Score: 0.9, Points: []Point3D{{X: 0.1, Y: 0.2}}},
			{Handedness: "Right", Score: 0.8},
			{Handedness: "Right", Score: 0.7},
		},
	}
	obs := resp.observation(2)
	if len(obs.Hands) != 2 {
		t.Fatalf("expected hands capped at 2, got %d", len(obs.Hands))
	}
	if obs.Hands[0].Points[Wrist].Y != 0.2 {
		t.Errorf("expected wrist copied, got %+v", obs.Hands[0].Points[Wrist])
	}
}

func TestFaceGate_PermissiveWithoutCascade(t *testing.T) {
	g := NewFaceGate("")
	if g.Loaded() {
		t.Fatal("expected no cascade")
	}
	if !g.Present(nil) {
		t.Error("gate without a cascade must let frames through")
	}
	if err := g.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewHolisticDetector_MissingScript(t *testing.T) {
	_, err := NewHolisticDetector(Config{Script: "/nonexistent/holistic_service.py"})
	if err == nil {
		t.Error("expected error for missing script")
	}
}

func TestNewYOLODetector_MissingFiles(t *testing.T) {
	_, err := NewYOLODetector(YOLOConfig{ConfigPath: "/nonexistent.cfg", WeightsPath: "/nonexistent.weights"})
	if err == nil {
		t.Error("expected error for missing files")
	}
}
