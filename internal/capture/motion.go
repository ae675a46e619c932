package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion sampling parameters. Frames are shrunk to motionWidth before
// differencing, so the kernel is sized for the small image.
const (
	motionWidth = 160
	blurKernel  = 7
	pixelDelta  = 25
)

// MotionDetector reports how much of the picture changed since the last
// frame. The camera loop uses it to tell a signer apart from an empty room.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	primed    bool
}

// NewMotionDetector returns a detector that fires when more than threshold
// percent of the pixels change.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{threshold: threshold, prev: gocv.NewMat()}
}

// Detect compares frame with the previous one and returns whether motion
// was seen along with the changed-pixel percentage. The first frame, and the
// first frame after a resolution change, only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	cur := sample(frame)
	if !m.primed || cur.Rows() != m.prev.Rows() || cur.Cols() != m.prev.Cols() {
		m.prev.Close()
		m.prev = cur
		m.primed = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(cur, m.prev, &diff)
	gocv.Threshold(diff, &diff, pixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100

	m.prev.Close()
	m.prev = cur
	return changed > m.threshold, changed
}

// sample returns a blurred grayscale thumbnail of frame.
func sample(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if gray.Cols() > motionWidth {
		h := gray.Rows() * motionWidth / gray.Cols()
		if h < 1 {
			h = 1
		}
		small := gocv.NewMat()
		gocv.Resize(gray, &small, image.Pt(motionWidth, h), 0, 0, gocv.InterpolationArea)
		gray.Close()
		gray = small
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)
	return gray
}

// Reset drops the baseline so the next frame starts fresh.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame. The detector stays usable.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.primed = false
}

// SetThreshold ignores values <= 0.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the changed-pixel percentage that counts as motion.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
