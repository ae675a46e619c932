// Package capture reads frames from a webcam or a recorded video for the
// local recognition loop.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings.
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when reading from a closed camera.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned once a video file has no more frames.
	ErrEndOfStream = errors.New("end of video stream")
)

// Camera is a source of BGR frames.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options selects and sizes a capture source.
type Options struct {
	DeviceID int
	// Source is a video file or stream URL. When set it replaces DeviceID,
	// which lets a recorded clip drive the pipeline.
	Source string
	Width  int
	Height int
}

func (o Options) String() string {
	if o.Source != "" {
		return o.Source
	}
	return fmt.Sprintf("device %d", o.DeviceID)
}

type videoCamera struct {
	opts    Options
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera returns a camera for the device with the given id.
func NewCamera(deviceID int) Camera {
	return NewSource(Options{DeviceID: deviceID})
}

// NewSource returns an unopened camera for opts. Zero sizes default to
// DefaultWidth x DefaultHeight.
func NewSource(opts Options) Camera {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	return &videoCamera{opts: opts, fps: DefaultFPS}
}

func (c *videoCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if c.opts.Source != "" {
		vc, err = gocv.OpenVideoCapture(c.opts.Source)
	} else {
		vc, err = gocv.OpenVideoCapture(c.opts.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", c.opts, err)
	}

	if c.opts.Source == "" {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = vc
	c.running = true
	return nil
}

func (c *videoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	return err
}

func (c *videoCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if c.opts.Source != "" {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read frame from %s", c.opts)
	}
	return &mat, nil
}

// SetFPS ignores values <= 0.
func (c *videoCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil && c.opts.Source == "" {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *videoCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *videoCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
