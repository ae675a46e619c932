package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// idleTimeout is how long the landmark service may sit unused before it is
// shut down. The next Detect restarts it.
const idleTimeout = 30 * time.Second

const scriptName = "holistic_service.py"

// HolisticDetector implements Detector with a MediaPipe Holistic
// subprocess. Frames go out as length-prefixed JPEG, landmarks come back as
// one JSON line per frame.
type HolisticDetector struct {
	config    Config
	script    string
	python    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewHolisticDetector locates the landmark service. The Python process is
// started lazily on the first Detect.
func NewHolisticDetector(config Config) (*HolisticDetector, error) {
	script := config.Script
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("landmark service: %w", err)
	}

	python := config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	if config.MaxHands <= 0 {
		config.MaxHands = DefaultConfig().MaxHands
	}

	return &HolisticDetector{
		config: config,
		script: script,
		python: python,
	}, nil
}

// Detect sends frame to the landmark service and returns what it found.
func (d *HolisticDetector) Detect(frame *gocv.Mat) (Observation, error) {
	if frame == nil || frame.Empty() {
		return Observation{}, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return Observation{}, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Observation{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	data := buf.GetBytes()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := d.stdin.Write(header); err != nil {
		d.kill()
		return Observation{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.kill()
		return Observation{}, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.kill()
		return Observation{}, fmt.Errorf("read response: %w", err)
	}

	var resp holisticResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return Observation{}, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return Observation{}, fmt.Errorf("landmark service: %s", resp.Error)
	}

	d.resetIdleTimer()
	return resp.observation(d.config.MaxHands), nil
}

// Close shuts down the Python process.
func (d *HolisticDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *HolisticDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.python, d.script,
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start landmark service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	slog.Info("landmark service started", "script", d.script, "pid", d.cmd.Process.Pid)
	return nil
}

// kill tears the process down after a protocol error so the next call
// starts from a clean stream.
func (d *HolisticDetector) kill() {
	if d.started && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.shutdown()
}

func (d *HolisticDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	return err
}

func (d *HolisticDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			slog.Debug("landmark service exited", "error", err)
		}
	})
}

func findScript() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".signvista", "scripts", scriptName),
	)
}

func findVenvPython() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".signvista/venv/bin/python"),
	)
}

func firstExisting(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// holisticResponse is one JSON line from the landmark service.
type holisticResponse struct {
	Pose  []PoseLandmark `json:"pose"`
	Hands []jsonHand     `json:"hands"`
	Error string         `json:"error,omitempty"`
}

type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (r holisticResponse) observation(maxHands int) Observation {
	obs := Observation{Pose: r.Pose}
	for _, h := range r.Hands {
		if len(obs.Hands) >= maxHands {
			break
		}
		obs.Hands = append(obs.Hands, h.toHandLandmarks())
	}
	return obs
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
