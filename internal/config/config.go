// Package config provides the configuration schema, loader, validation pass,
// and hot-reloadable registry for the signvista recognition service.
package config

import (
	"fmt"
	"maps"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Strategy names the policy used to reconcile several module predictions
// into a single answer.
type Strategy string

const (
	// StrategyPriority picks the prediction of the most authoritative module
	// (lowest priority number).
	StrategyPriority Strategy = "priority"

	// StrategyHighestConfidence picks the prediction with the highest confidence.
	StrategyHighestConfidence Strategy = "highest_confidence"

	// StrategyVoting picks the word most modules agree on.
	StrategyVoting Strategy = "voting"
)

// IsValid reports whether s is a recognised selection strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyPriority, StrategyHighestConfidence, StrategyVoting:
		return true
	}
	return false
}

// ModuleName identifies one of the fixed classifier modules.
type ModuleName string

const (
	// ModuleDetection is the single-frame hand-shape classifier.
	ModuleDetection ModuleName = "detection"

	// ModuleRecognition is the pose sequence classifier.
	ModuleRecognition ModuleName = "recognition"

	// ModuleTranslation is the region detector plus image classifier pipeline.
	ModuleTranslation ModuleName = "translation"
)

// ModuleNames lists every module in execution order.
var ModuleNames = []ModuleName{ModuleDetection, ModuleRecognition, ModuleTranslation}

// IsValid reports whether n names a known module.
func (n ModuleName) IsValid() bool {
	switch n {
	case ModuleDetection, ModuleRecognition, ModuleTranslation:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Inference InferenceConfig `yaml:"inference"`
	Modules   ModulesConfig   `yaml:"modules"`
	Legacy    LegacyConfig    `yaml:"legacy"`
	Detector  DetectorConfig  `yaml:"detector"`
	Camera    CameraConfig    `yaml:"camera"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network, storage and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DataDir holds the SQLite database. Defaults to ~/.signvista.
	DataDir string `yaml:"data_dir"`

	// StaticDir, when set, is served at the root path.
	StaticDir string `yaml:"static_dir"`

	// MaxFrameBytes caps the decoded size of an uploaded frame.
	MaxFrameBytes int `yaml:"max_frame_bytes"`

	// FrameWidth is the width uploaded frames are resized to before inference.
	FrameWidth int `yaml:"frame_width"`
}

// InferenceConfig holds the global orchestration settings.
type InferenceConfig struct {
	PredictionStrategy Strategy `yaml:"prediction_strategy"`

	// FallbackToLegacy enables the single legacy model when no module can run.
	FallbackToLegacy bool `yaml:"fallback_to_legacy"`

	// ParallelExecution runs enabled modules concurrently within a pass.
	ParallelExecution bool `yaml:"parallel_execution"`

	// RequireSubject short-circuits frames without a visible face. The gate
	// lets every frame through while no face cascade is loaded.
	RequireSubject bool `yaml:"require_subject"`

	// LatencyBudget is the pass duration above which a warning is logged.
	LatencyBudget time.Duration `yaml:"latency_budget"`

	// SessionTTL drops sessions that have not sent a frame for this long.
	// Zero keeps sessions until they are deleted explicitly.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ModulesConfig holds one block per classifier module.
type ModulesConfig struct {
	Detection   ModuleConfig `yaml:"detection"`
	Recognition ModuleConfig `yaml:"recognition"`
	Translation ModuleConfig `yaml:"translation"`
}

// ModuleConfig configures a single classifier module.
type ModuleConfig struct {
	Enabled             bool           `yaml:"enabled" json:"enabled"`
	Priority            int            `yaml:"priority" json:"priority"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold" json:"confidence_threshold"`
	ModelPath           string         `yaml:"model_path" json:"model_path"`
	PreprocessingParams map[string]any `yaml:"preprocessing_params" json:"preprocessing_params,omitempty"`
}

// Float returns the numeric preprocessing parameter key, or def when it is
// missing or not a number.
func (m ModuleConfig) Float(key string, def float64) float64 {
	switch v := m.PreprocessingParams[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return def
}

// Int returns the integer preprocessing parameter key, or def when it is
// missing or not a number.
func (m ModuleConfig) Int(key string, def int) int {
	switch v := m.PreprocessingParams[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// String returns the string preprocessing parameter key, or def.
func (m ModuleConfig) String(key, def string) string {
	if v, ok := m.PreprocessingParams[key].(string); ok && v != "" {
		return v
	}
	return def
}

// LegacyConfig configures the single-model fallback path.
type LegacyConfig struct {
	ModelPath           string  `yaml:"model_path"`
	BufferSize          int     `yaml:"buffer_size"`
	FeatureCount        int     `yaml:"feature_count"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// DetectorConfig configures the landmark extraction subprocess and the
// face cascade used by the subject gate.
type DetectorConfig struct {
	// Script is the path to the holistic landmark service. Empty searches
	// the usual install locations.
	Script string `yaml:"script"`

	// Python overrides the interpreter used to run Script.
	Python string `yaml:"python"`

	// MaxHands is the maximum number of hands to report.
	MaxHands int `yaml:"max_hands"`

	// FaceCascade is the Haar cascade file for the subject gate.
	FaceCascade string `yaml:"face_cascade"`
}

// CameraConfig configures the local capture loop.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`

	// Source is a video file or stream URL used instead of DeviceID.
	Source          string  `yaml:"source"`
	MotionThreshold float64 `yaml:"motion_threshold"`
	SessionID       string  `yaml:"session_id"`
}

// PluginsConfig binds recognized words to plugin actions in local mode.
type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`

	// Cooldown suppresses a repeat of the same word for the same binding.
	Cooldown time.Duration   `yaml:"cooldown"`
	Bindings []PluginBinding `yaml:"bindings"`
}

// PluginBinding runs Plugin's Action whenever Word is recognized.
// A binding with Word "*" matches every word.
type PluginBinding struct {
	Word   string         `yaml:"word"`
	Plugin string         `yaml:"plugin"`
	Action string         `yaml:"action"`
	Params map[string]any `yaml:"params"`
}

// TelemetryConfig configures metrics and tracing export.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	TraceStdout bool   `yaml:"trace_stdout"`
}

// Default returns a Config populated with the built-in defaults. Each call
// returns a fresh value that callers may mutate.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    ":8080",
			LogLevel:      LogInfo,
			MaxFrameBytes: 1 << 20,
			FrameWidth:    640,
		},
		Inference: InferenceConfig{
			PredictionStrategy: StrategyPriority,
			FallbackToLegacy:   true,
			RequireSubject:     true,
			LatencyBudget:      200 * time.Millisecond,
		},
		Modules: ModulesConfig{
			Detection: ModuleConfig{
				Enabled:             true,
				Priority:            2,
				ConfidenceThreshold: 0.7,
				ModelPath:           "models/detection.onnx",
				PreprocessingParams: map[string]any{
					"margin":       0.15,
					"history_size": 3,
				},
			},
			Recognition: ModuleConfig{
				Enabled:             true,
				Priority:            1,
				ConfidenceThreshold: 0.6,
				ModelPath:           "models/recognition.onnx",
				PreprocessingParams: map[string]any{
					"buffer_size":     45,
					"feature_count":   258,
					"clear_threshold": 0.8,
				},
			},
			Translation: ModuleConfig{
				Enabled:             false,
				Priority:            3,
				ConfidenceThreshold: 0.7,
				ModelPath:           "models/translation.onnx",
				PreprocessingParams: map[string]any{
					"yolo_config":     "models/cross-hands.cfg",
					"yolo_weights":    "models/cross-hands.weights",
					"yolo_confidence": 0.5,
					"yolo_threshold":  0.3,
					"yolo_size":       416,
					"target_size":     224,
				},
			},
		},
		Legacy: LegacyConfig{
			ModelPath:           "models/legacy.onnx",
			BufferSize:          45,
			FeatureCount:        258,
			ConfidenceThreshold: 0.6,
		},
		Detector: DetectorConfig{
			MaxHands: 2,
		},
		Camera: CameraConfig{
			MotionThreshold: 1.0,
			SessionID:       "local",
		},
		Plugins: PluginsConfig{
			TimeoutMs: 5000,
			Cooldown:  2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "signvista",
		},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Modules.Detection = c.Modules.Detection.clone()
	out.Modules.Recognition = c.Modules.Recognition.clone()
	out.Modules.Translation = c.Modules.Translation.clone()
	if c.Plugins.Bindings != nil {
		out.Plugins.Bindings = make([]PluginBinding, len(c.Plugins.Bindings))
		for i, b := range c.Plugins.Bindings {
			b.Params = maps.Clone(b.Params)
			out.Plugins.Bindings[i] = b
		}
	}
	return &out
}

func (m ModuleConfig) clone() ModuleConfig {
	m.PreprocessingParams = maps.Clone(m.PreprocessingParams)
	return m
}

// ModuleConfig returns the configuration block for name.
func (c *Config) ModuleConfig(name ModuleName) (ModuleConfig, bool) {
	switch name {
	case ModuleDetection:
		return c.Modules.Detection, true
	case ModuleRecognition:
		return c.Modules.Recognition, true
	case ModuleTranslation:
		return c.Modules.Translation, true
	}
	return ModuleConfig{}, false
}

// SetModuleConfig replaces the configuration block for name.
func (c *Config) SetModuleConfig(name ModuleName, mc ModuleConfig) error {
	switch name {
	case ModuleDetection:
		c.Modules.Detection = mc
	case ModuleRecognition:
		c.Modules.Recognition = mc
	case ModuleTranslation:
		c.Modules.Translation = mc
	default:
		return fmt.Errorf("config: unknown module %q", name)
	}
	return nil
}

// IsModuleEnabled reports whether the named module is enabled.
func (c *Config) IsModuleEnabled(name ModuleName) bool {
	mc, ok := c.ModuleConfig(name)
	return ok && mc.Enabled
}

// EnabledModules returns the enabled modules in execution order.
func (c *Config) EnabledModules() []ModuleName {
	var out []ModuleName
	for _, name := range ModuleNames {
		if c.IsModuleEnabled(name) {
			out = append(out, name)
		}
	}
	return out
}

// Priorities returns the priority of every module.
func (c *Config) Priorities() map[ModuleName]int {
	out := make(map[ModuleName]int, len(ModuleNames))
	for _, name := range ModuleNames {
		mc, _ := c.ModuleConfig(name)
		out[name] = mc.Priority
	}
	return out
}

// PredictionStrategy returns the configured selection strategy.
func (c *Config) PredictionStrategy() Strategy {
	return c.Inference.PredictionStrategy
}

// FallbackToLegacy reports whether the legacy fallback may be used.
func (c *Config) FallbackToLegacy() bool {
	return c.Inference.FallbackToLegacy
}
