package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvConfigPath = "SIGNVISTA_CONFIG"
	EnvStrategy   = "SIGNVISTA_PREDICTION_STRATEGY"
	EnvListenAddr = "SIGNVISTA_LISTEN_ADDR"
	EnvLogLevel   = "SIGNVISTA_LOG_LEVEL"
)

// Load reads the YAML configuration file at path, layered over [Default].
// A missing file is not an error: the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults.
// Unknown keys are rejected. The result is not validated; call [Validate]
// and decide whether the reported problems are acceptable.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from the process environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvStrategy); v != "" {
		cfg.Inference.PredictionStrategy = Strategy(v)
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// Validate checks cfg for coherence and returns a human-readable list of
// every problem found. It never fails; an empty list means the
// configuration is fully valid.
func Validate(cfg *Config) []string {
	var problems []string

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		problems = append(problems, fmt.Sprintf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxFrameBytes < 0 {
		problems = append(problems, "server.max_frame_bytes must not be negative")
	}

	if !cfg.Inference.PredictionStrategy.IsValid() {
		problems = append(problems, fmt.Sprintf("inference.prediction_strategy %q is invalid; valid values: priority, highest_confidence, voting", cfg.Inference.PredictionStrategy))
	}
	if cfg.Inference.LatencyBudget < 0 {
		problems = append(problems, "inference.latency_budget must not be negative")
	}

	for _, name := range ModuleNames {
		mc, _ := cfg.ModuleConfig(name)
		problems = append(problems, validateModule(name, mc)...)
	}

	if cfg.Inference.FallbackToLegacy {
		if cfg.Legacy.ModelPath == "" {
			problems = append(problems, "legacy.model_path is required when inference.fallback_to_legacy is set")
		}
		if cfg.Legacy.BufferSize < 1 {
			problems = append(problems, "legacy.buffer_size must be at least 1")
		}
		if cfg.Legacy.FeatureCount < 1 {
			problems = append(problems, "legacy.feature_count must be at least 1")
		}
		if !inUnitRange(cfg.Legacy.ConfidenceThreshold) {
			problems = append(problems, fmt.Sprintf("legacy.confidence_threshold %v must be between 0 and 1", cfg.Legacy.ConfidenceThreshold))
		}
	}

	if cfg.Plugins.TimeoutMs < 0 || cfg.Plugins.Cooldown < 0 {
		problems = append(problems, "plugins.timeout_ms and plugins.cooldown must not be negative")
	}
	seen := make(map[string]bool)
	for i, b := range cfg.Plugins.Bindings {
		if b.Word == "" || b.Plugin == "" || b.Action == "" {
			problems = append(problems, fmt.Sprintf("plugins.bindings[%d]: word, plugin and action are required", i))
		}
		key := b.Word + "\x00" + b.Plugin + "\x00" + b.Action
		if seen[key] {
			problems = append(problems, fmt.Sprintf("plugins.bindings[%d]: duplicate binding for word %q", i, b.Word))
		}
		seen[key] = true
	}

	return problems
}

func validateModule(name ModuleName, mc ModuleConfig) []string {
	var problems []string
	prefix := "modules." + string(name)

	if !inUnitRange(mc.ConfidenceThreshold) {
		problems = append(problems, fmt.Sprintf("%s.confidence_threshold %v must be between 0 and 1", prefix, mc.ConfidenceThreshold))
	}
	if mc.Priority < 1 {
		problems = append(problems, fmt.Sprintf("%s.priority %d must be at least 1", prefix, mc.Priority))
	}
	if mc.Enabled && mc.ModelPath == "" {
		problems = append(problems, fmt.Sprintf("%s.model_path is required when the module is enabled", prefix))
	}

	switch name {
	case ModuleDetection:
		if m := mc.Float("margin", 0.15); !inUnitRange(m) {
			problems = append(problems, fmt.Sprintf("%s.preprocessing_params.margin %v must be between 0 and 1", prefix, m))
		}
	case ModuleRecognition:
		if c := mc.Float("clear_threshold", 0.8); !inUnitRange(c) {
			problems = append(problems, fmt.Sprintf("%s.preprocessing_params.clear_threshold %v must be between 0 and 1", prefix, c))
		}
		if n := mc.Int("buffer_size", 45); n < 1 {
			problems = append(problems, fmt.Sprintf("%s.preprocessing_params.buffer_size %d must be at least 1", prefix, n))
		}
	case ModuleTranslation:
		if mc.Enabled && (mc.String("yolo_config", "") == "" || mc.String("yolo_weights", "") == "") {
			problems = append(problems, fmt.Sprintf("%s.preprocessing_params.yolo_config and yolo_weights are required when the module is enabled", prefix))
		}
	}

	return problems
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
