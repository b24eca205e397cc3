package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "mock"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.FinalPass.Enabled && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("final_pass.enabled requires providers.llm to be configured"))
	}

	for _, lim := range []struct {
		name  string
		value int
	}{
		{"client.backend_sample_rate", cfg.Client.BackendSampleRate},
		{"client.max_concurrent", cfg.Client.MaxConcurrent},
		{"client.max_queued", cfg.Client.MaxQueued},
		{"client.breaker_trip_after", cfg.Client.BreakerTripAfter},
		{"client.breaker_cool_down_seconds", cfg.Client.BreakerCoolDownSeconds},
		{"client.retry_attempts", cfg.Client.RetryAttempts},
		{"client.retry_base_delay_ms", cfg.Client.RetryBaseDelayMs},
		{"client.min_call_spacing_ms", cfg.Client.MinCallSpacingMs},
	} {
		if lim.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", lim.name, lim.value))
		}
	}

	if cfg.NoiseGate.WindowMs < 0 {
		errs = append(errs, fmt.Errorf("noise_gate.window_ms %d must not be negative", cfg.NoiseGate.WindowMs))
	}
	if cfg.NoiseGate.PeakThresholdDbfs > 0 {
		errs = append(errs, fmt.Errorf("noise_gate.peak_threshold_dbfs %.1f must not be positive; dBFS peaks are at most 0", cfg.NoiseGate.PeakThresholdDbfs))
	}
	if cfg.NoiseGate.MinActiveWindows < 0 {
		errs = append(errs, fmt.Errorf("noise_gate.min_active_windows %d must not be negative", cfg.NoiseGate.MinActiveWindows))
	}

	for _, ratio := range []struct {
		name  string
		value float64
	}{
		{"final_pass.confidence_floor", cfg.FinalPass.ConfidenceFloor},
		{"final_pass.drop_ratio_ceiling", cfg.FinalPass.DropRatioCeiling},
		{"final_pass.change_ratio_ceiling", cfg.FinalPass.ChangeRatioCeiling},
	} {
		if ratio.value < 0 || ratio.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", ratio.name, ratio.value))
		}
	}
	if cfg.FinalPass.ChunkMinSeconds < 0 || cfg.FinalPass.ChunkTargetSeconds < 0 {
		errs = append(errs, errors.New("final_pass chunk durations must not be negative"))
	}
	if cfg.FinalPass.ChunkTargetSeconds > 0 && cfg.FinalPass.ChunkMinSeconds > cfg.FinalPass.ChunkTargetSeconds {
		errs = append(errs, fmt.Errorf("final_pass.chunk_min_seconds %.0f exceeds chunk_target_seconds %.0f", cfg.FinalPass.ChunkMinSeconds, cfg.FinalPass.ChunkTargetSeconds))
	}

	if cfg.Guards.PromptEchoEnabled && cfg.Guards.Prompt == "" {
		slog.Warn("guards.prompt_echo_enabled is set but guards.prompt is empty; the echo guard will never match")
	}
	if cfg.Vote.Enabled && cfg.Guards.Prompt == "" {
		slog.Warn("vote.enabled is set but guards.prompt is empty; votes will never trigger")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
