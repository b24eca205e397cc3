// Package config provides the configuration schema and loader for the
// meetscribe transcription quality pipeline.
package config

// LogLevel controls log verbosity for the pipeline host process.
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

// Config is the root configuration structure for meetscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Providers ProvidersConfig `yaml:"providers"`
	Client    ClientConfig    `yaml:"client"`
	NoiseGate NoiseGateConfig `yaml:"noise_gate"`
	Guards    GuardsConfig    `yaml:"guards"`
	Vote      VoteConfig      `yaml:"vote"`
	FinalPass FinalPassConfig `yaml:"final_pass"`
}

// ApplyDefaults fills unset fields with the documented defaults. Component
// constructors apply their own built-in defaults for the knobs left at
// zero; this only covers the fields the host process reads directly.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = LogInfo
	}
	if c.Client.Language == "" {
		c.Client.Language = "en"
	}
	if c.Providers.STT.Name == "" {
		c.Providers.STT.Name = "whisper"
	}
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level controls verbosity.
	Level LogLevel `yaml:"level"`
}

// ProvidersConfig declares the speech and completion backends.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by both provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// ClientConfig holds resource limits for the snippet transcription client.
// Zero values take the client's built-in defaults.
type ClientConfig struct {
	// Language is the BCP-47 language hint passed to the speech backend.
	Language string `yaml:"language"`

	// BackendSampleRate is the sample rate audio is resampled to before
	// upload (Hz).
	BackendSampleRate int `yaml:"backend_sample_rate"`

	// MaxConcurrent bounds in-flight backend calls; MaxQueued bounds
	// callers waiting behind them.
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxQueued     int `yaml:"max_queued"`

	// BreakerTripAfter is the consecutive-failure count that opens the
	// circuit; BreakerCoolDownSeconds is how long it stays open.
	BreakerTripAfter       int `yaml:"breaker_trip_after"`
	BreakerCoolDownSeconds int `yaml:"breaker_cool_down_seconds"`

	// RetryAttempts and RetryBaseDelayMs shape the per-call retry loop.
	RetryAttempts    int `yaml:"retry_attempts"`
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`

	// MinCallSpacingMs is the minimum interval between backend calls.
	MinCallSpacingMs int `yaml:"min_call_spacing_ms"`
}

// NoiseGateConfig holds loudness analysis settings. Zero values take the
// analyser's built-in defaults.
type NoiseGateConfig struct {
	// WindowMs is the analysis window length in milliseconds.
	WindowMs int `yaml:"window_ms"`

	// PeakThresholdDbfs is the per-window peak threshold in dBFS below
	// which a window counts as quiet. Always negative (e.g., -38).
	PeakThresholdDbfs float64 `yaml:"peak_threshold_dbfs"`

	// MinActiveWindows is how many active windows a snippet needs before
	// it counts as real speech.
	MinActiveWindows int `yaml:"min_active_windows"`

	// MinPeakAboveNoiseDb is the margin a window peak needs over the
	// snippet's noise floor to count as active.
	MinPeakAboveNoiseDb float64 `yaml:"min_peak_above_noise_db"`

	// EnabledFast and EnabledSlow gate the loudness guard per pass.
	EnabledFast bool `yaml:"enabled_fast"`
	EnabledSlow bool `yaml:"enabled_slow"`
}

// GuardsConfig holds transcription guard settings.
type GuardsConfig struct {
	// SuppressionEnabled allows the loudness guard to empty transcripts.
	// When false the guard only flags.
	SuppressionEnabled bool `yaml:"suppression_enabled"`

	// PromptEchoEnabled gates the prompt echo guard.
	PromptEchoEnabled bool `yaml:"prompt_echo_enabled"`

	// Prompt is the domain vocabulary prompt sent with snippet
	// transcriptions and checked for echoes.
	Prompt string `yaml:"prompt"`
}

// VoteConfig holds transcription vote settings.
type VoteConfig struct {
	// Enabled gates the vote entirely.
	Enabled bool `yaml:"enabled"`
}

// FinalPassConfig holds final-pass reconciler settings. Zero values take
// the reconciler's built-in defaults.
type FinalPassConfig struct {
	// Enabled gates the pass.
	Enabled bool `yaml:"enabled"`

	// ConfidenceFloor is the minimum edit confidence in [0, 1].
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// DropRatioCeiling and ChangeRatioCeiling are the guardrail ratios in
	// [0, 1]; exceeding either discards the run's edits.
	DropRatioCeiling   float64 `yaml:"drop_ratio_ceiling"`
	ChangeRatioCeiling float64 `yaml:"change_ratio_ceiling"`

	// ChunkTargetSeconds and ChunkMinSeconds bound the chunk duration.
	ChunkTargetSeconds float64 `yaml:"chunk_target_seconds"`
	ChunkMinSeconds    float64 `yaml:"chunk_min_seconds"`

	// TempDir receives rendered chunk clips.
	TempDir string `yaml:"temp_dir"`
}
