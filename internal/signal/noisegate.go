// Package signal computes objective signal-quality metrics for captured
// audio: a windowed loudness profile of the raw PCM (the noise gate) and a
// confidence summary of the speech backend's token log-probabilities.
//
// Everything in this package is pure and deterministic — no I/O, no clock,
// no external calls. The metrics feed the guard and vote decision layers,
// which interpret them; this package only measures.
package signal

import (
	"math"
	"sort"
)

const (
	// silenceDbfs is the dBFS value assigned to an all-zero window. True
	// digital silence has no defined level; -96 dB is below any audible
	// 16-bit content and keeps the arithmetic finite.
	silenceDbfs = -96.0

	// noiseFloorFraction is the fraction of quietest windows averaged to
	// estimate the empirical noise floor.
	noiseFloorFraction = 0.2
)

// PCMFormat describes the raw audio layout of a snippet.
type PCMFormat struct {
	// SampleRate is the sample rate in Hz (e.g., 48000).
	SampleRate int

	// Channels is the interleaved channel count (1 or 2).
	Channels int
}

// NoiseGateConfig holds the tuning knobs for the loudness analysis.
// Zero-value fields are replaced with defaults by [AnalyzeNoiseGate].
type NoiseGateConfig struct {
	// WindowMs is the analysis window size in milliseconds. Default: 100.
	WindowMs int

	// PeakThresholdDbfs is the per-window peak level at or below which a
	// window counts as inactive. Default: -38.
	PeakThresholdDbfs float64

	// MinActiveWindows is the minimum number of active windows required for
	// the snippet to count as non-quiet. Default: 2.
	MinActiveWindows int

	// MinPeakAboveNoiseDb is the margin a window's peak must clear above
	// the empirical noise floor to count as active. Default: 6.
	MinPeakAboveNoiseDb float64

	// EnabledFast and EnabledSlow gate the analysis per pass mode. They are
	// carried here so per-meeting configuration travels as one value; the
	// guard layer consults them.
	EnabledFast bool
	EnabledSlow bool
}

// applyDefaults returns cfg with zero-value tuning fields replaced.
func (cfg NoiseGateConfig) applyDefaults() NoiseGateConfig {
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = 100
	}
	if cfg.PeakThresholdDbfs == 0 {
		cfg.PeakThresholdDbfs = -38
	}
	if cfg.MinActiveWindows <= 0 {
		cfg.MinActiveWindows = 2
	}
	if cfg.MinPeakAboveNoiseDb == 0 {
		cfg.MinPeakAboveNoiseDb = 6
	}
	return cfg
}

// NoiseGateMetrics is the per-snippet loudness profile. Computed once per
// snippet and immutable afterwards.
type NoiseGateMetrics struct {
	// WindowMs is the window size the analysis used.
	WindowMs int

	// TotalWindows is the number of analysis windows the snippet spanned.
	TotalWindows int

	// PeakDbfs is the loudest window peak across the snippet.
	PeakDbfs float64

	// NoiseFloorDbfs is the average peak of the quietest windows.
	NoiseFloorDbfs float64

	// ActiveWindowCount is the number of windows whose peak cleared both
	// the threshold and the noise-floor margin.
	ActiveWindowCount int

	// MinActiveWindows, MinPeakAboveNoiseDb, and ThresholdDbfs echo the
	// configuration that produced this profile, so downstream decisions and
	// diagnostics are self-contained.
	MinActiveWindows    int
	MinPeakAboveNoiseDb float64
	ThresholdDbfs       float64
}

// Quiet reports whether the profile describes quiet audio: the overall peak
// never cleared the threshold, or too few windows were active.
func (m NoiseGateMetrics) Quiet() bool {
	return m.PeakDbfs <= m.ThresholdDbfs || m.ActiveWindowCount < m.MinActiveWindows
}

// AnalyzeNoiseGate splits 16-bit little-endian PCM into fixed-size windows,
// computes each window's peak dBFS and an empirical noise floor, and counts
// the windows whose peak clears the configured threshold and margin.
//
// Empty or sub-window input yields metrics with zero total windows (and
// therefore zero active windows); there are no failure modes.
func AnalyzeNoiseGate(pcm []byte, format PCMFormat, cfg NoiseGateConfig) NoiseGateMetrics {
	cfg = cfg.applyDefaults()

	metrics := NoiseGateMetrics{
		WindowMs:            cfg.WindowMs,
		PeakDbfs:            silenceDbfs,
		NoiseFloorDbfs:      silenceDbfs,
		MinActiveWindows:    cfg.MinActiveWindows,
		MinPeakAboveNoiseDb: cfg.MinPeakAboveNoiseDb,
		ThresholdDbfs:       cfg.PeakThresholdDbfs,
	}

	if format.SampleRate <= 0 || format.Channels <= 0 {
		return metrics
	}
	windowBytes := format.SampleRate * format.Channels * 2 * cfg.WindowMs / 1000
	if windowBytes < 2 || len(pcm) < 2 {
		return metrics
	}

	var peaks []float64
	for off := 0; off < len(pcm); off += windowBytes {
		end := min(off+windowBytes, len(pcm))
		if end-off < 2 {
			break
		}
		peaks = append(peaks, windowPeakDbfs(pcm[off:end]))
	}
	if len(peaks) == 0 {
		return metrics
	}

	metrics.TotalWindows = len(peaks)
	metrics.NoiseFloorDbfs = noiseFloor(peaks)
	for _, p := range peaks {
		if p > metrics.PeakDbfs {
			metrics.PeakDbfs = p
		}
		if p > cfg.PeakThresholdDbfs && p-metrics.NoiseFloorDbfs >= cfg.MinPeakAboveNoiseDb {
			metrics.ActiveWindowCount++
		}
	}
	return metrics
}

// windowPeakDbfs returns the peak level of one window in dBFS relative to
// 16-bit full scale.
func windowPeakDbfs(window []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(window); i += 2 {
		sample := int32(int16(window[i]) | int16(window[i+1])<<8)
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	if peak == 0 {
		return silenceDbfs
	}
	return 20 * math.Log10(float64(peak)/32768.0)
}

// noiseFloor estimates the noise floor as the average peak of the quietest
// windows (at least one).
func noiseFloor(peaks []float64) float64 {
	sorted := make([]float64, len(peaks))
	copy(sorted, peaks)
	sort.Float64s(sorted)

	n := max(int(float64(len(sorted))*noiseFloorFraction), 1)
	var sum float64
	for _, p := range sorted[:n] {
		sum += p
	}
	return sum / float64(n)
}
