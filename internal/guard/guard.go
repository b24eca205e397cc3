// Package guard is the pure decision layer that vets a raw transcription
// before it enters the meeting transcript. Given the snippet's loudness
// profile, the backend's logprob confidence summary, and an optional check
// against the priming prompt, it decides whether to suppress the text and
// which diagnostic flags to attach.
//
// Two guards exist:
//
//   - Loudness: suppression requires BOTH quiet audio AND low-confidence
//     logprobs. Either condition alone only produces a diagnostic flag, so
//     legitimately soft-but-clear speech and loud-but-uncertain speech both
//     survive.
//   - Prompt echo: catches the speech backend returning its own priming
//     prompt as "speech", by substring containment or edit-distance
//     similarity after aggressive normalization.
//
// Apply is total over its inputs — it never fails, never panics on nil
// metrics, and never returns an error.
package guard

import "strings"

// Guard decision thresholds. Logprob values follow whisper-style decoder
// output where 0 is certain and increasingly negative is increasingly
// uncertain.
const (
	avgLogprobThreshold = -0.60
	minLogprobThreshold = -2.50
)

// Diagnostic flag values attached to a [Result], in the order matched.
const (
	FlagQuietAudio        = "quiet_audio"
	FlagLowConfidence     = "low_confidence_logprobs"
	FlagPromptEcho        = "prompt_echo"
	FlagSuppressedLowConf = "suppressed_low_confidence"
	FlagSuppressedEcho    = "suppressed_prompt_echo"
)

// PassMode distinguishes the low-latency interim transcription pass from
// the final per-snippet pass.
type PassMode string

const (
	// PassFast is the low-latency interim pass.
	PassFast PassMode = "fast"

	// PassSlow is the final per-snippet pass.
	PassSlow PassMode = "slow"
)

// NoiseProfile is the subset of the noise-gate metrics the guard consumes.
// Satisfied by signal.NoiseGateMetrics.
type NoiseProfile interface {
	Quiet() bool
}

// ConfidenceProfile is the subset of the logprob summary the guard
// consumes. Satisfied by *signal.LogprobMetrics; a nil pointer is valid and
// never reads as low confidence.
type ConfidenceProfile interface {
	LowConfidence(avgThreshold, minThreshold float64) bool
}

// Input carries one transcription and every signal the guards may consult.
type Input struct {
	// Transcription is the raw text from the speech backend.
	Transcription string

	// SuppressionEnabled enables the loudness guard.
	SuppressionEnabled bool

	// PromptEchoEnabled enables the prompt-echo guard.
	PromptEchoEnabled bool

	// PromptText is the priming prompt the backend was called with. Only
	// consulted when PromptEchoEnabled.
	PromptText string

	// NoiseGateEnabled indicates the noise gate ran for this pass mode.
	NoiseGateEnabled bool

	// NoiseGate is the snippet's loudness profile. May be nil when the
	// noise gate did not run.
	NoiseGate NoiseProfile

	// Logprobs is the backend's confidence summary. May be nil when the
	// backend returned no log-probabilities.
	Logprobs ConfidenceProfile
}

// Result is the guard decision for one transcription.
//
// Invariant: Suppressed implies Text == "".
type Result struct {
	// Text is the trimmed input text, or "" when a guard suppressed it.
	Text string

	// Flags lists every diagnostic tag that matched, in order, with a
	// terminal suppression tag appended when a guard fired.
	Flags []string

	// QuietAudio reports the loudness guard's quiet-audio finding.
	QuietAudio bool

	// PromptEchoDetected reports the prompt-echo guard's finding.
	PromptEchoDetected bool

	// Suppressed reports whether either guard emptied the text.
	Suppressed bool
}

// Apply runs both guards over input and returns the decision. It is pure
// and total: no error paths, no side effects.
func Apply(input Input) Result {
	text := strings.TrimSpace(input.Transcription)
	if text == "" {
		// Nothing to suppress.
		return Result{}
	}

	res := Result{Text: text}

	// Loudness guard.
	quiet := input.NoiseGateEnabled && input.NoiseGate != nil && input.NoiseGate.Quiet()
	lowConf := input.Logprobs != nil &&
		input.Logprobs.LowConfidence(avgLogprobThreshold, minLogprobThreshold)
	if input.SuppressionEnabled {
		res.QuietAudio = quiet
		if quiet {
			res.Flags = append(res.Flags, FlagQuietAudio)
		}
		if lowConf {
			res.Flags = append(res.Flags, FlagLowConfidence)
		}
		if quiet && lowConf {
			res.Suppressed = true
			res.Text = ""
			res.Flags = append(res.Flags, FlagSuppressedLowConf)
			return res
		}
	}

	// Prompt-echo guard.
	if input.PromptEchoEnabled && detectPromptEcho(text, input.PromptText) {
		res.PromptEchoDetected = true
		res.Flags = append(res.Flags, FlagPromptEcho, FlagSuppressedEcho)
		res.Suppressed = true
		res.Text = ""
	}

	return res
}
