// Package vote scores and picks between two competing transcription results
// for the same snippet: one produced with the domain priming prompt and one
// without. Running the unprimed candidate doubles the backend cost, so
// [ShouldRun] gates the vote to cases where the primed result looks suspect,
// and [Decide] keeps the primed candidate unless the unprimed one wins by a
// clear margin — the prompt carries richer vocabulary priors and deserves
// the tie.
//
// Both entry points are pure decision functions.
package vote

import (
	"strings"

	"github.com/quailholm/meetscribe/internal/guard"
	"github.com/quailholm/meetscribe/internal/signal"
)

// CandidateID names the two competing strategies.
type CandidateID string

const (
	// CandidatePrompt is the result produced with the domain prompt.
	CandidatePrompt CandidateID = "prompt"

	// CandidateNoPrompt is the result produced without any priming.
	CandidateNoPrompt CandidateID = "no_prompt"
)

// Scoring weights for [Decide]. The heuristic is additive: healthy traits
// add, failure traits subtract, and an empty transcript is scored far below
// anything non-empty.
const (
	scoreEmptyText = -100.0

	scoreBaseNonEmpty = 1.0
	scoreSuppressed   = 2.0
	scorePromptEcho   = 1.5
	scoreRateMismatch = 1.0
	scoreQuietAudio   = 0.5

	wordBonusPerWord = 0.1
	wordBonusCap     = 1.5

	logprobWeight        = 0.75
	lowConfidencePenalty = 1.25

	uniquenessMinWords = 8
	uniquenessFloor    = 0.4
	uniquenessPenalty  = 2.0

	repetitionRunLen  = 3
	repetitionPenalty = 2.5

	// selectionMargin is how far the no-prompt score must exceed the prompt
	// score before the unprimed candidate is selected.
	selectionMargin = 0.75
)

// Logprob thresholds mirror the guard layer's low-confidence definition.
const (
	avgLogprobThreshold = -0.60
	minLogprobThreshold = -2.50
)

// Candidate is one of two competing transcription results for a snippet.
// Built once per candidate and immutable afterwards.
type Candidate struct {
	// ID identifies the strategy that produced this candidate.
	ID CandidateID

	// Text is the candidate transcript after guards ran.
	Text string

	// Suppressed, PromptEchoDetected, RateMismatchDetected, and QuietAudio
	// carry the guard and capture diagnostics for this candidate.
	Suppressed           bool
	PromptEchoDetected   bool
	RateMismatchDetected bool
	QuietAudio           bool

	// Logprobs is the backend confidence summary. May be nil.
	Logprobs *signal.LogprobMetrics
}

// Gate is the outcome of [ShouldRun].
type Gate struct {
	// ShouldRun reports whether the unprimed second candidate is worth the
	// extra backend call.
	ShouldRun bool

	// Reasons lists why the vote was (or was not) triggered.
	Reasons []string
}

// ShouldRun decides whether to transcribe the snippet a second time without
// the prompt. Voting runs only when explicitly enabled, a domain prompt was
// actually used, the pass is the slow (final per-snippet) mode, and the
// primed candidate shows prompt-echo detection or low-confidence logprobs.
func ShouldRun(enabled, hasPrompt bool, mode guard.PassMode, primary Candidate) Gate {
	switch {
	case !enabled:
		return Gate{Reasons: []string{"vote_disabled"}}
	case !hasPrompt:
		return Gate{Reasons: []string{"no_prompt_available"}}
	case mode != guard.PassSlow:
		return Gate{Reasons: []string{"fast_pass"}}
	}

	var reasons []string
	if primary.PromptEchoDetected {
		reasons = append(reasons, "prompt_echo_detected")
	}
	if primary.Logprobs.LowConfidence(avgLogprobThreshold, minLogprobThreshold) {
		reasons = append(reasons, "low_confidence_logprobs")
	}
	if len(reasons) == 0 {
		return Gate{Reasons: []string{"primary_healthy"}}
	}
	return Gate{ShouldRun: true, Reasons: reasons}
}

// Decision is the outcome of [Decide].
type Decision struct {
	// Winner identifies the selected candidate.
	Winner CandidateID

	// PromptScore and NoPromptScore are the heuristic scores, recorded for
	// observability.
	PromptScore   float64
	NoPromptScore float64

	// Reasons records which inputs differed between the candidates,
	// independent of which one won.
	Reasons []string
}

// Decide scores both candidates and selects one. The no-prompt candidate
// wins only when its score exceeds the prompt candidate's by more than the
// selection margin; ties and near-ties keep the primed candidate.
func Decide(promptCand, noPromptCand Candidate) Decision {
	d := Decision{
		PromptScore:   score(promptCand),
		NoPromptScore: score(noPromptCand),
		Reasons:       diffReasons(promptCand, noPromptCand),
	}
	if d.NoPromptScore > d.PromptScore+selectionMargin {
		d.Winner = CandidateNoPrompt
	} else {
		d.Winner = CandidatePrompt
	}
	return d
}

// score computes the additive heuristic for one candidate.
func score(c Candidate) float64 {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return scoreEmptyText
	}

	s := scoreBaseNonEmpty
	s += signedTrait(!c.Suppressed, scoreSuppressed)
	s += signedTrait(!c.PromptEchoDetected, scorePromptEcho)
	s += signedTrait(!c.RateMismatchDetected, scoreRateMismatch)
	s += signedTrait(!c.QuietAudio, scoreQuietAudio)

	words := strings.Fields(strings.ToLower(text))
	s += min(float64(len(words))*wordBonusPerWord, wordBonusCap)

	if c.Logprobs != nil && c.Logprobs.TokenCount > 0 {
		s += c.Logprobs.AvgLogprob * logprobWeight
		if c.Logprobs.LowConfidence(avgLogprobThreshold, minLogprobThreshold) {
			s -= lowConfidencePenalty
		}
	}

	if len(words) >= uniquenessMinWords && uniquenessRatio(words) < uniquenessFloor {
		s -= uniquenessPenalty
	}
	if hasRepetitionRun(words, repetitionRunLen) {
		s -= repetitionPenalty
	}
	return s
}

// signedTrait returns +weight when healthy is true and -weight otherwise.
func signedTrait(healthy bool, weight float64) float64 {
	if healthy {
		return weight
	}
	return -weight
}

// uniquenessRatio returns distinct words over total words.
func uniquenessRatio(words []string) float64 {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// hasRepetitionRun reports whether words contains runLen or more identical
// consecutive words — a degenerate output mode of speech backends under
// noise.
func hasRepetitionRun(words []string, runLen int) bool {
	run := 1
	for i := 1; i < len(words); i++ {
		if words[i] == words[i-1] {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// diffReasons lists the candidate inputs that differ, for observability.
func diffReasons(a, b Candidate) []string {
	var reasons []string
	if strings.TrimSpace(a.Text) != strings.TrimSpace(b.Text) {
		reasons = append(reasons, "text_differs")
	}
	if a.Suppressed != b.Suppressed {
		reasons = append(reasons, "suppressed_differs")
	}
	if a.PromptEchoDetected != b.PromptEchoDetected {
		reasons = append(reasons, "prompt_echo_differs")
	}
	if a.RateMismatchDetected != b.RateMismatchDetected {
		reasons = append(reasons, "rate_mismatch_differs")
	}
	if a.QuietAudio != b.QuietAudio {
		reasons = append(reasons, "quiet_audio_differs")
	}
	if (a.Logprobs == nil) != (b.Logprobs == nil) {
		reasons = append(reasons, "logprobs_differ")
	} else if a.Logprobs != nil && b.Logprobs != nil && a.Logprobs.AvgLogprob != b.Logprobs.AvgLogprob {
		reasons = append(reasons, "logprobs_differ")
	}
	return reasons
}
