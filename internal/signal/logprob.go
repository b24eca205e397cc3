package signal

import "github.com/quailholm/meetscribe/pkg/provider/stt"

// LogprobMetrics summarises the speech backend's per-token
// log-probabilities for one transcription result.
type LogprobMetrics struct {
	// AvgLogprob is the mean log-probability across tokens.
	AvgLogprob float64

	// MinLogprob is the lowest single-token log-probability.
	MinLogprob float64

	// TokenCount is the number of tokens the summary covers.
	TokenCount int
}

// LogprobMetricsFrom derives a confidence summary from the backend's token
// list. A nil or empty list yields nil — never a zero-valued summary, since
// avg=0 would read as maximal confidence and min=0 would never trip the
// low-confidence guard the wrong way, but a zero TokenCount summary could
// still cause false suppression downstream.
func LogprobMetricsFrom(tokens []stt.TokenLogprob) *LogprobMetrics {
	if len(tokens) == 0 {
		return nil
	}

	m := &LogprobMetrics{
		MinLogprob: tokens[0].Logprob,
		TokenCount: len(tokens),
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Logprob
		if t.Logprob < m.MinLogprob {
			m.MinLogprob = t.Logprob
		}
	}
	m.AvgLogprob = sum / float64(len(tokens))
	return m
}

// LowConfidence reports whether the summary indicates low decoding
// confidence: both the average and the minimum token log-probability fall at
// or below their thresholds. A nil summary is never low confidence — absent
// logprobs must not trigger suppression.
func (m *LogprobMetrics) LowConfidence(avgThreshold, minThreshold float64) bool {
	if m == nil || m.TokenCount == 0 {
		return false
	}
	return m.AvgLogprob <= avgThreshold && m.MinLogprob <= minThreshold
}
