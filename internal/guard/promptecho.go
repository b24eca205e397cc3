package guard

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Prompt-echo eligibility floors and similarity threshold. Very short
// transcripts trivially resemble any prompt, so they are never eligible.
const (
	echoMinChars        = 12
	echoMinWords        = 3
	echoSimilarityRatio = 0.84
)

// detectPromptEcho reports whether transcript looks like the speech backend
// echoing the priming prompt back instead of transcribing speech.
//
// Both strings are normalized to lowercase alphanumeric tokens. Detection
// fires when the normalized transcript is a literal substring of the
// normalized prompt, or when its Levenshtein similarity against the
// equal-length prefix of the prompt reaches the similarity threshold.
func detectPromptEcho(transcript, prompt string) bool {
	normPrompt := normalizeEcho(prompt)
	if normPrompt == "" {
		return false
	}
	normTranscript := normalizeEcho(transcript)
	if len(normTranscript) < echoMinChars ||
		len(strings.Fields(normTranscript)) < echoMinWords {
		return false
	}

	if strings.Contains(normPrompt, normTranscript) {
		return true
	}

	prefix := normPrompt
	if len(normTranscript) < len(prefix) {
		prefix = prefix[:len(normTranscript)]
	}
	return levenshteinSimilarity(normTranscript, prefix) >= echoSimilarityRatio
}

// normalizeEcho lowercases s and collapses it to space-separated
// alphanumeric tokens.
func normalizeEcho(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// levenshteinSimilarity converts edit distance to a [0, 1] similarity
// ratio over the longer string's length.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}
