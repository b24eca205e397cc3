package finalpass

import (
	"fmt"
	"strings"

	"github.com/quailholm/meetscribe/internal/signal"
)

// systemPrompt instructs the completion backend to reconcile baseline
// segments against a fresh full-context transcription of the same audio.
// It is deliberately conservative: the backend may only replace or drop
// whole segments, never invent content absent from the fresh transcript.
const systemPrompt = `You are a transcription reconciliation assistant for meeting recordings.

You receive two inputs:
1. A fresh transcript of a long audio span, produced with full acoustic context.
2. A list of baseline segments: short per-speaker snippets transcribed earlier in isolation, each with an id and an approximate time range.

Your task: identify baseline segments whose text is wrong or hallucinated, using the fresh transcript as the reference.

Rules:
- ONLY propose an edit when the fresh transcript clearly contradicts the baseline segment.
- "replace" substitutes a segment's text with the corresponding wording from the fresh transcript.
- "drop" removes a segment entirely. Use it only for hallucinations with no counterpart in the fresh transcript.
- Do NOT rephrase text that is already correct. Do NOT merge or split segments.
- Be conservative: when unsure, propose nothing.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "edits": [
    {"segmentId": "<id>", "action": "replace" | "drop", "text": "<replacement text, replace only>", "confidence": <0.0-1.0>, "reason": "<short justification>"}
  ]
}

If no edits are needed, return an empty edits array.`

// batchSegments splits segments into batches whose formatted size stays
// under charBudget. A single oversized segment still forms a batch of one
// so every segment is offered for reconciliation exactly once per chunk.
func batchSegments(segments []BaselineSegment, charBudget int) [][]BaselineSegment {
	var (
		batches [][]BaselineSegment
		current []BaselineSegment
		size    int
	)
	for _, s := range segments {
		line := len(formatSegmentLine(s))
		if len(current) > 0 && size+line > charBudget {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, s)
		size += line
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// buildUserMessage assembles the reconciliation request for one segment
// batch: the fresh chunk transcript, an optional confidence summary, and
// the baseline segment listing.
func buildUserMessage(chunkTranscript string, logprobs *signal.LogprobMetrics, segments []BaselineSegment) string {
	var sb strings.Builder

	sb.WriteString("Fresh transcript of the audio span:\n")
	sb.WriteString(chunkTranscript)
	sb.WriteString("\n\n")

	if logprobs != nil && logprobs.TokenCount > 0 {
		fmt.Fprintf(&sb,
			"Fresh transcript confidence: avg token logprob %.2f, min %.2f over %d tokens.\n\n",
			logprobs.AvgLogprob, logprobs.MinLogprob, logprobs.TokenCount)
	}

	sb.WriteString("Baseline segments to check:\n")
	for _, s := range segments {
		sb.WriteString(formatSegmentLine(s))
	}
	return sb.String()
}

// formatSegmentLine renders one baseline segment for the prompt, e.g.
// "[seg-0003] (alice, 12.4s-18.2s): we should ship on friday".
func formatSegmentLine(s BaselineSegment) string {
	return fmt.Sprintf("[%s] (%s, %.1fs-%.1fs): %s\n",
		s.SegmentID, s.Speaker, s.OffsetSeconds, s.EstimatedEndSeconds, s.Text)
}
