package transcribe

import (
	"time"

	"github.com/quailholm/meetscribe/internal/signal"
)

// AudioSnippet is one continuous utterance capture: the speaker, the
// capture start time, and the raw PCM chunks in arrival order. Snippets are
// ephemeral — the capture layer builds one, the client consumes it, and it
// is discarded.
type AudioSnippet struct {
	// UserID identifies the speaker.
	UserID string

	// Timestamp is the capture start time.
	Timestamp time.Time

	// Chunks holds the raw 16-bit little-endian PCM chunks in order.
	Chunks [][]byte

	// Format describes the PCM layout of every chunk.
	Format signal.PCMFormat
}

// PCM concatenates the snippet's chunks into one contiguous buffer.
func (s *AudioSnippet) PCM() []byte {
	total := 0
	for _, c := range s.Chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range s.Chunks {
		out = append(out, c...)
	}
	return out
}

// RateMismatch reports whether the snippet's byte count is inconsistent
// with its declared format — the PCM does not divide into whole sample
// frames. A known capture-layer failure; the vote layer treats it as a
// candidate defect.
func (s *AudioSnippet) RateMismatch() bool {
	if s.Format.Channels <= 0 {
		return false
	}
	frameBytes := s.Format.Channels * bitsPerSample / 8
	total := 0
	for _, c := range s.Chunks {
		total += len(c)
	}
	return total%frameBytes != 0
}
