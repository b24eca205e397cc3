// Package meeting holds the meeting-side records the quality pipeline reads
// and writes: the ordered per-snippet transcript entries accumulated during
// the meeting, and the recording metadata the final pass needs.
//
// The surrounding bot process owns persistence; this package only defines
// the in-process shape exchanged at the interface boundary. The final-pass
// reconciler is the sole writer of the FinalPassText fields, and only in its
// atomic apply step.
package meeting

import (
	"sort"
	"time"
)

// Snippet is one captured utterance's transcript entry.
type Snippet struct {
	// UserID identifies the speaker.
	UserID string

	// Timestamp is the capture start time.
	Timestamp time.Time

	// FastText is the latest low-latency interim transcript.
	FastText string

	// SlowText is the final per-snippet transcript.
	SlowText string

	// CoalescedText is a merged transcript produced when adjacent captures
	// from the same speaker were joined. Preferred over SlowText when set.
	CoalescedText string

	// FinalPassText is the corrected transcript written by the final pass.
	// Distinguish "never written" from "dropped" via FinalPassSet: a drop
	// edit sets FinalPassSet with an empty FinalPassText.
	FinalPassText string

	// FinalPassSet reports whether the final pass wrote FinalPassText.
	FinalPassSet bool
}

// ResolvedText returns the best transcript available before the final pass:
// coalesced over slow over latest fast.
func (s *Snippet) ResolvedText() string {
	switch {
	case s.CoalescedText != "":
		return s.CoalescedText
	case s.SlowText != "":
		return s.SlowText
	default:
		return s.FastText
	}
}

// Meeting is the accumulated state for one meeting, as handed to the final
// pass after the meeting ends.
type Meeting struct {
	// ID identifies the meeting in logs.
	ID string

	// Snippets are the captured transcript entries. Order is not
	// guaranteed; [Meeting.SnippetsByTime] sorts a copy.
	Snippets []*Snippet

	// RecordingPath is the full-meeting audio recording on disk.
	RecordingPath string

	// StartedAt and EndedAt bound the meeting. EndedAt may be zero when
	// the meeting terminated abnormally.
	StartedAt time.Time
	EndedAt   time.Time
}

// SnippetsByTime returns the snippets ordered by capture timestamp. The
// returned slice is a new header over the same entries, so writes through
// its elements are visible in the meeting.
func (m *Meeting) SnippetsByTime() []*Snippet {
	out := make([]*Snippet, len(m.Snippets))
	copy(out, m.Snippets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
