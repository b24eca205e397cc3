package finalpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/quailholm/meetscribe/internal/meeting"
)

// BaselineSegment re-expresses one already-accepted snippet transcript as a
// time-anchored unit for reconciliation. Built fresh at the start of every
// run from the meeting's accumulated snippets, ordered by capture time.
type BaselineSegment struct {
	// SegmentID is stable within a run, derived from the segment's ordinal.
	SegmentID string

	// Speaker is the owning speaker label.
	Speaker string

	// StartedAt is the snippet's capture start time.
	StartedAt time.Time

	// OffsetSeconds is the segment start relative to meeting start.
	OffsetSeconds float64

	// EstimatedEndSeconds is the segment end, capped by the next segment's
	// start or the maximum single-segment duration, whichever is smaller.
	EstimatedEndSeconds float64

	// Text is the best transcript available before the final pass.
	Text string

	// snippet is the underlying record the apply step writes to.
	snippet *meeting.Snippet
}

// buildBaseline walks the meeting's snippets in timestamp order and
// produces the reconciliation baseline. Snippets whose resolved text is
// empty are dropped.
func buildBaseline(m *meeting.Meeting, maxSegmentSeconds float64) []BaselineSegment {
	ordered := m.SnippetsByTime()

	// Resolve texts first so empty snippets do not consume ordinals or
	// act as end caps.
	type resolved struct {
		snip *meeting.Snippet
		text string
	}
	kept := make([]resolved, 0, len(ordered))
	for _, s := range ordered {
		if text := strings.TrimSpace(s.ResolvedText()); text != "" {
			kept = append(kept, resolved{snip: s, text: text})
		}
	}

	segments := make([]BaselineSegment, 0, len(kept))
	for i, r := range kept {
		offset := r.snip.Timestamp.Sub(m.StartedAt).Seconds()
		if offset < 0 {
			offset = 0
		}

		end := offset + maxSegmentSeconds
		if i+1 < len(kept) {
			next := kept[i+1].snip.Timestamp.Sub(m.StartedAt).Seconds()
			if next > offset && next < end {
				end = next
			}
		}

		segments = append(segments, BaselineSegment{
			SegmentID:           fmt.Sprintf("seg-%04d", i+1),
			Speaker:             r.snip.UserID,
			StartedAt:           r.snip.Timestamp,
			OffsetSeconds:       offset,
			EstimatedEndSeconds: end,
			Text:                r.text,
			snippet:             r.snip,
		})
	}
	return segments
}
