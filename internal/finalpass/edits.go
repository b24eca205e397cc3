package finalpass

import (
	"encoding/json"
	"strings"
)

// Edit actions proposed by the completion backend.
const (
	ActionReplace = "replace"
	ActionDrop    = "drop"
)

// Edit is one proposed correction to a baseline segment. Ephemeral —
// produced per batch, validated, and either merged or discarded.
type Edit struct {
	// SegmentID references the baseline segment to correct.
	SegmentID string `json:"segmentId"`

	// Action is "replace" or "drop".
	Action string `json:"action"`

	// Text is the replacement transcript. Required for replace.
	Text string `json:"text,omitempty"`

	// Confidence is the backend's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Reason is an optional free-text justification, kept for logs.
	Reason string `json:"reason,omitempty"`
}

// editsResponse is the JSON object the completion backend is instructed to
// return.
type editsResponse struct {
	Edits []Edit `json:"edits"`
}

// parseEdits extracts proposed edits from the backend's reply. Code fences
// are stripped first. Non-JSON or schema-invalid content yields zero edits,
// never an error — reconciliation degrades to "keep existing text".
func parseEdits(content string) []Edit {
	cleaned := stripFences(content)
	if cleaned == "" {
		return nil
	}

	var r editsResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil
	}
	return r.Edits
}

// stripFences removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// editMerger accumulates usable edits across chunks, keeping the highest
// confidence edit per segment. A boundary segment reconciled by two
// adjacent chunks may receive two independent proposals; confidence, not
// arrival order, decides which survives.
type editMerger struct {
	confidenceFloor float64
	baseline        map[string]string // segment id → current text
	accepted        map[string]Edit
}

func newEditMerger(confidenceFloor float64, segments []BaselineSegment) *editMerger {
	baseline := make(map[string]string, len(segments))
	for _, s := range segments {
		baseline[s.SegmentID] = s.Text
	}
	return &editMerger{
		confidenceFloor: confidenceFloor,
		baseline:        baseline,
		accepted:        make(map[string]Edit),
	}
}

// add validates one proposed edit and merges it when usable. Returns
// whether the edit was merged.
func (m *editMerger) add(e Edit) bool {
	current, known := m.baseline[e.SegmentID]
	if !known || e.Confidence < m.confidenceFloor {
		return false
	}

	switch e.Action {
	case ActionReplace:
		text := strings.TrimSpace(e.Text)
		if text == "" || text == current {
			// Empty or no-op replacement.
			return false
		}
		e.Text = text
	case ActionDrop:
	default:
		return false
	}

	if prev, ok := m.accepted[e.SegmentID]; ok && prev.Confidence >= e.Confidence {
		return false
	}
	m.accepted[e.SegmentID] = e
	return true
}

// results returns the merged edits and the count per action.
func (m *editMerger) results() (edits map[string]Edit, replaces, drops int) {
	for _, e := range m.accepted {
		if e.Action == ActionDrop {
			drops++
		} else {
			replaces++
		}
	}
	return m.accepted, replaces, drops
}
