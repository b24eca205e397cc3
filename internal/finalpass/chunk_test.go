package finalpass

import (
	"strings"
	"testing"
)

func TestChunkSeconds_ByteCapShrinksWindow(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ChunkTargetSeconds:      600,
		ChunkMinSeconds:         120,
		ChunkTargetBytes:        4_800_000, // 300 s at the estimated rate
		ChunkHardBytes:          24 << 20,
		EstimatedBytesPerSecond: 16000,
	}
	if got := chunkSeconds(cfg); got != 300 {
		t.Errorf("chunkSeconds=%f, want 300 from the byte cap", got)
	}
}

func TestChunkSeconds_FloorWins(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ChunkTargetSeconds:      600,
		ChunkMinSeconds:         120,
		ChunkTargetBytes:        160_000, // 10 s at the estimated rate
		ChunkHardBytes:          24 << 20,
		EstimatedBytesPerSecond: 16000,
	}
	if got := chunkSeconds(cfg); got != 120 {
		t.Errorf("chunkSeconds=%f, want the 120 s floor", got)
	}
}

func TestPlanChunks(t *testing.T) {
	t.Parallel()

	windows := planChunks(1000, 400)
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	if windows[0].StartSec != 0 || windows[0].EndSec != 400 {
		t.Errorf("window 0 = [%f, %f), want [0, 400)", windows[0].StartSec, windows[0].EndSec)
	}
	if windows[2].StartSec != 800 || windows[2].EndSec != 1000 {
		t.Errorf("window 2 = [%f, %f), want [800, 1000)", windows[2].StartSec, windows[2].EndSec)
	}
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("window %d has Index=%d", i, w.Index)
		}
	}

	if got := planChunks(0, 400); got != nil {
		t.Errorf("planChunks(0, 400)=%v, want nil", got)
	}
}

func TestOverlapping_BoundarySegmentInBothWindows(t *testing.T) {
	t.Parallel()

	segments := []BaselineSegment{
		{SegmentID: "seg-0001", OffsetSeconds: 10, EstimatedEndSeconds: 30},
		{SegmentID: "seg-0002", OffsetSeconds: 390, EstimatedEndSeconds: 420},
		{SegmentID: "seg-0003", OffsetSeconds: 500, EstimatedEndSeconds: 520},
	}
	first := overlapping(segments, ChunkWindow{StartSec: 0, EndSec: 400})
	second := overlapping(segments, ChunkWindow{StartSec: 400, EndSec: 800})

	if len(first) != 2 || first[1].SegmentID != "seg-0002" {
		t.Errorf("first window got %v, want seg-0001 and the straddler", ids(first))
	}
	if len(second) != 2 || second[0].SegmentID != "seg-0002" {
		t.Errorf("second window got %v, want the straddler and seg-0003", ids(second))
	}
}

func ids(segments []BaselineSegment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.SegmentID
	}
	return out
}

func TestBatchSegments(t *testing.T) {
	t.Parallel()

	long := BaselineSegment{SegmentID: "seg-0001", Speaker: "a", Text: strings.Repeat("word ", 100)}
	short := BaselineSegment{SegmentID: "seg-0002", Speaker: "b", Text: "ok"}

	// Budget fits only one long segment per batch.
	batches := batchSegments([]BaselineSegment{long, long, short}, 600)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	for i, b := range batches {
		if len(b) != 1 {
			t.Errorf("batch %d has %d segments, want 1", i, len(b))
		}
	}

	// An oversized single segment still forms a batch of one.
	batches = batchSegments([]BaselineSegment{long}, 10)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Errorf("oversized segment not batched alone: %d batches", len(batches))
	}

	if got := batchSegments(nil, 600); got != nil {
		t.Errorf("batchSegments(nil)=%v, want nil", got)
	}
}

func TestParseEdits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "plain json",
			content: `{"edits":[{"segmentId":"seg-0001","action":"replace","text":"fixed","confidence":0.9}]}`,
			want:    1,
		},
		{
			name:    "fenced json",
			content: "```json\n{\"edits\":[{\"segmentId\":\"seg-0001\",\"action\":\"drop\",\"confidence\":0.8}]}\n```",
			want:    1,
		},
		{
			name:    "empty edits",
			content: `{"edits":[]}`,
			want:    0,
		},
		{
			name:    "prose instead of json",
			content: "I could not find any mistakes in these segments.",
			want:    0,
		},
		{
			name:    "empty content",
			content: "",
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseEdits(tt.content); len(got) != tt.want {
				t.Errorf("parseEdits returned %d edits, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEditMerger(t *testing.T) {
	t.Parallel()

	segments := []BaselineSegment{
		{SegmentID: "seg-0001", Text: "original one"},
		{SegmentID: "seg-0002", Text: "original two"},
	}
	m := newEditMerger(0.60, segments)

	if m.add(Edit{SegmentID: "seg-0001", Action: ActionReplace, Text: "better one", Confidence: 0.3}) {
		t.Error("edit below the confidence floor was merged")
	}
	if m.add(Edit{SegmentID: "seg-9999", Action: ActionDrop, Confidence: 0.9}) {
		t.Error("edit for an unknown segment was merged")
	}
	if m.add(Edit{SegmentID: "seg-0001", Action: ActionReplace, Text: "original one", Confidence: 0.9}) {
		t.Error("no-op replacement was merged")
	}
	if m.add(Edit{SegmentID: "seg-0001", Action: ActionReplace, Text: "   ", Confidence: 0.9}) {
		t.Error("empty replacement was merged")
	}
	if m.add(Edit{SegmentID: "seg-0001", Action: "rewrite", Text: "x", Confidence: 0.9}) {
		t.Error("unknown action was merged")
	}

	if !m.add(Edit{SegmentID: "seg-0001", Action: ActionReplace, Text: "better one", Confidence: 0.7}) {
		t.Fatal("valid replace was not merged")
	}
	// A lower-confidence proposal for the same segment loses.
	if m.add(Edit{SegmentID: "seg-0001", Action: ActionDrop, Confidence: 0.65}) {
		t.Error("lower-confidence proposal overwrote the merged edit")
	}
	// A strictly higher-confidence proposal wins.
	if !m.add(Edit{SegmentID: "seg-0001", Action: ActionReplace, Text: "best one", Confidence: 0.95}) {
		t.Fatal("higher-confidence proposal was not merged")
	}
	if !m.add(Edit{SegmentID: "seg-0002", Action: ActionDrop, Confidence: 0.8}) {
		t.Fatal("valid drop was not merged")
	}

	edits, replaces, drops := m.results()
	if len(edits) != 2 || replaces != 1 || drops != 1 {
		t.Errorf("results: %d edits, %d replaces, %d drops; want 2/1/1", len(edits), replaces, drops)
	}
	if e := edits["seg-0001"]; e.Text != "best one" {
		t.Errorf("seg-0001 merged text %q, want the highest-confidence proposal", e.Text)
	}
}
