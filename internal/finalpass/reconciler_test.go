package finalpass_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quailholm/meetscribe/internal/finalpass"
	mediamock "github.com/quailholm/meetscribe/internal/media/mock"
	"github.com/quailholm/meetscribe/internal/meeting"
	"github.com/quailholm/meetscribe/pkg/provider/llm"
	llmmock "github.com/quailholm/meetscribe/pkg/provider/llm/mock"
	"github.com/quailholm/meetscribe/pkg/provider/stt"
	sttmock "github.com/quailholm/meetscribe/pkg/provider/stt/mock"
)

var t0 = time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

// testMeeting builds a meeting with one snippet per given (offsetSeconds,
// text) pair.
func testMeeting(snippets ...[2]any) *meeting.Meeting {
	m := &meeting.Meeting{
		ID:            "mtg-1",
		RecordingPath: "/recordings/mtg-1.m4a",
		StartedAt:     t0,
	}
	for i, s := range snippets {
		m.Snippets = append(m.Snippets, &meeting.Snippet{
			UserID:    fmt.Sprintf("user-%d", i),
			Timestamp: t0.Add(time.Duration(s[0].(int)) * time.Second),
			SlowText:  s[1].(string),
		})
	}
	return m
}

func enabledConfig(tempDir string) finalpass.Config {
	return finalpass.Config{Enabled: true, TempDir: tempDir}
}

func editsJSON(edits ...string) string {
	return `{"edits":[` + strings.Join(edits, ",") + `]}`
}

func TestRun_Disabled(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{}
	completer := &llmmock.Provider{}
	toolkit := &mediamock.Toolkit{Duration: 100}
	rec := finalpass.New(finalpass.Config{}, backend, completer, toolkit)

	m := testMeeting([2]any{0, "hello"})
	res := rec.Run(context.Background(), m)

	if res.Enabled {
		t.Error("Enabled=true for a disabled run")
	}
	if res.Applied || res.FallbackApplied {
		t.Errorf("disabled run did work: %+v", res)
	}
	if backend.CallCount() != 0 || completer.CallCount() != 0 || toolkit.ProbeCalls != 0 {
		t.Error("disabled run touched a backend")
	}
}

func TestRun_NoSegments(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{}
	completer := &llmmock.Provider{}
	toolkit := &mediamock.Toolkit{Duration: 100}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, ""}, [2]any{10, ""})
	res := rec.Run(context.Background(), m)
	if res.TotalSegments != 0 || res.TotalChunks != 0 {
		t.Errorf("got %d segments / %d chunks, want 0/0", res.TotalSegments, res.TotalChunks)
	}
	if res.Applied || res.FallbackApplied {
		t.Errorf("empty baseline still did work: %+v", res)
	}
	if toolkit.ProbeCalls != 0 {
		t.Error("probed the recording with no baseline to reconcile")
	}
}

func TestRun_SingleReplace(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{
		Results: []*stt.Result{{Text: "we should ship on friday and review the budget after standup"}},
	}
	completer := &llmmock.Provider{
		Responses: []string{editsJSON(
			`{"segmentId":"seg-0002","action":"replace","text":"review the budget","confidence":0.92,"reason":"misheard"}`,
		)},
	}
	toolkit := &mediamock.Toolkit{Duration: 90}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting(
		[2]any{0, "we should ship on friday"},
		[2]any{30, "review the buddy"},
		[2]any{60, "after standup"},
	)
	res := rec.Run(context.Background(), m)

	if res.FallbackApplied {
		t.Fatalf("unexpected fallback: %s", res.FallbackReason)
	}
	if !res.Applied {
		t.Fatal("edits not applied")
	}
	if res.TotalSegments != 3 || res.TotalChunks != 1 || res.ProcessedChunks != 1 {
		t.Errorf("counters: %+v", res)
	}
	if res.AcceptedEdits != 1 || res.ReplacedSegments != 1 || res.DroppedSegments != 0 {
		t.Errorf("edit counters: accepted=%d replaced=%d dropped=%d",
			res.AcceptedEdits, res.ReplacedSegments, res.DroppedSegments)
	}

	ordered := m.SnippetsByTime()
	if !ordered[1].FinalPassSet || ordered[1].FinalPassText != "review the budget" {
		t.Errorf("target snippet = %+v, want the replacement applied", ordered[1])
	}
	for _, i := range []int{0, 2} {
		if ordered[i].FinalPassSet {
			t.Errorf("snippet %d was touched: %+v", i, ordered[i])
		}
	}
	if res.RunID == "" {
		t.Error("RunID empty")
	}
}

func TestRun_MalformedResponseMeansNoEdits(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "some transcript"}}}
	completer := &llmmock.Provider{Responses: []string{"Sorry, I can't help with that."}}
	toolkit := &mediamock.Toolkit{Duration: 60}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, "alpha"}, [2]any{20, "beta"})
	res := rec.Run(context.Background(), m)

	if res.FallbackApplied {
		t.Fatalf("malformed output caused a fallback: %s", res.FallbackReason)
	}
	if !res.Applied {
		t.Error("run with zero edits should still complete the apply step")
	}
	if res.CandidateEdits != 0 || res.AcceptedEdits != 0 {
		t.Errorf("candidate=%d accepted=%d, want 0/0", res.CandidateEdits, res.AcceptedEdits)
	}
	for _, s := range m.Snippets {
		if s.FinalPassSet {
			t.Errorf("snippet touched despite zero edits: %+v", s)
		}
	}
}

func TestRun_ConfidenceFloorFiltersEdits(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "transcript"}}}
	completer := &llmmock.Provider{
		Responses: []string{editsJSON(
			`{"segmentId":"seg-0001","action":"replace","text":"changed","confidence":0.31}`,
		)},
	}
	toolkit := &mediamock.Toolkit{Duration: 60}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, "alpha"})
	res := rec.Run(context.Background(), m)

	if res.CandidateEdits != 1 {
		t.Errorf("CandidateEdits=%d, want 1", res.CandidateEdits)
	}
	if res.AcceptedEdits != 0 || res.ReplacedSegments != 0 {
		t.Errorf("low-confidence edit survived: %+v", res)
	}
	if m.Snippets[0].FinalPassSet {
		t.Error("snippet touched by a filtered edit")
	}
}

func TestRun_GuardrailDiscardsAllDrops(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "completely different content"}}}
	completer := &llmmock.Provider{
		Responses: []string{editsJSON(
			`{"segmentId":"seg-0001","action":"drop","confidence":0.9}`,
			`{"segmentId":"seg-0002","action":"drop","confidence":0.9}`,
			`{"segmentId":"seg-0003","action":"drop","confidence":0.9}`,
		)},
	}
	toolkit := &mediamock.Toolkit{Duration: 90}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, "alpha"}, [2]any{30, "beta"}, [2]any{60, "gamma"})
	res := rec.Run(context.Background(), m)

	if !res.FallbackApplied || res.FallbackReason != "guardrail_threshold" {
		t.Fatalf("fallback=%v reason=%q, want guardrail_threshold", res.FallbackApplied, res.FallbackReason)
	}
	if res.Applied {
		t.Error("Applied=true on a guardrail fallback")
	}
	if res.ReplacedSegments != 0 || res.DroppedSegments != 0 {
		t.Errorf("apply counters non-zero on fallback: %+v", res)
	}
	if res.AcceptedEdits != 3 {
		t.Errorf("AcceptedEdits=%d, want the validated count even on fallback", res.AcceptedEdits)
	}
	for _, s := range m.Snippets {
		if s.FinalPassSet {
			t.Errorf("snippet touched despite fallback: %+v", s)
		}
	}
}

func TestRun_TailContinuityAcrossChunks(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{
		Results: []*stt.Result{
			{Text: "first chunk transcript ending with a distinctive tail"},
			{Text: "second chunk transcript"},
		},
	}
	completer := &llmmock.Provider{Responses: []string{editsJSON()}}
	toolkit := &mediamock.Toolkit{Duration: 240}

	cfg := enabledConfig(t.TempDir())
	cfg.ChunkTargetSeconds = 120
	cfg.ChunkMinSeconds = 120
	rec := finalpass.New(cfg, backend, completer, toolkit)

	m := testMeeting([2]any{10, "early words"}, [2]any{150, "late words"})
	res := rec.Run(context.Background(), m)

	if res.TotalChunks != 2 || res.ProcessedChunks != 2 {
		t.Fatalf("chunks: total=%d processed=%d, want 2/2", res.TotalChunks, res.ProcessedChunks)
	}
	if backend.CallCount() != 2 {
		t.Fatalf("backend calls=%d, want 2", backend.CallCount())
	}
	if got := backend.Calls[0].Prompt; got != "" {
		t.Errorf("first chunk prompt=%q, want empty", got)
	}
	if got := backend.Calls[1].Prompt; got != "first chunk transcript ending with a distinctive tail" {
		t.Errorf("second chunk prompt=%q, want the first chunk's tail", got)
	}

	if len(toolkit.RenderCalls) != 2 {
		t.Fatalf("render calls=%d, want 2", len(toolkit.RenderCalls))
	}
	if toolkit.RenderCalls[0].StartSec != 0 || toolkit.RenderCalls[0].Duration != 120 {
		t.Errorf("first clip = %+v, want [0, 120)", toolkit.RenderCalls[0])
	}
	if toolkit.RenderCalls[1].StartSec != 120 || toolkit.RenderCalls[1].Duration != 120 {
		t.Errorf("second clip = %+v, want [120, 240)", toolkit.RenderCalls[1])
	}
}

func TestRun_StraddlingSegmentOfferedToBothChunks(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "transcript"}}}
	completer := &llmmock.Provider{Responses: []string{editsJSON()}}
	toolkit := &mediamock.Toolkit{Duration: 240}

	cfg := enabledConfig(t.TempDir())
	cfg.ChunkTargetSeconds = 120
	cfg.ChunkMinSeconds = 120
	rec := finalpass.New(cfg, backend, completer, toolkit)

	// 110 s + default 45 s cap straddles the 120 s boundary.
	m := testMeeting([2]any{110, "the straddling utterance"})
	rec.Run(context.Background(), m)

	if completer.CallCount() != 2 {
		t.Fatalf("llm calls=%d, want one per touching chunk", completer.CallCount())
	}
	for i, call := range completer.Calls {
		if !strings.Contains(call.Messages[0].Content, "seg-0001") {
			t.Errorf("chunk %d batch does not offer the straddling segment", i)
		}
	}
}

func TestRun_ChunkErrorSkipsAndKeepsTail(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{
		ErrOnCall: map[int]error{1: fmt.Errorf("upstream 500")},
		Results: []*stt.Result{
			{Text: "chunk zero transcript"},
			nil,
			{Text: "chunk two transcript"},
		},
	}
	completer := &llmmock.Provider{Responses: []string{editsJSON()}}
	toolkit := &mediamock.Toolkit{Duration: 360}

	cfg := enabledConfig(t.TempDir())
	cfg.ChunkTargetSeconds = 120
	cfg.ChunkMinSeconds = 120
	rec := finalpass.New(cfg, backend, completer, toolkit)

	m := testMeeting([2]any{10, "one"}, [2]any{130, "two"}, [2]any{250, "three"})
	res := rec.Run(context.Background(), m)

	if res.FallbackApplied {
		t.Fatalf("chunk error caused a fallback: %s", res.FallbackReason)
	}
	if res.TotalChunks != 3 || res.ProcessedChunks != 2 {
		t.Errorf("chunks: total=%d processed=%d, want 3 total / 2 processed", res.TotalChunks, res.ProcessedChunks)
	}
	if !res.Applied {
		t.Error("run did not reach the apply step")
	}

	// The failed middle chunk passes chunk zero's tail through to chunk two.
	if got := backend.Calls[2].Prompt; got != "chunk zero transcript" {
		t.Errorf("third chunk prompt=%q, want the surviving tail", got)
	}
}

func TestRun_ProbeFailureFallsBackToLastSegmentEnd(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "transcript"}}}
	completer := &llmmock.Provider{Responses: []string{editsJSON()}}
	toolkit := &mediamock.Toolkit{ProbeErr: fmt.Errorf("ffprobe: no such file")}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, "alpha"}, [2]any{50, "beta"})
	res := rec.Run(context.Background(), m)

	if res.FallbackApplied {
		t.Fatalf("probe failure caused a fallback: %s", res.FallbackReason)
	}
	// Estimated end of the last segment: 50 s + 45 s cap.
	if res.TotalChunks != 1 || res.ProcessedChunks != 1 {
		t.Errorf("chunks: total=%d processed=%d, want 1/1", res.TotalChunks, res.ProcessedChunks)
	}
	if len(toolkit.RenderCalls) != 1 || toolkit.RenderCalls[0].Duration != 95 {
		t.Errorf("render calls=%+v, want one clip covering 95 s", toolkit.RenderCalls)
	}
}

func TestRun_RerunWithZeroEditsIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "transcript"}}}
	toolkit := &mediamock.Toolkit{Duration: 60}

	first := finalpass.New(enabledConfig(t.TempDir()), backend,
		&llmmock.Provider{Responses: []string{editsJSON(
			`{"segmentId":"seg-0001","action":"replace","text":"corrected alpha","confidence":0.9}`,
		)}}, toolkit)

	m := testMeeting([2]any{0, "alpha"})
	if res := first.Run(context.Background(), m); res.ReplacedSegments != 1 {
		t.Fatalf("first run replaced %d segments, want 1", res.ReplacedSegments)
	}

	second := finalpass.New(enabledConfig(t.TempDir()), backend,
		&llmmock.Provider{Responses: []string{editsJSON()}}, toolkit)
	res := second.Run(context.Background(), m)

	if res.AcceptedEdits != 0 || res.ReplacedSegments != 0 {
		t.Errorf("rerun: accepted=%d replaced=%d, want 0/0", res.AcceptedEdits, res.ReplacedSegments)
	}
	if m.Snippets[0].FinalPassText != "corrected alpha" {
		t.Errorf("rerun disturbed the first run's correction: %q", m.Snippets[0].FinalPassText)
	}
}

func TestRun_PanicConvertsToRuntimeFallback(t *testing.T) {
	t.Parallel()

	backend := &sttmock.Transcriber{Results: []*stt.Result{{Text: "transcript"}}}
	completer := &llmmock.Provider{
		RespondFunc: func(req llm.CompletionRequest) string { panic("model client bug") },
	}
	toolkit := &mediamock.Toolkit{Duration: 60}
	rec := finalpass.New(enabledConfig(t.TempDir()), backend, completer, toolkit)

	m := testMeeting([2]any{0, "alpha"})
	res := rec.Run(context.Background(), m)

	if !res.FallbackApplied || res.FallbackReason != "runtime_error" {
		t.Fatalf("fallback=%v reason=%q, want runtime_error", res.FallbackApplied, res.FallbackReason)
	}
	if m.Snippets[0].FinalPassSet {
		t.Error("snippet touched by a panicking run")
	}
}
