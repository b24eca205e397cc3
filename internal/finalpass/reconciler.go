// Package finalpass implements the end-of-meeting reconciliation pass.
//
// During a meeting every utterance is transcribed in isolation, which makes
// short snippets vulnerable to hallucination and lost context. After the
// meeting ends the [Reconciler] re-transcribes the full recording in large
// overlapping-context chunks, asks a completion backend to compare each
// chunk's fresh transcript against the baseline snippet transcripts, and
// applies the accepted corrections in a single atomic step.
//
// The pass is strictly best-effort: chunk transcription failures skip the
// chunk, unparseable completion output yields zero edits, and guardrail
// ratios discard the whole edit batch rather than let a misbehaving model
// rewrite the meeting. A run never makes the transcript worse than the
// baseline it started from.
package finalpass

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/quailholm/meetscribe/internal/media"
	"github.com/quailholm/meetscribe/internal/meeting"
	"github.com/quailholm/meetscribe/internal/observe"
	"github.com/quailholm/meetscribe/internal/signal"
	"github.com/quailholm/meetscribe/pkg/provider/llm"
	"github.com/quailholm/meetscribe/pkg/provider/stt"
)

// Fallback reasons recorded when a run discards its edit batch.
const (
	fallbackGuardrail = "guardrail_threshold"
	fallbackRuntime   = "runtime_error"
)

// llmTemperature is the sampling temperature for reconciliation requests.
// Low, not zero: a little variance helps the model commit to edits it is
// confident about instead of emitting empty batches.
const llmTemperature = 0.1

// Config controls one reconciliation run.
type Config struct {
	// Enabled gates the whole pass. Disabled runs return immediately with
	// every counter zero.
	Enabled bool

	// Model and Language are passed through to the speech backend for
	// chunk transcription. Empty Language defaults to "en".
	Model    string
	Language string

	// ConfidenceFloor is the minimum self-reported confidence for an edit
	// to be considered. Default 0.60.
	ConfidenceFloor float64

	// DropRatioCeiling discards the run's edits when the fraction of
	// segments dropped exceeds it. Default 0.15.
	DropRatioCeiling float64

	// ChangeRatioCeiling discards the run's edits when the fraction of
	// segments changed (replaced or dropped) exceeds it. Default 0.40.
	ChangeRatioCeiling float64

	// ChunkTargetSeconds is the preferred chunk duration. Default 600.
	ChunkTargetSeconds float64

	// ChunkMinSeconds is the chunk duration floor. Default 120.
	ChunkMinSeconds float64

	// ChunkTargetBytes and ChunkHardBytes cap the rendered chunk size;
	// the chunk duration shrinks to honour them at the estimated encoding
	// rate. Defaults 18 MiB and 24 MiB.
	ChunkTargetBytes int64
	ChunkHardBytes   int64

	// EstimatedBytesPerSecond is the assumed size of one rendered second
	// of audio. Default 16000 (128 kbit/s mono MP3).
	EstimatedBytesPerSecond int64

	// TailContextChars is how much of a chunk transcript's tail primes the
	// next chunk's transcription. Default 600.
	TailContextChars int

	// BatchCharBudget bounds the formatted segment listing per completion
	// request. Default 6000.
	BatchCharBudget int

	// MaxSegmentSeconds caps a baseline segment's estimated duration when
	// no later segment bounds it. Default 45.
	MaxSegmentSeconds float64

	// TempDir receives rendered chunk clips. Empty means the OS default.
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = 0.60
	}
	if c.DropRatioCeiling == 0 {
		c.DropRatioCeiling = 0.15
	}
	if c.ChangeRatioCeiling == 0 {
		c.ChangeRatioCeiling = 0.40
	}
	if c.ChunkTargetSeconds == 0 {
		c.ChunkTargetSeconds = 600
	}
	if c.ChunkMinSeconds == 0 {
		c.ChunkMinSeconds = 120
	}
	if c.ChunkTargetBytes == 0 {
		c.ChunkTargetBytes = 18 << 20
	}
	if c.ChunkHardBytes == 0 {
		c.ChunkHardBytes = 24 << 20
	}
	if c.EstimatedBytesPerSecond == 0 {
		c.EstimatedBytesPerSecond = 16000
	}
	if c.TailContextChars == 0 {
		c.TailContextChars = 600
	}
	if c.BatchCharBudget == 0 {
		c.BatchCharBudget = 6000
	}
	if c.MaxSegmentSeconds == 0 {
		c.MaxSegmentSeconds = 45
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	return c
}

// Result summarises one reconciliation run.
type Result struct {
	// RunID uniquely identifies the run in logs and temp file names.
	RunID string

	// Enabled reports whether the pass was configured to run at all.
	Enabled bool

	// Applied reports whether the merged edits were written to the
	// meeting. False when disabled, when there was nothing to do, or when
	// a guardrail or runtime failure discarded the batch.
	Applied bool

	// ProcessedChunks counts chunks whose transcription succeeded, out of
	// TotalChunks planned.
	ProcessedChunks int
	TotalChunks     int

	// TotalSegments is the baseline size.
	TotalSegments int

	// CandidateEdits counts edits proposed by the completion backend
	// before validation; AcceptedEdits counts those that survived
	// validation and merging.
	CandidateEdits int
	AcceptedEdits  int

	// ReplacedSegments and DroppedSegments count edits actually applied.
	// Both stay zero when FallbackApplied is set.
	ReplacedSegments int
	DroppedSegments  int

	// FallbackApplied reports that the run discarded its edit batch;
	// FallbackReason says why.
	FallbackApplied bool
	FallbackReason  string
}

// Reconciler runs the final pass over a finished meeting. Safe for
// concurrent use across distinct meetings; a single meeting must not be
// reconciled by two runs at once.
type Reconciler struct {
	cfg     Config
	stt     stt.Transcriber
	llm     llm.Provider
	media   media.Toolkit
	metrics *observe.Metrics
}

// New returns a [Reconciler] wired to the given backends.
func New(cfg Config, transcriber stt.Transcriber, provider llm.Provider, toolkit media.Toolkit) *Reconciler {
	return &Reconciler{
		cfg:     cfg.withDefaults(),
		stt:     transcriber,
		llm:     provider,
		media:   toolkit,
		metrics: observe.Default(),
	}
}

// Run reconciles the meeting's baseline transcripts against fresh
// full-context chunk transcriptions and applies the surviving edits.
//
// Run never returns an error and never panics: any runtime failure that
// escapes the per-chunk handling converts to a fallback result with the
// meeting left untouched.
func (r *Reconciler) Run(ctx context.Context, m *meeting.Meeting) (res *Result) {
	res = &Result{RunID: uuid.NewString(), Enabled: r.cfg.Enabled}

	log := observe.Logger(ctx).With("meeting_id", m.ID, "run_id", res.RunID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("final pass panicked, edits discarded", "panic", rec)
			r.fallback(ctx, res, fallbackRuntime)
		}
	}()

	if !r.cfg.Enabled {
		return res
	}

	segments := buildBaseline(m, r.cfg.MaxSegmentSeconds)
	res.TotalSegments = len(segments)
	if len(segments) == 0 {
		log.Info("final pass skipped, no baseline segments")
		return res
	}

	duration := r.probeDuration(ctx, m, segments, log)
	windows := planChunks(duration, chunkSeconds(r.cfg))
	res.TotalChunks = len(windows)

	log.Info("final pass started",
		"segments", len(segments),
		"chunks", len(windows),
		"duration_seconds", duration,
	)

	merger := newEditMerger(r.cfg.ConfidenceFloor, segments)
	prevTail := ""

	for _, w := range windows {
		if ctx.Err() != nil {
			log.Warn("final pass aborted", "error", ctx.Err())
			r.fallback(ctx, res, fallbackRuntime)
			return res
		}
		prevTail = r.processChunk(ctx, m, w, segments, merger, prevTail, res, log)
	}

	edits, replaces, drops := merger.results()
	res.AcceptedEdits = len(edits)

	total := float64(len(segments))
	dropRatio := float64(drops) / total
	changeRatio := float64(replaces+drops) / total
	if dropRatio > r.cfg.DropRatioCeiling || changeRatio > r.cfg.ChangeRatioCeiling {
		log.Warn("final pass guardrail tripped, edits discarded",
			"drop_ratio", dropRatio,
			"change_ratio", changeRatio,
			"accepted_edits", res.AcceptedEdits,
		)
		r.fallback(ctx, res, fallbackGuardrail)
		return res
	}

	r.apply(ctx, segments, edits, res)

	log.Info("final pass completed",
		"processed_chunks", res.ProcessedChunks,
		"accepted_edits", res.AcceptedEdits,
		"replaced", res.ReplacedSegments,
		"dropped", res.DroppedSegments,
	)
	return res
}

// probeDuration asks the media toolkit for the recording length. When the
// probe fails or reports nonsense, the last baseline segment's estimated
// end stands in so every segment still lands inside some chunk window.
func (r *Reconciler) probeDuration(ctx context.Context, m *meeting.Meeting, segments []BaselineSegment, log *slog.Logger) float64 {
	duration, err := r.media.ProbeDuration(ctx, m.RecordingPath)
	if err == nil && duration > 0 {
		return duration
	}
	fallback := segments[len(segments)-1].EstimatedEndSeconds
	log.Warn("recording duration probe failed, using last segment end",
		"path", m.RecordingPath,
		"fallback_seconds", fallback,
		"error", err,
	)
	return fallback
}

// processChunk renders, transcribes, and reconciles one chunk window. It
// returns the tail context for the next chunk: the fresh transcript's tail
// on success, the incoming tail unchanged on any failure or skip.
func (r *Reconciler) processChunk(
	ctx context.Context,
	m *meeting.Meeting,
	w ChunkWindow,
	segments []BaselineSegment,
	merger *editMerger,
	prevTail string,
	res *Result,
	log *slog.Logger,
) string {
	ctx, span := observe.StartSpan(ctx, "finalpass.chunk")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chunk.index", w.Index),
		attribute.Float64("chunk.start_sec", w.StartSec),
		attribute.Float64("chunk.end_sec", w.EndSec),
	)

	overlap := overlapping(segments, w)
	if len(overlap) == 0 {
		r.metrics.FinalPassChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "skipped")))
		return prevTail
	}

	transcript, logprobs, err := r.transcribeChunk(ctx, m.RecordingPath, w, prevTail, res.RunID)
	if err != nil {
		log.Warn("chunk transcription failed, chunk skipped",
			"chunk", w.Index,
			"error", err,
		)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.FinalPassChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return prevTail
	}
	res.ProcessedChunks++

	for _, batch := range batchSegments(overlap, r.cfg.BatchCharBudget) {
		edits, err := r.requestEdits(ctx, transcript, logprobs, batch)
		if err != nil {
			log.Warn("reconciliation request failed, batch skipped",
				"chunk", w.Index,
				"segments", len(batch),
				"error", err,
			)
			continue
		}
		res.CandidateEdits += len(edits)
		for _, e := range edits {
			merger.add(e)
		}
	}

	r.metrics.FinalPassChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	return tail(transcript, r.cfg.TailContextChars)
}

// transcribeChunk renders the window to a temporary clip and transcribes
// it with the previous chunk's tail as the continuity prompt. The clip is
// removed before returning.
func (r *Reconciler) transcribeChunk(ctx context.Context, recordingPath string, w ChunkWindow, prevTail, runID string) (string, *signal.LogprobMetrics, error) {
	clip := filepath.Join(r.cfg.TempDir, fmt.Sprintf("finalpass-%s-chunk-%03d.mp3", runID, w.Index))
	if err := r.media.RenderClip(ctx, recordingPath, clip, w.StartSec, w.EndSec-w.StartSec); err != nil {
		return "", nil, fmt.Errorf("render chunk %d: %w", w.Index, err)
	}
	defer os.Remove(clip)

	start := time.Now()
	result, err := r.stt.Transcribe(ctx, stt.Request{
		FilePath:        clip,
		Model:           r.cfg.Model,
		Language:        r.cfg.Language,
		Prompt:          prevTail,
		Temperature:     0,
		IncludeLogprobs: true,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("kind", "chunk"),
		attribute.String("status", status),
	))
	if err != nil {
		return "", nil, fmt.Errorf("transcribe chunk %d: %w", w.Index, err)
	}

	return result.Text, signal.LogprobMetricsFrom(result.Logprobs), nil
}

// requestEdits asks the completion backend to reconcile one segment batch
// against the chunk transcript. Unparseable output is zero edits, not an
// error.
func (r *Reconciler) requestEdits(ctx context.Context, transcript string, logprobs *signal.LogprobMetrics, batch []BaselineSegment) ([]Edit, error) {
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  llmTemperature,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserMessage(transcript, logprobs, batch)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile batch: %w", err)
	}
	return parseEdits(resp.Content), nil
}

// apply writes the merged edits to the meeting snippets. All writes happen
// here and nowhere else, so a run that falls back earlier leaves every
// snippet untouched.
func (r *Reconciler) apply(ctx context.Context, segments []BaselineSegment, edits map[string]Edit, res *Result) {
	for _, s := range segments {
		e, ok := edits[s.SegmentID]
		if !ok {
			continue
		}
		switch e.Action {
		case ActionReplace:
			s.snippet.FinalPassText = e.Text
			s.snippet.FinalPassSet = true
			res.ReplacedSegments++
			r.metrics.FinalPassEdits.Add(ctx, 1, metric.WithAttributes(attribute.String("action", ActionReplace)))
		case ActionDrop:
			s.snippet.FinalPassText = ""
			s.snippet.FinalPassSet = true
			res.DroppedSegments++
			r.metrics.FinalPassEdits.Add(ctx, 1, metric.WithAttributes(attribute.String("action", ActionDrop)))
		}
	}
	res.Applied = true
}

// fallback marks the run as discarded without touching the meeting.
func (r *Reconciler) fallback(ctx context.Context, res *Result, reason string) {
	res.Applied = false
	res.ReplacedSegments = 0
	res.DroppedSegments = 0
	res.FallbackApplied = true
	res.FallbackReason = reason
	r.metrics.FinalPassFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// tail returns the last n runes of s without splitting a multi-byte rune.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
