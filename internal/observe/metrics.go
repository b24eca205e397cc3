// Package observe provides observability primitives for the transcription
// quality pipeline: OpenTelemetry metric instruments and a Prometheus
// exporter bridge so metrics stay scrapeable via the host process's
// /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) exists for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "github.com/quailholm/meetscribe"

// Metrics holds the metric instruments for the pipeline. All fields are
// safe for concurrent use — the underlying OTel types synchronise
// themselves.
type Metrics struct {
	// TranscriptionDuration tracks one speech backend call's latency in
	// seconds. Attributes: kind ("snippet"|"chunk"), status ("ok"|"error").
	TranscriptionDuration metric.Float64Histogram

	// TranscriptionRejections counts snippet calls rejected by the
	// bulkhead before reaching the backend.
	TranscriptionRejections metric.Int64Counter

	// GuardSuppressions counts transcripts emptied by a guard.
	// Attribute: reason ("low_confidence"|"prompt_echo").
	GuardSuppressions metric.Int64Counter

	// VoteDecisions counts completed votes. Attribute: winner
	// ("prompt"|"no_prompt").
	VoteDecisions metric.Int64Counter

	// FinalPassChunks counts processed final-pass chunks.
	// Attribute: status ("ok"|"error"|"skipped").
	FinalPassChunks metric.Int64Counter

	// FinalPassEdits counts accepted final-pass edits.
	// Attribute: action ("replace"|"drop").
	FinalPassEdits metric.Int64Counter

	// FinalPassFallbacks counts final-pass runs that discarded their edit
	// batch. Attribute: reason.
	FinalPassFallbacks metric.Int64Counter
}

// latencyBuckets defines histogram boundaries (seconds) covering both
// sub-second snippet calls and multi-minute chunk transcriptions.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.TranscriptionDuration, err = m.Float64Histogram("meetscribe.transcription.duration",
		metric.WithDescription("Latency of one speech backend call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionRejections, err = m.Int64Counter("meetscribe.transcription.rejections",
		metric.WithDescription("Snippet calls rejected by the bulkhead."),
	); err != nil {
		return nil, err
	}
	if met.GuardSuppressions, err = m.Int64Counter("meetscribe.guard.suppressions",
		metric.WithDescription("Transcripts emptied by a guard."),
	); err != nil {
		return nil, err
	}
	if met.VoteDecisions, err = m.Int64Counter("meetscribe.vote.decisions",
		metric.WithDescription("Completed transcription votes."),
	); err != nil {
		return nil, err
	}
	if met.FinalPassChunks, err = m.Int64Counter("meetscribe.finalpass.chunks",
		metric.WithDescription("Processed final-pass chunks."),
	); err != nil {
		return nil, err
	}
	if met.FinalPassEdits, err = m.Int64Counter("meetscribe.finalpass.edits",
		metric.WithDescription("Accepted final-pass edits."),
	); err != nil {
		return nil, err
	}
	if met.FinalPassFallbacks, err = m.Int64Counter("meetscribe.finalpass.fallbacks",
		metric.WithDescription("Final-pass runs that discarded their edit batch."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide [Metrics] built from the global OTel
// meter provider. Initialisation errors fall back to instruments from the
// global provider's no-op meter, so callers never receive nil.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation against a no-op provider cannot fail, so
			// this path only triggers with a misbehaving real provider.
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
