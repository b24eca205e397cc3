// Package transcribe implements the resilient per-snippet transcription
// client: one speech backend call per captured utterance, executed under
// explicit resource and failure discipline.
//
// Policies compose around every call, outermost to innermost:
//
//   - bulkhead: at most N concurrent calls, a bounded waiting queue, and
//     rejection beyond it (back-pressure to the capture layer)
//   - circuit breaker: consecutive failures short-circuit further calls for
//     a cool-down window
//   - retry: exponential backoff up to a fixed attempt cap
//   - rate limiter: minimum inter-call spacing, independent of concurrency
//
// A snippet whose retries are exhausted yields the literal
// [FailureSentinel] text instead of an error, so meeting assembly continues
// uninterrupted. Temp audio files are always removed, success or not.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/quailholm/meetscribe/internal/observe"
	"github.com/quailholm/meetscribe/internal/resilience"
	"github.com/quailholm/meetscribe/pkg/provider/stt"
)

// FailureSentinel is the literal text a snippet resolves to when every
// transcription attempt failed. Downstream consumers display it verbatim.
const FailureSentinel = "[transcription unavailable]"

// defaultBackendRate is the sample rate the backend upload is resampled to.
const defaultBackendRate = 16000

// Config holds the client's backend parameters and resource limits.
// Zero-value fields are replaced with defaults by [NewClient].
type Config struct {
	// Model and Language are forwarded on every backend request.
	Model    string
	Language string

	// BackendSampleRate is the mono sample rate of uploaded audio.
	// Default: 16000.
	BackendSampleRate int

	// MaxConcurrent and MaxQueued configure the bulkhead.
	MaxConcurrent int
	MaxQueued     int

	// BreakerTripAfter and BreakerCoolDown configure the circuit breaker.
	BreakerTripAfter int
	BreakerCoolDown  time.Duration

	// RetryAttempts and RetryBaseDelay configure the retry policy.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// MinCallSpacing is the minimum interval between backend calls,
	// applied independently of concurrency. Default: 250ms.
	MinCallSpacing time.Duration

	// TempDir is where snippet WAV files are staged. Empty means the
	// system temp directory.
	TempDir string
}

// Result is the raw outcome of one snippet transcription, before the guard
// and vote stages run.
type Result struct {
	// Text is the backend transcript, or [FailureSentinel] when Failed.
	Text string

	// Logprobs holds the backend's token log-probabilities, when any.
	Logprobs []stt.TokenLogprob

	// RateMismatch reports the snippet's PCM/format inconsistency finding.
	RateMismatch bool

	// Failed reports that retries were exhausted and Text is the sentinel.
	Failed bool
}

// Client issues resilient speech-to-text calls. All policy objects are
// owned by the client instance — nothing is shared module-wide — so limits
// are per-deployment and tests never leak breaker state into each other.
// Safe for concurrent use.
type Client struct {
	backend stt.Transcriber
	cfg     Config

	bulkhead *resilience.Bulkhead
	breaker  *resilience.Breaker
	retry    *resilience.Retry
	limiter  *rate.Limiter
	metrics  *observe.Metrics
}

// NewClient builds a [Client] around the given backend. Zero-value config
// fields receive defaults; the policy defaults come from the resilience
// package.
func NewClient(backend stt.Transcriber, cfg Config) *Client {
	if cfg.BackendSampleRate <= 0 {
		cfg.BackendSampleRate = defaultBackendRate
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.MinCallSpacing <= 0 {
		cfg.MinCallSpacing = 250 * time.Millisecond
	}
	return &Client{
		backend: backend,
		cfg:     cfg,
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "transcribe",
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueued:     cfg.MaxQueued,
		}),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:      "transcribe",
			TripAfter: cfg.BreakerTripAfter,
			CoolDown:  cfg.BreakerCoolDown,
		}),
		retry: resilience.NewRetry(resilience.RetryConfig{
			Name:      "transcribe",
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
		}),
		limiter: rate.NewLimiter(rate.Every(cfg.MinCallSpacing), 1),
		metrics: observe.Default(),
	}
}

// TranscribeSnippet converts the snippet's PCM to the backend format,
// uploads it with the domain prompt, and returns the raw transcript and
// log-probabilities.
//
// The only error returned is bulkhead rejection ([resilience.ErrBulkheadFull])
// or cancellation while queued — resource exhaustion the caller must decide
// about. Every other failure mode degrades to a Result carrying
// [FailureSentinel].
func (c *Client) TranscribeSnippet(ctx context.Context, snip *AudioSnippet, prompt string) (*Result, error) {
	result := &Result{RateMismatch: snip.RateMismatch()}

	pcm := snip.PCM()
	if len(pcm) == 0 {
		return result, nil
	}

	err := c.bulkhead.Do(ctx, func() error {
		backendRes, callErr := c.transcribeOnce(ctx, snip, pcm, prompt)
		if callErr != nil {
			return callErr
		}
		result.Text = backendRes.Text
		result.Logprobs = backendRes.Logprobs
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, resilience.ErrBulkheadFull):
		c.metrics.TranscriptionRejections.Add(ctx, 1)
		return nil, fmt.Errorf("transcribe: snippet rejected: %w", err)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return nil, fmt.Errorf("transcribe: %w", err)
	default:
		slog.Warn("snippet transcription failed, substituting sentinel",
			"user_id", snip.UserID,
			"error", err)
		result.Text = FailureSentinel
		result.Failed = true
		return result, nil
	}
}

// transcribeOnce stages the snippet as a backend-format WAV temp file and
// runs the breaker/retry/limiter stack around the backend call. The temp
// file is removed on every path.
func (c *Client) transcribeOnce(ctx context.Context, snip *AudioSnippet, pcm []byte, prompt string) (*stt.Result, error) {
	mono := pcm
	if snip.Format.Channels == 2 {
		mono = stereoToMono(mono)
	}
	mono = resampleMono16(mono, snip.Format.SampleRate, c.cfg.BackendSampleRate)
	wav := encodeWAV(mono, c.cfg.BackendSampleRate, 1)

	f, err := os.CreateTemp(c.cfg.TempDir, "snippet-*.wav")
	if err != nil {
		return nil, fmt.Errorf("transcribe: create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(wav); err != nil {
		f.Close()
		return nil, fmt.Errorf("transcribe: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: close temp file: %w", err)
	}

	var backendRes *stt.Result
	err = c.breaker.Do(func() error {
		return c.retry.Do(ctx, func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			start := time.Now()
			res, callErr := c.backend.Transcribe(ctx, stt.Request{
				FilePath:        path,
				Model:           c.cfg.Model,
				Language:        c.cfg.Language,
				Prompt:          prompt,
				Temperature:     0,
				IncludeLogprobs: true,
			})
			c.recordCall("snippet", time.Since(start), callErr)
			if callErr != nil {
				return callErr
			}
			backendRes = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return backendRes, nil
}

// recordCall records one backend call's latency and status.
func (c *Client) recordCall(kind string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.TranscriptionDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
}
