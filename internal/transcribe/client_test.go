package transcribe_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quailholm/meetscribe/internal/resilience"
	"github.com/quailholm/meetscribe/internal/signal"
	"github.com/quailholm/meetscribe/internal/transcribe"
	"github.com/quailholm/meetscribe/pkg/provider/stt"
	"github.com/quailholm/meetscribe/pkg/provider/stt/mock"
)

// testSnippet builds a short mono snippet at the backend rate so no
// resampling applies.
func testSnippet(samples int) *transcribe.AudioSnippet {
	pcm := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(1000)))
	}
	return &transcribe.AudioSnippet{
		UserID:    "alice",
		Timestamp: time.Now(),
		Chunks:    [][]byte{pcm},
		Format:    signal.PCMFormat{SampleRate: 16000, Channels: 1},
	}
}

func fastConfig(tempDir string) transcribe.Config {
	return transcribe.Config{
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
		MinCallSpacing: time.Microsecond,
		TempDir:        tempDir,
	}
}

func TestTranscribeSnippet_Success(t *testing.T) {
	t.Parallel()

	backend := &mock.Transcriber{
		Results: []*stt.Result{{
			Text:     "hello there",
			Logprobs: []stt.TokenLogprob{{Token: "hello", Logprob: -0.1}},
		}},
	}
	c := transcribe.NewClient(backend, fastConfig(t.TempDir()))

	res, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), "vocab prompt")
	if err != nil {
		t.Fatalf("TranscribeSnippet returned %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("Text=%q, want %q", res.Text, "hello there")
	}
	if res.Failed {
		t.Error("Failed set on a successful result")
	}
	if len(res.Logprobs) != 1 {
		t.Errorf("Logprobs len=%d, want 1", len(res.Logprobs))
	}

	if backend.CallCount() != 1 {
		t.Fatalf("backend calls=%d, want 1", backend.CallCount())
	}
	req := backend.Calls[0]
	if req.Prompt != "vocab prompt" {
		t.Errorf("Prompt=%q, want the domain prompt", req.Prompt)
	}
	if req.Temperature != 0 {
		t.Errorf("Temperature=%f, want 0", req.Temperature)
	}
	if !req.IncludeLogprobs {
		t.Error("IncludeLogprobs not set")
	}
	if req.Language != "en" {
		t.Errorf("Language=%q, want default en", req.Language)
	}
}

func TestTranscribeSnippet_EmptyAudio(t *testing.T) {
	t.Parallel()

	backend := &mock.Transcriber{}
	c := transcribe.NewClient(backend, fastConfig(t.TempDir()))

	snip := &transcribe.AudioSnippet{
		UserID: "bob",
		Format: signal.PCMFormat{SampleRate: 16000, Channels: 1},
	}
	res, err := c.TranscribeSnippet(context.Background(), snip, "")
	if err != nil {
		t.Fatalf("TranscribeSnippet returned %v", err)
	}
	if res.Text != "" || res.Failed {
		t.Errorf("got %+v for empty audio, want empty non-failed result", res)
	}
	if backend.CallCount() != 0 {
		t.Errorf("backend called %d times for empty audio", backend.CallCount())
	}
}

func TestTranscribeSnippet_SentinelOnExhaustedRetries(t *testing.T) {
	t.Parallel()

	backend := &mock.Transcriber{Err: errors.New("upstream 500")}
	c := transcribe.NewClient(backend, fastConfig(t.TempDir()))

	res, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), "")
	if err != nil {
		t.Fatalf("TranscribeSnippet returned %v, want sentinel degradation instead", err)
	}
	if !res.Failed {
		t.Error("Failed not set after exhausted retries")
	}
	if res.Text != transcribe.FailureSentinel {
		t.Errorf("Text=%q, want %q", res.Text, transcribe.FailureSentinel)
	}
	if backend.CallCount() != 2 {
		t.Errorf("backend calls=%d, want one per retry attempt", backend.CallCount())
	}
}

func TestTranscribeSnippet_RetryRecovers(t *testing.T) {
	t.Parallel()

	backend := &mock.Transcriber{
		ErrOnCall: map[int]error{0: errors.New("transient")},
		Results:   []*stt.Result{{Text: "second try"}},
	}
	c := transcribe.NewClient(backend, fastConfig(t.TempDir()))

	res, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), "")
	if err != nil {
		t.Fatalf("TranscribeSnippet returned %v", err)
	}
	if res.Failed || res.Text != "second try" {
		t.Errorf("got %+v, want recovery on the second attempt", res)
	}
}

func TestTranscribeSnippet_BulkheadRejectionIsAnError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 8)
	backend := &slowTranscriber{started: started, release: release}

	cfg := fastConfig(t.TempDir())
	cfg.MaxConcurrent = 1
	cfg.MaxQueued = 1
	c := transcribe.NewClient(backend, cfg)

	// Occupy the single execution slot.
	holder := make(chan error, 1)
	go func() {
		_, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), "")
		holder <- err
	}()
	<-started

	// With the slot held, two more concurrent calls race for the single
	// queue position: exactly one queues, the other is rejected at once.
	racers := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), "")
			racers <- err
		}()
	}

	select {
	case err := <-racers:
		if !errors.Is(err, resilience.ErrBulkheadFull) {
			t.Fatalf("first returning call got %v, want ErrBulkheadFull", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("never observed a bulkhead rejection")
	}

	close(release)
	if err := <-holder; err != nil {
		t.Errorf("slot-holding call returned %v, want nil", err)
	}
	if err := <-racers; err != nil {
		t.Errorf("queued call returned %v, want nil", err)
	}
}

// slowTranscriber blocks every call until release is closed.
type slowTranscriber struct {
	started chan struct{}
	release chan struct{}
}

func (s *slowTranscriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	s.started <- struct{}{}
	select {
	case <-s.release:
		return &stt.Result{Text: "done"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTranscribeSnippet_TempFileRemoved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var seenPath string
	backend := &recordingTranscriber{onCall: func(req stt.Request) (*stt.Result, error) {
		seenPath = req.FilePath
		if _, err := os.Stat(req.FilePath); err != nil {
			t.Errorf("staged WAV missing during the call: %v", err)
		}
		return &stt.Result{Text: "ok"}, nil
	}}
	c := transcribe.NewClient(backend, fastConfig(dir))

	if _, err := c.TranscribeSnippet(context.Background(), testSnippet(1600), ""); err != nil {
		t.Fatalf("TranscribeSnippet returned %v", err)
	}

	if seenPath == "" {
		t.Fatal("backend never saw a file path")
	}
	if filepath.Dir(seenPath) != dir {
		t.Errorf("temp file %q not staged under %q", seenPath, dir)
	}
	if !strings.HasSuffix(seenPath, ".wav") {
		t.Errorf("temp file %q is not a .wav", seenPath)
	}
	if _, err := os.Stat(seenPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file %q still exists after the call", seenPath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not empty after success: %d entries", len(entries))
	}
}

// recordingTranscriber delegates each call to onCall.
type recordingTranscriber struct {
	onCall func(req stt.Request) (*stt.Result, error)
}

func (r *recordingTranscriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	return r.onCall(req)
}

func TestTranscribeSnippet_RateMismatchFlag(t *testing.T) {
	t.Parallel()

	backend := &mock.Transcriber{Results: []*stt.Result{{Text: "ok"}}}
	c := transcribe.NewClient(backend, fastConfig(t.TempDir()))

	// Stereo frames are 4 bytes; an odd byte total cannot divide evenly.
	snip := &transcribe.AudioSnippet{
		UserID: "carol",
		Chunks: [][]byte{make([]byte, 1402)},
		Format: signal.PCMFormat{SampleRate: 16000, Channels: 2},
	}
	res, err := c.TranscribeSnippet(context.Background(), snip, "")
	if err != nil {
		t.Fatalf("TranscribeSnippet returned %v", err)
	}
	if !res.RateMismatch {
		t.Error("RateMismatch not flagged for a truncated frame")
	}
}
