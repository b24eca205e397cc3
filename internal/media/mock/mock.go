// Package mock provides an in-memory test double for the media.Toolkit
// interface. No files are touched; rendered clip paths are only recorded.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/quailholm/meetscribe/internal/media"
)

// RenderCall records a single invocation of RenderClip.
type RenderCall struct {
	Src, Dst           string
	StartSec, Duration float64
}

// Toolkit is a scripted implementation of media.Toolkit.
type Toolkit struct {
	mu sync.Mutex

	// Duration is returned by ProbeDuration.
	Duration float64

	// ProbeErr, if non-nil, makes ProbeDuration fail.
	ProbeErr error

	// RenderErr, if non-nil, makes every RenderClip call fail.
	RenderErr error

	// WriteClipFile controls whether RenderClip creates an empty file at
	// dst, so callers that open the rendered clip still work.
	WriteClipFile bool

	// RenderCalls records every RenderClip invocation in order.
	RenderCalls []RenderCall

	// ProbeCalls counts ProbeDuration invocations.
	ProbeCalls int
}

// Compile-time interface assertion.
var _ media.Toolkit = (*Toolkit)(nil)

// ProbeDuration returns the scripted duration or error.
func (t *Toolkit) ProbeDuration(ctx context.Context, path string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ProbeCalls++
	if t.ProbeErr != nil {
		return 0, t.ProbeErr
	}
	return t.Duration, nil
}

// RenderClip records the call and optionally creates an empty file at dst.
func (t *Toolkit) RenderClip(ctx context.Context, src, dst string, startSec, durationSec float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.RenderCalls = append(t.RenderCalls, RenderCall{
		Src: src, Dst: dst, StartSec: startSec, Duration: durationSec,
	})
	if t.RenderErr != nil {
		return t.RenderErr
	}
	if t.WriteClipFile {
		return os.WriteFile(dst, []byte("clip"), 0o644)
	}
	return nil
}
