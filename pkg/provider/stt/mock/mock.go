// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber in unit tests to feed controlled transcription results
// without a live speech backend and to inspect the requests the pipeline
// issued. All fields should be set before the first call; mutating them
// during concurrent calls is the caller's responsibility.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Results: []*stt.Result{{Text: "hello there"}},
//	}
//	res, err := tr.Transcribe(ctx, stt.Request{FilePath: "a.wav"})
package mock

import (
	"context"
	"sync"

	"github.com/quailholm/meetscribe/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
//
// Results are consumed in order, one per call; when the list is exhausted the
// last entry is repeated. Set Err to make every call fail, or ErrOnCall to
// fail only specific calls (zero-based indices).
type Transcriber struct {
	mu sync.Mutex

	// Results is the sequence of results returned by successive calls.
	Results []*stt.Result

	// Err, if non-nil, is returned by every call.
	Err error

	// ErrOnCall maps zero-based call indices to injected errors. Takes
	// precedence over Results for those calls but not over Err.
	ErrOnCall map[int]error

	// Calls records every request in order (read after test).
	Calls []stt.Request
}

// Transcribe records the call and returns the scripted result or error.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.Calls)
	t.Calls = append(t.Calls, req)

	if t.Err != nil {
		return nil, t.Err
	}
	if err, ok := t.ErrOnCall[idx]; ok {
		return nil, err
	}
	if len(t.Results) == 0 {
		return &stt.Result{}, nil
	}
	if idx >= len(t.Results) {
		idx = len(t.Results) - 1
	}
	return t.Results[idx], nil
}

// CallCount returns the number of calls made so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
