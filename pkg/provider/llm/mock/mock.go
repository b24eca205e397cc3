// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled completion responses without
// a live model backend and to verify the prompts the reconciler built.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"edits": []}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/quailholm/meetscribe/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
//
// Responses are consumed in order, one per call; when the list is exhausted
// the last entry is repeated. An empty Responses list yields empty content.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of reply contents returned by Complete.
	Responses []string

	// RespondFunc, if non-nil, overrides Responses entirely and computes the
	// reply content from the request.
	RespondFunc func(req llm.CompletionRequest) string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every request in order (read after test).
	Calls []llm.CompletionRequest
}

// Complete records the call and returns the scripted response or error.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.Calls)
	p.Calls = append(p.Calls, req)

	if p.Err != nil {
		return nil, p.Err
	}
	if p.RespondFunc != nil {
		return &llm.CompletionResponse{Content: p.RespondFunc(req)}, nil
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	return &llm.CompletionResponse{Content: p.Responses[idx]}, nil
}

// CallCount returns the number of Complete calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
