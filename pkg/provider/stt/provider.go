// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Unlike streaming STT APIs, the quality pipeline works in whole-utterance
// batches: every call submits one finished audio file (a snippet WAV or a
// rendered final-pass chunk) and receives the full transcript plus optional
// token-level log-probabilities. Implementations must be safe for concurrent
// use; resource discipline (rate limiting, bulkheading, retries) is layered
// on top by the caller, not inside the backend client.
package stt

import "context"

// Request describes a single batch transcription call.
type Request struct {
	// FilePath is the audio file to transcribe. The file must be in a
	// container the backend accepts (WAV for snippets, MP3/M4A for chunks).
	FilePath string

	// Model selects the backend model (e.g., "whisper-1"). Empty means the
	// backend default.
	Model string

	// Language is the BCP-47 language code hint (e.g., "en").
	Language string

	// Prompt is the optional priming text. For snippets this carries the
	// domain vocabulary prompt; for final-pass chunks it carries the
	// previous chunk's trailing transcript as a continuity hint.
	Prompt string

	// Temperature is the sampling temperature. The pipeline always uses 0.
	Temperature float64

	// IncludeLogprobs requests token-level log-probabilities when the
	// backend supports them.
	IncludeLogprobs bool
}

// TokenLogprob is one token's log-probability as reported by the backend.
type TokenLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// Result is the backend's response to a Request.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Logprobs holds per-token log-probabilities. Nil when the backend did
	// not return any (older models, IncludeLogprobs false).
	Logprobs []TokenLogprob
}

// Transcriber is the abstraction over any batch speech-to-text backend.
type Transcriber interface {
	// Transcribe submits the audio file described by req and blocks until
	// the backend responds or ctx is cancelled. A cancelled context is
	// returned as an error so retry policies can treat it as a failure.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
