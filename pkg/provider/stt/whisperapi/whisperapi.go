// Package whisperapi provides a Transcriber backed by an OpenAI-compatible
// audio transcription HTTP endpoint (POST {base}/v1/audio/transcriptions).
//
// The client uploads the audio file as multipart/form-data together with the
// model, language, priming prompt, and temperature fields, and asks for
// token-level log-probabilities when the caller requests them. It works
// against the hosted OpenAI API as well as self-hosted servers that speak the
// same protocol.
//
// Usage:
//
//	t, err := whisperapi.New("https://api.openai.com",
//	    whisperapi.WithAPIKey("sk-..."),
//	    whisperapi.WithModel("whisper-1"),
//	)
//	res, err := t.Transcribe(ctx, stt.Request{FilePath: "utterance.wav", Language: "en"})
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quailholm/meetscribe/pkg/provider/stt"
)

const defaultTimeout = 2 * time.Minute

// Compile-time assertion that Client implements stt.Transcriber.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent in the Authorization header.
// Self-hosted servers typically need none.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithModel sets the default model used when a Request leaves Model empty.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 2 minutes,
// which accommodates final-pass chunks of several hundred seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements stt.Transcriber against an OpenAI-compatible endpoint.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a Client for the server at baseURL (e.g.,
// "https://api.openai.com" or "http://localhost:8080"). baseURL must be
// non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("whisperapi: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// transcriptionResponse is the JSON body returned by the endpoint. The
// logprobs array is present only when include[]=logprobs was requested and
// the model supports it.
type transcriptionResponse struct {
	Text     string             `json:"text"`
	Logprobs []stt.TokenLogprob `json:"logprobs"`
}

// Transcribe implements stt.Transcriber.
func (c *Client) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("whisperapi: open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	model := req.Model
	if model == "" {
		model = c.model
	}

	fields := []struct{ name, value string }{
		{"model", model},
		{"language", req.Language},
		{"prompt", req.Prompt},
		{"temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64)},
		{"response_format", "json"},
	}
	for _, fld := range fields {
		if fld.value == "" {
			continue
		}
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return nil, fmt.Errorf("whisperapi: write field %q: %w", fld.name, err)
		}
	}
	if req.IncludeLogprobs {
		if err := mw.WriteField("include[]", "logprobs"); err != nil {
			return nil, fmt.Errorf("whisperapi: write include field: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, fmt.Errorf("whisperapi: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("whisperapi: copy audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisperapi: close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/v1/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisperapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisperapi: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount of the error body for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisperapi: server returned HTTP %d: %s", resp.StatusCode, snippet)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisperapi: read response body: %w", err)
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("whisperapi: parse JSON response: %w", err)
	}

	return &stt.Result{Text: tr.Text, Logprobs: tr.Logprobs}, nil
}
