// Command meetscribe runs the final-pass reconciler over a finished
// meeting: it loads a meeting manifest (recording path plus the accepted
// per-snippet transcripts), re-transcribes the recording in large chunks,
// reconciles the baseline against the fresh transcripts, and prints the
// corrected transcript on stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/quailholm/meetscribe/internal/config"
	"github.com/quailholm/meetscribe/internal/finalpass"
	"github.com/quailholm/meetscribe/internal/media"
	"github.com/quailholm/meetscribe/internal/meeting"
	"github.com/quailholm/meetscribe/internal/observe"
	"github.com/quailholm/meetscribe/pkg/provider/llm"
	"github.com/quailholm/meetscribe/pkg/provider/llm/anyllm"
	oaillm "github.com/quailholm/meetscribe/pkg/provider/llm/openai"
	"github.com/quailholm/meetscribe/pkg/provider/stt"
	"github.com/quailholm/meetscribe/pkg/provider/stt/whisperapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	manifestPath := flag.String("meeting", "", "path to the meeting manifest to reconcile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "meetscribe: %v\n", err)
		return 1
	}
	cfg.ApplyDefaults()

	slog.SetDefault(newLogger(cfg.Logging.Level))

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "meetscribe: -meeting is required")
		return 1
	}

	m, err := meeting.LoadManifest(*manifestPath)
	if err != nil {
		slog.Error("failed to load meeting manifest", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		slog.Error("failed to build speech backend", "err", err)
		return 1
	}
	completer, err := buildCompleter(cfg)
	if err != nil {
		slog.Error("failed to build completion backend", "err", err)
		return 1
	}

	rec := finalpass.New(finalpass.Config{
		Enabled:            cfg.FinalPass.Enabled,
		Model:              cfg.Providers.STT.Model,
		Language:           cfg.Client.Language,
		ConfidenceFloor:    cfg.FinalPass.ConfidenceFloor,
		DropRatioCeiling:   cfg.FinalPass.DropRatioCeiling,
		ChangeRatioCeiling: cfg.FinalPass.ChangeRatioCeiling,
		ChunkTargetSeconds: cfg.FinalPass.ChunkTargetSeconds,
		ChunkMinSeconds:    cfg.FinalPass.ChunkMinSeconds,
		TempDir:            cfg.FinalPass.TempDir,
	}, transcriber, completer, &media.Production{})

	res := rec.Run(ctx, m)
	if res.FallbackApplied {
		slog.Warn("final pass fell back, transcript unchanged", "reason", res.FallbackReason)
	}

	printTranscript(m)
	return 0
}

// buildTranscriber constructs the configured speech backend.
func buildTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	entry := cfg.Providers.STT
	switch entry.Name {
	case "whisper":
		var opts []whisperapi.Option
		if entry.APIKey != "" {
			opts = append(opts, whisperapi.WithAPIKey(entry.APIKey))
		}
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		return whisperapi.New(entry.BaseURL, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// buildCompleter constructs the configured completion backend. "openai"
// uses the native client; the remaining vendors go through any-llm.
func buildCompleter(cfg *config.Config) (llm.Provider, error) {
	entry := cfg.Providers.LLM
	switch entry.Name {
	case "openai":
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	case "anthropic", "gemini", "ollama":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	case "":
		return nil, errors.New("providers.llm is not configured")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

// printTranscript writes the reconciled transcript to stdout, skipping
// snippets the final pass dropped.
func printTranscript(m *meeting.Meeting) {
	for _, s := range m.SnippetsByTime() {
		text := s.ResolvedText()
		if s.FinalPassSet {
			text = s.FinalPassText
		}
		if text == "" {
			continue
		}
		offset := s.Timestamp.Sub(m.StartedAt).Round(time.Second)
		fmt.Printf("[%s] %s: %s\n", offset, s.UserID, text)
	}
}

// newLogger builds a text slog handler at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
