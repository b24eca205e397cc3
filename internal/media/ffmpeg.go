package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Production implements [Toolkit] by shelling out to ffmpeg and ffprobe,
// which must be on PATH. The zero value is ready to use.
type Production struct {
	// FFmpegPath and FFprobePath override the binary names. Empty means
	// "ffmpeg" / "ffprobe".
	FFmpegPath  string
	FFprobePath string
}

// Compile-time interface assertion.
var _ Toolkit = (*Production)(nil)

func (p *Production) ffmpeg() string {
	if p.FFmpegPath != "" {
		return p.FFmpegPath
	}
	return "ffmpeg"
}

func (p *Production) ffprobe() string {
	if p.FFprobePath != "" {
		return p.FFprobePath
	}
	return "ffprobe"
}

// ProbeDuration implements [Toolkit] using
// ffprobe -show_entries format=duration.
func (p *Production) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("media: ffprobe %q: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse ffprobe duration %q: %w", out.String(), err)
	}
	return dur, nil
}

// RenderClip implements [Toolkit] by transcoding the requested slice to
// mono 128 kbit/s MP3. Seeking (-ss) before the input keeps extraction fast
// on long recordings.
func (p *Production) RenderClip(ctx context.Context, src, dst string, startSec, durationSec float64) error {
	cmd := exec.CommandContext(ctx, p.ffmpeg(),
		"-y",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", src,
		"-ac", "1",
		"-b:a", "128k",
		"-f", "mp3",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("media: ffmpeg render %q [%s+%s]: %w: %s",
			src, formatSeconds(startSec), formatSeconds(durationSec), err,
			strings.TrimSpace(stderr.String()))
	}
	return nil
}

// formatSeconds renders a second count the way ffmpeg expects it.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
