// Package media is the audio-file seam used by the final pass: probing the
// full-meeting recording for its duration and rendering time-bounded,
// compressed sub-clips sized for the speech backend's upload limit.
//
// Toolkit is an explicit interface so the reconciler can be tested against
// an in-memory fake; Production shells out to ffmpeg/ffprobe.
package media

import "context"

// Toolkit abstracts the audio file operations the final pass performs.
type Toolkit interface {
	// ProbeDuration returns the duration of the audio file at path, in
	// seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// RenderClip writes the slice [startSec, startSec+durationSec) of src
	// to dst as 128 kbit/s mono MP3, the format the speech backend accepts
	// within its upload ceiling.
	RenderClip(ctx context.Context, src, dst string, startSec, durationSec float64) error
}
