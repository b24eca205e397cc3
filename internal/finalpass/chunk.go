package finalpass

// ChunkWindow is one fixed-size slice [StartSec, EndSec) of the full
// recording.
type ChunkWindow struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// chunkSeconds computes the chunk length: bounded above by the configured
// target duration and by both byte-derived caps (target and hard ceiling,
// each divided by the estimated encoding rate), and bounded below by the
// minimum floor. The result always keeps a rendered chunk under the speech
// backend's per-request size limit.
func chunkSeconds(cfg Config) float64 {
	secs := cfg.ChunkTargetSeconds

	bps := float64(cfg.EstimatedBytesPerSecond)
	if byTarget := float64(cfg.ChunkTargetBytes) / bps; byTarget < secs {
		secs = byTarget
	}
	if byHard := float64(cfg.ChunkHardBytes) / bps; byHard < secs {
		secs = byHard
	}
	if secs < cfg.ChunkMinSeconds {
		secs = cfg.ChunkMinSeconds
	}
	return secs
}

// planChunks partitions [0, totalSeconds) into fixed-size windows.
func planChunks(totalSeconds, windowSeconds float64) []ChunkWindow {
	if totalSeconds <= 0 || windowSeconds <= 0 {
		return nil
	}

	var windows []ChunkWindow
	for start := 0.0; start < totalSeconds; start += windowSeconds {
		end := min(start+windowSeconds, totalSeconds)
		windows = append(windows, ChunkWindow{
			Index:    len(windows),
			StartSec: start,
			EndSec:   end,
		})
	}
	return windows
}

// overlapping returns the baseline segments whose estimated time range
// intersects w. A segment straddling a window boundary is returned for
// every window it touches, which deliberately gives boundary segments a
// reconciliation chance in each of them.
func overlapping(segments []BaselineSegment, w ChunkWindow) []BaselineSegment {
	var out []BaselineSegment
	for _, s := range segments {
		if s.OffsetSeconds < w.EndSec && s.EstimatedEndSeconds > w.StartSec {
			out = append(out, s)
		}
	}
	return out
}
