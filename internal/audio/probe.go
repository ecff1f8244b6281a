package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// minAudioBytes is the smallest file we treat as a plausible recording.
// A bare WAV header with no samples is 44 bytes.
const minAudioBytes = 128

// Duration returns the length of an audio file in seconds, via ffprobe.
func Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return 0, fmt.Errorf("ffprobe %s: %s", path, strings.TrimSpace(string(ee.Stderr)))
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// CheckRecording verifies a recording exists and holds actual audio data.
// It distinguishes "not found" from "empty/corrupt" in the returned error.
func CheckRecording(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("recording not found: %s", path)
		}
		return fmt.Errorf("stat recording %s: %w", path, err)
	}
	if info.Size() < minAudioBytes {
		return fmt.Errorf("recording is empty or truncated (%d bytes): %s", info.Size(), path)
	}
	return nil
}

// SizeStable reports whether the file's size matches prev. Callers use two
// consecutive observations to decide a segment is fully flushed.
func SizeStable(path string, prev int64) (stable bool, size int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0, err
	}
	return info.Size() == prev && prev >= minAudioBytes, info.Size(), nil
}
