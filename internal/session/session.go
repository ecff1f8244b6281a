// Package session coordinates one recording-to-transcript run: the two
// recorder processes, live segment captioning, and the final pass.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is one recording/transcription run, identified by its start
// timestamp. All of its files live under Dir.
type Session struct {
	StartedAt    time.Time
	Dir          string
	AudioPath    string // continuous whole-session recording
	SegmentDir   string
	ProcessedLog string
	LiveModel    string
	FinalModel   string
}

// NewSession creates the working directory layout for a run starting at now.
func NewSession(outputDir string, now time.Time, liveModel, finalModel string) (*Session, error) {
	stamp := now.Format("20060102-150405")
	dir := filepath.Join(outputDir, "session-"+stamp)
	segDir := filepath.Join(dir, "segments")

	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	return &Session{
		StartedAt:    now,
		Dir:          dir,
		AudioPath:    filepath.Join(dir, "full.wav"),
		SegmentDir:   segDir,
		ProcessedLog: filepath.Join(dir, "processed.log"),
		LiveModel:    liveModel,
		FinalModel:   finalModel,
	}, nil
}

// Name returns the timestamped session identifier.
func (s *Session) Name() string {
	return "session-" + s.StartedAt.Format("20060102-150405")
}

// TranscriptBase returns the base path (no extension) for final artifacts.
func (s *Session) TranscriptBase() string {
	return filepath.Join(s.Dir, s.Name())
}
