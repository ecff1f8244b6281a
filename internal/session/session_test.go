package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAdvance(t *testing.T) {
	order := []State{StateIdle, StateRecording, StateStopping, StateFinalizing, StateDone}
	for i := 0; i < len(order)-1; i++ {
		got, err := Advance(order[i])
		if err != nil {
			t.Fatalf("Advance(%s): %v", order[i], err)
		}
		if got != order[i+1] {
			t.Errorf("Advance(%s) = %s, want %s", order[i], got, order[i+1])
		}
	}

	// Done is terminal; the machine never moves backward.
	if _, err := Advance(StateDone); err == nil {
		t.Error("Advance(done) should fail")
	}
	if _, err := Advance(State("bogus")); err == nil {
		t.Error("Advance(bogus) should fail")
	}
}

func TestNewSessionLayout(t *testing.T) {
	out := t.TempDir()
	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	s, err := NewSession(out, start, "base.en", "large-v3")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if s.Name() != "session-20260314-103000" {
		t.Errorf("Name = %q", s.Name())
	}
	if filepath.Dir(s.AudioPath) != s.Dir {
		t.Errorf("AudioPath %q not under session dir %q", s.AudioPath, s.Dir)
	}
	if !strings.HasPrefix(s.TranscriptBase(), s.Dir) {
		t.Errorf("TranscriptBase %q not under session dir", s.TranscriptBase())
	}

	info, err := os.Stat(s.SegmentDir)
	if err != nil || !info.IsDir() {
		t.Errorf("segment dir not created: %v", err)
	}
}
