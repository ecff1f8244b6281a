package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckRecordingMissing(t *testing.T) {
	err := CheckRecording(filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestCheckRecordingEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	// A bare header with no samples does not count as a recording.
	if err := os.WriteFile(path, make([]byte, 44), 0o644); err != nil {
		t.Fatal(err)
	}
	err := CheckRecording(path)
	if err == nil || !strings.Contains(err.Error(), "empty or truncated") {
		t.Errorf("err = %v, want empty or truncated", err)
	}
}

func TestCheckRecordingOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.wav")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckRecording(path); err != nil {
		t.Errorf("CheckRecording: %v", err)
	}
}

func TestSizeStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.wav")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	stable, size, err := SizeStable(path, 0)
	if err != nil || stable {
		t.Errorf("first observation stable = %v, err = %v", stable, err)
	}
	if size != 1024 {
		t.Errorf("size = %d", size)
	}

	stable, _, err = SizeStable(path, 1024)
	if err != nil || !stable {
		t.Errorf("second observation stable = %v, err = %v", stable, err)
	}

	// A tiny file never stabilizes into a dispatchable segment.
	tiny := filepath.Join(t.TempDir(), "tiny.wav")
	os.WriteFile(tiny, []byte("x"), 0o644)
	if stable, _, _ := SizeStable(tiny, 1); stable {
		t.Error("sub-minimum file reported stable")
	}
}
