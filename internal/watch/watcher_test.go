package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestWatcher(t *testing.T, dir string, out chan Segment) (*Watcher, *ProcessedSet) {
	t.Helper()
	set, err := OpenProcessedSet(filepath.Join(t.TempDir(), "processed.log"))
	if err != nil {
		t.Fatalf("OpenProcessedSet: %v", err)
	}
	t.Cleanup(func() { set.Close() })
	return New(dir, 10*time.Millisecond, set, out, zerolog.Nop()), set
}

func writeSegment(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// payload is large enough to pass the minimum-size stability check.
var payload = []byte(strings.Repeat("x", 4096))

func TestProcessedSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.log")

	set, err := OpenProcessedSet(path)
	if err != nil {
		t.Fatalf("OpenProcessedSet: %v", err)
	}

	novel, err := set.Mark("seg_000001.wav")
	if err != nil || !novel {
		t.Fatalf("Mark first = (%v, %v), want (true, nil)", novel, err)
	}
	novel, err = set.Mark("seg_000001.wav")
	if err != nil || novel {
		t.Fatalf("Mark duplicate = (%v, %v), want (false, nil)", novel, err)
	}
	set.Mark("seg_000002.wav")
	set.Close()

	// Reopening restores the set from the append-only log.
	set2, err := OpenProcessedSet(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer set2.Close()
	if !set2.Contains("seg_000001.wav") || !set2.Contains("seg_000002.wav") {
		t.Error("reopened set missing entries")
	}
	if set2.Len() != 2 {
		t.Errorf("Len = %d, want 2", set2.Len())
	}

	// Each filename appears exactly once in the log.
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "seg_000001.wav"); n != 1 {
		t.Errorf("log contains seg_000001.wav %d times, want 1", n)
	}
}

func TestScanEmitsEachSegmentOnce(t *testing.T) {
	dir := t.TempDir()
	out := make(chan Segment, 16)
	w, _ := newTestWatcher(t, dir, out)
	ctx := context.Background()

	writeSegment(t, dir, "seg_000001.wav", payload)
	writeSegment(t, dir, "seg_000002.wav", payload)
	writeSegment(t, dir, "notasegment.txt", payload)

	// First scan records sizes; second scan sees them stable and emits.
	w.scan(ctx)
	if len(out) != 0 {
		t.Fatalf("emitted %d segments on first observation, want 0 (stability check)", len(out))
	}
	w.scan(ctx)

	if got := len(out); got != 2 {
		t.Fatalf("emitted %d segments, want 2", got)
	}
	first, second := <-out, <-out
	if first.Index != 1 || second.Index != 2 {
		t.Errorf("discovery order = %d, %d; want 1, 2", first.Index, second.Index)
	}

	// Idempotence: further scans produce zero new dispatches.
	w.scan(ctx)
	w.scan(ctx)
	if len(out) != 0 {
		t.Errorf("rescan emitted %d segments, want 0", len(out))
	}
}

func TestScanWaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	out := make(chan Segment, 16)
	w, _ := newTestWatcher(t, dir, out)
	ctx := context.Background()

	writeSegment(t, dir, "seg_000001.wav", payload[:2048])
	w.scan(ctx)

	// File grows between scans: still being flushed.
	writeSegment(t, dir, "seg_000001.wav", payload)
	w.scan(ctx)
	if len(out) != 0 {
		t.Fatalf("emitted growing file, want 0")
	}

	// Size unchanged across two scans: now emitted.
	w.scan(ctx)
	if len(out) != 1 {
		t.Fatalf("emitted %d, want 1 after size stabilized", len(out))
	}
}

func TestScanSkipsSubMinimumFiles(t *testing.T) {
	dir := t.TempDir()
	out := make(chan Segment, 16)
	w, _ := newTestWatcher(t, dir, out)
	ctx := context.Background()

	// A bare WAV header with no samples stays stable but is never audio.
	writeSegment(t, dir, "seg_000001.wav", payload[:44])
	w.scan(ctx)
	w.scan(ctx)
	w.scan(ctx)
	if len(out) != 0 {
		t.Fatalf("emitted %d header-only segments, want 0", len(out))
	}
}

func TestScanOnceAfterWriterExit(t *testing.T) {
	dir := t.TempDir()
	out := make(chan Segment, 16)
	w, _ := newTestWatcher(t, dir, out)
	ctx := context.Background()

	// Never seen before, but the writer has exited, so one pass suffices.
	writeSegment(t, dir, "seg_000003.wav", payload)
	w.ScanOnce(ctx)
	if len(out) != 1 {
		t.Fatalf("ScanOnce emitted %d, want 1", len(out))
	}
	seg := <-out
	if seg.Index != 3 {
		t.Errorf("Index = %d, want 3", seg.Index)
	}

	// Zero-length leftovers are never dispatched.
	writeSegment(t, dir, "seg_000004.wav", nil)
	w.ScanOnce(ctx)
	if len(out) != 0 {
		t.Errorf("ScanOnce emitted empty segment")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	out := make(chan Segment, 16)
	w, _ := newTestWatcher(t, dir, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	writeSegment(t, dir, "seg_000001.wav", payload)

	select {
	case seg := <-out:
		if seg.Index != 1 {
			t.Errorf("Index = %d, want 1", seg.Index)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("segment not discovered within 2s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestParseIndex(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"seg_000001.wav", 1},
		{"seg_000042.wav", 42},
		{"seg_123456.wav", 123456},
		{"full.wav", -1},
	}
	for _, tc := range cases {
		if got := parseIndex(tc.name); got != tc.want {
			t.Errorf("parseIndex(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}
