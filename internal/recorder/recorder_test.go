package recorder

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestContinuousArgs(t *testing.T) {
	opts := Options{Device: "default", SampleRate: 16000, Channels: 1, Log: zerolog.Nop()}
	args := ContinuousArgs(opts, "/tmp/session/full.wav")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-ar 16000") {
		t.Errorf("args missing sample rate: %v", args)
	}
	if !strings.Contains(joined, "-ac 1") {
		t.Errorf("args missing channel count: %v", args)
	}
	if args[len(args)-1] != "/tmp/session/full.wav" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestSegmentArgs(t *testing.T) {
	opts := Options{Device: "default", SampleRate: 16000, Channels: 1, Log: zerolog.Nop()}
	args := SegmentArgs(opts, "/tmp/session/segments", 30)

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-f segment") {
		t.Errorf("args missing segment muxer: %v", args)
	}
	if !strings.Contains(joined, "-segment_time 30") {
		t.Errorf("args missing segment duration: %v", args)
	}
	want := filepath.Join("/tmp/session/segments", SegmentPattern)
	if args[len(args)-1] != want {
		t.Errorf("last arg = %q, want %q", args[len(args)-1], want)
	}
}

func TestInputArgsPlatform(t *testing.T) {
	args := inputArgs("default")
	if len(args) != 4 || args[0] != "-f" || args[2] != "-i" {
		t.Fatalf("unexpected input args shape: %v", args)
	}
	if runtime.GOOS == "linux" && args[1] != "pulse" {
		t.Errorf("input format = %q, want pulse on linux", args[1])
	}
}
