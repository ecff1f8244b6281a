package split

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
)

const silencedetectOutput = `Input #0, wav, from 'meeting.wav':
  Duration: 00:05:00.00, bitrate: 256 kb/s
[silencedetect @ 0x7f8] silence_start: 45.2
[silencedetect @ 0x7f8] silence_end: 47.1 | silence_duration: 1.9
[silencedetect @ 0x7f8] silence_start: 130.5
[silencedetect @ 0x7f8] silence_end: 132.0 | silence_duration: 1.5
frame= 1234 fps=0.0 q=-0.0 size=N/A time=00:05:00.00
`

func TestParseSilences(t *testing.T) {
	silences := ParseSilences(strings.NewReader(silencedetectOutput))
	if len(silences) != 2 {
		t.Fatalf("parsed %d silences, want 2", len(silences))
	}
	if silences[0].Start != 45.2 || silences[0].End != 47.1 {
		t.Errorf("first silence = %+v", silences[0])
	}
	if d := silences[1].Duration(); math.Abs(d-1.5) > 1e-9 {
		t.Errorf("second silence duration = %g, want 1.5", d)
	}
}

func TestParseSilencesIgnoresOrphanEnd(t *testing.T) {
	out := `[silencedetect @ 0x7f8] silence_end: 10.0 | silence_duration: 2.0`
	if got := ParseSilences(strings.NewReader(out)); len(got) != 0 {
		t.Errorf("orphan silence_end produced %+v", got)
	}
}

func TestSumSilenceDurations(t *testing.T) {
	got := SumSilenceDurations(strings.NewReader(silencedetectOutput))
	if math.Abs(got-3.4) > 1e-9 {
		t.Errorf("summed %g, want 3.4", got)
	}
}

func TestSplitPointsAtSilenceMidpoints(t *testing.T) {
	silences := []Silence{
		{Start: 45, End: 47},   // midpoint 46, past the 30s minimum
		{Start: 60, End: 61},   // midpoint 60.5, only 14.5s after the cut
		{Start: 130, End: 132}, // midpoint 131
	}
	spans := SplitPoints(silences, 300, 30, 120)

	want := []Span{{0, 46}, {46, 131}, {131, 300}}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v, want %+v", spans, want)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span[%d] = %+v, want %+v", i, spans[i], want[i])
		}
	}
}

func TestSplitPointsNoSilencesUsesFixedWindows(t *testing.T) {
	spans := SplitPoints(nil, 290, 30, 120)
	want := []Span{{0, 120}, {120, 240}, {240, 290}}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v, want %+v", spans, want)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span[%d] = %+v, want %+v", i, spans[i], want[i])
		}
	}
}

func TestSplitPointsShortFileSingleSpan(t *testing.T) {
	silences := []Silence{{Start: 5, End: 6}}
	spans := SplitPoints(silences, 20, 30, 120)
	if len(spans) != 1 || spans[0] != (Span{0, 20}) {
		t.Errorf("spans = %+v, want one full-file span", spans)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	meta := &Metadata{
		SourceFile:    "meeting.wav",
		TotalSegments: 1,
		Segments: []Segment{
			{Filename: "segment_001.wav", Start: 0, End: 46, Duration: 46, Index: 1},
		},
	}
	if err := WriteMetadata(path, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.SourceFile != "meeting.wav" || len(got.Segments) != 1 {
		t.Errorf("round trip = %+v", got)
	}
	if got.Segments[0] != meta.Segments[0] {
		t.Errorf("segment = %+v, want %+v", got.Segments[0], meta.Segments[0])
	}
}
