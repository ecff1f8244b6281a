package cleaner

import (
	"strings"
	"testing"
)

func TestRemoveMetadataLines(t *testing.T) {
	in := strings.Join([]string{
		"======================================================================",
		"MASTER TRANSCRIPT - ALL MEETINGS",
		"Date: 2026-03-14 10:30:00",
		"=== seg_000001.wav (0.0s - 30.0s) ===",
		"actual speech here",
		"Source file: meeting_20260314_103000.wav",
		"more speech",
	}, "\n")

	out := RemoveMetadataLines(in)
	if strings.Contains(out, "MASTER TRANSCRIPT") || strings.Contains(out, "Date:") ||
		strings.Contains(out, "seg_000001") || strings.Contains(out, "Source file") {
		t.Errorf("metadata survived: %q", out)
	}
	if !strings.Contains(out, "actual speech here") || !strings.Contains(out, "more speech") {
		t.Errorf("speech was removed: %q", out)
	}
}

func TestRemoveInaudibleMarkers(t *testing.T) {
	in := "before [INAUDIBLE] middle (murmullos) after [Música] end (Background Noise)"
	out := RemoveInaudibleMarkers(in)
	for _, marker := range []string{"[INAUDIBLE]", "(murmullos)", "[Música]", "Noise"} {
		if strings.Contains(out, marker) {
			t.Errorf("marker %q survived: %q", marker, out)
		}
	}
	if !strings.Contains(out, "before") || !strings.Contains(out, "end") {
		t.Errorf("speech was removed: %q", out)
	}
}

func TestRemoveSpamLines(t *testing.T) {
	in := "real content\nPlease like and subscribe to my channel\nmore real content\nHãy đăng ký kênh"
	out := RemoveSpamLines(in)
	if strings.Contains(strings.ToLower(out), "subscribe") || strings.Contains(out, "đăng ký") {
		t.Errorf("spam survived: %q", out)
	}
	if !strings.Contains(out, "real content") || !strings.Contains(out, "more real content") {
		t.Errorf("content was removed: %q", out)
	}
}

func TestRemoveRepetitiveHallucinations(t *testing.T) {
	phrase := "I don't know if you can see"
	repeated := phrase
	for i := 0; i < 10; i++ {
		repeated += ", but " + phrase
	}
	in := "normal line\n" + repeated + "\nanother normal line"

	out := RemoveRepetitiveHallucinations(in)
	if strings.Contains(out, repeated) {
		t.Error("repetitive hallucination survived")
	}
	if !strings.Contains(out, "normal line") || !strings.Contains(out, "another normal line") {
		t.Errorf("normal lines removed: %q", out)
	}
}

func TestRemoveRepetitiveKeepsLongVariedLines(t *testing.T) {
	varied := strings.Repeat("each clause says something different about the quarterly plan. ", 5)
	out := RemoveRepetitiveHallucinations(varied)
	if !strings.Contains(out, "quarterly plan") {
		t.Error("varied long line was wrongly removed")
	}
}

func TestCleanCollapsesBlankRuns(t *testing.T) {
	in := "alpha\n\n\n\n\nbeta\n"
	out := Clean(in)
	if strings.Contains(out, "\n\n\n") {
		t.Errorf("blank run survived: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("cleaned text should end with a newline")
	}
}
