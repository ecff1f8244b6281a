package caption

import (
	"strings"
	"testing"
	"time"
)

var at = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func TestArrivalSinkWritesImmediately(t *testing.T) {
	var buf strings.Builder
	s := NewArrivalSink(&buf)

	s.Emit(Caption{Index: 2, Text: "second", At: at})
	s.Emit(Caption{Index: 1, Text: "first", At: at})
	s.Flush()

	out := buf.String()
	if !strings.Contains(out, "second") || !strings.Contains(out, "first") {
		t.Fatalf("missing captions: %q", out)
	}
	if strings.Index(out, "second") > strings.Index(out, "first") {
		t.Error("arrival sink reordered output")
	}
}

func TestArrivalSinkSkipsEmpty(t *testing.T) {
	var buf strings.Builder
	s := NewArrivalSink(&buf)
	s.Emit(Caption{Index: 1, Text: "", At: at})
	if buf.Len() != 0 {
		t.Errorf("empty caption produced output: %q", buf.String())
	}
}

func TestStrictSinkOrdersByIndex(t *testing.T) {
	var buf strings.Builder
	s := NewStrictSink(&buf, 1)

	s.Emit(Caption{Index: 3, Text: "three", At: at})
	s.Emit(Caption{Index: 2, Text: "two", At: at})
	if buf.Len() != 0 {
		t.Fatalf("emitted before index 1 arrived: %q", buf.String())
	}

	s.Emit(Caption{Index: 1, Text: "one", At: at})
	out := buf.String()
	want := []string{"one", "two", "three"}
	last := -1
	for _, w := range want {
		i := strings.Index(out, w)
		if i < 0 {
			t.Fatalf("missing %q in %q", w, out)
		}
		if i < last {
			t.Errorf("%q out of order in %q", w, out)
		}
		last = i
	}
}

func TestStrictSinkAdvancesPastFailedSegment(t *testing.T) {
	var buf strings.Builder
	s := NewStrictSink(&buf, 1)

	s.Emit(Caption{Index: 2, Text: "two", At: at})
	s.Emit(Caption{Index: 1, Text: "", At: at}) // failed segment

	if !strings.Contains(buf.String(), "two") {
		t.Errorf("failed segment stalled ordered output: %q", buf.String())
	}
}

func TestStrictSinkFlushSkipsGaps(t *testing.T) {
	var buf strings.Builder
	s := NewStrictSink(&buf, 1)

	s.Emit(Caption{Index: 4, Text: "four", At: at})
	if buf.Len() != 0 {
		t.Fatal("emitted despite gap")
	}
	s.Flush()
	if !strings.Contains(buf.String(), "four") {
		t.Errorf("Flush did not release buffered caption: %q", buf.String())
	}
}

func TestTee(t *testing.T) {
	var a, b strings.Builder
	tee := Tee{NewArrivalSink(&a), NewArrivalSink(&b)}
	tee.Emit(Caption{Index: 1, Text: "hello", At: at})
	tee.Flush()

	if !strings.Contains(a.String(), "hello") || !strings.Contains(b.String(), "hello") {
		t.Error("tee did not reach all sinks")
	}
}
