package storage

import "testing"

func TestObjectKey(t *testing.T) {
	s := &S3Store{prefix: "meetings"}
	if got := s.objectKey("session-20260314-103000", "session-20260314-103000.txt"); got != "meetings/session-20260314-103000/session-20260314-103000.txt" {
		t.Errorf("key = %q", got)
	}
	s.prefix = ""
	if got := s.objectKey("session-20260314-103000", "full.wav"); got != "session-20260314-103000/full.wav" {
		t.Errorf("key = %q", got)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.txt":       "text/plain; charset=utf-8",
		"a.srt":       "text/plain; charset=utf-8",
		"a.meta.json": "application/json",
		"full.wav":    "audio/wav",
	}
	for path, want := range cases {
		if got := contentType(path); got != want {
			t.Errorf("contentType(%q) = %q, want %q", path, got, want)
		}
	}
}
