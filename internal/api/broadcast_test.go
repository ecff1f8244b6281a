package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oxlade/meetscribe/internal/caption"
)

func emitN(b *Broadcaster, n int) {
	for i := 1; i <= n; i++ {
		b.Emit(caption.Caption{Index: i, Segment: "seg", Text: "hello", At: time.Unix(0, 0)})
	}
}

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Emit(caption.Caption{Index: 1, Text: "first words"})

	select {
	case ev := <-ch:
		if ev.ID != "1" {
			t.Errorf("event id = %q, want 1", ev.ID)
		}
		if !strings.Contains(string(ev.Data), "first words") {
			t.Errorf("payload = %s", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBroadcasterReplaySince(t *testing.T) {
	b := NewBroadcaster()
	emitN(b, 5)

	events := b.ReplaySince("3")
	if len(events) != 2 {
		t.Fatalf("replayed %d events, want 2", len(events))
	}
	if events[0].ID != "4" || events[1].ID != "5" {
		t.Errorf("replay ids = %s, %s", events[0].ID, events[1].ID)
	}

	if got := b.ReplaySince("garbage"); got != nil {
		t.Errorf("bad last-event-id replayed %d events", len(got))
	}
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe()
	defer cancel()

	// Nobody reads; emits past the channel buffer must not block.
	done := make(chan struct{})
	go func() {
		emitN(b, 100)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
}

func TestBroadcasterFlushClosesSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Flush()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed by Flush")
	}
}

func TestStreamCaptionsReplaysMissedEvents(t *testing.T) {
	b := NewBroadcaster()
	emitN(b, 3)
	h := NewCaptionsHandler(b)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/captions/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	// End the stream shortly after the replay is written.
	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Flush()
	}()
	h.StreamCaptions(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "id: 1\n") {
		t.Errorf("event 1 should not be replayed:\n%s", body)
	}
	for _, id := range []string{"id: 2\n", "id: 3\n"} {
		if !strings.Contains(body, id) {
			t.Errorf("missing replayed %q in:\n%s", id, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
