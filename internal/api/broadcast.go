package api

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/oxlade/meetscribe/internal/caption"
)

// replayDepth is how many past captions a reconnecting client can recover
// via Last-Event-ID.
const replayDepth = 256

// CaptionEvent is one caption serialized for the SSE stream.
type CaptionEvent struct {
	ID   string
	Data []byte
}

// captionPayload is the wire shape of a streamed caption.
type captionPayload struct {
	Index   int       `json:"index"`
	Segment string    `json:"segment"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Broadcaster fans live captions out to SSE subscribers. It is a caption
// sink, so the session tees into it like any other output. Slow subscribers
// lose events rather than stalling the pipeline; the replay ring lets them
// catch up on reconnect.
type Broadcaster struct {
	mu   sync.Mutex
	seq  int64
	ring []CaptionEvent
	subs map[int]chan CaptionEvent
	next int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan CaptionEvent)}
}

// Emit serializes the caption and delivers it to every subscriber.
func (b *Broadcaster) Emit(c caption.Caption) {
	data, err := json.Marshal(captionPayload{
		Index:   c.Index,
		Segment: c.Segment,
		Text:    c.Text,
		At:      c.At,
	})
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := CaptionEvent{ID: strconv.FormatInt(b.seq, 10), Data: data}

	b.ring = append(b.ring, ev)
	if len(b.ring) > replayDepth {
		b.ring = b.ring[len(b.ring)-replayDepth:]
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber not keeping up; it can replay on reconnect.
		}
	}
}

// Flush closes all subscriber channels; the session is over.
func (b *Broadcaster) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Subscribe registers a new SSE client. The returned cancel must be called
// when the client disconnects.
func (b *Broadcaster) Subscribe() (<-chan CaptionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan CaptionEvent, 32)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			close(ch)
			delete(b.subs, id)
		}
	}
	return ch, cancel
}

// ReplaySince returns buffered events after lastEventID, oldest first.
func (b *Broadcaster) ReplaySince(lastEventID string) []CaptionEvent {
	after, err := strconv.ParseInt(lastEventID, 10, 64)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []CaptionEvent
	for _, ev := range b.ring {
		id, _ := strconv.ParseInt(ev.ID, 10, 64)
		if id > after {
			out = append(out, ev)
		}
	}
	return out
}
