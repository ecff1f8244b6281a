// Package caption routes live transcription output to its consumers.
// The recorder completes segments in index order, but concurrent workers may
// finish out of order; whether that ordering is surfaced or repaired is a
// product choice, so both sinks exist and the session picks one from config.
package caption

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Caption is the transcription of one live segment. Text is empty when the
// segment failed or contained no speech; sinks still receive it so ordered
// output can advance past the gap.
type Caption struct {
	Index   int
	Segment string
	Text    string
	At      time.Time
}

// Sink consumes live captions. Emit may be called from multiple worker
// goroutines. Flush is called once at session end to release anything held.
type Sink interface {
	Emit(c Caption)
	Flush()
}

// ArrivalSink writes captions immediately as workers complete, accepting
// out-of-order output for the lowest possible latency.
type ArrivalSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewArrivalSink(out io.Writer) *ArrivalSink {
	return &ArrivalSink{out: out}
}

func (s *ArrivalSink) Emit(c Caption) {
	if c.Text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "[%s] %s\n", c.At.Format("15:04:05"), c.Text)
}

func (s *ArrivalSink) Flush() {}

// StrictSink buffers captions by segment index and writes them in order,
// trading latency for chronological output. A failed or empty segment
// advances the cursor so later captions are not held forever.
type StrictSink struct {
	mu      sync.Mutex
	out     io.Writer
	next    int
	pending map[int]Caption
}

// NewStrictSink creates an ordered sink starting at segment index first.
func NewStrictSink(out io.Writer, first int) *StrictSink {
	return &StrictSink{out: out, next: first, pending: make(map[int]Caption)}
}

func (s *StrictSink) Emit(c Caption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[c.Index] = c
	s.drain()
}

// Flush writes any still-buffered captions in index order, skipping gaps.
// Called once after all workers have finished.
func (s *StrictSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		if _, ok := s.pending[s.next]; !ok {
			s.next++
			continue
		}
		s.drain()
	}
}

func (s *StrictSink) drain() {
	for {
		c, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		s.next++
		if c.Text == "" {
			continue
		}
		fmt.Fprintf(s.out, "[%s] %s\n", c.At.Format("15:04:05"), c.Text)
	}
}

// Tee fans a caption out to several sinks (console, SSE broadcast, MQTT).
type Tee []Sink

func (t Tee) Emit(c Caption) {
	for _, s := range t {
		s.Emit(c)
	}
}

func (t Tee) Flush() {
	for _, s := range t {
		s.Flush()
	}
}
