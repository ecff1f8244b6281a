package transcribe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oxlade/meetscribe/internal/caption"
	"github.com/oxlade/meetscribe/internal/metrics"
	"github.com/oxlade/meetscribe/internal/watch"
	"github.com/rs/zerolog"
)

// PoolOptions configures the live-caption worker pool.
type PoolOptions struct {
	Backend   Transcriber
	Model     string
	Language  string
	Threads   int
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Sink      caption.Sink
	Log       zerolog.Logger
}

// QueueStats reports the current state of the caption queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a bounded set of workers that transcribe live segments. Segment
// discovery enqueues; workers drain concurrently, so caption completion order
// is not guaranteed; the Sink decides how to present it.
type Pool struct {
	jobs chan watch.Segment
	stop chan struct{}
	opts PoolOptions
	log  zerolog.Logger
	wg   sync.WaitGroup
	hwg  sync.WaitGroup // deferred handoffs in flight

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a caption worker pool.
func NewPool(opts PoolOptions) *Pool {
	return &Pool{
		jobs: make(chan watch.Segment, opts.QueueSize),
		stop: make(chan struct{}),
		opts: opts,
		log:  opts.Log.With().Str("component", "caption-pool").Logger(),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("caption pool started")
}

// Enqueue adds a segment to the queue. The fast path never blocks; when the
// queue is full the handoff moves to a goroutine so segment discovery is
// never backpressured by slow transcription.
func (p *Pool) Enqueue(seg watch.Segment) {
	select {
	case p.jobs <- seg:
	default:
		p.log.Warn().Int("index", seg.Index).Msg("caption queue full, deferring handoff")
		p.hwg.Add(1)
		go func() {
			defer p.hwg.Done()
			select {
			case p.jobs <- seg:
			case <-p.stop:
				// Shutdown won the race; the final pass covers this audio.
				p.log.Warn().Int("index", seg.Index).Msg("deferred segment dropped at shutdown")
			}
		}()
	}
	metrics.SegmentsDiscovered.Inc()
	metrics.QueueDepth.Set(float64(len(p.jobs)))
}

// StopAndDrain closes the queue and waits for in-flight work up to timeout.
// Returns true if all workers finished in time.
func (p *Pool) StopAndDrain(timeout time.Duration) bool {
	close(p.stop)
	p.hwg.Wait()
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.log.Warn().Dur("timeout", timeout).Msg("caption drain timed out, finalizing anyway")
		return false
	}

	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("caption pool stopped")
	return true
}

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for seg := range p.jobs {
		p.process(log, seg)
		metrics.QueueDepth.Set(float64(len(p.jobs)))
	}
}

// process transcribes one segment. Failure is local: the caption is emitted
// empty so ordered sinks can advance, and the session continues.
func (p *Pool) process(log zerolog.Logger, seg watch.Segment) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	res, err := p.opts.Backend.Transcribe(ctx, Request{
		AudioPath: seg.Path,
		Model:     p.opts.Model,
		Language:  p.opts.Language,
		Threads:   p.opts.Threads,
	})

	c := caption.Caption{
		Index:   seg.Index,
		Segment: seg.Path,
		At:      time.Now(),
	}
	if err != nil {
		p.failed.Add(1)
		metrics.CaptionsFailed.Inc()
		log.Warn().Err(err).Int("index", seg.Index).Msg("segment transcription failed")
	} else {
		c.Text = strings.TrimSpace(res.Text)
		p.completed.Add(1)
		metrics.CaptionsCompleted.Inc()
		metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
		log.Debug().
			Int("index", seg.Index).
			Int("chars", len(c.Text)).
			Dur("took", time.Since(start)).
			Msg("segment transcribed")
	}
	p.opts.Sink.Emit(c)
}
