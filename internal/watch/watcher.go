package watch

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/audio"
)

// segmentName matches the recorder's sequential segment files.
var segmentName = regexp.MustCompile(`^seg_(\d{6})\.wav$`)

// Segment is one fixed-duration slice of audio written by the recorder.
type Segment struct {
	Index int
	Path  string
}

// Watcher observes a segment directory and emits each completed segment
// exactly once, in discovery order. Dedup is backed by a ProcessedSet.
//
// Detection is polling-driven at a fixed interval; when fsnotify can watch
// the directory its events kick an immediate scan so new segments are picked
// up without waiting for the next tick. A file must hold the same size across
// two consecutive scans before it is considered fully flushed.
type Watcher struct {
	dir      string
	interval time.Duration
	set      *ProcessedSet
	out      chan<- Segment
	log      zerolog.Logger

	lastSize map[string]int64

	discovered atomic.Int64
}

// New creates a Watcher emitting into out.
func New(dir string, interval time.Duration, set *ProcessedSet, out chan<- Segment, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		interval: interval,
		set:      set,
		out:      out,
		log:      log.With().Str("component", "watcher").Logger(),
		lastSize: make(map[string]int64),
	}
}

// Discovered returns the number of segments emitted so far.
func (w *Watcher) Discovered() int64 { return w.discovered.Load() }

// Run scans until ctx is cancelled. It never closes out; the caller owns the
// channel and may run a final ScanOnce after the recorder has exited.
func (w *Watcher) Run(ctx context.Context) {
	kick := make(chan struct{}, 1)

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := fsw.Add(w.dir); addErr != nil {
			w.log.Warn().Err(addErr).Msg("fsnotify unavailable, polling only")
			fsw.Close()
			fsw = nil
		}
	} else {
		w.log.Warn().Err(err).Msg("fsnotify init failed, polling only")
		fsw = nil
	}
	if fsw != nil {
		defer fsw.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-fsw.Events:
					if !ok {
						return
					}
					if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
						continue
					}
					select {
					case kick <- struct{}{}:
					default:
					}
				case err, ok := <-fsw.Errors:
					if !ok {
						return
					}
					w.log.Error().Err(err).Msg("fsnotify error")
				}
			}
		}()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			w.scan(ctx)
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// ScanOnce performs a single scan pass. The session controller calls this
// after the segment recorder has exited, so the final flushed segment is
// emitted even though cancellation already stopped the run loop. Files are
// considered stable here regardless of history: the writer is gone.
func (w *Watcher) ScanOnce(ctx context.Context) {
	w.scanWith(ctx, true)
}

func (w *Watcher) scan(ctx context.Context) {
	w.scanWith(ctx, false)
}

func (w *Watcher) scanWith(ctx context.Context, writerExited bool) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("segment dir scan failed")
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !segmentName.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // sequence index order

	for _, name := range names {
		if w.set.Contains(name) {
			continue
		}

		path := filepath.Join(w.dir, name)
		if !writerExited {
			stable, size, err := audio.SizeStable(path, w.lastSize[name])
			if err != nil {
				continue
			}
			w.lastSize[name] = size
			if !stable {
				continue // still being flushed, revisit next scan
			}
		} else {
			info, err := os.Stat(path)
			if err != nil || info.Size() == 0 {
				continue
			}
		}

		novel, err := w.set.Mark(name)
		if err != nil {
			w.log.Error().Err(err).Str("segment", name).Msg("processed log write failed")
			return
		}
		if !novel {
			continue
		}
		delete(w.lastSize, name)

		seg := Segment{Index: parseIndex(name), Path: path}
		select {
		case w.out <- seg:
			w.discovered.Add(1)
			w.log.Debug().Int("index", seg.Index).Str("segment", name).Msg("segment discovered")
		case <-ctx.Done():
			// Marked but not dispatched: at-most-once is preserved, and the
			// final pass still covers this audio via the whole-session file.
			w.log.Warn().Str("segment", name).Msg("shutdown before dispatch")
			return
		}
	}
}

func parseIndex(name string) int {
	m := segmentName.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}
