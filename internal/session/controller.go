package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oxlade/meetscribe/internal/caption"
	"github.com/oxlade/meetscribe/internal/config"
	"github.com/oxlade/meetscribe/internal/finalize"
	"github.com/oxlade/meetscribe/internal/recorder"
	"github.com/oxlade/meetscribe/internal/transcribe"
	"github.com/oxlade/meetscribe/internal/watch"
	"github.com/rs/zerolog"
)

// recorderStopTimeout bounds how long we wait for ffmpeg to flush and exit
// after the stop signal before killing it.
const recorderStopTimeout = 10 * time.Second

// Capture is one long-running recorder process.
type Capture interface {
	Stop(ctx context.Context, timeout time.Duration) error
	Done() <-chan struct{}
}

// Launcher starts a recorder process. Tests substitute fakes; the default
// launches ffmpeg.
type Launcher func(opts recorder.Options, args []string) (Capture, error)

func defaultLauncher(opts recorder.Options, args []string) (Capture, error) {
	return recorder.Start(opts, args)
}

// ControllerOptions wires a live session controller.
type ControllerOptions struct {
	Config     *config.Config
	Backend    transcribe.Transcriber
	Resolve    finalize.ModelResolver
	Sink       caption.Sink
	Launch     Launcher                                             // nil = ffmpeg
	OnFinal    func(context.Context, *Session, *finalize.Artifacts) // optional archive hook
	Now        func() time.Time                                     // nil = time.Now
	CheckTools func() error                                         // nil = recorder.CheckFFmpeg
	Log        zerolog.Logger
}

// Controller drives the live-caption pipeline through its lifecycle:
// Idle -> Recording -> Stopping -> Finalizing -> Done.
type Controller struct {
	opts ControllerOptions
	log  zerolog.Logger

	mu    sync.Mutex
	state State
	sess  *Session

	pool    *transcribe.Pool
	watcher *watch.Watcher
}

// NewController creates a controller in the Idle state.
func NewController(opts ControllerOptions) *Controller {
	if opts.Launch == nil {
		opts.Launch = defaultLauncher
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CheckTools == nil {
		opts.CheckTools = recorder.CheckFFmpeg
	}
	return &Controller{
		opts:  opts,
		log:   opts.Log.With().Str("component", "session").Logger(),
		state: StateIdle,
	}
}

// Status is a point-in-time view of the session for the status server.
type Status struct {
	State      State                 `json:"state"`
	Session    string                `json:"session,omitempty"`
	StartedAt  time.Time             `json:"started_at,omitempty"`
	Discovered int64                 `json:"segments_discovered"`
	Queue      transcribe.QueueStats `json:"queue"`
	LiveModel  string                `json:"live_model,omitempty"`
	FinalModel string                `json:"final_model,omitempty"`
}

// Status reports the current session state. Safe for concurrent use.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	if c.sess != nil {
		st.Session = c.sess.Name()
		st.StartedAt = c.sess.StartedAt
		st.LiveModel = c.sess.LiveModel
		st.FinalModel = c.sess.FinalModel
	}
	if c.watcher != nil {
		st.Discovered = c.watcher.Discovered()
	}
	if c.pool != nil {
		st.Queue = c.pool.Stats()
	}
	return st
}

func (c *Controller) advance() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := Advance(c.state)
	if err != nil {
		// Transitions are driven solely by Run, in order; hitting this is a
		// programming error.
		panic(err)
	}
	c.log.Info().Str("from", string(c.state)).Str("to", string(n)).Msg("session state")
	c.state = n
	return n
}

// Run executes one full session. It records until ctx is cancelled (or a
// recorder dies), then drains live captioning and runs the final pass.
// Startup failures abort before any recorder process is launched.
func (c *Controller) Run(ctx context.Context) error {
	cfg := c.opts.Config

	// Fail fast: verify the capture tool and both model tiers before any
	// process starts, so a dead configuration never leaves an orphaned
	// recording behind.
	if err := c.opts.CheckTools(); err != nil {
		return err
	}
	liveRef, _, err := c.opts.Resolve(cfg.LiveModel, "")
	if err != nil {
		return fmt.Errorf("live model: %w", err)
	}
	if _, _, err := c.opts.Resolve(cfg.FinalModel, cfg.LiveModel); err != nil {
		return fmt.Errorf("final model: %w", err)
	}

	sess, err := NewSession(cfg.OutputDir, c.opts.Now(), cfg.LiveModel, cfg.FinalModel)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.log.Info().Str("dir", sess.Dir).Msg("session created")

	set, err := watch.OpenProcessedSet(sess.ProcessedLog)
	if err != nil {
		return err
	}
	defer set.Close()

	// Recording: continuous whole-session capture and segmented capture run
	// as two independent processes.
	c.advance()
	ropts := recorder.Options{
		Device:     cfg.InputDevice,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Log:        c.log,
	}
	continuous, err := c.opts.Launch(ropts, recorder.ContinuousArgs(ropts, sess.AudioPath))
	if err != nil {
		return fmt.Errorf("start continuous recorder: %w", err)
	}
	segmented, err := c.opts.Launch(ropts, recorder.SegmentArgs(ropts, sess.SegmentDir, cfg.SegmentSeconds))
	if err != nil {
		_ = continuous.Stop(ctx, recorderStopTimeout)
		return fmt.Errorf("start segment recorder: %w", err)
	}

	segCh := make(chan watch.Segment, cfg.QueueSize)
	c.mu.Lock()
	c.watcher = watch.New(sess.SegmentDir, cfg.PollInterval, set, segCh, c.opts.Log)
	c.pool = transcribe.NewPool(transcribe.PoolOptions{
		Backend:   c.opts.Backend,
		Model:     liveRef,
		Language:  cfg.Language,
		Threads:   cfg.Threads,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Timeout:   cfg.WhisperTimeout,
		Sink:      c.opts.Sink,
		Log:       c.opts.Log,
	})
	watcher, pool := c.watcher, c.pool
	c.mu.Unlock()

	pool.Start()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		watcher.Run(watchCtx)
		close(watchDone)
	}()

	dispatchDone := make(chan struct{})
	go func() {
		for seg := range segCh {
			pool.Enqueue(seg)
		}
		close(dispatchDone)
	}()

	// Steady state until the stop signal. A recorder dying early also ends
	// the session; whatever was captured still gets finalized.
	select {
	case <-ctx.Done():
		c.log.Info().Msg("stop requested")
	case <-continuous.Done():
		c.log.Error().Msg("continuous recorder exited unexpectedly")
	case <-segmented.Done():
		c.log.Error().Msg("segment recorder exited unexpectedly")
	}

	// Stopping: terminate recorders, then sweep the segment directory one
	// last time so the final flushed segment is still captioned.
	c.advance()
	stopCtx := context.Background()
	if err := continuous.Stop(stopCtx, recorderStopTimeout); err != nil {
		c.log.Warn().Err(err).Msg("continuous recorder stop")
	}
	if err := segmented.Stop(stopCtx, recorderStopTimeout); err != nil {
		c.log.Warn().Err(err).Msg("segment recorder stop")
	}

	cancelWatch()
	<-watchDone
	watcher.ScanOnce(stopCtx)
	close(segCh)
	<-dispatchDone

	pool.StopAndDrain(cfg.DrainTimeout)
	c.opts.Sink.Flush()

	// Finalizing: one authoritative pass over the whole-session file.
	c.advance()
	fin := finalize.New(finalize.Options{
		Backend:    c.opts.Backend,
		Resolve:    c.opts.Resolve,
		FinalModel: cfg.FinalModel,
		LiveModel:  cfg.LiveModel,
		Language:   cfg.Language,
		Threads:    cfg.Threads,
		Log:        c.opts.Log,
	})
	art, err := fin.Run(stopCtx, sess.AudioPath, sess.TranscriptBase())
	if err != nil {
		// Live captions and the raw audio stay on disk; only the
		// authoritative transcript is missing.
		return fmt.Errorf("session incomplete: %w", err)
	}

	if c.opts.OnFinal != nil {
		c.opts.OnFinal(stopCtx, sess, art)
	}

	c.advance()
	c.log.Info().
		Str("audio", sess.AudioPath).
		Strs("artifacts", art.Files).
		Msg("session complete")
	return nil
}
