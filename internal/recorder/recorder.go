package recorder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// SegmentPattern is the printf-style name ffmpeg uses for segment files.
const SegmentPattern = "seg_%06d.wav"

// Options configures an ffmpeg capture process.
type Options struct {
	Device     string // input device identifier (e.g. "default", ":0")
	SampleRate int
	Channels   int
	Log        zerolog.Logger
}

// Process is one long-running ffmpeg capture. The same type drives both the
// continuous whole-session recording and the segmented output; they run as
// two independent processes.
type Process struct {
	cmd  *exec.Cmd
	log  zerolog.Logger
	done chan struct{}
	err  error
}

// CheckFFmpeg verifies ffmpeg is available in PATH.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

// inputArgs selects the capture backend for the host platform.
func inputArgs(device string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", device}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=" + device}
	default:
		return []string{"-f", "pulse", "-i", device}
	}
}

// ContinuousArgs builds the ffmpeg argument list for a single whole-session WAV.
func ContinuousArgs(opts Options, outPath string) []string {
	args := inputArgs(opts.Device)
	args = append(args,
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-y", outPath,
	)
	return args
}

// SegmentArgs builds the ffmpeg argument list for fixed-duration segment output.
func SegmentArgs(opts Options, segmentDir string, segmentSeconds int) []string {
	args := inputArgs(opts.Device)
	args = append(args,
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-segment_start_number", "1",
		"-reset_timestamps", "1",
		"-y", filepath.Join(segmentDir, SegmentPattern),
	)
	return args
}

// Start launches an ffmpeg capture with the given argument list.
func Start(opts Options, args []string) (*Process, error) {
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdin = nil
	cmd.Stderr = nil // ffmpeg is chatty on stderr; failures surface via exit code

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &Process{
		cmd:  cmd,
		log:  opts.Log,
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	opts.Log.Info().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("recorder started")
	return p, nil
}

// Stop requests a graceful shutdown (ffmpeg flushes and closes its outputs on
// SIGINT) and waits for exit, escalating to SIGKILL after the timeout.
func (p *Process) Stop(ctx context.Context, timeout time.Duration) error {
	select {
	case <-p.done:
		return p.exitErr()
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		p.log.Warn().Err(err).Msg("signal recorder failed, killing")
		_ = p.cmd.Process.Kill()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.exitErr()
	case <-timer.C:
		p.log.Warn().Dur("timeout", timeout).Msg("recorder did not exit, killing")
		_ = p.cmd.Process.Kill()
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
	}
	<-p.done
	return p.exitErr()
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// exitErr filters the expected interrupt-driven exit statuses. ffmpeg exits
// 255 on SIGINT-triggered shutdown, which is a clean stop for our purposes.
func (p *Process) exitErr() error {
	if p.err == nil {
		return nil
	}
	if ee, ok := p.err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.ExitStatus() == 255 || ws.Signaled() {
				return nil
			}
		}
	}
	return fmt.Errorf("ffmpeg exited: %w", p.err)
}
