package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CLIBackend invokes the whisper.cpp command-line executable. For live
// captions it captures plain text from stdout; for final passes it asks the
// tool to persist timed output files at a caller-specified base path.
type CLIBackend struct {
	bin string
}

// NewCLIBackend creates a backend for the executable at bin.
func NewCLIBackend(bin string) *CLIBackend {
	return &CLIBackend{bin: bin}
}

// CheckBinary verifies the transcription executable exists and is runnable.
func (b *CLIBackend) CheckBinary() error {
	info, err := os.Stat(b.bin)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("whisper executable not found: %s (build whisper.cpp and set WHISPER_BIN)", b.bin)
		}
		return fmt.Errorf("whisper executable: %w", err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("whisper executable is not executable: %s", b.bin)
	}
	return nil
}

func (b *CLIBackend) Name() string { return "whisper-cli" }

// Args builds the argument list for a request. Exposed for tests.
func (b *CLIBackend) Args(req Request) []string {
	args := []string{
		"-m", req.Model,
		"-f", req.AudioPath,
		"-t", strconv.Itoa(req.Threads),
		"-l", req.Language,
		"-np", // suppress progress chatter
	}
	if len(req.Formats) == 0 {
		// Text-only: plain stdout, no timestamp prefixes.
		return append(args, "-nt")
	}
	for _, f := range req.Formats {
		switch f {
		case FormatText:
			args = append(args, "-otxt")
		case FormatSRT:
			args = append(args, "-osrt")
		case FormatVTT:
			args = append(args, "-ovtt")
		case FormatJSON:
			args = append(args, "-oj")
		}
	}
	return append(args, "-of", req.OutputBase)
}

func (b *CLIBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.bin, b.Args(req)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("whisper failed on %s: %s", req.AudioPath, msg)
	}

	text := strings.TrimSpace(stdout.String())
	if len(req.Formats) > 0 {
		// The tool wrote the artifacts; prefer the persisted text, which is
		// free of the timestamp prefixes stdout carries in file mode.
		if data, err := os.ReadFile(req.OutputBase + ".txt"); err == nil {
			text = strings.TrimSpace(string(data))
		}
	}

	return &Result{Text: text, Language: req.Language}, nil
}
