package transcribe

import "context"

// Format is a persisted transcript output format.
type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

// Request describes one transcription unit of work.
type Request struct {
	AudioPath string
	Model     string // model file path (CLI) or model name (server)
	Language  string
	Threads   int

	// Formats to persist at OutputBase. Empty means text-only: the result is
	// returned in memory and nothing is written to disk by the backend.
	Formats    []Format
	OutputBase string
}

// Result is the common transcription outcome from any backend.
type Result struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
}

// Transcriber is the interface for speech-to-text backends.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Name() string // "whisper-cli", "whisper-server"
}
