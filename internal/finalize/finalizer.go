// Package finalize runs the authoritative end-of-session transcription pass.
package finalize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oxlade/meetscribe/internal/audio"
	"github.com/oxlade/meetscribe/internal/cleaner"
	"github.com/oxlade/meetscribe/internal/transcribe"
	"github.com/rs/zerolog"
)

// ModelResolver picks the transcription model reference, reporting whether
// the preferred choice was substituted. The CLI backend resolves to a model
// file on disk; the server backend passes names through.
type ModelResolver func(preferred, fallback string) (ref string, usedFallback bool, err error)

// Options configures a Finalizer.
type Options struct {
	Backend    transcribe.Transcriber
	Resolve    ModelResolver
	FinalModel string
	LiveModel  string
	Language   string
	Threads    int
	Log        zerolog.Logger
}

// Artifacts reports what a final pass produced.
type Artifacts struct {
	Base         string   `json:"base"`
	Files        []string `json:"files"`
	Model        string   `json:"model"`
	UsedFallback bool     `json:"used_fallback_model"`
	Duration     float64  `json:"audio_duration_seconds"`
	Text         string   `json:"-"`
}

// Finalizer produces the persisted transcript artifacts for a session.
type Finalizer struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options) *Finalizer {
	return &Finalizer{
		opts: opts,
		log:  opts.Log.With().Str("component", "finalizer").Logger(),
	}
}

// Run transcribes the whole-session audio file once with the most accurate
// available model and persists transcript artifacts at outputBase. The audio
// file must exist and be non-empty; otherwise no transcription is attempted.
func (f *Finalizer) Run(ctx context.Context, audioPath, outputBase string) (*Artifacts, error) {
	if err := audio.CheckRecording(audioPath); err != nil {
		return nil, err
	}

	model, usedFallback, err := f.opts.Resolve(f.opts.FinalModel, f.opts.LiveModel)
	if err != nil {
		return nil, err
	}
	if usedFallback {
		f.log.Warn().
			Str("preferred", f.opts.FinalModel).
			Str("using", f.opts.LiveModel).
			Msg("final model unavailable, falling back to live model")
	}

	start := time.Now()
	f.log.Info().Str("audio", audioPath).Str("model", model).Msg("final transcription pass starting")

	formats := []transcribe.Format{
		transcribe.FormatText,
		transcribe.FormatSRT,
		transcribe.FormatVTT,
		transcribe.FormatJSON,
	}
	res, err := f.opts.Backend.Transcribe(ctx, transcribe.Request{
		AudioPath:  audioPath,
		Model:      model,
		Language:   f.opts.Language,
		Threads:    f.opts.Threads,
		Formats:    formats,
		OutputBase: outputBase,
	})
	if err != nil {
		return nil, fmt.Errorf("final transcription: %w", err)
	}

	art := &Artifacts{
		Base:         outputBase,
		Model:        model,
		UsedFallback: usedFallback,
		Duration:     res.Duration,
		Text:         res.Text,
	}

	// Backends that cannot write files themselves (the HTTP server) leave no
	// txt artifact behind; persist at least the plain text in that case.
	txtPath := outputBase + ".txt"
	if _, err := os.Stat(txtPath); err != nil {
		if werr := os.WriteFile(txtPath, []byte(res.Text+"\n"), 0o644); werr != nil {
			return nil, fmt.Errorf("write transcript: %w", werr)
		}
	}
	for _, format := range formats {
		p := outputBase + "." + string(format)
		if _, err := os.Stat(p); err == nil {
			art.Files = append(art.Files, p)
		}
	}

	// Cleaned variant alongside the raw artifacts; the raw text is never
	// modified in place.
	cleanPath := outputBase + ".clean.txt"
	if err := os.WriteFile(cleanPath, []byte(cleaner.Clean(res.Text)), 0o644); err != nil {
		f.log.Warn().Err(err).Msg("write cleaned transcript failed")
	} else {
		art.Files = append(art.Files, cleanPath)
	}

	if err := f.writeMetadata(outputBase, art); err != nil {
		f.log.Warn().Err(err).Msg("write session metadata failed")
	}

	f.log.Info().
		Dur("took", time.Since(start)).
		Int("artifacts", len(art.Files)).
		Bool("used_fallback", usedFallback).
		Msg("final transcription complete")
	return art, nil
}

func (f *Finalizer) writeMetadata(outputBase string, art *Artifacts) error {
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputBase+".meta.json", data, 0o644)
}
