package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/api"
	"github.com/oxlade/meetscribe/internal/archive"
	"github.com/oxlade/meetscribe/internal/batch"
	"github.com/oxlade/meetscribe/internal/caption"
	"github.com/oxlade/meetscribe/internal/cleaner"
	"github.com/oxlade/meetscribe/internal/config"
	"github.com/oxlade/meetscribe/internal/finalize"
	"github.com/oxlade/meetscribe/internal/publish"
	"github.com/oxlade/meetscribe/internal/recorder"
	"github.com/oxlade/meetscribe/internal/session"
	"github.com/oxlade/meetscribe/internal/split"
	"github.com/oxlade/meetscribe/internal/storage"
	"github.com/oxlade/meetscribe/internal/transcribe"
)

var version = "dev"

const usage = `meetscribe - meeting recorder with live captions

Usage:
  meetscribe live        record a session with live captions and a final pass
  meetscribe transcribe  run the final transcription pass on an existing recording
  meetscribe batch       process a directory of recordings offline
  meetscribe split       split a recording at silence boundaries
  meetscribe clean       strip transcription artifacts from a transcript file

Run "meetscribe <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "live":
		err = runLive(os.Args[2:])
	case "transcribe":
		err = runTranscribe(os.Args[2:])
	case "batch":
		err = runBatch(os.Args[2:])
	case "split":
		err = runSplit(os.Args[2:])
	case "clean":
		err = runClean(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("meetscribe failed")
	}
}

// commonFlags registers the override flags shared by every subcommand.
func commonFlags(fs *flag.FlagSet, o *config.Overrides) {
	fs.StringVar(&o.EnvFile, "env-file", "", "path to .env file (default .env)")
	fs.StringVar(&o.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&o.OutputDir, "output-dir", "", "session output directory")
	fs.StringVar(&o.WhisperRoot, "whisper-root", "", "whisper.cpp checkout root")
	fs.StringVar(&o.LiveModel, "live-model", "", "model for live captions")
	fs.StringVar(&o.FinalModel, "final-model", "", "model for the final pass")
	fs.StringVar(&o.Language, "language", "", "transcription language")
}

func setup(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("meetscribe starting")
	return log
}

// backend picks the transcription backend from config: a whisper server if
// one is configured, the local whisper.cpp binary otherwise.
func backend(cfg *config.Config) (transcribe.Transcriber, func() error) {
	if cfg.WhisperServerURL != "" {
		b := transcribe.NewServerBackend(cfg.WhisperServerURL, cfg.WhisperTimeout)
		return b, func() error { return nil }
	}
	b := transcribe.NewCLIBackend(cfg.WhisperBin)
	return b, b.CheckBinary
}

func resolver(cfg *config.Config) finalize.ModelResolver {
	if cfg.WhisperServerURL != "" {
		// The server owns its models; names pass through unresolved.
		return func(preferred, _ string) (string, bool, error) { return preferred, false, nil }
	}
	return func(preferred, fallback string) (string, bool, error) {
		return transcribe.ResolveWithFallback(cfg.ModelDir, preferred, fallback)
	}
}

func runLive(args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	var o config.Overrides
	commonFlags(fs, &o)
	fs.StringVar(&o.HTTPAddr, "http", "", "status server listen address (e.g. :8090)")
	fs.Parse(args)

	cfg, err := config.Load(o)
	if err != nil {
		return err
	}
	log := setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, checkBackend := backend(cfg)

	// Console output, plus SSE and MQTT fan-out when configured.
	var console caption.Sink
	if cfg.CaptionOrder == "strict" {
		console = caption.NewStrictSink(os.Stdout, 1)
	} else {
		console = caption.NewArrivalSink(os.Stdout)
	}
	sinks := caption.Tee{console}

	var broadcaster *api.Broadcaster
	checks := map[string]api.HealthCheck{}
	if cfg.HTTPAddr != "" {
		broadcaster = api.NewBroadcaster()
		sinks = append(sinks, broadcaster)
	}
	if cfg.MQTTBrokerURL != "" {
		pub, err := publish.Connect(publish.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		checks["mqtt"] = func() error {
			if !pub.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	onFinal, closeArchive, archiveChecks, err := buildArchiveHook(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeArchive()
	for name, check := range archiveChecks {
		checks[name] = check
	}

	ctl := session.NewController(session.ControllerOptions{
		Config:  cfg,
		Backend: be,
		Resolve: resolver(cfg),
		Sink:    sinks,
		OnFinal: onFinal,
		CheckTools: func() error {
			if err := recorder.CheckFFmpeg(); err != nil {
				return err
			}
			return checkBackend()
		},
		Log: log,
	})

	if cfg.HTTPAddr != "" {
		srv := api.NewServer(cfg, ctl, broadcaster, checks, version, time.Now(), log.With().Str("component", "http").Logger())
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("http server shutdown error")
			}
		}()
	}

	if err := ctl.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("meetscribe stopped")
	return nil
}

// buildArchiveHook wires the optional S3 and Postgres archives into one
// post-session callback, plus their health checks. Archive failures are
// logged, never fatal; the artifacts on local disk are the source of truth.
func buildArchiveHook(ctx context.Context, cfg *config.Config, log zerolog.Logger) (func(context.Context, *session.Session, *finalize.Artifacts), func(), map[string]api.HealthCheck, error) {
	var s3store *storage.S3Store
	var db *archive.Store
	checks := map[string]api.HealthCheck{}

	if cfg.S3.Enabled() {
		st, err := storage.NewS3Store(cfg.S3, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("s3: %w", err)
		}
		if err := st.HeadBucket(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("s3 bucket %s: %w", cfg.S3.Bucket, err)
		}
		s3store = st
	}
	if cfg.DatabaseURL != "" {
		st, err := archive.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("archive database: %w", err)
		}
		db = st
		checks["database"] = func() error { return db.HealthCheck(context.Background()) }
	}

	closer := func() {
		if db != nil {
			db.Close()
		}
	}
	if s3store == nil && db == nil {
		return nil, closer, checks, nil
	}

	hook := func(ctx context.Context, sess *session.Session, art *finalize.Artifacts) {
		if s3store != nil {
			files := append([]string{sess.AudioPath}, art.Files...)
			s3store.UploadArtifacts(ctx, sess.Name(), files)
		}
		if db != nil {
			if err := db.SaveSession(ctx, sess, art); err != nil {
				log.Warn().Err(err).Msg("session archive failed")
			}
		}
	}
	return hook, closer, checks, nil
}

func runTranscribe(args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	var o config.Overrides
	commonFlags(fs, &o)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meetscribe transcribe [flags] <audio-file>")
	}
	audioPath := fs.Arg(0)

	cfg, err := config.Load(o)
	if err != nil {
		return err
	}
	log := setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, checkBackend := backend(cfg)
	if err := checkBackend(); err != nil {
		return err
	}

	fin := finalize.New(finalize.Options{
		Backend:    be,
		Resolve:    resolver(cfg),
		FinalModel: cfg.FinalModel,
		LiveModel:  cfg.LiveModel,
		Language:   cfg.Language,
		Threads:    cfg.Threads,
		Log:        log,
	})
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	art, err := fin.Run(ctx, audioPath, base)
	if err != nil {
		return err
	}
	log.Info().Strs("artifacts", art.Files).Msg("transcription complete")
	return nil
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	var o config.Overrides
	commonFlags(fs, &o)
	keepSegments := fs.Bool("keep-segments", false, "keep intermediate segment WAV files")
	noMaster := fs.Bool("no-master", false, "skip the cross-recording master transcript")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meetscribe batch [flags] <input-dir>")
	}
	inputDir := fs.Arg(0)

	cfg, err := config.Load(o)
	if err != nil {
		return err
	}
	log := setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, checkBackend := backend(cfg)
	if err := recorder.CheckFFmpeg(); err != nil {
		return err
	}
	if err := checkBackend(); err != nil {
		return err
	}
	// Batch chunks use the live model.
	model, _, err := resolver(cfg)(cfg.LiveModel, "")
	if err != nil {
		return err
	}

	sopts := split.DefaultOptions()
	sopts.Log = log
	pipe := batch.New(batch.Options{
		Splitter:     split.New(sopts),
		Backend:      be,
		Model:        model,
		Language:     cfg.Language,
		Threads:      cfg.Threads,
		Timeout:      cfg.WhisperTimeout,
		KeepSegments: *keepSegments,
		NoMaster:     *noMaster,
		Log:          log,
	})

	sum, err := pipe.Run(ctx, inputDir)
	if err != nil {
		return err
	}
	if failed := sum.Failed(); len(failed) > 0 {
		for _, r := range failed {
			log.Error().Str("file", r.File).Err(r.Err).Msg("recording failed")
		}
		return fmt.Errorf("batch: %d of %d recordings failed", len(failed), len(sum.Results))
	}
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	logLevel := fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	outputDir := fs.String("output-dir", "", "segment output directory (default: named after the input)")
	sopts := split.DefaultOptions()
	fs.Float64Var(&sopts.NoiseThresholdDB, "noise-threshold", sopts.NoiseThresholdDB, "silence threshold in dB")
	fs.Float64Var(&sopts.MinSilence, "min-silence", sopts.MinSilence, "minimum silence duration to detect, seconds")
	fs.Float64Var(&sopts.MinSegment, "min-segment", sopts.MinSegment, "minimum segment length, seconds")
	fs.Float64Var(&sopts.MaxSegment, "max-segment", sopts.MaxSegment, "maximum segment length, seconds")
	fs.Float64Var(&sopts.MaxSilenceRatio, "silence-ratio-threshold", sopts.MaxSilenceRatio, "drop segments with more silence than this fraction")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meetscribe split [flags] <audio-file>")
	}
	input := fs.Arg(0)

	// Split needs no whisper config; a minimal logger setup suffices.
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *logLevel != "" {
		if level, err := zerolog.ParseLevel(*logLevel); err == nil {
			log = log.Level(level)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := recorder.CheckFFmpeg(); err != nil {
		return err
	}

	out := *outputDir
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input))
	}
	sopts.Log = log
	meta, err := split.New(sopts).Run(ctx, input, out)
	if err != nil {
		return err
	}
	log.Info().Int("segments", meta.TotalSegments).Str("dir", out).Msg("split complete")
	return nil
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	inPlace := fs.Bool("w", false, "write result back to the file instead of stdout")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meetscribe clean [-w] <transcript-file>")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cleaned := cleaner.Clean(string(data)) + "\n"

	if *inPlace {
		return os.WriteFile(path, []byte(cleaned), 0o644)
	}
	_, err = os.Stdout.WriteString(cleaned)
	return err
}
