package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Transcription toolchain
	WhisperRoot string `env:"WHISPER_ROOT,required"`
	WhisperBin  string `env:"WHISPER_BIN"`
	ModelDir    string `env:"MODEL_DIR"`
	LiveModel   string `env:"LIVE_MODEL" envDefault:"base.en"`
	FinalModel  string `env:"FINAL_MODEL" envDefault:"large-v3"`
	Language    string `env:"LANGUAGE" envDefault:"en"`
	Threads     int    `env:"THREADS"`

	// Optional OpenAI-compatible whisper server instead of the local binary
	WhisperServerURL string        `env:"WHISPER_SERVER_URL"`
	WhisperTimeout   time.Duration `env:"WHISPER_TIMEOUT" envDefault:"10m"`

	// Recording
	OutputDir      string `env:"OUTPUT_DIR" envDefault:"./recordings"`
	InputDevice    string `env:"INPUT_DEVICE" envDefault:"default"`
	SampleRate     int    `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels       int    `env:"CHANNELS" envDefault:"1"`
	SegmentSeconds int    `env:"SEGMENT_SECONDS" envDefault:"30"`

	// Live caption pipeline
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	Workers      int           `env:"WORKERS" envDefault:"2"`
	QueueSize    int           `env:"QUEUE_SIZE" envDefault:"64"`
	CaptionOrder string        `env:"CAPTION_ORDER" envDefault:"arrival"`
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"2m"`

	// Optional status server
	HTTPAddr     string        `env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// Optional caption publishing
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"meetscribe"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"meetscribe"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	// Optional artifact archive
	S3 S3Config `envPrefix:"S3_"`

	// Optional transcript archive
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible artifact archive.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether the archive is configured at all.
func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	LogLevel    string
	OutputDir   string
	WhisperRoot string
	LiveModel   string
	FinalModel  string
	Language    string
	HTTPAddr    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
// The result is a fixed snapshot; nothing re-reads the environment mid-session.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.WhisperRoot != "" {
		cfg.WhisperRoot = overrides.WhisperRoot
	}
	if overrides.LiveModel != "" {
		cfg.LiveModel = overrides.LiveModel
	}
	if overrides.FinalModel != "" {
		cfg.FinalModel = overrides.FinalModel
	}
	if overrides.Language != "" {
		cfg.Language = overrides.Language
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}

	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.WhisperBin == "" {
		cfg.WhisperBin = filepath.Join(cfg.WhisperRoot, "main")
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = filepath.Join(cfg.WhisperRoot, "models")
	}

	if cfg.CaptionOrder != "arrival" && cfg.CaptionOrder != "strict" {
		return nil, fmt.Errorf("CAPTION_ORDER must be %q or %q, got %q", "arrival", "strict", cfg.CaptionOrder)
	}

	return cfg, nil
}
