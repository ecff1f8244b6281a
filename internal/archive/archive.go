// Package archive persists finished sessions to Postgres for later search.
package archive

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/finalize"
	"github.com/oxlade/meetscribe/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	started_at    TIMESTAMPTZ NOT NULL,
	duration_s    DOUBLE PRECISION NOT NULL,
	live_model    TEXT NOT NULL,
	final_model   TEXT NOT NULL,
	used_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	transcript    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sessions_started_at_idx ON sessions (started_at);
`

// Store writes session records to Postgres.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the pool, verifies it, and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("archive database connected")
	return &Store{pool: pool, log: log.With().Str("component", "archive").Logger()}, nil
}

// SaveSession records a completed session and its cleaned transcript. The
// transcript is read from the clean artifact when present, otherwise from
// the raw text result.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session, art *finalize.Artifacts) error {
	transcript := art.Text
	for _, f := range art.Files {
		if strings.HasSuffix(f, ".clean.txt") {
			if data, err := os.ReadFile(f); err == nil {
				transcript = string(data)
			}
			break
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (name, started_at, duration_s, live_model, final_model, used_fallback, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			duration_s = EXCLUDED.duration_s,
			used_fallback = EXCLUDED.used_fallback,
			transcript = EXCLUDED.transcript`,
		sess.Name(), sess.StartedAt, art.Duration, sess.LiveModel, art.Model, art.UsedFallback, transcript,
	)
	if err != nil {
		return err
	}
	s.log.Info().Str("session", sess.Name()).Msg("session archived")
	return nil
}

// HealthCheck pings the pool with a short deadline.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
