package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE transcript_speaker AS ENUM ('user', 'coach'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		coach_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		total_tips INTEGER NOT NULL DEFAULT 0 CHECK (total_tips >= 0),
		sentiment_score DOUBLE PRECISION,
		credits_used BIGINT NOT NULL DEFAULT 0 CHECK (credits_used >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (ended_at IS NULL OR ended_at >= started_at)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open_per_user ON sessions (user_id) WHERE ended_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON sessions (user_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		speaker transcript_speaker NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, position)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
