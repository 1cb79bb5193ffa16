package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sessionColumns = `id, user_id, coach_id, started_at, ended_at, total_tips, sentiment_score, credits_used`

	pgUniqueViolation = "23505"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Shutdown closes the pool when the injector shuts down.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}

func (r *PostgresRepository) Insert(ctx context.Context, s session.Session) error {
	snap := s.Snapshot()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.ID, snap.UserID, snap.CoachID, snap.StartedAt, snap.EndedAt.Ptr(),
		snap.Analytics.TotalTips, snap.Analytics.SentimentScore.Ptr(), snap.CreditsUsed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "idx_sessions_open_per_user" {
			return repository.ErrOpenSessionExists
		}
		return err
	}
	if err := insertEntries(ctx, tx, snap.ID, 0, snap.Transcript); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (session.Session, error) {
	return load(ctx, r.pool, id, false)
}

func (r *PostgresRepository) Update(ctx context.Context, id string, fn repository.MutateFunc) (session.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return session.Session{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := load(ctx, tx, id, true)
	if err != nil {
		return session.Session{}, err
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if err := repository.CheckTransition(current, next); err != nil {
		return current, err
	}
	prevLen := current.TranscriptLen()

	snap := next.Snapshot()
	if _, err := tx.Exec(ctx,
		`UPDATE sessions
		 SET ended_at = $2, total_tips = $3, sentiment_score = $4, credits_used = $5, updated_at = NOW()
		 WHERE id = $1`,
		id, snap.EndedAt.Ptr(), snap.Analytics.TotalTips, snap.Analytics.SentimentScore.Ptr(), snap.CreditsUsed); err != nil {
		return current, err
	}
	if err := insertEntries(ctx, tx, id, prevLen, snap.Transcript[prevLen:]); err != nil {
		return current, err
	}
	if err := tx.Commit(ctx); err != nil {
		return current, err
	}
	return next, nil
}

func (r *PostgresRepository) GetOpenByUser(ctx context.Context, userID string) (*session.Session, error) {
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM sessions WHERE user_id = $1 AND ended_at IS NULL LIMIT 1`,
		userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s, err := load(ctx, r.pool, id, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]session.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 ORDER BY started_at DESC, id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	var snaps []session.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	entries, err := listEntries(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}

	list := make([]session.Session, 0, len(snaps))
	for _, snap := range snaps {
		snap.Transcript = entries[snap.ID]
		s, err := session.FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

func (r *PostgresRepository) CountStartedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND started_at >= $2`,
		userID, since).Scan(&n)
	return n, err
}

func load(ctx context.Context, q querier, id string, forUpdate bool) (session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	snap, err := scanSnapshot(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
		}
		return session.Session{}, err
	}
	entries, err := listEntries(ctx, q, []string{id})
	if err != nil {
		return session.Session{}, err
	}
	snap.Transcript = entries[id]
	return session.FromSnapshot(snap)
}

func scanSnapshot(row pgx.Row) (session.Snapshot, error) {
	var snap session.Snapshot
	var endedAt *time.Time
	var sentiment *float64
	err := row.Scan(&snap.ID, &snap.UserID, &snap.CoachID, &snap.StartedAt, &endedAt,
		&snap.Analytics.TotalTips, &sentiment, &snap.CreditsUsed)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap.EndedAt = session.FromPtr(endedAt)
	snap.Analytics.SentimentScore = session.FromPtr(sentiment)
	return snap, nil
}

func listEntries(ctx context.Context, q querier, sessionIDs []string) (map[string][]session.TranscriptEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT session_id, spoken_at, speaker, text
		 FROM transcript_entries WHERE session_id = ANY($1)
		 ORDER BY session_id, position ASC`,
		sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]session.TranscriptEntry, len(sessionIDs))
	for rows.Next() {
		var sessionID, speaker string
		var e session.TranscriptEntry
		if err := rows.Scan(&sessionID, &e.Timestamp, &speaker, &e.Text); err != nil {
			return nil, err
		}
		e.Speaker = session.Speaker(speaker)
		out[sessionID] = append(out[sessionID], e)
	}
	return out, rows.Err()
}

func insertEntries(ctx context.Context, q querier, sessionID string, firstPosition int, entries []session.TranscriptEntry) error {
	for i, e := range entries {
		if _, err := q.Exec(ctx,
			`INSERT INTO transcript_entries (session_id, position, spoken_at, speaker, text)
			 VALUES ($1, $2, $3, $4, $5)`,
			sessionID, firstPosition+i, e.Timestamp, string(e.Speaker), e.Text); err != nil {
			return err
		}
	}
	return nil
}
