package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.SessionRepository = (*MemoryRepository)(nil)
	_ repository.SessionRepository = (*PostgresRepository)(nil)
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSession(t *testing.T, userID string, startedAt time.Time) session.Session {
	t.Helper()
	s, err := session.Create(userID, "coach-1", startedAt)
	require.NoError(t, err)
	return s
}

func TestMemoryRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := newSession(t, "u1", t0)

	require.NoError(t, repo.Insert(ctx, s))
	got, err := repo.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), got.Snapshot())

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryRepository_OneOpenSessionPerUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	first := newSession(t, "u1", t0)
	require.NoError(t, repo.Insert(ctx, first))

	err := repo.Insert(ctx, newSession(t, "u1", t0.Add(time.Minute)))
	assert.ErrorIs(t, err, repository.ErrOpenSessionExists)

	assert.NoError(t, repo.Insert(ctx, newSession(t, "u2", t0)))

	_, err = repo.Update(ctx, first.ID(), func(s session.Session) (session.Session, error) {
		return session.End(s, t0.Add(time.Minute))
	})
	require.NoError(t, err)
	assert.NoError(t, repo.Insert(ctx, newSession(t, "u1", t0.Add(2*time.Minute))))
}

func TestMemoryRepository_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := newSession(t, "u1", t0)
	require.NoError(t, repo.Insert(ctx, s))

	_, err := repo.Update(ctx, s.ID(), func(cur session.Session) (session.Session, error) {
		return session.IncrementCredits(cur, -5)
	})
	assert.ErrorIs(t, err, session.ErrInvalidArgument)

	got, err := repo.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Zero(t, got.CreditsUsed())

	_, err = repo.Update(ctx, "missing", func(cur session.Session) (session.Session, error) { return cur, nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryRepository_UpdateRejectsIdentitySwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := newSession(t, "u1", t0)
	other := newSession(t, "u2", t0)
	require.NoError(t, repo.Insert(ctx, s))

	_, err := repo.Update(ctx, s.ID(), func(session.Session) (session.Session, error) { return other, nil })
	assert.Error(t, err)
}

func TestMemoryRepository_UpdateRejectsTruncation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := newSession(t, "u1", t0)
	require.NoError(t, repo.Insert(ctx, s))
	_, err := repo.Update(ctx, s.ID(), func(cur session.Session) (session.Session, error) {
		return session.AppendTranscriptEntry(cur, session.TranscriptEntry{Timestamp: t0, Speaker: session.SpeakerUser, Text: "hi"})
	})
	require.NoError(t, err)

	_, err = repo.Update(ctx, s.ID(), func(session.Session) (session.Session, error) { return s, nil })
	assert.ErrorContains(t, err, "truncated its transcript")

	got, err := repo.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, got.TranscriptLen())
}

func TestMemoryRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := newSession(t, "u1", t0)
	require.NoError(t, repo.Insert(ctx, s))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, s.ID(), func(cur session.Session) (session.Session, error) {
				return session.IncrementCredits(cur, 2)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2*workers), got.CreditsUsed())
}

func TestMemoryRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	old := newSession(t, "u1", t0)
	old, err := session.End(old, t0.Add(time.Hour))
	require.NoError(t, err)
	recent := newSession(t, "u1", t0.Add(48*time.Hour))
	require.NoError(t, repo.Insert(ctx, old))
	require.NoError(t, repo.Insert(ctx, recent))
	require.NoError(t, repo.Insert(ctx, newSession(t, "u2", t0)))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID(), list[0].ID())
	assert.Equal(t, old.ID(), list[1].ID())

	n, err := repo.CountStartedSince(ctx, "u1", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, err := repo.GetOpenByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, recent.ID(), open.ID())

	none, err := repo.GetOpenByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}
