package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/coachsession/internal/session"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrOpenSessionExists = errors.New("user already has an open session")
)

// MutateFunc computes the next value of a stored session. Returning an error
// aborts the update and nothing is written.
type MutateFunc func(current session.Session) (session.Session, error)

// CheckTransition rejects a MutateFunc result that swaps the session or
// drops stored transcript entries. Stores call it before writing.
func CheckTransition(current, next session.Session) error {
	if next.ID() != current.ID() {
		return fmt.Errorf("update of session %s returned session %s", current.ID(), next.ID())
	}
	if next.TranscriptLen() < current.TranscriptLen() {
		return fmt.Errorf("update of session %s truncated its transcript", current.ID())
	}
	return nil
}

// SessionRepository persists sessions. Implementations serialize Update calls
// per session id so that every MutateFunc sees the latest committed value.
type SessionRepository interface {
	Insert(ctx context.Context, s session.Session) error
	Get(ctx context.Context, id string) (session.Session, error)
	Update(ctx context.Context, id string, fn MutateFunc) (session.Session, error)
	// GetOpenByUser returns nil when the user has no open session.
	GetOpenByUser(ctx context.Context, userID string) (*session.Session, error)
	// ListByUser returns the user's sessions, newest started_at first.
	ListByUser(ctx context.Context, userID string) ([]session.Session, error)
	CountStartedSince(ctx context.Context, userID string, since time.Time) (int, error)
}
