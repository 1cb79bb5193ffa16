package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/session"
)

// MemoryRepository keeps sessions in a process-local map. Sessions are
// immutable values, so storing and returning them needs no cloning.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]session.Session)}
}

func (r *MemoryRepository) Insert(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return fmt.Errorf("session %s already stored", s.ID())
	}
	if s.State() == session.StateOpen && r.openByUserLocked(s.UserID()) != nil {
		return repository.ErrOpenSessionExists
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return s, nil
}

// Update holds the store lock while fn runs, which serializes writes for
// every id at once.
func (r *MemoryRepository) Update(_ context.Context, id string, fn repository.MutateFunc) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if err := repository.CheckTransition(current, next); err != nil {
		return current, err
	}
	r.sessions[id] = next
	return next, nil
}

func (r *MemoryRepository) GetOpenByUser(_ context.Context, userID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openByUserLocked(userID), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]session.Session, error) {
	r.mu.Lock()
	var list []session.Session
	for _, s := range r.sessions {
		if s.UserID() == userID {
			list = append(list, s)
		}
	}
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt().Equal(list[j].StartedAt()) {
			return list[i].StartedAt().After(list[j].StartedAt())
		}
		return list[i].ID() < list[j].ID()
	})
	return list, nil
}

func (r *MemoryRepository) CountStartedSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID() == userID && !s.StartedAt().Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) openByUserLocked(userID string) *session.Session {
	for _, s := range r.sessions {
		if s.UserID() == userID && s.State() == session.StateOpen {
			found := s
			return &found
		}
	}
	return nil
}
