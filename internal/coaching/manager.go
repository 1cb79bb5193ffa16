package coaching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/foxseedlab/coachsession/internal/webhook"
)

const (
	statsWindow = 7 * 24 * time.Hour

	webhookTimeout = 15 * time.Second
)

var ErrActiveSessionExists = errors.New("active session exists")

// ActiveSessionError is returned by Start when the user already has an open
// session. SessionID is empty if the conflicting session could not be read.
type ActiveSessionError struct {
	SessionID string
}

func (e *ActiveSessionError) Error() string {
	if e.SessionID == "" {
		return ErrActiveSessionExists.Error()
	}
	return fmt.Sprintf("%s: %s", ErrActiveSessionExists, e.SessionID)
}

func (e *ActiveSessionError) Unwrap() error {
	return ErrActiveSessionExists
}

type TranscriptInput struct {
	Speaker string
	Text    string
	// At defaults to the current time when zero.
	At time.Time
}

type Stats struct {
	SessionsThisWeek int                       `json:"sessions_this_week"`
	TotalSessions    int                       `json:"total_sessions"`
	AverageSentiment session.Optional[float64] `json:"average_sentiment,omitzero"`
	TotalCreditsUsed int64                     `json:"total_credits_used"`
}

type Manager struct {
	cfg     *config.Config
	repo    repository.SessionRepository
	webhook webhook.Sender
	now     func() time.Time
}

func NewManager(cfg *config.Config, repo repository.SessionRepository, wh webhook.Sender) *Manager {
	return &Manager{
		cfg:     cfg,
		repo:    repo,
		webhook: wh,
		now:     defaultClock,
	}
}

func defaultClock() time.Time {
	return normalizeTimestamp(time.Now())
}

// normalizeTimestamp truncates to the microsecond precision Postgres
// stores, so ordering checks agree across session stores.
func normalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (m *Manager) Start(ctx context.Context, userID, coachID string) (session.Session, error) {
	slog.Info("start session requested", "user_id", userID, "coach_id", coachID)
	if strings.TrimSpace(userID) != "" {
		existing, err := m.repo.GetOpenByUser(ctx, userID)
		if err != nil {
			slog.Error("failed to query open session", "error", err, "user_id", userID)
			return session.Session{}, err
		}
		if existing != nil {
			slog.Info("user already has an open session", "user_id", userID, "session_id", existing.ID())
			return session.Session{}, &ActiveSessionError{SessionID: existing.ID()}
		}
	}

	s, err := session.Create(userID, coachID, m.now())
	if err != nil {
		return session.Session{}, err
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		if errors.Is(err, repository.ErrOpenSessionExists) {
			return session.Session{}, m.activeSessionError(ctx, userID)
		}
		slog.Error("failed to insert session", "error", err, "user_id", userID)
		return session.Session{}, err
	}
	slog.Info("session started", "session_id", s.ID(), "user_id", userID, "coach_id", coachID)
	return s, nil
}

func (m *Manager) activeSessionError(ctx context.Context, userID string) error {
	existing, err := m.repo.GetOpenByUser(ctx, userID)
	if err != nil || existing == nil {
		return &ActiveSessionError{}
	}
	return &ActiveSessionError{SessionID: existing.ID()}
}

func (m *Manager) Get(ctx context.Context, id string) (session.Session, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]session.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", session.ErrInvalidArgument)
	}
	return m.repo.ListByUser(ctx, userID)
}

func (m *Manager) AppendTranscript(ctx context.Context, id string, in TranscriptInput) (session.Session, error) {
	speaker, err := session.ParseSpeaker(in.Speaker)
	if err != nil {
		return session.Session{}, err
	}
	if in.Text == "" {
		return session.Session{}, fmt.Errorf("%w: transcript entry text is required", session.ErrInvalidArgument)
	}
	at := m.now()
	if !in.At.IsZero() {
		at = normalizeTimestamp(in.At)
	}
	entry, err := session.NewTranscriptEntry(at, speaker, in.Text)
	if err != nil {
		return session.Session{}, err
	}
	updated, err := m.repo.Update(ctx, id, func(cur session.Session) (session.Session, error) {
		return session.AppendTranscriptEntry(cur, entry)
	})
	if err != nil {
		slog.Warn("failed to append transcript entry", "error", err, "session_id", id, "speaker", speaker)
		return session.Session{}, err
	}
	slog.Debug("transcript entry appended", "session_id", id, "speaker", speaker, "entries", updated.TranscriptLen())
	return updated, nil
}

func (m *Manager) IncrementCredits(ctx context.Context, id string, amount int64) (session.Session, error) {
	updated, err := m.repo.Update(ctx, id, func(cur session.Session) (session.Session, error) {
		return session.IncrementCredits(cur, amount)
	})
	if err != nil {
		slog.Warn("failed to increment credits", "error", err, "session_id", id, "amount", amount)
		return session.Session{}, err
	}
	return updated, nil
}

func (m *Manager) UpdateAnalytics(ctx context.Context, id string, a session.Analytics) (session.Session, error) {
	updated, err := m.repo.Update(ctx, id, func(cur session.Session) (session.Session, error) {
		return session.UpdateAnalytics(cur, a)
	})
	if err != nil {
		slog.Warn("failed to update analytics", "error", err, "session_id", id)
		return session.Session{}, err
	}
	return updated, nil
}

// End closes the session at the current time and publishes the webhook.
// Webhook failures are logged and do not fail the call.
func (m *Manager) End(ctx context.Context, id string) (session.Session, error) {
	at := m.now()
	ended, err := m.repo.Update(ctx, id, func(cur session.Session) (session.Session, error) {
		endAt := at
		if endAt.Before(cur.StartedAt()) {
			endAt = cur.StartedAt()
		}
		return session.End(cur, endAt)
	})
	if err != nil {
		slog.Warn("failed to end session", "error", err, "session_id", id)
		return session.Session{}, err
	}
	d, _ := ended.Duration()
	slog.Info("session ended", "session_id", id, "user_id", ended.UserID(), "duration_seconds", int64(d.Seconds()), "entries", ended.TranscriptLen(), "credits_used", ended.CreditsUsed())

	m.publishEnded(ctx, ended)
	return ended, nil
}

func (m *Manager) publishEnded(ctx context.Context, s session.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()
	payload := buildSessionEndedPayload(s, m.cfg.TranscriptTimezone, m.cfg.Location())
	if err := m.webhook.SendSessionEnded(ctx, payload); err != nil {
		slog.Error("failed to send session ended webhook", "error", err, "session_id", s.ID())
	}
}

func (m *Manager) Stats(ctx context.Context, userID string) (Stats, error) {
	if strings.TrimSpace(userID) == "" {
		return Stats{}, fmt.Errorf("%w: user_id is required", session.ErrInvalidArgument)
	}
	weekly, err := m.repo.CountStartedSince(ctx, userID, m.now().Add(-statsWindow))
	if err != nil {
		return Stats{}, err
	}
	list, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{SessionsThisWeek: weekly, TotalSessions: len(list)}
	var scoreSum float64
	var scored int
	for _, s := range list {
		stats.TotalCreditsUsed += s.CreditsUsed()
		if score, ok := s.Analytics().SentimentScore.Get(); ok {
			scoreSum += score
			scored++
		}
	}
	if scored > 0 {
		stats.AverageSentiment = session.Some(scoreSum / float64(scored))
	}
	return stats, nil
}

// ExportTranscript renders the plain-text transcript of a session.
func (m *Manager) ExportTranscript(ctx context.Context, id string) (string, []byte, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	filename := fmt.Sprintf("transcript-%s.txt", s.ID())
	return filename, buildTranscriptText(s, m.cfg.TranscriptTimezone, m.cfg.Location()), nil
}
