package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Snapshot is the flat record form of a Session shared by storage adapters
// and the HTTP API. Absent optional fields are omitted from JSON.
type Snapshot struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	CoachID     string              `json:"coach_id"`
	StartedAt   time.Time           `json:"started_at"`
	EndedAt     Optional[time.Time] `json:"ended_at,omitzero"`
	Transcript  []TranscriptEntry   `json:"transcript"`
	Analytics   Analytics           `json:"analytics"`
	CreditsUsed int64               `json:"credits_used"`
}

func (s Session) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.id,
		UserID:      s.userID,
		CoachID:     s.coachID,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		Transcript:  s.Transcript(),
		Analytics:   s.analytics,
		CreditsUsed: s.creditsUsed,
	}
}

// FromSnapshot rebuilds a Session from a stored record, rejecting records
// that break any session invariant.
func FromSnapshot(snap Snapshot) (Session, error) {
	if strings.TrimSpace(snap.ID) == "" {
		return Session{}, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(snap.UserID) == "" || strings.TrimSpace(snap.CoachID) == "" {
		return Session{}, fmt.Errorf("%w: session %s is missing user_id or coach_id", ErrInvalidArgument, snap.ID)
	}
	if snap.StartedAt.IsZero() {
		return Session{}, fmt.Errorf("%w: session %s is missing started_at", ErrInvalidArgument, snap.ID)
	}
	if end, ok := snap.EndedAt.Get(); ok && end.Before(snap.StartedAt) {
		return Session{}, fmt.Errorf("%w: session %s ended before it started", ErrInvalidArgument, snap.ID)
	}
	if snap.CreditsUsed < 0 {
		return Session{}, fmt.Errorf("%w: session %s has negative credits_used", ErrInvalidArgument, snap.ID)
	}
	if err := snap.Analytics.validate(); err != nil {
		return Session{}, err
	}
	transcript := make([]TranscriptEntry, len(snap.Transcript))
	for i, e := range snap.Transcript {
		if err := e.validate(); err != nil {
			return Session{}, fmt.Errorf("session %s entry %d: %w", snap.ID, i, err)
		}
		if i > 0 && e.Timestamp.Before(snap.Transcript[i-1].Timestamp) {
			return Session{}, fmt.Errorf("session %s entry %d: %w", snap.ID, i, ErrOutOfOrderEntry)
		}
		transcript[i] = e
	}
	return Session{
		id:          snap.ID,
		userID:      snap.UserID,
		coachID:     snap.CoachID,
		startedAt:   snap.StartedAt,
		endedAt:     snap.EndedAt,
		transcript:  transcript,
		analytics:   snap.Analytics,
		creditsUsed: snap.CreditsUsed,
	}, nil
}

func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	restored, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	*s = restored
	return nil
}
