package session

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerCoach Speaker = "coach"
)

func ParseSpeaker(s string) (Speaker, error) {
	switch Speaker(s) {
	case SpeakerUser, SpeakerCoach:
		return Speaker(s), nil
	default:
		return "", fmt.Errorf("%w: speaker must be %q or %q, got %q", ErrInvalidArgument, SpeakerUser, SpeakerCoach, s)
	}
}

// State is the lifecycle position of a session. StateEnded is terminal.
type State int

const (
	StateOpen State = iota
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
}

func NewTranscriptEntry(ts time.Time, speaker Speaker, text string) (TranscriptEntry, error) {
	e := TranscriptEntry{Timestamp: ts, Speaker: speaker, Text: text}
	if err := e.validate(); err != nil {
		return TranscriptEntry{}, err
	}
	return e, nil
}

func (e TranscriptEntry) validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: transcript entry timestamp is required", ErrInvalidArgument)
	}
	if _, err := ParseSpeaker(string(e.Speaker)); err != nil {
		return err
	}
	return nil
}

type Analytics struct {
	TotalTips      int               `json:"total_tips"`
	SentimentScore Optional[float64] `json:"sentiment_score,omitzero"`
}

func (a Analytics) validate() error {
	if a.TotalTips < 0 {
		return fmt.Errorf("%w: total_tips must be non-negative, got %d", ErrInvalidArgument, a.TotalTips)
	}
	if score, ok := a.SentimentScore.Get(); ok && (math.IsNaN(score) || math.IsInf(score, 0)) {
		return fmt.Errorf("%w: sentiment_score must be a finite number", ErrInvalidArgument)
	}
	return nil
}

// Session is an immutable value. Every operation returns a new Session and
// leaves its input untouched, so callers may keep older values around.
type Session struct {
	id          string
	userID      string
	coachID     string
	startedAt   time.Time
	endedAt     Optional[time.Time]
	transcript  []TranscriptEntry
	analytics   Analytics
	creditsUsed int64
}

// Create starts an open session with a fresh identifier.
func Create(userID, coachID string, startedAt time.Time) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(coachID) == "" {
		return Session{}, fmt.Errorf("%w: coach_id is required", ErrInvalidArgument)
	}
	if startedAt.IsZero() {
		return Session{}, fmt.Errorf("%w: started_at is required", ErrInvalidArgument)
	}
	return Session{
		id:        uuid.NewString(),
		userID:    userID,
		coachID:   coachID,
		startedAt: startedAt,
	}, nil
}

func (s Session) ID() string                   { return s.id }
func (s Session) UserID() string               { return s.userID }
func (s Session) CoachID() string              { return s.coachID }
func (s Session) StartedAt() time.Time         { return s.startedAt }
func (s Session) EndedAt() Optional[time.Time] { return s.endedAt }
func (s Session) Analytics() Analytics         { return s.analytics }
func (s Session) CreditsUsed() int64           { return s.creditsUsed }
func (s Session) TranscriptLen() int           { return len(s.transcript) }

// Transcript returns a copy of the entries in arrival order.
func (s Session) Transcript() []TranscriptEntry {
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s Session) State() State {
	if s.endedAt.IsPresent() {
		return StateEnded
	}
	return StateOpen
}

// Duration is the ended-at minus started-at span, or false while open.
func (s Session) Duration() (time.Duration, bool) {
	end, ok := s.endedAt.Get()
	if !ok {
		return 0, false
	}
	return end.Sub(s.startedAt), true
}

func (s Session) requireOpen() error {
	switch s.State() {
	case StateOpen:
		return nil
	case StateEnded:
		return fmt.Errorf("%w: session %s", ErrSessionClosed, s.id)
	default:
		panic(fmt.Sprintf("session: unknown state %v", s.State()))
	}
}

func AppendTranscriptEntry(s Session, entry TranscriptEntry) (Session, error) {
	if err := s.requireOpen(); err != nil {
		return s, err
	}
	if err := entry.validate(); err != nil {
		return s, err
	}
	if n := len(s.transcript); n > 0 && entry.Timestamp.Before(s.transcript[n-1].Timestamp) {
		return s, fmt.Errorf("%w: %s precedes last entry at %s", ErrOutOfOrderEntry,
			entry.Timestamp.Format(time.RFC3339Nano), s.transcript[n-1].Timestamp.Format(time.RFC3339Nano))
	}
	next := s
	next.transcript = make([]TranscriptEntry, len(s.transcript), len(s.transcript)+1)
	copy(next.transcript, s.transcript)
	next.transcript = append(next.transcript, entry)
	return next, nil
}

func IncrementCredits(s Session, amount int64) (Session, error) {
	if err := s.requireOpen(); err != nil {
		return s, err
	}
	if amount < 0 {
		return s, fmt.Errorf("%w: credit amount must be non-negative, got %d", ErrInvalidArgument, amount)
	}
	if s.creditsUsed > math.MaxInt64-amount {
		return s, fmt.Errorf("%w: credit counter overflow", ErrInvalidArgument)
	}
	next := s
	next.creditsUsed += amount
	return next, nil
}

func UpdateAnalytics(s Session, a Analytics) (Session, error) {
	if err := s.requireOpen(); err != nil {
		return s, err
	}
	if err := a.validate(); err != nil {
		return s, err
	}
	next := s
	next.analytics = a
	return next, nil
}

func End(s Session, endedAt time.Time) (Session, error) {
	if s.State() == StateEnded {
		return s, fmt.Errorf("%w: session %s", ErrAlreadyEnded, s.id)
	}
	if endedAt.Before(s.startedAt) {
		return s, fmt.Errorf("%w: ended_at %s precedes started_at %s", ErrInvalidArgument,
			endedAt.Format(time.RFC3339Nano), s.startedAt.Format(time.RFC3339Nano))
	}
	next := s
	next.endedAt = Some(endedAt)
	return next, nil
}
