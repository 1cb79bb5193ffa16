package coaching

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/foxseedlab/coachsession/internal/webhook"
)

const (
	transcriptTimeLayout = "2006-01-02 15:04:05"

	sessionEndedEvent = "session.ended"
)

func buildTranscriptText(s session.Session, timezone string, loc *time.Location) []byte {
	loc = safeLocation(loc)
	startText := s.StartedAt().In(loc).Format(transcriptTimeLayout)
	endText := "(in progress)"
	if end, ok := s.EndedAt().Get(); ok {
		endText = end.In(loc).Format(transcriptTimeLayout)
	}
	entries := s.Transcript()

	lines := []string{
		fmt.Sprintf("Session: %s", s.ID()),
		fmt.Sprintf("User: %s", s.UserID()),
		fmt.Sprintf("Coach: %s", s.CoachID()),
		fmt.Sprintf("Period: %s ~ %s (%s)", startText, endText, timezone),
		fmt.Sprintf("Entries: %d", len(entries)),
		"",
	}
	for _, e := range entries {
		elapsed := e.Timestamp.Sub(s.StartedAt())
		if elapsed < 0 {
			elapsed = 0
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", formatElapsedHMS(elapsed), e.Speaker, e.Text))
	}
	return []byte(strings.Join(lines, "\n"))
}

func buildSessionEndedPayload(s session.Session, timezone string, loc *time.Location) webhook.SessionEndedPayload {
	loc = safeLocation(loc)
	entries := s.Transcript()
	transcript := make([]webhook.SessionEndedEntry, 0, len(entries))
	for i, e := range entries {
		transcript = append(transcript, webhook.SessionEndedEntry{
			Index:     i,
			Timestamp: e.Timestamp.In(loc).Format(time.RFC3339),
			Speaker:   string(e.Speaker),
			Text:      e.Text,
		})
	}

	var endAt string
	var durationSeconds int64
	if end, ok := s.EndedAt().Get(); ok {
		endAt = end.In(loc).Format(time.RFC3339)
		d, _ := s.Duration()
		durationSeconds = int64(d.Seconds())
	}
	analytics := s.Analytics()

	return webhook.SessionEndedPayload{
		SchemaVersion:   webhook.SessionEndedSchemaVersion,
		Event:           sessionEndedEvent,
		SessionID:       s.ID(),
		UserID:          s.UserID(),
		CoachID:         s.CoachID(),
		StartAt:         s.StartedAt().In(loc).Format(time.RFC3339),
		EndAt:           endAt,
		Timezone:        timezone,
		DurationSeconds: durationSeconds,
		CreditsUsed:     s.CreditsUsed(),
		TotalTips:       analytics.TotalTips,
		SentimentScore:  analytics.SentimentScore.Ptr(),
		EntryCount:      len(entries),
		Transcript:      transcript,
	}
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
