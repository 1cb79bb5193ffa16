package webhook

import "context"

const SessionEndedSchemaVersion = 1

type SessionEndedEntry struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

type SessionEndedPayload struct {
	SchemaVersion   int                 `json:"schema_version"`
	Event           string              `json:"event"`
	SessionID       string              `json:"session_id"`
	UserID          string              `json:"user_id"`
	CoachID         string              `json:"coach_id"`
	StartAt         string              `json:"start_at"`
	EndAt           string              `json:"end_at"`
	Timezone        string              `json:"timezone"`
	DurationSeconds int64               `json:"duration_seconds"`
	CreditsUsed     int64               `json:"credits_used"`
	TotalTips       int                 `json:"total_tips"`
	SentimentScore  *float64            `json:"sentiment_score,omitempty"`
	EntryCount      int                 `json:"entry_count"`
	Transcript      []SessionEndedEntry `json:"transcript"`
}

type Sender interface {
	SendSessionEnded(ctx context.Context, payload SessionEndedPayload) error
}
