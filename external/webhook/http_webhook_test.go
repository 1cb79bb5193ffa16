package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxseedlab/coachsession/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSessionEnded_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	assert.False(t, sender.Enabled())
	assert.NoError(t, sender.SendSessionEnded(context.Background(), webhook.SessionEndedPayload{SessionID: "s1"}))
}

func TestSendSessionEnded_Success(t *testing.T) {
	var (
		got     webhook.SessionEndedPayload
		headers http.Header
		method  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	score := 0.5
	payload := webhook.SessionEndedPayload{
		SchemaVersion:  webhook.SessionEndedSchemaVersion,
		Event:          "session.ended",
		SessionID:      "s1",
		UserID:         "u1",
		CoachID:        "c1",
		CreditsUsed:    5,
		SentimentScore: &score,
		EntryCount:     1,
		Transcript:     []webhook.SessionEndedEntry{{Index: 0, Speaker: "user", Text: "hi"}},
	}
	sender := NewHTTPSender(server.URL)
	require.True(t, sender.Enabled())
	require.NoError(t, sender.SendSessionEnded(context.Background(), payload))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, userAgent, headers.Get("User-Agent"))
	assert.Equal(t, "session.ended", headers.Get(headerEvent))
	assert.Equal(t, "1", headers.Get(headerSchemaVersion))
	assert.Equal(t, "s1", headers.Get(headerSessionID))

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, int64(5), got.CreditsUsed)
	assert.Equal(t, 1, got.EntryCount)
	require.NotNil(t, got.SentimentScore)
	assert.Equal(t, 0.5, *got.SentimentScore)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, "hi", got.Transcript[0].Text)
}

func TestSendSessionEnded_Non2xxCarriesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("  unknown schema_version\n"))
	}))
	defer server.Close()

	err := NewHTTPSender(server.URL).SendSessionEnded(context.Background(),
		webhook.SessionEndedPayload{Event: "session.ended", SessionID: "s1"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "unknown schema_version", statusErr.Body)
	assert.Equal(t, "session.ended webhook returned status 422: unknown schema_version", err.Error())
}

func TestSendSessionEnded_TruncatesLargeErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 4*maxErrorBodyBytes)))
	}))
	defer server.Close()

	err := NewHTTPSender(server.URL).SendSessionEnded(context.Background(),
		webhook.SessionEndedPayload{Event: "session.ended", SessionID: "s1"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Len(t, statusErr.Body, maxErrorBodyBytes)
}

func TestSendSessionEnded_Non2xxWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewHTTPSender(server.URL).SendSessionEnded(context.Background(),
		webhook.SessionEndedPayload{Event: "session.ended", SessionID: "s1"})
	assert.EqualError(t, err, "session.ended webhook returned status 502")
}
