package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/coachsession/internal/webhook"
)

const (
	webhookTimeout = 10 * time.Second

	// Only the head of an error response is kept for the returned error.
	maxErrorBodyBytes = 1 << 10

	headerEvent         = "X-Coachsession-Event"
	headerSchemaVersion = "X-Coachsession-Schema-Version"
	headerSessionID     = "X-Coachsession-Session"
	userAgent           = "coachsession-webhook/1"
)

type HTTPSender struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPSender(webhookURL string) *HTTPSender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

func (s *HTTPSender) Enabled() bool {
	return s.webhookURL != ""
}

func (s *HTTPSender) SendSessionEnded(ctx context.Context, payload webhook.SessionEndedPayload) error {
	if !s.Enabled() {
		return nil
	}
	return s.post(ctx, payload.Event, payload.SchemaVersion, payload.SessionID, payload)
}

func (s *HTTPSender) post(ctx context.Context, event string, schemaVersion int, sessionID string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s webhook: %w", event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build %s webhook request: %w", event, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerSchemaVersion, strconv.Itoa(schemaVersion))
	req.Header.Set(headerSessionID, sessionID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s webhook for session %s: %w", event, sessionID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{
			Event:      event,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(detail)),
		}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil
}

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	Event      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s webhook returned status %d", e.Event, e.StatusCode)
	}
	return fmt.Sprintf("%s webhook returned status %d: %s", e.Event, e.StatusCode, e.Body)
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
