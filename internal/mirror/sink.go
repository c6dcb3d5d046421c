package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sink delivers one row. key is stable across retries of the same row.
type Sink interface {
	Send(ctx context.Context, key string, row Row) error
}

// LogSink writes rows to a logger. Used when no remote endpoint is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the row.
func (s LogSink) Send(ctx context.Context, key string, row Row) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mirror row", "key", key, "record_id", row.RecordID, "values", row.Values)
	return nil
}

// WebhookSink POSTs rows as JSON to an HTTP endpoint that appends them to the
// sheet (for example a spreadsheet apps-script web app).
type WebhookSink struct {
	URL    string
	Sheet  string // optional range, e.g. "Hoja1!A:A"
	Client *http.Client
}

// NewWebhookSink returns a sink with its own client timeout.
func NewWebhookSink(url, sheet string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		URL:    url,
		Sheet:  sheet,
		Client: &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

// Send posts the row. The key is sent as the Idempotency-Key header.
func (s *WebhookSink) Send(ctx context.Context, key string, row Row) error {
	if s.Sheet != "" && row.Range == "" {
		row.Range = s.Sheet
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post row: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
