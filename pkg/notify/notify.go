// Package notify implements the outbound notification sink described in
// spec.md 6: a fire-and-forget channel for backup/restore outcome and
// server health envelopes. No notification/webhook client library appears
// anywhere in the retrieved corpus, so this is a single stdlib net/http
// POST of a JSON body rather than an adopted third-party dependency.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexusdb/guardian/pkg/log"
)

// Sink delivers a notification envelope. Implementations must not block the
// caller for long; Send is called from the pipeline and prober hot paths.
type Sink interface {
	Send(ctx context.Context, envelope map[string]interface{}) error
}

// NullSink discards every envelope; used when no webhook URL is configured.
type NullSink struct{}

// Send is a no-op.
func (NullSink) Send(ctx context.Context, envelope map[string]interface{}) error {
	return nil
}

// WebhookSink posts envelopes as JSON to a configured URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a sink posting to url with a 10 second timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send POSTs the envelope as JSON. Delivery failures are logged and
// returned; callers treat the error as best-effort and do not fail their
// own operation on it.
func (s *WebhookSink) Send(ctx context.Context, envelope map[string]interface{}) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.WithComponent("notify").Warn().Err(err).Str("url", s.url).Msg("webhook delivery failed")
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.WithComponent("notify").Warn().Int("status", resp.StatusCode).Str("url", s.url).Msg("webhook rejected")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Sink = (*WebhookSink)(nil)
var _ Sink = NullSink{}
