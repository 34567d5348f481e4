// CLAUDE:SUMMARY Webhook sink POSTing each visit result as a typed JSON envelope, retrying 5xx, 429 and transport errors with doubling delays.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/bannerclick/consent/record"
)

// WebhookConfig configures a Webhook. Zero fields take the defaults noted.
type WebhookConfig struct {
	URL string
	// Retries after the first attempt. Default 3; negative disables retries.
	Retries int
	// Backoff is the first retry delay, doubled on each retry. Default 1s.
	Backoff time.Duration
	Client  *http.Client // default: 10s timeout
	Logger  *slog.Logger
}

// Webhook POSTs {"type":"visit","data":<result>} to a URL.
type Webhook struct {
	cfg WebhookConfig
}

// NewWebhook returns a Webhook for cfg.
func NewWebhook(cfg WebhookConfig) *Webhook {
	switch {
	case cfg.Retries == 0:
		cfg.Retries = 3
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{cfg: cfg}
}

func (w *Webhook) Send(ctx context.Context, res *record.Result) error {
	body, err := json.Marshal(struct {
		Type string         `json:"type"`
		Data *record.Result `json:"data"`
	}{"visit", res})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	delay := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		retry, err := w.deliver(ctx, body)
		if err == nil {
			return nil
		}
		if !retry || attempt > w.cfg.Retries {
			return fmt.Errorf("webhook: %s after %d attempt(s): %w", res.Visit.ID, attempt, err)
		}
		w.cfg.Logger.Warn("webhook: retrying", "visit_id", res.Visit.ID, "attempt", attempt, "delay", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}

func (w *Webhook) Close() error { return nil }

// deliver makes one POST. retry reports whether a failure is transient.
func (w *Webhook) deliver(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	resp.Body.Close()
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return false, nil
	case code == http.StatusTooManyRequests || code >= 500:
		return true, fmt.Errorf("status %d", code)
	default:
		return false, fmt.Errorf("status %d", code)
	}
}
