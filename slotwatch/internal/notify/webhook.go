package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
)

// Placeholder is the sentinel left in sample configs instead of a real URL.
const Placeholder = "YOUR_DISCORD_WEBHOOK_URL"

// Webhook POSTs Discord-style embeds to a URL. One attempt per message:
// a failed alert is reported, not retried, and the next poll tries again.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// WithWebhookClient sets a custom HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookTimeout sets the client timeout. Default: 10s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client = &http.Client{Timeout: d} }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Configured reports whether url looks like a real endpoint.
func Configured(url string) bool {
	return url != "" && !strings.Contains(url, Placeholder)
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Send posts msg. An unset or placeholder URL skips the send with a notice.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !Configured(w.url) {
		w.logger.Warn("notify: webhook url is not set correctly, skipping notification", "kind", msg.Kind)
		return nil
	}

	body, err := json.Marshal(payload{Embeds: []embed{{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
		Fields:      msg.Fields,
	}}})
	if err != nil {
		return fmt.Errorf("notify: webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fault.New(fault.Transport, "notify: webhook post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("notify: webhook delivered", "kind", msg.Kind, "status", resp.StatusCode)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fault.New(fault.Transport, "notify: webhook post",
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
}

func (w *Webhook) Close() error { return nil }
