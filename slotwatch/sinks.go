package slotwatch

import (
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/visacheck/slotwatch/internal/notify"
)

// Sink is the output interface for heartbeats and alerts.
type Sink = notify.Sink

// Message is what sinks receive.
type Message = notify.Message

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return notify.NewStdout(w)
}

// NewWebhookSink creates a chat webhook sink. A zero timeout keeps the
// default. Unset or placeholder URLs make every send a logged no-op.
func NewWebhookSink(url string, timeout time.Duration, logger *slog.Logger) Sink {
	opts := []notify.WebhookOption{notify.WithWebhookLogger(logger)}
	if timeout > 0 {
		opts = append(opts, notify.WithWebhookTimeout(timeout))
	}
	return notify.NewWebhook(url, opts...)
}

// SinksFromConfig builds the sinks listed in cfg. Unknown types are logged
// and skipped.
func SinksFromConfig(cfg *Config, logger *slog.Logger) []Sink {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.Timeout, logger))
		default:
			logger.Warn("slotwatch: unknown sink type", "type", sc.Type)
		}
	}
	return sinks
}
