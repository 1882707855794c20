package notify

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
)

// Policy decides whether an unchanged opening is announced again.
type Policy string

const (
	// Always re-announces every poll that sees openings.
	Always Policy = "always"
	// OnChange announces a month only when its date list differs from the
	// last one delivered. A month seen with no openings is forgotten.
	OnChange Policy = "on-change"
)

// Ledger remembers the last delivered date list per month.
type Ledger interface {
	LastNotified(ctx context.Context, month string) (dates string, ok bool, err error)
	MarkNotified(ctx context.Context, month, dates string) error
	Forget(ctx context.Context, month string) error
}

// Config configures a Notifier.
type Config struct {
	Sink       Sink
	Policy     Policy
	Ledger     Ledger // required for OnChange
	BookingURL string
	Logger     *slog.Logger
}

// Notifier formats and delivers heartbeats and alerts. Delivery problems
// come back as fault.Transport errors for the caller to log; they never
// panic or block the poll beyond the sink's own timeout.
type Notifier struct {
	sink       Sink
	policy     Policy
	ledger     Ledger
	bookingURL string
	logger     *slog.Logger
}

// New creates a Notifier. OnChange without a Ledger degrades to Always.
func New(cfg Config) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = Always
	}
	if cfg.Policy == OnChange && cfg.Ledger == nil {
		cfg.Logger.Warn("notify: on-change policy without ledger, falling back to always")
		cfg.Policy = Always
	}
	if cfg.Sink == nil {
		cfg.Sink = NewRouter(cfg.Logger)
	}
	return &Notifier{
		sink:       cfg.Sink,
		policy:     cfg.Policy,
		ledger:     cfg.Ledger,
		bookingURL: cfg.BookingURL,
		logger:     cfg.Logger,
	}
}

// Heartbeat sends the startup message.
func (n *Notifier) Heartbeat(ctx context.Context) error {
	if err := n.sink.Send(ctx, Heartbeat()); err != nil {
		n.logger.Error("notify: heartbeat failed", "error", err)
		return fault.Wrap("notify: heartbeat", err)
	}
	return nil
}

// Alert announces openings for month. It reports whether a message was
// handed to the sinks.
func (n *Notifier) Alert(ctx context.Context, month string, dates []string) (bool, error) {
	if len(dates) == 0 {
		return false, nil
	}
	joined := JoinDates(dates)

	if n.policy == OnChange {
		last, ok, err := n.ledger.LastNotified(ctx, month)
		if err != nil {
			n.logger.Warn("notify: ledger lookup failed, sending anyway", "month", month, "error", err)
		} else if ok && last == joined {
			n.logger.Info("notify: openings unchanged, alert suppressed", "month", month, "dates", joined)
			return false, nil
		}
	}

	if err := n.sink.Send(ctx, Alert(month, dates, n.bookingURL)); err != nil {
		n.logger.Error("notify: alert failed", "month", month, "error", err)
		return true, fault.Wrap("notify: alert", err)
	}

	if n.policy == OnChange {
		if err := n.ledger.MarkNotified(ctx, month, joined); err != nil {
			n.logger.Warn("notify: ledger update failed", "month", month, "error", err)
		}
	}
	return true, nil
}

// Reset records that month currently has no openings.
func (n *Notifier) Reset(ctx context.Context, month string) {
	if n.policy != OnChange {
		return
	}
	if err := n.ledger.Forget(ctx, month); err != nil {
		n.logger.Warn("notify: ledger forget failed", "month", month, "error", err)
	}
}

// Close closes the underlying sinks.
func (n *Notifier) Close() error { return n.sink.Close() }
