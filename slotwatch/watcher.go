// Package slotwatch watches a reservation calendar for open appointment
// days and announces them to chat webhooks.
//
// A Watcher owns everything one bot instance needs: the browser manager,
// the check history, the notifier and the poll loop. Each check drives a
// fresh Chrome session through the site's selection overlays, reads the
// configured number of months and alerts for every month with openings.
package slotwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/visacheck/slotwatch/internal/browser"
	"github.com/hazyhaar/visacheck/slotwatch/internal/config"
	"github.com/hazyhaar/visacheck/slotwatch/internal/history"
	"github.com/hazyhaar/visacheck/slotwatch/internal/navigator"
	"github.com/hazyhaar/visacheck/slotwatch/internal/notify"
	"github.com/hazyhaar/visacheck/slotwatch/internal/poll"
	"github.com/hazyhaar/visacheck/slotwatch/internal/scraper"
	"github.com/hazyhaar/visacheck/slotwatch/internal/status"
)

// Check is the record of one poll.
type Check = history.Check

// Stats are the poll loop counters.
type Stats = poll.Stats

// Watcher is the top-level orchestrator. Create one per bot instance.
type Watcher struct {
	cfg      *config.Config
	mgr      *browser.Manager
	ledger   history.Ledger
	notifier *notify.Notifier
	loop     *poll.Loop
	status   *status.Server
	logger   *slog.Logger
}

// New creates a Watcher from configuration. When no sinks are given they
// are built from cfg.Sinks.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		UserAgent:        cfg.Browser.UserAgent,
		WindowWidth:      cfg.Browser.WindowWidth,
		WindowHeight:     cfg.Browser.WindowHeight,
		NoSandbox:        cfg.Browser.NoSandbox,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	w, err := newWatcher(cfg, logger, managerOpener{mgr}, sinks)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	w.mgr = mgr
	return w, nil
}

func newWatcher(cfg *config.Config, logger *slog.Logger, opener navigator.Opener, sinks []Sink) (*Watcher, error) {
	ledger, err := openLedger(cfg.History.Path)
	if err != nil {
		return nil, err
	}

	if len(sinks) == 0 {
		sinks = SinksFromConfig(cfg, logger)
	}
	notifier := notify.New(notify.Config{
		Sink:       notify.NewRouter(logger, sinks...),
		Policy:     notify.Policy(cfg.Notify.Policy),
		Ledger:     ledger,
		BookingURL: cfg.Notify.BookingURL,
		Logger:     logger,
	})

	sc := scraper.New(scraper.Config{
		Cell:   cfg.Calendar.Cell,
		Marker: cfg.Calendar.Marker,
		Day:    cfg.Calendar.Day,
		Logger: logger,
	})

	nav := navigator.New(navigator.Config{
		URL:         cfg.Target.URL,
		StepTimeout: cfg.Target.StepTimeout,
		Category:    picker(cfg.Target.Category),
		Plan:        picker(cfg.Target.Plan),
		MonthLabel:  cfg.Target.MonthLabel,
		NextMonth:   cfg.Target.NextMonth,
		Months:      cfg.Target.Months,
		Logger:      logger,
	}, opener, sc, notifier)

	loop := poll.New(poll.Config{
		IntervalMin: cfg.Poll.IntervalMin,
		IntervalMax: cfg.Poll.IntervalMax,
		Recorder:    ledger,
		Logger:      logger,
	}, nav, notifier)

	w := &Watcher{
		cfg:      cfg,
		ledger:   ledger,
		notifier: notifier,
		loop:     loop,
		logger:   logger,
	}
	if cfg.Status.Listen != "" {
		w.status = status.New(cfg.Status.Listen, loop, ledger, logger)
	}
	return w, nil
}

func openLedger(path string) (history.Ledger, error) {
	if path == "" {
		return history.NewMemory(0), nil
	}
	st, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("slotwatch: open history: %w", err)
	}
	return st, nil
}

func picker(p config.PickerConfig) navigator.Picker {
	return navigator.Picker{Name: p.Name, Open: p.Open, Option: p.Option, Overlay: p.Overlay}
}

// managerOpener returns browser sessions as navigator pages. A failed Open
// must yield a nil interface, not a typed nil *Session.
type managerOpener struct{ mgr *browser.Manager }

func (o managerOpener) Open(ctx context.Context) (navigator.Page, error) {
	s, err := o.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Run sends the startup heartbeat and polls until ctx is cancelled. The
// status server, when configured, runs alongside; if it cannot listen the
// loop is stopped and the error returned.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if w.status != nil {
		g.Go(func() error { return w.status.ListenAndServe(gctx) })
	}
	g.Go(func() error {
		w.loop.Run(gctx)
		return nil
	})
	return g.Wait()
}

// RunOnce performs a single check without heartbeat and returns its record.
func (w *Watcher) RunOnce(ctx context.Context) Check {
	return w.loop.RunOnce(ctx)
}

// Stats returns the poll loop counters.
func (w *Watcher) Stats() Stats { return w.loop.Stats() }

// RecentChecks returns up to limit checks, newest first.
func (w *Watcher) RecentChecks(ctx context.Context, limit int) ([]Check, error) {
	return w.ledger.RecentChecks(ctx, limit)
}

// Close releases sinks, the browser manager and the history ledger.
func (w *Watcher) Close() error {
	var errs []error
	if err := w.notifier.Close(); err != nil {
		errs = append(errs, err)
	}
	if w.mgr != nil {
		if err := w.mgr.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
