// Package navigator drives the reservation site's fixed UI script: pick the
// appointment category and plan, then read the calendar month by month and
// hand each month to the scraper and the notifier.
package navigator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/visacheck/slotwatch/internal/browser"
	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
	"github.com/hazyhaar/visacheck/slotwatch/internal/history"
)

// Page is the browser surface the script needs. browser.Session implements it.
//
// AwaitPresence followed by ForceActivate is the two-phase contract for
// controls that exist but are not reliably clickable while an overlay
// animates. AwaitClickable followed by ForceActivate is for controls that
// must be usable first but whose native click the page swallows. Use Click
// for everything else.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, loc browser.Locator) error
	AwaitPresence(ctx context.Context, loc browser.Locator) error
	AwaitClickable(ctx context.Context, loc browser.Locator) error
	ForceActivate(ctx context.Context, loc browser.Locator) error
	WaitInvisible(ctx context.Context, loc browser.Locator) error
	Text(ctx context.Context, loc browser.Locator) (string, error)
	WaitTextChange(ctx context.Context, loc browser.Locator, prev string) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Opener yields a fresh Page for each check.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Page, error)

func (f OpenerFunc) Open(ctx context.Context) (Page, error) { return f(ctx) }

// Scraper reads available days out of calendar HTML and never fails.
// scraper.Scraper satisfies it.
type Scraper interface {
	Available(month, html string) []string
}

// Alerter announces openings. notify.Notifier satisfies it.
type Alerter interface {
	Alert(ctx context.Context, month string, dates []string) (bool, error)
	Reset(ctx context.Context, month string)
}

// Picker is one "open overlay, pick option" interaction.
type Picker struct {
	Name    string
	Open    string // CSS
	Option  string // XPath
	Overlay string // element id
}

// Config configures a Navigator.
type Config struct {
	URL         string
	StepTimeout time.Duration
	Category    Picker
	Plan        Picker
	MonthLabel  string // CSS
	NextMonth   string // CSS
	Months      int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.Months <= 0 {
		c.Months = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is what one check saw.
type Result struct {
	Months       []history.Month
	Alerts       int
	NotifyErrors []error
}

// Navigator runs the UI script.
type Navigator struct {
	cfg     Config
	opener  Opener
	scraper Scraper
	alerter Alerter
}

// New creates a Navigator.
func New(cfg Config, opener Opener, scraper Scraper, alerter Alerter) *Navigator {
	cfg.defaults()
	return &Navigator{cfg: cfg, opener: opener, scraper: scraper, alerter: alerter}
}

// Check opens a session, walks the script and closes the session on every
// path. Months read before a failure are still reported in the Result.
func (n *Navigator) Check(ctx context.Context) (Result, error) {
	log := n.cfg.Logger
	var res Result

	page, err := n.opener.Open(ctx)
	if err != nil {
		return res, fault.Wrap("navigator: open session", err)
	}
	defer func() {
		log.Info("navigator: closing the browser")
		if err := page.Close(); err != nil {
			log.Warn("navigator: close session", "error", err)
		}
	}()

	log.Info("navigator: navigating to the website", "url", n.cfg.URL)
	if err := n.step(ctx, "navigate", func(ctx context.Context) error {
		return page.Navigate(ctx, n.cfg.URL)
	}); err != nil {
		return res, err
	}

	if err := n.pick(ctx, page, n.cfg.Category); err != nil {
		return res, err
	}
	if err := n.pick(ctx, page, n.cfg.Plan); err != nil {
		return res, err
	}
	log.Info("navigator: selections made, calendar should now be visible")

	label := browser.CSS(n.cfg.MonthLabel)
	var month string
	if err := n.step(ctx, "month label", func(ctx context.Context) error {
		var err error
		month, err = page.Text(ctx, label)
		return err
	}); err != nil {
		return res, err
	}

	for i := 0; ; i++ {
		if month == "" {
			return res, fault.New(fault.StructureMismatch, "navigator: month label", errors.New("label is empty"))
		}
		if err := n.checkMonth(ctx, page, month, &res); err != nil {
			return res, err
		}
		if i+1 >= n.cfg.Months {
			return res, nil
		}

		log.Info("navigator: moving to the next month")
		next := browser.CSS(n.cfg.NextMonth)
		if err := n.step(ctx, "await next month", func(ctx context.Context) error {
			return page.AwaitClickable(ctx, next)
		}); err != nil {
			return res, err
		}
		if err := n.step(ctx, "activate next month", func(ctx context.Context) error {
			return page.ForceActivate(ctx, next)
		}); err != nil {
			return res, err
		}
		prev := month
		if err := n.step(ctx, "month change", func(ctx context.Context) error {
			var err error
			month, err = page.WaitTextChange(ctx, label, prev)
			return err
		}); err != nil {
			return res, err
		}
	}
}

func (n *Navigator) pick(ctx context.Context, page Page, p Picker) error {
	log := n.cfg.Logger.With("selector", p.Name)

	log.Info("navigator: opening selector")
	if err := n.step(ctx, "open "+p.Name, func(ctx context.Context) error {
		return page.Click(ctx, browser.CSS(p.Open))
	}); err != nil {
		return err
	}

	option := browser.XPath(p.Option)
	log.Info("navigator: waiting for option to be present")
	if err := n.step(ctx, "await "+p.Name, func(ctx context.Context) error {
		return page.AwaitPresence(ctx, option)
	}); err != nil {
		return err
	}
	if err := n.step(ctx, "activate "+p.Name, func(ctx context.Context) error {
		return page.ForceActivate(ctx, option)
	}); err != nil {
		return err
	}
	if err := n.step(ctx, "close "+p.Name, func(ctx context.Context) error {
		return page.WaitInvisible(ctx, browser.ID(p.Overlay))
	}); err != nil {
		return err
	}
	log.Info("navigator: selected")
	return nil
}

func (n *Navigator) checkMonth(ctx context.Context, page Page, month string, res *Result) error {
	log := n.cfg.Logger.With("month", month)
	log.Info("navigator: checking for openings")

	var html string
	if err := n.step(ctx, "calendar html", func(ctx context.Context) error {
		var err error
		html, err = page.HTML(ctx)
		return err
	}); err != nil {
		return err
	}

	dates := n.scraper.Available(month, html)
	res.Months = append(res.Months, history.Month{Label: month, Dates: dates})

	if len(dates) == 0 {
		log.Info("navigator: no openings found")
		n.alerter.Reset(ctx, month)
		return nil
	}

	log.Info("navigator: found available dates", "dates", dates)
	sent, err := n.alerter.Alert(ctx, month, dates)
	if sent && err == nil {
		res.Alerts++
	}
	if err != nil {
		res.NotifyErrors = append(res.NotifyErrors, err)
	}
	return nil
}

// step runs fn under the per-step deadline.
func (n *Navigator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, n.cfg.StepTimeout)
	defer cancel()
	if err := fn(sctx); err != nil {
		return fault.Wrap("navigator: "+name, err)
	}
	return nil
}
