package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
)

// pollInterval paces the hand-rolled waits (invisibility, text change).
const pollInterval = 200 * time.Millisecond

// Session is one page in one browser, alive for a single poll. All waits
// are bounded by the context passed to each call.
type Session struct {
	page    *rod.Page
	browser *rod.Browser
	lnch    *launcher.Launcher
	router  *rod.HijackRouter
	logger  *slog.Logger

	closeOnce sync.Once
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fault.Wrap("browser: navigate "+url, err)
	}
	if err := p.WaitLoad(); err != nil {
		// The calendar is script-rendered; later waits decide if it is usable.
		s.logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// Click waits until the element is clickable, then clicks it like a user
// would.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	el, err := s.clickable(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fault.Wrap("browser: click "+loc.String(), err)
	}
	return nil
}

// AwaitClickable waits until the element is present, visible and not
// covered by another element.
func (s *Session) AwaitClickable(ctx context.Context, loc Locator) error {
	_, err := s.clickable(ctx, loc)
	return err
}

func (s *Session) clickable(ctx context.Context, loc Locator) (*rod.Element, error) {
	el, err := s.find(ctx, loc)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fault.Wrap("browser: wait visible "+loc.String(), err)
	}
	if _, err := el.WaitInteractable(); err != nil {
		return nil, fault.Wrap("browser: wait interactable "+loc.String(), err)
	}
	return el, nil
}

// AwaitPresence waits until the element exists in the DOM. It says nothing
// about visibility; pair it with ForceActivate for controls that sit under
// an animating overlay.
func (s *Session) AwaitPresence(ctx context.Context, loc Locator) error {
	_, err := s.find(ctx, loc)
	return err
}

// ForceActivate clicks the element from script, skipping the visibility and
// hit-test checks Click performs. Only for option labels inside overlays and
// similar controls that are present but not reliably hit-testable.
func (s *Session) ForceActivate(ctx context.Context, loc Locator) error {
	el, err := s.find(ctx, loc)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return fault.Wrap("browser: script click "+loc.String(), err)
	}
	return nil
}

// WaitInvisible waits until the element is absent or hidden.
func (s *Session) WaitInvisible(ctx context.Context, loc Locator) error {
	sel, isX := loc.selector()
	p := s.page.Context(ctx)
	for {
		var (
			has bool
			el  *rod.Element
			err error
		)
		if isX {
			has, el, err = p.HasX(sel)
		} else {
			has, el, err = p.Has(sel)
		}
		if err != nil {
			return fault.Wrap("browser: wait invisible "+loc.String(), err)
		}
		if !has {
			return nil
		}
		if visible, err := el.Visible(); err == nil && !visible {
			return nil
		}

		select {
		case <-ctx.Done():
			return fault.Wrap("browser: wait invisible "+loc.String(), ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Text waits for the element and returns its text with line breaks folded
// into spaces.
func (s *Session) Text(ctx context.Context, loc Locator) (string, error) {
	el, err := s.find(ctx, loc)
	if err != nil {
		return "", err
	}
	txt, err := el.Text()
	if err != nil {
		return "", fault.Wrap("browser: text "+loc.String(), err)
	}
	return NormalizeLabel(txt), nil
}

// WaitTextChange polls the element's text until it differs from prev and
// returns the new value.
func (s *Session) WaitTextChange(ctx context.Context, loc Locator, prev string) (string, error) {
	for {
		cur, err := s.Text(ctx, loc)
		if err != nil {
			return "", err
		}
		if cur != prev {
			return cur, nil
		}
		select {
		case <-ctx.Done():
			return "", fault.Wrap("browser: wait text change "+loc.String(), ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fault.Wrap("browser: html", err)
	}
	return html, nil
}

// Close releases the page, the browser (or its incognito context) and the
// launcher. Safe to call more than once.
func (s *Session) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if s.router != nil {
			s.router.Stop()
		}
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				firstErr = err
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if s.lnch != nil {
			s.lnch.Kill()
			s.lnch.Cleanup()
		}
	})
	if firstErr != nil {
		return fmt.Errorf("browser: close: %w", firstErr)
	}
	return nil
}

func (s *Session) find(ctx context.Context, loc Locator) (*rod.Element, error) {
	sel, isX := loc.selector()
	p := s.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if isX {
		el, err = p.ElementX(sel)
	} else {
		el, err = p.Element(sel)
	}
	if err != nil {
		return nil, fault.Wrap("browser: find "+loc.String(), err)
	}
	return el, nil
}

// NormalizeLabel folds newlines into spaces and trims, so "2025\nOctober"
// and "2025 October" compare equal.
func NormalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
