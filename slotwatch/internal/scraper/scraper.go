// Package scraper turns a rendered reservation calendar into the list of
// day numbers that carry the "available" marker icon.
package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
)

// Config selects the calendar structure.
type Config struct {
	// Cell is the CSS selector of one day cell. Default: "td".
	Cell string
	// Marker is a substring of the availability icon's src. Default: "icon_empty.svg".
	Marker string
	// Day is the CSS selector of the day number inside a cell.
	Day string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Cell == "" {
		c.Cell = "td"
	}
	if c.Marker == "" {
		c.Marker = "icon_empty.svg"
	}
	if c.Day == "" {
		c.Day = "div[class*='sc_cal_date']"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scraper extracts available days from calendar HTML.
type Scraper struct {
	cfg    Config
	marker string
}

// New creates a Scraper.
func New(cfg Config) *Scraper {
	cfg.defaults()
	return &Scraper{
		cfg:    cfg,
		marker: fmt.Sprintf("img[src*=%q]", cfg.Marker),
	}
}

// Scrape returns the day numbers of marked cells in document order. Cells
// whose day text is not a one- or two-digit number are skipped. A document
// without any day cell is a StructureMismatch; a calendar with no marked
// cell is an empty, successful result.
func (s *Scraper) Scrape(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fault.New(fault.StructureMismatch, "scraper: parse", err)
	}

	cells := doc.Find(s.cfg.Cell)
	if cells.Length() == 0 {
		return nil, fault.New(fault.StructureMismatch, "scraper: cells",
			fmt.Errorf("no element matches %q", s.cfg.Cell))
	}

	days := []string{}
	cells.Has(s.marker).Find(s.cfg.Day).Each(func(_ int, sel *goquery.Selection) {
		day := strings.TrimSpace(sel.Text())
		if isDay(day) {
			days = append(days, day)
		}
	})
	return days, nil
}

// Available is Scrape for callers that only care about openings: failures
// are logged and reported as "no openings".
func (s *Scraper) Available(month, html string) []string {
	days, err := s.Scrape(html)
	if err != nil {
		s.cfg.Logger.Warn("scraper: could not check dates",
			"month", month, "kind", fault.KindOf(err).String(), "error", err)
		return []string{}
	}
	return days
}

func isDay(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
