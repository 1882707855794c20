// Package config handles slotwatch configuration from a YAML file. Every
// field has a default, so an empty file (or no file) watches the Toronto
// consulate's visa calendar.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WebhookEnv overrides the URL of every webhook sink when set.
const WebhookEnv = "SLOTWATCH_WEBHOOK_URL"

// Config is the top-level slotwatch configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Calendar CalendarConfig `yaml:"calendar"`
	Browser  BrowserConfig  `yaml:"browser"`
	Poll     PollConfig     `yaml:"poll"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	History  HistoryConfig  `yaml:"history"`
	Status   StatusConfig   `yaml:"status"`
}

// TargetConfig describes the reservation site and the UI script locators.
type TargetConfig struct {
	URL         string        `yaml:"url"`
	StepTimeout time.Duration `yaml:"step_timeout"`
	Category    PickerConfig  `yaml:"category"`
	Plan        PickerConfig  `yaml:"plan"`
	MonthLabel  string        `yaml:"month_label"` // CSS
	NextMonth   string        `yaml:"next_month"`  // CSS
	Months      int           `yaml:"months"`      // months checked per poll, including the current one
}

// PickerConfig is one "open overlay, pick an option" interaction.
type PickerConfig struct {
	Name    string `yaml:"name"`    // human label, logs only
	Open    string `yaml:"open"`    // CSS of the control opening the overlay
	Option  string `yaml:"option"`  // XPath of the option label inside the overlay
	Overlay string `yaml:"overlay"` // element id of the overlay
}

// CalendarConfig controls how available days are recognised.
type CalendarConfig struct {
	Cell   string `yaml:"cell"`   // CSS of a day cell
	Marker string `yaml:"marker"` // substring of the availability icon src
	Day    string `yaml:"day"`    // CSS of the day number inside a cell
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Stealth          string   `yaml:"stealth"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`
	UserAgent        string   `yaml:"user_agent"`
	WindowWidth      int      `yaml:"window_width"`
	WindowHeight     int      `yaml:"window_height"`
	NoSandbox        bool     `yaml:"no_sandbox"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// PollConfig bounds the jittered sleep between polls.
type PollConfig struct {
	IntervalMin time.Duration `yaml:"interval_min"`
	IntervalMax time.Duration `yaml:"interval_max"`
}

// NotifyConfig controls alert message content and repetition.
type NotifyConfig struct {
	Policy     string `yaml:"policy"`      // always | on-change
	BookingURL string `yaml:"booking_url"` // link in alerts, defaults to target.url
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // webhook | stdout
	URL     string        `yaml:"url"`  // for webhook
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig locates the SQLite ledger. Empty path keeps it in memory.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig enables the HTTP status endpoint. Empty listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// Policies.
const (
	PolicyAlways   = "always"
	PolicyOnChange = "on-change"
)

// LoadFile reads a YAML configuration file, applies defaults and the
// environment override, then validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes. An empty input yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := Parse(nil)
	return cfg
}

func (c *Config) applyDefaults() {
	t := &c.Target
	if t.URL == "" {
		t.URL = "https://toronto.rsvsys.jp/reservations/calendar"
	}
	if t.StepTimeout <= 0 {
		t.StepTimeout = 20 * time.Second
	}
	t.Category.fill(PickerConfig{
		Name:    "VISA Application",
		Open:    "#event_select_field > a",
		Option:  "//div[@id='event-select']//label[@for='event-16']",
		Overlay: "event-select",
	})
	t.Plan.fill(PickerConfig{
		Name:    "Canada Travel Document holders",
		Open:    "#plan_select_field > a",
		Option:  "//div[@id='plan-select']//label[@for='plan-35']",
		Overlay: "plan-select",
	})
	if t.MonthLabel == "" {
		t.MonthLabel = ".c_cal_navex_date .date"
	}
	if t.NextMonth == "" {
		t.NextMonth = "a.next01.js_change_date"
	}
	if t.Months <= 0 {
		t.Months = 2
	}

	if c.Calendar.Cell == "" {
		c.Calendar.Cell = "td"
	}
	if c.Calendar.Marker == "" {
		c.Calendar.Marker = "icon_empty.svg"
	}
	if c.Calendar.Day == "" {
		c.Calendar.Day = "div[class*='sc_cal_date']"
	}

	b := &c.Browser
	if b.Stealth == "" {
		b.Stealth = "headless"
	}
	if b.XvfbDisplay == "" {
		b.XvfbDisplay = ":99"
	}
	if b.UserAgent == "" {
		b.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if b.WindowWidth <= 0 {
		b.WindowWidth = 1920
	}
	if b.WindowHeight <= 0 {
		b.WindowHeight = 1080
	}

	if c.Poll.IntervalMin <= 0 {
		c.Poll.IntervalMin = 50 * time.Second
	}
	if c.Poll.IntervalMax <= 0 {
		c.Poll.IntervalMax = 70 * time.Second
	}

	if c.Notify.Policy == "" {
		c.Notify.Policy = PolicyAlways
	}
	if c.Notify.BookingURL == "" {
		c.Notify.BookingURL = t.URL
	}

	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "webhook"}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Timeout <= 0 {
			c.Sinks[i].Timeout = 10 * time.Second
		}
	}
}

// fill copies each empty field from def, so overriding one locator keeps
// the others.
func (p *PickerConfig) fill(def PickerConfig) {
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Open == "" {
		p.Open = def.Open
	}
	if p.Option == "" {
		p.Option = def.Option
	}
	if p.Overlay == "" {
		p.Overlay = def.Overlay
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	u := getenv(WebhookEnv)
	if u == "" {
		return
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" {
			c.Sinks[i].URL = u
		}
	}
}

// Validate reports configuration that can never work.
func (c *Config) Validate() error {
	var errs []error
	if c.Poll.IntervalMin > c.Poll.IntervalMax {
		errs = append(errs, fmt.Errorf("poll.interval_min %s exceeds interval_max %s",
			c.Poll.IntervalMin, c.Poll.IntervalMax))
	}
	switch c.Notify.Policy {
	case PolicyAlways, PolicyOnChange:
	default:
		errs = append(errs, fmt.Errorf("notify.policy %q: want %s or %s",
			c.Notify.Policy, PolicyAlways, PolicyOnChange))
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("browser.stealth %q: want headless or headful", c.Browser.Stealth))
	}
	for i, s := range c.Sinks {
		if s.Type != "webhook" && s.Type != "stdout" {
			errs = append(errs, fmt.Errorf("sinks[%d].type %q: want webhook or stdout", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
