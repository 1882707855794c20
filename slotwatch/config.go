package slotwatch

import (
	"github.com/hazyhaar/visacheck/slotwatch/internal/config"
)

// Config is the top-level slotwatch configuration. Re-exported from internal.
type Config = config.Config

// TargetConfig describes the reservation site and its UI locators.
type TargetConfig = config.TargetConfig

// PickerConfig is one overlay selection step.
type PickerConfig = config.PickerConfig

// CalendarConfig controls availability detection.
type CalendarConfig = config.CalendarConfig

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PollConfig bounds the pause between checks.
type PollConfig = config.PollConfig

// NotifyConfig controls alert content and repetition.
type NotifyConfig = config.NotifyConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the built-in configuration, with the webhook URL
// taken from SLOTWATCH_WEBHOOK_URL when set.
func DefaultConfig() *Config {
	return config.Default()
}
