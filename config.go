// Package compick answers "which components rendered this element?" for
// live and captured pages. Service ties the ancestry readers, the
// correlation protocol and the interactive session to a page opener, the
// pick history and the outcome sinks, and exposes them over MCP and HTTP.
package compick

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/browser"
	"github.com/hazyhaar/compick/history"
	"github.com/hazyhaar/compick/session"
)

// DefaultLookupTimeout bounds one request/response exchange.
const DefaultLookupTimeout = 10 * time.Second

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Session SessionConfig `yaml:"session"`
	Probe   ProbeConfig   `yaml:"probe"`
	History HistoryConfig `yaml:"history"`
	Sinks   []SinkConfig  `yaml:"sinks"`

	// LookupTimeout bounds each pick or probe exchange. Default: 10s.
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	// NameFilter is an expr predicate over name and framework; names for
	// which it is false are dropped from results.
	NameFilter string `yaml:"name_filter"`
	// MaxSteps caps each reader's ancestor walk. Default: 10000.
	MaxSteps int `yaml:"max_steps"`
	// Clipboard copies interactive picks to the system clipboard.
	Clipboard bool `yaml:"clipboard"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote      string   `yaml:"remote"`
	Mode        string   `yaml:"mode"` // headless | headful
	Bin         string   `yaml:"bin"`
	Block       []string `yaml:"block"`
	XvfbDisplay string   `yaml:"xvfb_display"`
}

// SessionConfig tunes interactive picking.
type SessionConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Depth    int           `yaml:"depth"`
}

// ProbeConfig tunes framework detection.
type ProbeConfig struct {
	MaxNodes       int      `yaml:"max_nodes"`
	MountSelectors []string `yaml:"mount_selectors"`
}

// HistoryConfig locates the pick history. An empty DBPath disables it.
type HistoryConfig struct {
	DBPath     string `yaml:"db_path"`
	MaxEntries int    `yaml:"max_entries"`
}

// SinkConfig defines an outcome backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compick: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("compick: parse config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.defaults()
	return &cfg
}

func (c *Config) defaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Session.Debounce <= 0 {
		c.Session.Debounce = session.DefaultDebounce
	}
	if c.Probe.MaxNodes <= 0 {
		c.Probe.MaxNodes = ancestry.DefaultProbeBudget
	}
	if len(c.Probe.MountSelectors) == 0 {
		c.Probe.MountSelectors = ancestry.DefaultMountSelectors
	}
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = history.DefaultMaxEntries
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = ancestry.DefaultMaxSteps
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("compick: config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	if c.Browser.Mode == "headful" && c.Browser.Remote == "" {
		if _, err := browser.ParseDisplay(c.Browser.XvfbDisplay); err != nil {
			return fmt.Errorf("compick: config: browser.xvfb_display: %w", err)
		}
	}
	if c.Session.Depth < 0 {
		return fmt.Errorf("compick: config: session.depth must be >= 0")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("compick: config: sinks[%d]: webhook needs url", i)
			}
		default:
			return fmt.Errorf("compick: config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if _, err := ancestry.CompileNameFilter(c.NameFilter); err != nil {
		return fmt.Errorf("compick: config: name_filter: %w", err)
	}
	return nil
}
