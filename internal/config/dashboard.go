package config

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type NavProviderKind string

const (
	FundJSON NavProviderKind = "fundjson"
)

// PublicationWindow is a daily local-time interval during which a fund
// is expected to publish its NAV, e.g. "17:30-19:00".
type PublicationWindow struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

func (w PublicationWindow) Contains(t time.Time) bool {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	off := t.Sub(midnight)
	return off >= w.Start && off < w.End
}

type NavProviderConfig struct {
	Symbol   string          `yaml:"symbol"`
	Kind     NavProviderKind `yaml:"kind"`
	URL      string          `yaml:"url"`
	NavPath  string          `yaml:"nav_path"`
	AsOfPath string          `yaml:"as_of_path"`
	Window   string          `yaml:"window"` // "HH:MM-HH:MM", optional

	window *PublicationWindow
}

func (c *NavProviderConfig) PublicationWindow() *PublicationWindow {
	return c.window
}

const (
	_navPathDefault = "$.nav"
)

func (c *NavProviderConfig) Setup() error {
	if c.Symbol == "" {
		return fmt.Errorf("nav provider symbol is required")
	}
	if c.Kind == "" {
		c.Kind = FundJSON
	}
	if c.Kind != FundJSON {
		return fmt.Errorf("unknown nav provider kind %q", c.Kind)
	}
	if c.URL == "" {
		return fmt.Errorf("nav provider url is required for %s", c.Symbol)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return err
	}
	if c.NavPath == "" {
		c.NavPath = _navPathDefault
	}
	if c.Window != "" {
		w, err := parseWindow(c.Window)
		if err != nil {
			return fmt.Errorf("%w: can't parse window for %s", err, c.Symbol)
		}
		c.window = &w
	}
	return nil
}

func parseWindow(s string) (PublicationWindow, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return PublicationWindow{}, fmt.Errorf("expected HH:MM-HH:MM, got %q", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return PublicationWindow{}, err
	}
	end, err := parseClock(to)
	if err != nil {
		return PublicationWindow{}, err
	}
	if end <= start {
		return PublicationWindow{}, fmt.Errorf("window end %q before start %q", to, from)
	}
	return PublicationWindow{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

type MarginSourceConfig struct {
	URL       string `yaml:"url"`
	RatesPath string `yaml:"rates_path"`
}

const (
	_ratesPathDefault    = "$.rates"
	_quoteBaseURLDefault = "https://query1.finance.yahoo.com"
)

type DashboardConfig struct {
	QuoteBaseURL   string              `yaml:"quote_base_url"`
	PortfolioNames map[string]string   `yaml:"portfolio_names"`
	NavProviders   []NavProviderConfig `yaml:"nav_providers"`
	Margin         MarginSourceConfig  `yaml:"margin"`
}

func (c *DashboardConfig) ValidateAndSetup() error {
	c.QuoteBaseURL = cmp.Or(c.QuoteBaseURL, _quoteBaseURLDefault)
	if _, err := url.Parse(c.QuoteBaseURL); err != nil {
		return fmt.Errorf("%w: can't parse quote base url", err)
	}

	for i := range c.NavProviders {
		if err := c.NavProviders[i].Setup(); err != nil {
			return fmt.Errorf("%w: can't setup nav provider", err)
		}
	}

	if c.Margin.RatesPath == "" {
		c.Margin.RatesPath = _ratesPathDefault
	}

	return nil
}

func LoadDashboardConfig(filename string) (DashboardConfig, error) {
	var cfg DashboardConfig
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
