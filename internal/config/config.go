package config

import (
	"cmp"
	"os"
	"strconv"
	"time"
)

// Config holds the flat environment-driven tunables. Structured
// configuration (NAV providers, margin source) lives in the YAML
// dashboard config, see dashboard.go.
type Config struct {
	DataDir        string
	ConfigFile     string
	Port           string
	LogLevel       string
	QuoteInterval  int // seconds
	NavInterval    int // seconds
	MarginInterval int // seconds
	DebounceMs     int
	MarginCooldown int // seconds
	StreamBuffer   int
}

func NewConfigFromEnv() *Config {
	return &Config{
		DataDir:        os.Getenv("PH_DATA_DIR"),
		ConfigFile:     os.Getenv("PH_CONFIG_FILE"),
		Port:           os.Getenv("PH_PORT"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		QuoteInterval:  envInt("PH_QUOTE_INTERVAL"),
		NavInterval:    envInt("PH_NAV_INTERVAL"),
		MarginInterval: envInt("PH_MARGIN_INTERVAL"),
		DebounceMs:     envInt("PH_DEBOUNCE_MS"),
		MarginCooldown: envInt("PH_MARGIN_COOLDOWN"),
		StreamBuffer:   envInt("PH_STREAM_BUFFER"),
	}
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

func (c *Config) Setup() *Config {
	const (
		defaultDataDir        = "./data"
		defaultConfigFile     = "./configs/dashboard.yaml"
		defaultPort           = "8844"
		defaultLogLevel       = "info"
		defaultQuoteInterval  = 20
		defaultNavInterval    = 900
		defaultMarginInterval = 86400
		defaultDebounceMs     = 500
		defaultMarginCooldown = 600
		defaultStreamBuffer   = 64
	)

	c.DataDir = cmp.Or(c.DataDir, defaultDataDir)
	c.ConfigFile = cmp.Or(c.ConfigFile, defaultConfigFile)
	c.Port = cmp.Or(c.Port, defaultPort)
	if _, err := strconv.Atoi(c.Port); err != nil {
		c.Port = defaultPort
	}
	c.LogLevel = cmp.Or(c.LogLevel, defaultLogLevel)
	if c.QuoteInterval <= 0 {
		c.QuoteInterval = defaultQuoteInterval
	}
	if c.NavInterval <= 0 {
		c.NavInterval = defaultNavInterval
	}
	if c.MarginInterval <= 0 {
		c.MarginInterval = defaultMarginInterval
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = defaultDebounceMs
	}
	if c.MarginCooldown <= 0 {
		c.MarginCooldown = defaultMarginCooldown
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = defaultStreamBuffer
	}

	return c
}

func (c *Config) QuotePollInterval() time.Duration {
	return time.Duration(c.QuoteInterval) * time.Second
}

func (c *Config) NavPollInterval() time.Duration {
	return time.Duration(c.NavInterval) * time.Second
}

func (c *Config) MarginPollInterval() time.Duration {
	return time.Duration(c.MarginInterval) * time.Second
}

func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c *Config) MarginRefreshCooldown() time.Duration {
	return time.Duration(c.MarginCooldown) * time.Second
}
