package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/busyness-collector/internal/types"
)

type Config struct {
	Pool       PoolConfig       `json:"pool"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Checker    CheckerConfig    `json:"checker"`
	Scraper    ScraperConfig    `json:"scraper"`
	Browser    BrowserConfig    `json:"browser"`
	Clients    ClientsConfig    `json:"clients"`
	Schedule   ScheduleConfig   `json:"schedule"`
	API        APIConfig        `json:"api"`
	Storage    StorageConfig    `json:"storage"`
	Metrics    MetricsConfig    `json:"metrics"`
	Logging    LoggingConfig    `json:"logging"`
	Venues     []types.Venue    `json:"venues"`

	mu       sync.RWMutex
	filePath string
}

type PoolConfig struct {
	TargetSize            int  `json:"target_size"`
	LowWaterMark          int  `json:"low_water_mark"`
	SyncTarget            int  `json:"sync_target"`
	ValidationBatchSize   int  `json:"validation_batch_size"`
	MaxCandidates         int  `json:"max_candidates"`
	EnableFastFilter      bool `json:"enable_fast_filter"`
	FastFilterTimeoutMs   int  `json:"fast_filter_timeout_ms"`
	FastFilterConcurrency int  `json:"fast_filter_concurrency"`
}

type AggregatorConfig struct {
	Sources   []Source `json:"sources"`
	TimeoutMs int      `json:"timeout_ms"`
	UserAgent string   `json:"user_agent"`
}

type Source struct {
	URL      string `json:"url"`
	Protocol string `json:"protocol"` // "http" or "socks5"
	Enabled  bool   `json:"enabled"`
}

type CheckerConfig struct {
	TimeoutMs int    `json:"timeout_ms"`
	TestURL   string `json:"test_url"`
}

type ScraperConfig struct {
	BatchWidth           int `json:"batch_width"`
	Retries              int `json:"retries"`
	InterBatchDelayMinMs int `json:"inter_batch_delay_min_ms"`
	InterBatchDelayMaxMs int `json:"inter_batch_delay_max_ms"`
	PreNavDelayMinMs     int `json:"pre_nav_delay_min_ms"`
	PreNavDelayMaxMs     int `json:"pre_nav_delay_max_ms"`
	DwellMinMs           int `json:"dwell_min_ms"`
	DwellMaxMs           int `json:"dwell_max_ms"`
	RateLimitBackoffMs   int `json:"rate_limit_backoff_ms"`
}

type BrowserConfig struct {
	Headful             bool     `json:"headful"`
	ExecPath            string   `json:"exec_path"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
	PageTimeoutMs       int      `json:"page_timeout_ms"`
	ViewportWidth       int      `json:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height"`
	ScrollPresses       int      `json:"scroll_presses"`
	ScrollIntervalMs    int      `json:"scroll_interval_ms"`
	UserAgents          []string `json:"user_agents"`
}

type ClientsConfig struct {
	PizzaWatchURL  string `json:"pizzawatch_url"`
	BestTimeURL    string `json:"besttime_url"`
	BestTimeKeyEnv string `json:"besttime_key_env"`
	TimeoutMs      int    `json:"timeout_ms"`
	RetryMax       int    `json:"retry_max"`
}

type ScheduleConfig struct {
	// IntervalSeconds > 0 keeps the process running and repeats the run.
	IntervalSeconds int `json:"interval_seconds"`
}

type APIConfig struct {
	Enabled            bool   `json:"enabled"`
	Addr               string `json:"addr"`
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type StorageConfig struct {
	Type string `json:"type"` // "none", "file", "sqlite", "redis"
	Path string `json:"path"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
}

// DefaultSources are the public plaintext proxy lists used when the
// config file names none.
var DefaultSources = []Source{
	{URL: "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000&country=all&ssl=all&anonymity=all", Protocol: "http", Enabled: true},
	{URL: "https://raw.githubusercontent.com/TheSpeedX/SOCKS-List/master/http.txt", Protocol: "http", Enabled: true},
	{URL: "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt", Protocol: "http", Enabled: true},
	{URL: "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt", Protocol: "http", Enabled: true},
}

// DefaultUserAgents are desktop agents; the mapping service only renders
// popular times for desktop clients.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Load reads configuration from a JSON file. A missing file is not an
// error: every setting falls back to its default.
func Load(filePath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.filePath = filePath
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Pool.TargetSize == 0 {
		c.Pool.TargetSize = 10
	}
	if c.Pool.LowWaterMark == 0 {
		c.Pool.LowWaterMark = 3
	}
	if c.Pool.SyncTarget == 0 {
		c.Pool.SyncTarget = 3
	}
	if c.Pool.ValidationBatchSize == 0 {
		c.Pool.ValidationBatchSize = 50
	}
	if c.Pool.MaxCandidates == 0 {
		c.Pool.MaxCandidates = 2000
	}
	if c.Pool.FastFilterTimeoutMs == 0 {
		c.Pool.FastFilterTimeoutMs = 1500
	}
	if c.Pool.FastFilterConcurrency == 0 {
		c.Pool.FastFilterConcurrency = 200
	}
	if len(c.Aggregator.Sources) == 0 {
		c.Aggregator.Sources = append([]Source(nil), DefaultSources...)
	}
	if c.Aggregator.TimeoutMs == 0 {
		c.Aggregator.TimeoutMs = 10000
	}
	if c.Checker.TimeoutMs == 0 {
		c.Checker.TimeoutMs = 5000
	}
	if c.Checker.TestURL == "" {
		c.Checker.TestURL = "https://www.google.com/"
	}
	if c.Scraper.BatchWidth == 0 {
		c.Scraper.BatchWidth = 3
	}
	if c.Scraper.Retries == 0 {
		c.Scraper.Retries = 2
	}
	if c.Scraper.InterBatchDelayMinMs == 0 && c.Scraper.InterBatchDelayMaxMs == 0 {
		c.Scraper.InterBatchDelayMinMs, c.Scraper.InterBatchDelayMaxMs = 3000, 7000
	}
	if c.Scraper.PreNavDelayMinMs == 0 && c.Scraper.PreNavDelayMaxMs == 0 {
		c.Scraper.PreNavDelayMinMs, c.Scraper.PreNavDelayMaxMs = 1000, 5000
	}
	if c.Scraper.DwellMinMs == 0 && c.Scraper.DwellMaxMs == 0 {
		c.Scraper.DwellMinMs, c.Scraper.DwellMaxMs = 6000, 8000
	}
	if c.Scraper.RateLimitBackoffMs == 0 {
		c.Scraper.RateLimitBackoffMs = 10000
	}
	if c.Browser.NavigationTimeoutMs == 0 {
		c.Browser.NavigationTimeoutMs = 30000
	}
	if c.Browser.PageTimeoutMs == 0 {
		c.Browser.PageTimeoutMs = 60000
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 900
	}
	if c.Browser.ScrollPresses == 0 {
		c.Browser.ScrollPresses = 8
	}
	if c.Browser.ScrollIntervalMs == 0 {
		c.Browser.ScrollIntervalMs = 200
	}
	if len(c.Browser.UserAgents) == 0 {
		c.Browser.UserAgents = append([]string(nil), DefaultUserAgents...)
	}
	if c.Clients.PizzaWatchURL == "" {
		c.Clients.PizzaWatchURL = "https://www.pizzint.watch/api/dashboard-data"
	}
	if c.Clients.BestTimeURL == "" {
		c.Clients.BestTimeURL = "https://besttime.app/api/v1"
	}
	if c.Clients.BestTimeKeyEnv == "" {
		c.Clients.BestTimeKeyEnv = "BESTTIME_API_KEY"
	}
	if c.Clients.TimeoutMs == 0 {
		c.Clients.TimeoutMs = 15000
	}
	if c.Clients.RetryMax == 0 {
		c.Clients.RetryMax = 2
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8083"
	}
	if c.API.APIKeyEnv == "" {
		c.API.APIKeyEnv = "BUSYNESS_API_KEY"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 60
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/runs.json"
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "busyness"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Reload reloads configuration from file
func (c *Config) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newCfg, err := Load(c.filePath)
	if err != nil {
		return err
	}

	c.Pool = newCfg.Pool
	c.Aggregator = newCfg.Aggregator
	c.Checker = newCfg.Checker
	c.Scraper = newCfg.Scraper
	c.Browser = newCfg.Browser
	c.Clients = newCfg.Clients
	c.Schedule = newCfg.Schedule
	c.API = newCfg.API
	c.Storage = newCfg.Storage
	c.Metrics = newCfg.Metrics
	c.Logging = newCfg.Logging
	c.Venues = newCfg.Venues
	return nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Pool.LowWaterMark < 0 || c.Pool.LowWaterMark > c.Pool.TargetSize {
		return fmt.Errorf("low_water_mark must be between 0 and target_size")
	}
	if c.Pool.SyncTarget < 1 {
		return fmt.Errorf("sync_target must be at least 1")
	}
	if c.Pool.ValidationBatchSize < 1 || c.Pool.ValidationBatchSize > 1000 {
		return fmt.Errorf("validation_batch_size must be between 1 and 1000")
	}
	if c.Pool.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be positive")
	}
	for _, src := range c.Aggregator.Sources {
		if src.Protocol != "" && src.Protocol != "http" && src.Protocol != "socks5" {
			return fmt.Errorf("source %s: protocol must be 'http' or 'socks5'", src.URL)
		}
	}
	if c.Checker.TimeoutMs < 100 || c.Checker.TimeoutMs > 300000 {
		return fmt.Errorf("checker timeout_ms must be between 100 and 300000")
	}
	if c.Scraper.BatchWidth < 1 {
		return fmt.Errorf("batch_width must be at least 1")
	}
	if c.Scraper.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.Scraper.InterBatchDelayMinMs > c.Scraper.InterBatchDelayMaxMs ||
		c.Scraper.PreNavDelayMinMs > c.Scraper.PreNavDelayMaxMs ||
		c.Scraper.DwellMinMs > c.Scraper.DwellMaxMs {
		return fmt.Errorf("delay ranges must have min <= max")
	}
	if c.Storage.Type != "none" && c.Storage.Type != "file" && c.Storage.Type != "sqlite" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'none', 'file', 'sqlite', or 'redis'")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging format must be 'json' or 'text'")
	}
	seen := make(map[string]struct{}, len(c.Venues))
	for _, v := range c.Venues {
		if v.ID == "" {
			return fmt.Errorf("venue without id")
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("duplicate venue id %q", v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	return nil
}

// Millis converts a millisecond setting into a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
