// Package config loads the daemon's YAML configuration, following the same
// strict-decode-then-validate-then-default shape as sim.LoadPolicyBundle.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for kv-routerd.
type Config struct {
	NATSURL string `yaml:"nats_url"`

	BlockSize     int           `yaml:"block_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`

	// StalenessMultiple is the number of poll intervals a snapshot may age
	// before it is considered stale (default 10). It is validated and
	// defaulted here, but the daemon does not pass it on: router.New always
	// uses a fixed threshold of 10 poll intervals.
	StalenessMultiple int `yaml:"staleness_multiple"`

	MetricsService string `yaml:"metrics_service"`
	EventsSubject  string `yaml:"events_subject"`

	// HTTPAddr is the listen address for the daemon's minimal health/debug
	// surface (SPEC_FULL.md "Binary shape"): GET /healthz and the
	// POST /v1/schedule route that actually calls router.Router.Schedule.
	HTTPAddr string `yaml:"http_addr"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig carries the cost-function weights. Nil fields mean "not
// set in YAML" and fall back to scheduler.DefaultWeights.
type SchedulerConfig struct {
	Alpha *float64 `yaml:"alpha"`
	Beta  *float64 `yaml:"beta"`
}

const (
	defaultBlockSize         = 64
	defaultPollInterval      = time.Second
	defaultScrapeTimeout     = time.Second
	defaultStalenessMultiple = 10
	defaultMetricsService    = "worker"
	defaultEventsSubject     = "router.events.kv_events"
	defaultHTTPAddr          = ":8080"
)

// Load reads, strictly decodes (unknown keys rejected), validates, and
// fills defaults for a Config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BlockSize < 0 {
		return fmt.Errorf("block_size must be non-negative, got %d", c.BlockSize)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be non-negative, got %s", c.PollInterval)
	}
	if c.ScrapeTimeout < 0 {
		return fmt.Errorf("scrape_timeout must be non-negative, got %s", c.ScrapeTimeout)
	}
	if c.StalenessMultiple < 0 {
		return fmt.Errorf("staleness_multiple must be non-negative, got %d", c.StalenessMultiple)
	}
	if err := validateFloat("scheduler.alpha", c.Scheduler.Alpha); err != nil {
		return err
	}
	if err := validateFloat("scheduler.beta", c.Scheduler.Beta); err != nil {
		return err
	}
	if c.NATSURL == "" {
		return fmt.Errorf("nats_url is required")
	}
	return nil
}

func validateFloat(name string, val *float64) error {
	if val == nil {
		return nil
	}
	if math.IsNaN(*val) || math.IsInf(*val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, *val)
	}
	if *val < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, *val)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ScrapeTimeout == 0 {
		c.ScrapeTimeout = defaultScrapeTimeout
	}
	if c.StalenessMultiple == 0 {
		c.StalenessMultiple = defaultStalenessMultiple
	}
	if c.MetricsService == "" {
		c.MetricsService = defaultMetricsService
	}
	if c.EventsSubject == "" {
		c.EventsSubject = defaultEventsSubject
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
}

// AlphaOr returns the configured scheduler alpha weight, or fallback if unset.
func (s SchedulerConfig) AlphaOr(fallback float64) float64 {
	if s.Alpha == nil {
		return fallback
	}
	return *s.Alpha
}

// BetaOr returns the configured scheduler beta weight, or fallback if unset.
func (s SchedulerConfig) BetaOr(fallback float64) float64 {
	if s.Beta == nil {
		return fallback
	}
	return *s.Beta
}
