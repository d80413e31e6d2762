package config

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogStoreConfig points at the durable Postgres-backed job event log
// and its retention policy.
type LogStoreConfig struct {
	DSN                    string `yaml:"dsn"`
	RetentionDays          int    `yaml:"retentionDays"`
	CleanupIntervalMinutes int    `yaml:"cleanupIntervalMinutes"`
}

// PlanCeiling is one row of the plan policy table (spec §6): the max
// number of concurrently in-flight jobs a tenant on this plan may hold.
type PlanCeiling struct {
	Plan          string `yaml:"plan"`
	MaxConcurrent int    `yaml:"maxConcurrent"`
}

type PlanConfig struct {
	Ceilings []PlanCeiling `yaml:"ceilings"`
}

// ScorerThreshold is one row of the Job Priority Scorer's per-plan
// threshold/slope table (spec §4.C).
type ScorerThreshold struct {
	Plan      string  `yaml:"plan"`
	Threshold int     `yaml:"threshold"`
	Slope     float64 `yaml:"slope"`
}

type ScorerConfig struct {
	Thresholds []ScorerThreshold `yaml:"thresholds"`
}

// AdmissionConfig holds the admission stall setting. Validate requires
// StallTimeoutSeconds to be positive; package admission does not read it
// and uses its own fixed 60 s stall timeout.
type AdmissionConfig struct {
	StallTimeoutSeconds int `yaml:"stallTimeoutSeconds"`
}

// WorkerConfig controls the Queue Worker (spec §4.H): polling cadence,
// lease lifecycle, and CPU/memory-aware admission throttling.
type WorkerConfig struct {
	PollIntervalMs        int     `yaml:"pollIntervalMs"`
	MaxConcurrentJobs     int     `yaml:"maxConcurrentJobs"`
	RenewIntervalSeconds  int     `yaml:"renewIntervalSeconds"`
	LeaseExtensionSeconds int     `yaml:"leaseExtensionSeconds"`
	CPUThresholdPercent   float64 `yaml:"cpuThresholdPercent"`
	MemThresholdPercent   float64 `yaml:"memThresholdPercent"`
	BackOffMs             int     `yaml:"backOffMs"`
}

// WebhookConfig controls outbound crawl/batch lifecycle notifications
// (spec §6). Retries are intentionally absent: spec §6 specifies none
// for v1.
type WebhookConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// CrawlerConfig holds crawl-wide link discovery defaults (spec §4.E).
// The worker does not read these fields; each crawl's own
// crawler_options decide depth, limit, robots and sitemap handling.
type CrawlerConfig struct {
	MaxDepthDefault  int  `yaml:"maxDepthDefault"`
	LimitDefault     int  `yaml:"limitDefault"`
	RespectRobotsTxt bool `yaml:"respectRobotsTxt"`
	FetchSitemap     bool `yaml:"fetchSitemap"`
}

// EngineConfig toggles the two concrete fetch engines this repo ships
// (spec §4.F names `http`, `browser`, `pdf`, `docx`, `screenshot` as
// engine identifiers; `pdf`/`docx`/`screenshot` stay thin wrappers per
// Non-goals and need no config of their own).
type EngineConfig struct {
	HTTPTimeoutMs    int  `yaml:"httpTimeoutMs"`
	BrowserTimeoutMs int  `yaml:"browserTimeoutMs"`
	BrowserEnabled   bool `yaml:"browserEnabled"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	LogStore  LogStoreConfig  `yaml:"logstore"`
	Plan      PlanConfig      `yaml:"plan"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Admission AdmissionConfig `yaml:"admission"`
	Worker    WorkerConfig    `yaml:"worker"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Engine    EngineConfig    `yaml:"engine"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}

// Validate performs basic sanity checks on the loaded configuration,
// failing fast at startup rather than during the first job.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url must be set")
	}
	if len(cfg.Plan.Ceilings) == 0 {
		return errors.New("plan.ceilings must contain at least one entry")
	}
	if cfg.Worker.MaxConcurrentJobs <= 0 {
		return errors.New("worker.maxConcurrentJobs must be positive")
	}
	if cfg.Admission.StallTimeoutSeconds <= 0 {
		return errors.New("admission.stallTimeoutSeconds must be positive")
	}
	for _, t := range cfg.Scorer.Thresholds {
		if t.Threshold < 0 {
			return fmt.Errorf("scorer threshold for plan %q must be >= 0", t.Plan)
		}
	}
	return nil
}

// CeilingFor returns the configured concurrency ceiling for plan, or
// false if no row matches (callers should then fall back to a safe
// default, per spec §6).
func (cfg *Config) CeilingFor(plan string) (int, bool) {
	for _, c := range cfg.Plan.Ceilings {
		if c.Plan == plan {
			return c.MaxConcurrent, true
		}
	}
	return 0, false
}

// ScorerFor returns the configured threshold/slope pair for plan, or
// false if no row matches.
func (cfg *Config) ScorerFor(plan string) (ScorerThreshold, bool) {
	for _, t := range cfg.Scorer.Thresholds {
		if t.Plan == plan {
			return t, true
		}
	}
	return ScorerThreshold{}, false
}
