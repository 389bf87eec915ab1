// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitorConfig configures the heartbeat monitor.
type MonitorConfig struct {
	Address     string        `yaml:"address"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures int           `yaml:"max_failures"`
}

// TargetConfig configures the fault-injecting probe target.
type TargetConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	FailureChance float64       `yaml:"failure_chance"`
	CrashRatio    float64       `yaml:"crash_ratio"`
	StallDuration time.Duration `yaml:"stall_duration"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	Status        string        `yaml:"status"`
	Seed          int64         `yaml:"seed"`
	Scenario      string        `yaml:"scenario"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// GreptimeConfig selects the GreptimeDB sink. An empty endpoint disables it.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// EtcdConfig selects the etcd status sink. No endpoints disables it.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
	LeaseTTL  int64    `yaml:"lease_ttl"`
}

// SinksConfig chooses where heartbeat rows go.
type SinksConfig struct {
	Stdout   string         `yaml:"stdout"`
	TUI      bool           `yaml:"tui"`
	LogFile  string         `yaml:"log_file"`
	Metrics  bool           `yaml:"metrics"`
	Greptime GreptimeConfig `yaml:"greptime"`
	Etcd     EtcdConfig     `yaml:"etcd"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration shared by every subcommand.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Target  TargetConfig  `yaml:"target"`
	Admin   AdminConfig   `yaml:"admin"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Address:     "localhost:9999",
			Interval:    3 * time.Second,
			Timeout:     5 * time.Second,
			MaxFailures: 3,
		},
		Target: TargetConfig{
			ListenAddress: ":9999",
			FailureChance: 0.2,
			StallDuration: 10 * time.Second,
			ReadTimeout:   5 * time.Second,
			Status:        "OK",
		},
		Admin: AdminConfig{
			ListenAddress: ":8080",
		},
		Sinks: SinksConfig{
			Stdout:   "auto",
			Metrics:  true,
			Greptime: GreptimeConfig{Database: "public"},
			Etcd:     EtcdConfig{Prefix: "/heartbeat", LeaseTTL: 30},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configPath over the defaults, validating it against the CUE schema
// at cueSchemaPath (the embedded schema when empty). An empty configPath yields
// the defaults. Environment overrides are applied last.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides sink endpoints from GREPTIMEDB_ENDPOINT, GREPTIMEDB_DATABASE
// and ETCD_ENDPOINTS (comma separated).
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Sinks.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Sinks.Greptime.Database = v
	}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		var eps []string
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				eps = append(eps, ep)
			}
		}
		c.Sinks.Etcd.Endpoints = eps
	}
}

// Validate checks ranges the schema cannot express and values set by flags.
func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Address == "" {
		errs = append(errs, errors.New("monitor.address is required"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval))
	}
	if c.Monitor.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.timeout must be positive, got %s", c.Monitor.Timeout))
	}
	if c.Monitor.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("monitor.max_failures must be at least 1, got %d", c.Monitor.MaxFailures))
	}
	if c.Target.FailureChance < 0 || c.Target.FailureChance > 1 || c.Target.FailureChance != c.Target.FailureChance {
		errs = append(errs, fmt.Errorf("target.failure_chance must be in [0,1], got %v", c.Target.FailureChance))
	}
	if c.Target.CrashRatio < 0 || c.Target.CrashRatio > 1 || c.Target.CrashRatio != c.Target.CrashRatio {
		errs = append(errs, fmt.Errorf("target.crash_ratio must be in [0,1], got %v", c.Target.CrashRatio))
	}
	if c.Target.StallDuration <= 0 {
		errs = append(errs, fmt.Errorf("target.stall_duration must be positive, got %s", c.Target.StallDuration))
	}
	if c.Target.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("target.read_timeout must be positive, got %s", c.Target.ReadTimeout))
	}
	switch c.Sinks.Stdout {
	case "", "auto", "plain", "color", "json", "none":
	default:
		errs = append(errs, fmt.Errorf("sinks.stdout: unknown format %q", c.Sinks.Stdout))
	}
	return errors.Join(errs...)
}
