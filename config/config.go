// Package config loads and validates the consumer configuration. The
// returned Config is treated as immutable: it is validated once at load and
// never merged with other sources at runtime.
package config

import (
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ptoraskar/fluvii"
)

// Auth holds broker SASL credentials.
type Auth struct {
	// Security protocol, e.g. SASL_SSL.
	Protocol string `yaml:"protocol"`
	// SASL mechanism, e.g. PLAIN or SCRAM-SHA-512.
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type Config struct {
	Bootstrap []string `yaml:"bootstrap"`
	GroupID   string   `yaml:"group_id"`
	Topics    []string `yaml:"topics"`
	// Subscribe to Topics on client construction. Default true.
	AutoSubscribe bool `yaml:"auto_subscribe"`

	SchemaRegistryURL string `yaml:"schema_registry_url"`
	// Generated (fluvii-<uuid>) when left empty.
	TransactionalID string `yaml:"transactional_id"`

	// Default poll timeout, seconds. Default 5.
	PollTimeoutSecs int `yaml:"poll_timeout_secs"`
	// Batch wall-clock bound, seconds. 0 disables.
	BatchMaxTimeSecs int `yaml:"batch_max_time_secs"`
	// Batch count bound. 0 disables.
	BatchMaxCount int `yaml:"batch_max_count"`
	// Retain every message of a batch instead of only the latest.
	RetainBatchMessages bool `yaml:"retain_batch_messages"`

	// Prometheus exposition address, e.g. ":9090". Empty disables.
	MetricsAddr string `yaml:"metrics_addr"`

	Auth *Auth `yaml:"auth"`
}

// Default returns the configuration defaults applied before a file is read.
func Default() Config {
	return Config{
		AutoSubscribe:   true,
		PollTimeoutSecs: 5,
	}
}

// Load reads a yaml config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fluvii.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fluvii.Errorf("parsing config %s: %w", path, err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fill() {
	if c.PollTimeoutSecs <= 0 {
		c.PollTimeoutSecs = 5
	}
	if c.TransactionalID == "" {
		c.TransactionalID = "fluvii-" + uuid.NewString()
	}
}

func (c *Config) Validate() error {
	if len(c.Bootstrap) == 0 {
		return fluvii.Errorf("config: bootstrap servers required")
	}
	if c.GroupID == "" {
		return fluvii.Errorf("config: group_id required")
	}
	if len(c.Topics) == 0 {
		return fluvii.Errorf("config: topics required")
	}
	if c.Auth != nil && (c.Auth.Mechanism == "" || c.Auth.Protocol == "") {
		return fluvii.Errorf("config: auth requires protocol and mechanism")
	}
	return nil
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSecs) * time.Second
}

func (c *Config) BatchMaxTime() time.Duration {
	return time.Duration(c.BatchMaxTimeSecs) * time.Second
}
