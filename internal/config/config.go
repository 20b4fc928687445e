// Package config loads the YAML configuration for the cmd/critnode demo
// binary. The CRIT library itself is configured with Go values
// (server.Options), not YAML; this package exists only for the operator
// binary wrapping it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Tables []string `yaml:"tables"`
}

// GossipConfig configures the memberlist-backed transport. cmd/critnode
// passes the bind address, port and seeds to the transport; the probe
// settings are not passed on, so memberlist keeps its own defaults.
type GossipConfig struct {
	BindAddr      string        `yaml:"bind_addr"`
	BindPort      int           `yaml:"bind_port"`
	SeedNodes     []string      `yaml:"seed_nodes"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// LockConfig selects and configures the cluster-wide lock backend.
type LockConfig struct {
	Backend    string        `yaml:"backend"` // "redis" or "inproc"
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
	TTL        time.Duration `yaml:"ttl"`
	MaxRetries int           `yaml:"max_retries"`
}

// DiscoveryConfig configures the discovery loop.
type DiscoveryConfig struct {
	Backend      string        `yaml:"backend"` // "static"
	StaticNodes  []string      `yaml:"static_nodes"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logger settings. cmd/critnode builds its zap logger
// before loading the config, at info level, and does not read these fields.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete configuration for one critnode process.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Gossip    GossipConfig    `yaml:"gossip"`
	Lock      LockConfig      `yaml:"lock"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads and parses the YAML file at path, fills in defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Gossip.BindAddr == "" {
		cfg.Gossip.BindAddr = "0.0.0.0"
	}
	if cfg.Gossip.BindPort == 0 {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "inproc"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Second
	}
	if cfg.Lock.MaxRetries == 0 {
		cfg.Lock.MaxRetries = 5
	}

	if cfg.Discovery.Backend == "" {
		cfg.Discovery.Backend = "static"
	}
	if cfg.Discovery.PollInterval == 0 {
		cfg.Discovery.PollInterval = 5 * time.Second
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.Node.NodeID == "" {
		return fmt.Errorf("node.node_id is required")
	}
	if len(c.Node.Tables) == 0 {
		return fmt.Errorf("node.tables must name at least one table")
	}
	if c.Gossip.BindPort < 1 || c.Gossip.BindPort > 65535 {
		return fmt.Errorf("gossip.bind_port must be between 1 and 65535")
	}
	switch c.Lock.Backend {
	case "redis", "inproc":
	default:
		return fmt.Errorf("lock.backend must be \"redis\" or \"inproc\", got %q", c.Lock.Backend)
	}
	if c.Lock.Backend == "redis" && c.Lock.RedisAddr == "" {
		return fmt.Errorf("lock.redis_addr is required when lock.backend is \"redis\"")
	}
	switch c.Discovery.Backend {
	case "static":
	default:
		return fmt.Errorf("discovery.backend must be \"static\", got %q", c.Discovery.Backend)
	}
	return nil
}
