package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"swarmline/internal/domain"
)

// Config models swarmline.yml.
type Config struct {
	Coordinator struct {
		Listen                string `yaml:"listen"`
		DefaultTimeoutSeconds int    `yaml:"default_timeout_seconds"`
	} `yaml:"coordinator"`
	Capabilities []CapabilityRoute `yaml:"capabilities"`
	Agent        struct {
		Listen              string `yaml:"listen"`
		MaxExecutionSeconds int    `yaml:"max_execution_seconds"`
		WaitCapSeconds      int    `yaml:"wait_cap_seconds"`
		ArchiveTTLMinutes   int    `yaml:"archive_ttl_minutes"`
	} `yaml:"agent"`
}

// CapabilityRoute binds a capability to its agent endpoint and routing rules.
// Order in the file fixes plan order and aggregation order.
type CapabilityRoute struct {
	Name           domain.Capability `yaml:"name"`
	URL            string            `yaml:"url"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Triggers       []string          `yaml:"triggers"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with swarm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Capabilities) == 0 {
		return fmt.Errorf("config.capabilities is required")
	}
	seen := map[domain.Capability]bool{}
	for i, route := range c.Capabilities {
		if route.Name == "" {
			return fmt.Errorf("capability %d has empty name", i)
		}
		if seen[route.Name] {
			return fmt.Errorf("capability %s defined twice", route.Name)
		}
		seen[route.Name] = true
		if route.TimeoutSeconds < 0 {
			return fmt.Errorf("capability %s has negative timeout", route.Name)
		}
		for _, trig := range route.Triggers {
			if trig == "" {
				return fmt.Errorf("capability %s has empty trigger", route.Name)
			}
		}
	}
	if c.Coordinator.DefaultTimeoutSeconds < 0 {
		return fmt.Errorf("coordinator.default_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Coordinator.Listen == "" {
		c.Coordinator.Listen = ":8000"
	}
	if c.Coordinator.DefaultTimeoutSeconds == 0 {
		c.Coordinator.DefaultTimeoutSeconds = 60
	}
	if c.Agent.Listen == "" {
		c.Agent.Listen = ":8001"
	}
	if c.Agent.MaxExecutionSeconds == 0 {
		c.Agent.MaxExecutionSeconds = 55
	}
	if c.Agent.WaitCapSeconds == 0 {
		c.Agent.WaitCapSeconds = 120
	}
	if c.Agent.ArchiveTTLMinutes == 0 {
		c.Agent.ArchiveTTLMinutes = 15
	}
}

// Route returns the route for a capability, or nil when none is configured.
func (c *Config) Route(cap domain.Capability) *CapabilityRoute {
	for i := range c.Capabilities {
		if c.Capabilities[i].Name == cap {
			return &c.Capabilities[i]
		}
	}
	return nil
}

// Timeout returns the per-subtask time budget for a capability.
func (c *Config) Timeout(cap domain.Capability) time.Duration {
	if r := c.Route(cap); r != nil && r.TimeoutSeconds > 0 {
		return time.Duration(r.TimeoutSeconds) * time.Second
	}
	return time.Duration(c.Coordinator.DefaultTimeoutSeconds) * time.Second
}

// MaxExecution bounds a single provider execution on the agent side.
func (c *Config) MaxExecution() time.Duration {
	return time.Duration(c.Agent.MaxExecutionSeconds) * time.Second
}

// WaitCap bounds how long a status long-poll may be held server side.
func (c *Config) WaitCap() time.Duration {
	return time.Duration(c.Agent.WaitCapSeconds) * time.Second
}

// ArchiveTTL is how long terminal task records are kept before eviction.
func (c *Config) ArchiveTTL() time.Duration {
	return time.Duration(c.Agent.ArchiveTTLMinutes) * time.Minute
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "swarmline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	cfg.applyDefaults()
	return &cfg
}

const defaultTemplate = `coordinator:
  listen: ":8000"
  default_timeout_seconds: 60

agent:
  listen: ":8001"
  max_execution_seconds: 55
  wait_cap_seconds: 120
  archive_ttl_minutes: 15

capabilities:
  - name: research
    url: http://localhost:8001
    timeout_seconds: 60
    triggers: [research, find, search, explore, investigate, look up]

  - name: code
    url: http://localhost:8002
    timeout_seconds: 60
    triggers: [code, implement, generate, program, debug, function]

  - name: analytics
    url: http://localhost:8003
    timeout_seconds: 60
    triggers: [analyze, data, metrics, statistics, visualize, report]
`
