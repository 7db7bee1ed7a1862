package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models agenda.yml.
type Config struct {
	AI struct {
		StandardModel string `yaml:"standard_model"`
		PremiumModel  string `yaml:"premium_model"`
		MaxAttempts   int    `yaml:"max_attempts"`
	} `yaml:"ai"`
	Plans     map[string]Plan `yaml:"plans"`
	Reminders struct {
		DefaultLeadMinutes int `yaml:"default_lead_minutes"`
	} `yaml:"reminders"`
	Conversation struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"conversation"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type Plan struct {
	WorkspaceLimit int `yaml:"workspace_limit"`
}

// WebhookConfig describes one outbound event webhook.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from the data directory, falling back
// to defaults when no file exists.
func Load(dataDir string) (*Config, error) {
	path := Path(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.AI.StandardModel == "" {
		return fmt.Errorf("config.ai.standard_model is required")
	}
	if c.AI.PremiumModel == "" {
		return fmt.Errorf("config.ai.premium_model is required")
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("config.ai.max_attempts must be at least 1")
	}
	if len(c.Plans) == 0 {
		return fmt.Errorf("config.plans is required")
	}
	if _, ok := c.Plans["free"]; !ok {
		return fmt.Errorf("config.plans must include free")
	}
	for name, plan := range c.Plans {
		if plan.WorkspaceLimit < 1 {
			return fmt.Errorf("plan %s has invalid workspace_limit", name)
		}
	}
	if c.Conversation.TTLHours < 1 {
		return fmt.Errorf("config.conversation.ttl_hours must be at least 1")
	}
	return nil
}

// Path returns the config file path for a data directory.
func Path(dataDir string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, "agenda.yml")
}

// WorkspaceLimit returns the workspace quota for a plan, falling back to free.
func (c *Config) WorkspaceLimit(plan string) int {
	if p, ok := c.Plans[plan]; ok {
		return p.WorkspaceLimit
	}
	return c.Plans["free"].WorkspaceLimit
}

// ModelForPlan picks the completion model by subscription plan.
func (c *Config) ModelForPlan(plan string) string {
	if plan == "pro" {
		return c.AI.PremiumModel
	}
	return c.AI.StandardModel
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
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

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `ai:
  standard_model: gemini-2.0-flash
  premium_model: gemini-2.5-pro
  max_attempts: 3

plans:
  free:
    workspace_limit: 3
  pro:
    workspace_limit: 5

reminders:
  default_lead_minutes: 30

conversation:
  ttl_hours: 24
`
