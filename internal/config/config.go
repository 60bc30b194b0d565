package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Workspace string         `yaml:"workspace"`
	Model     ModelConfig    `yaml:"model"`
	Agent     AgentConfig    `yaml:"agent"`
	Memory    MemoryConfig   `yaml:"memory"`
	Channels  ChannelsConfig `yaml:"channels"`
	Cron      CronConfig     `yaml:"cron"`
	Logging   LoggingConfig  `yaml:"logging"`
}

type ModelConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Name     string `yaml:"name"`
}

type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	MaxRounds    int    `yaml:"max_rounds"`
}

type MemoryConfig struct {
	Threshold         int     `yaml:"threshold"`
	KeepRecentRatio   float64 `yaml:"keep_recent_ratio"`
	SummaryWordBudget int     `yaml:"summary_word_budget"`
}

type ChannelsConfig struct {
	WS WSConfig `yaml:"ws"`
}

type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
	Device  string `yaml:"device"`
}

type CronConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PollInterval string `yaml:"poll_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Workspace: filepath.Join(home, ".kestrel"),
		Model: ModelConfig{
			Provider: "openai",
			Name:     "gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxRounds: 10,
		},
		Memory: MemoryConfig{
			Threshold:         100,
			KeepRecentRatio:   0.2,
			SummaryWordBudget: 2000,
		},
		Cron: CronConfig{
			Enabled:      true,
			PollInterval: "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, applies environment overrides, and
// validates the result. A missing file falls back to defaults so first runs
// work without any setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if key := os.Getenv("KESTREL_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = key
	}
	if secret := os.Getenv("KESTREL_WS_SECRET"); secret != "" {
		cfg.Channels.WS.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for integrity errors. Model
// credentials are deliberately not checked here: commands that never call
// the model must work without them. See ValidateModel.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	switch c.Model.Provider {
	case "openai", "dummy":
	default:
		return fmt.Errorf("model.provider must be 'openai' or 'dummy'")
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive")
	}
	if c.Memory.Threshold <= 0 {
		return fmt.Errorf("memory.threshold must be positive")
	}
	if c.Memory.KeepRecentRatio <= 0 || c.Memory.KeepRecentRatio >= 1 {
		return fmt.Errorf("memory.keep_recent_ratio must be in (0, 1)")
	}
	if c.Channels.WS.Enabled {
		if c.Channels.WS.URL == "" {
			return fmt.Errorf("channels.ws.url is required when the ws channel is enabled")
		}
		if c.Channels.WS.Secret == "" {
			return fmt.Errorf("channels.ws.secret is required when the ws channel is enabled")
		}
	}
	if _, err := c.CronInterval(); err != nil {
		return err
	}
	return nil
}

// ValidateModel checks the fields needed to actually call the model.
// Commands that talk to it run this before their first call.
func (c *Config) ValidateModel() error {
	if c.Model.Provider == "openai" {
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for the openai provider")
		}
		if c.Model.Name == "" {
			return fmt.Errorf("model.name is required")
		}
	}
	return nil
}

// CronInterval parses the scheduler poll interval.
func (c *Config) CronInterval() (time.Duration, error) {
	if c.Cron.PollInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Cron.PollInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("cron.poll_interval must be a positive duration")
	}
	return d, nil
}
