package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("KESTREL_API_KEY", "env-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.APIKey != "env-key" {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Memory.Threshold != 100 || cfg.Agent.MaxRounds != 10 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("KESTREL_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
workspace: /tmp/kestrel-test
model:
  provider: dummy
memory:
  threshold: 40
  keep_recent_ratio: 0.25
cron:
  poll_interval: 15s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != "dummy" {
		t.Errorf("provider = %q", cfg.Model.Provider)
	}
	if cfg.Memory.Threshold != 40 || cfg.Memory.KeepRecentRatio != 0.25 {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	d, err := cfg.CronInterval()
	if err != nil || d != 15*time.Second {
		t.Errorf("interval = %v, %v", d, err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("KESTREL_API_KEY", "from-env")
	path := writeConfig(t, `
model:
  provider: openai
  api_key: from-file
  name: gpt-4o-mini
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.APIKey != "from-env" {
		t.Errorf("api key = %q, want the env override", cfg.Model.APIKey)
	}
}

func TestValidateFailures(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Model.Provider = "dummy"
		return cfg
	}

	cases := []struct {
		label  string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Model.Provider = "psychic" }},
		{"zero rounds", func(c *Config) { c.Agent.MaxRounds = 0 }},
		{"zero threshold", func(c *Config) { c.Memory.Threshold = 0 }},
		{"ratio out of range", func(c *Config) { c.Memory.KeepRecentRatio = 1.5 }},
		{"ws enabled without url", func(c *Config) { c.Channels.WS.Enabled = true; c.Channels.WS.Secret = "s" }},
		{"ws enabled without secret", func(c *Config) { c.Channels.WS.Enabled = true; c.Channels.WS.URL = "wss://x" }},
		{"bad poll interval", func(c *Config) { c.Cron.PollInterval = "often" }},
		{"empty workspace", func(c *Config) { c.Workspace = "" }},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: validation passed", tc.label)
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("baseline config invalid: %v", err)
	}
}

func TestValidateWithoutModelCredentials(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = ""

	// Commands that never call the model load a keyless config.
	if err := cfg.Validate(); err != nil {
		t.Errorf("keyless config invalid: %v", err)
	}
	if err := cfg.ValidateModel(); err == nil {
		t.Error("model validation passed without an api key")
	}

	cfg.Model.APIKey = "sk-test"
	if err := cfg.ValidateModel(); err != nil {
		t.Errorf("model validation failed with a key: %v", err)
	}

	cfg.Model.Provider = "dummy"
	cfg.Model.APIKey = ""
	if err := cfg.ValidateModel(); err != nil {
		t.Errorf("dummy provider should not need credentials: %v", err)
	}
}
