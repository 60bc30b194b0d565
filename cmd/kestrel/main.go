package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrel-agent/kestrel/internal/agent"
	"github.com/kestrel-agent/kestrel/internal/config"
	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/llm"
	"github.com/kestrel-agent/kestrel/internal/logger"
	"github.com/kestrel-agent/kestrel/internal/memory"
	"github.com/kestrel-agent/kestrel/internal/skill"
	"github.com/kestrel-agent/kestrel/internal/store"
	"github.com/kestrel-agent/kestrel/internal/tools"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "kestrel",
		Short:         "kestrel personal automation agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file path")

	root.AddCommand(
		newChatCmd(&configPath),
		newServeCmd(&configPath),
		newCronCmd(&configPath),
		newHistoryCmd(&configPath),
		newMemoryCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kestrel.yaml"
	}
	return filepath.Join(home, ".kestrel", "kestrel.yaml")
}

// runtime bundles the wired components every subcommand needs.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.Store
	provider interfaces.Provider
	registry *tools.Registry
	memory   *memory.Manager
	skills   *skill.Library
	loop     *agent.Loop
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Workspace, log)
	if err != nil {
		return nil, err
	}

	var provider interfaces.Provider
	switch cfg.Model.Provider {
	case "dummy":
		provider = &llm.Dummy{}
	default:
		provider = llm.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name, log)
	}

	skills, err := skill.NewLibrary(filepath.Join(cfg.Workspace, "skills"), log)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	for _, tool := range []interfaces.Tool{
		tools.NewRememberTool(st),
		tools.NewScheduleTool(st),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register tools: %w", err)
		}
	}

	mem := memory.NewManager(st, provider, skills, memory.Config{
		Threshold:         cfg.Memory.Threshold,
		KeepRecentRatio:   cfg.Memory.KeepRecentRatio,
		SummaryWordBudget: cfg.Memory.SummaryWordBudget,
	}, log)

	loop := agent.New(provider, mem, registry, cfg.Agent.SystemPrompt, cfg.Agent.MaxRounds, log)

	return &runtime{
		cfg:      cfg,
		log:      log,
		store:    st,
		provider: provider,
		registry: registry,
		memory:   mem,
		skills:   skills,
		loop:     loop,
	}, nil
}
