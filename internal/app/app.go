// Package app assembles a sidekick process from configuration: provider,
// bus, plugins, the subagent manager and the main agent loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
	"sidekick/internal/config"
	"sidekick/internal/db"
	"sidekick/internal/history"
	"sidekick/internal/llm"
	"sidekick/internal/plugin"
	"sidekick/internal/plugin/bundled"
	"sidekick/internal/runlog"
	"sidekick/internal/skills"
	"sidekick/internal/subagent"
	"sidekick/internal/tools"
)

type App struct {
	Config    *config.Config
	Bus       *bus.MessageBus
	Provider  llm.Provider
	Plugins   *plugin.Loader
	Skills    *skills.Loader
	Subagents *subagent.Manager
	Loop      *agent.Loop
	Registry  *agent.Registry
	DB        *db.DB
	Runs      *runlog.Store
	History   *history.Store
}

type Option func(*options)

type options struct {
	provider llm.Provider
}

// WithProvider replaces the provider built from configuration.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.Agent.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	provider := o.provider
	if provider == nil {
		llmCfg, ok := cfg.LLMs[cfg.DefaultLLM]
		if !ok {
			return nil, fmt.Errorf("default LLM %q not found in config", cfg.DefaultLLM)
		}
		p, err := llm.New(cfg.DefaultLLM, llmCfg)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Bus:      bus.New(cfg.Bus.Capacity),
		Provider: provider,
		Skills:   skills.NewLoader(cfg.Agent.Workspace),
		DB:       database,
		Runs:     runlog.NewStore(database),
		History:  history.NewStore(database),
	}

	caps := &subagent.Capabilities{
		Workspace:           cfg.Agent.Workspace,
		RestrictToWorkspace: cfg.Agent.RestrictToWorkspace,
		ExecEnabled:         cfg.Tools.Exec.Enabled,
		ExecTimeout:         cfg.Tools.Exec.Timeout.Duration,
		BraveAPIKey:         cfg.Tools.Web.Brave.APIKey,
		SearchLimiter:       tools.NewSearchLimiter(cfg.Tools.Web.Brave.RPS),
	}
	a.Plugins = plugin.NewLoader(caps.PluginContext(),
		plugin.WithSources(bundled.Sources(cfg.Plugins.Bundled)...),
		plugin.WithDir(cfg.Plugins.Dir, cfg.Plugins.DescribeTimeout.Duration),
	)
	caps.Plugins = a.Plugins

	model := ""
	if l, ok := cfg.LLMs[cfg.DefaultLLM]; ok {
		model = l.Model
	}

	a.Subagents = subagent.NewManager(provider, a.Bus, caps,
		subagent.WithProfiles(subagent.ProfilesFromConfig(cfg.Subagents)),
		subagent.WithSkills(a.Skills),
		subagent.WithModel(model),
		subagent.WithTemperature(cfg.Agent.Temperature),
		subagent.WithMaxTokens(cfg.Agent.MaxTokens),
		subagent.WithMaxIterations(cfg.Spawn.MaxIterations),
		subagent.WithParallelTools(cfg.Agent.ParallelTools),
		subagent.WithRunTimeout(cfg.Spawn.RunTimeout.Duration),
		subagent.WithRecorder(a.Runs),
	)

	a.Registry = caps.Assemble(nil)
	a.Registry.Register(tools.NewMessage(a.Bus))
	a.Registry.Register(subagent.NewSpawnTool(a.Subagents))

	runnerOpts := []agent.ReactOption{
		agent.WithTemperature(cfg.Agent.Temperature),
		agent.WithMaxTokens(cfg.Agent.MaxTokens),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithParallelTools(cfg.Agent.ParallelTools),
	}
	if model != "" {
		runnerOpts = append(runnerOpts, agent.WithModel(model))
	}
	a.Loop = agent.NewLoop(a.Bus, provider, a.Registry,
		agent.WithLoopHistory(a.History),
		agent.WithLoopHistoryLimit(cfg.Agent.HistoryLimit),
		agent.WithLoopSystemPrompt(func(now time.Time) string {
			return SystemPrompt(cfg.Agent.Workspace, a.Skills.List(), a.Registry.Names(), now)
		}),
		agent.WithLoopRunnerOptions(runnerOpts...),
	)

	slog.Info("sidekick assembled",
		"llm", cfg.DefaultLLM,
		"workspace", cfg.Agent.Workspace,
		"tools", a.Registry.Names(),
		"profiles", len(cfg.Subagents),
	)
	return a, nil
}

// Close stops running subagents, then closes the database.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Subagents.Shutdown(ctx), a.DB.Close())
}
