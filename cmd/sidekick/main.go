package main

import (
	"os"

	"github.com/spf13/cobra"

	"sidekick/cmd/sidekick/agent"
	"sidekick/cmd/sidekick/gateway"
	"sidekick/cmd/sidekick/plugins"
	"sidekick/cmd/sidekick/setup"
	"sidekick/cmd/sidekick/tasks"
	"sidekick/internal/logger"
)

func main() {
	logger.Init("info", "text")
	rootCmd := &cobra.Command{
		Use:          "sidekick",
		Short:        "sidekick is a personal AI agent that delegates work to background subagents",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config.toml")

	rootCmd.AddCommand(setup.Cmd)
	rootCmd.AddCommand(gateway.Cmd)
	rootCmd.AddCommand(agent.Cmd)
	rootCmd.AddCommand(tasks.Cmd)
	rootCmd.AddCommand(plugins.Cmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
