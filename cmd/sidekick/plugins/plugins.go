package plugins

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sidekick/internal/app"
	"sidekick/internal/plugin"
	"sidekick/internal/plugin/bundled"
)

var Cmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plugin tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := app.LoadConfig(cfgPath, "text")
		if err != nil {
			return err
		}

		pctx := &plugin.Context{
			Workspace:           cfg.Agent.Workspace,
			WorkingDir:          cfg.Agent.Workspace,
			ExecTimeout:         cfg.Tools.Exec.Timeout.Duration,
			RestrictToWorkspace: cfg.Agent.RestrictToWorkspace,
			BraveAPIKey:         cfg.Tools.Web.Brave.APIKey,
		}
		loader := plugin.NewLoader(pctx,
			plugin.WithSources(bundled.Sources(cfg.Plugins.Bundled)...),
			plugin.WithDir(cfg.Plugins.Dir, cfg.Plugins.DescribeTimeout.Duration),
		)

		tools := loader.Load()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Plugin directory: %s\n", cfg.Plugins.Dir)
		fmt.Fprintf(out, "Bundled plugins available: %v\n\n", bundled.Names())
		if len(tools) == 0 {
			fmt.Fprintln(out, "No plugin tools loaded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tDESCRIPTION")
		for _, name := range loader.Names() {
			fmt.Fprintf(w, "%s\t%s\n", name, tools[name].Description())
		}
		return w.Flush()
	},
}
