package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"sidekick/internal/config"
	"sidekick/internal/heartbeat"
)

var force bool

const heartbeatTemplate = `# Heartbeat

<!-- Tasks listed here are checked periodically by the agent. -->
`

var Cmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default config and create the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.Path()
		}
		out := cmd.OutOrStdout()

		cfg := config.Default()
		if err := writeConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "Config: %s\n", path)

		ws := cfg.Agent.Workspace
		for _, dir := range []string{ws, filepath.Join(ws, "skills"), filepath.Join(ws, "tools")} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		hb := filepath.Join(ws, heartbeat.FileName)
		if _, err := os.Stat(hb); errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(hb, []byte(heartbeatTemplate), 0o644); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Workspace: %s\n", ws)
		fmt.Fprintln(out, "Set SIDEKICK_OPENAI_API_KEY (or configure another [llm.*] entry) before starting.")
		return nil
	},
}

func writeConfig(path string, cfg *config.Config) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func init() {
	Cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
}
