package tasks

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sidekick/internal/app"
	"sidekick/internal/db"
	"sidekick/internal/runlog"
)

var limit int

var Cmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recently finished subagent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := app.LoadConfig(cfgPath, "text")
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return err
		}

		runs, err := runlog.NewStore(database).Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No subagent runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tSTATUS\tITER\tDURATION\tFINISHED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.ID, oneLine(r.Label), r.Status, r.Iterations,
				r.Duration().Round(time.Second), r.FinishedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func init() {
	Cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
}
