package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sidekick/internal/app"
	"sidekick/internal/channels"
)

var message string

var Cmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the agent in the terminal",
	Long: "Chat with the agent in the terminal. With -m the message is processed once and the reply printed; " +
		"otherwise an interactive session reads lines from stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := app.LoadConfig(cfgPath, "text")
		if err != nil {
			return err
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				slog.Warn("shutdown incomplete", "error", err)
			}
		}()

		if message != "" {
			reply, err := a.Loop.ProcessDirect(ctx, message, channels.CLIChannel, channels.CLIChatID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		}

		cli := channels.NewCLI(a.Bus, os.Stdin, cmd.OutOrStdout())
		dispatcher := channels.NewDispatcher(a.Bus, cli)

		go func() {
			select {
			case <-cli.Done():
				stop()
			case <-ctx.Done():
			}
		}()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Loop.Run(ctx); err != nil {
				slog.Error("agent loop failed", "error", err)
			}
		}()

		err = dispatcher.Run(ctx)
		stop()
		wg.Wait()
		return err
	},
}

func init() {
	Cmd.Flags().StringVarP(&message, "message", "m", "", "process one message and exit")
}
