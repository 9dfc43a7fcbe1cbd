package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sidekick/internal/app"
	"sidekick/internal/channels"
	gw "sidekick/internal/gateway"
	"sidekick/internal/heartbeat"
	"sidekick/internal/trace"
)

var addr string

var Cmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway: agent loop, channels, heartbeat and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := app.LoadConfig(cfgPath, "")
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Gateway.Addr = addr
		}

		shutdownTrace, err := trace.Init(ctx, trace.Config{
			Enabled:     cfg.Trace.Enabled,
			Endpoint:    cfg.Trace.Endpoint,
			URLPath:     cfg.Trace.URLPath,
			APIKey:      cfg.Trace.APIKey,
			Insecure:    cfg.Trace.Insecure,
			SampleRatio: cfg.Trace.SampleRatio,
			Debug:       cfg.Trace.Debug,
		})
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer shutdownTrace(context.Background())

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

		chs, err := channels.FromConfig(cfg.Channels, a.Bus)
		if err != nil {
			return err
		}
		var routes []channels.RouteRegistrar
		for _, ch := range chs {
			if r, ok := ch.(channels.RouteRegistrar); ok {
				routes = append(routes, r)
			}
			slog.Info("channel registered", "name", ch.Name())
		}
		dispatcher := channels.NewDispatcher(a.Bus, chs...)

		hb := heartbeat.New(cfg.Agent.Workspace, cfg.Heartbeat.Interval.Duration, cfg.Heartbeat.Enabled,
			func(ctx context.Context, prompt string) (string, error) {
				return a.Loop.ProcessDirect(ctx, prompt, "cli", "heartbeat")
			})
		if err := hb.Start(ctx); err != nil {
			return err
		}
		defer hb.Stop()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := a.Loop.Run(ctx); err != nil {
				slog.Error("agent loop failed", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := dispatcher.Run(ctx); err != nil {
				slog.Error("dispatcher failed", "error", err)
			}
		}()
		defer wg.Wait()

		srv := gw.NewServer(gw.Config{
			Secret:         cfg.Gateway.Secret,
			DefaultChannel: cfg.Gateway.DefaultChannel,
			DefaultChatID:  cfg.Gateway.DefaultChatID,
		}, a.Bus,
			gw.WithSubagents(a.Subagents),
			gw.WithChat(a.Loop),
			gw.WithRunHistory(a.Runs),
			gw.WithRoutes(routes...),
		)
		slog.Info("starting gateway", "addr", cfg.Gateway.Addr, "channels", dispatcher.Names())
		err = srv.ListenAndServe(ctx, cfg.Gateway.Addr)
		stop()
		return err
	},
}

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "override gateway listen address")
}
