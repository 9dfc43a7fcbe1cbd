// Package gateway serves the HTTP surface of a running sidekick: external
// notifications, subagent status, a streaming chat endpoint and the webhook
// routes of the enabled channels.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
	"sidekick/internal/channels"
	"sidekick/internal/runlog"
	"sidekick/internal/subagent"
)

type Config struct {
	// Secret authorizes POST /notify. When empty a random one is generated.
	Secret         string
	DefaultChannel string
	DefaultChatID  string
}

// Subagents is the part of subagent.Manager the gateway reports on.
type Subagents interface {
	RunningCount() int
	Running() []subagent.TaskInfo
	Cancel(id string) bool
}

// Chatter runs one streamed agent turn. agent.Loop implements it.
type Chatter interface {
	ProcessStream(ctx context.Context, content, channel, chatID string, emit func(agent.Event)) (string, error)
}

type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

type Option func(*Server)

func WithSubagents(s Subagents) Option {
	return func(srv *Server) { srv.subagents = s }
}

func WithChat(c Chatter) Option {
	return func(srv *Server) { srv.chat = c }
}

func WithRunHistory(h RunHistory) Option {
	return func(srv *Server) { srv.runs = h }
}

func WithRoutes(rs ...channels.RouteRegistrar) Option {
	return func(srv *Server) { srv.registrars = append(srv.registrars, rs...) }
}

type Server struct {
	cfg        Config
	bus        *bus.MessageBus
	subagents  Subagents
	chat       Chatter
	runs       RunHistory
	registrars []channels.RouteRegistrar
	mux        *http.ServeMux
}

func NewServer(cfg Config, b *bus.MessageBus, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		bus: b,
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Secret == "" {
		s.cfg.Secret = generateSecret()
		slog.Warn("gateway: no webhook secret configured, generated an ephemeral one", "secret", s.cfg.Secret)
	}
	s.routes()
	for _, r := range s.registrars {
		r.RegisterRoutes(s.mux)
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /notify", s.handleNotify)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /v1/subagents", s.handleListSubagents)
	s.mux.HandleFunc("DELETE /v1/subagents/{id}", s.handleCancelSubagent)
	s.mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	s.mux.HandleFunc("POST /v1/chat", s.handleChat)
}

// Secret returns the secret in effect, generated or configured.
func (s *Server) Secret() string { return s.cfg.Secret }

func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "gateway")
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func generateSecret() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
