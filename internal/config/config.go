package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DefaultLLM string                     `toml:"default_llm"`
	LLMs       map[string]*LLMConfig      `toml:"llm"`
	Agent      AgentConfig                `toml:"agent"`
	Spawn      SpawnConfig                `toml:"spawn"`
	Subagents  map[string]*SubagentConfig `toml:"subagents"`
	Tools      ToolsConfig                `toml:"tools"`
	Plugins    PluginsConfig              `toml:"plugins"`
	Gateway    GatewayConfig              `toml:"gateway"`
	Channels   map[string]*ChannelConfig  `toml:"channel"`
	Heartbeat  HeartbeatConfig            `toml:"heartbeat"`
	Bus        BusConfig                  `toml:"bus"`
	Trace      TraceConfig                `toml:"trace"`
	DB         DBConfig                   `toml:"db"`
	Log        LogConfig                  `toml:"log"`
}

type LLMConfig struct {
	Type    string        `toml:"type"` // openai or anthropic
	Model   string        `toml:"model"`
	BaseURL string        `toml:"base_url"`
	APIKey  string        `toml:"api_key"`
	Breaker BreakerConfig `toml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32   `toml:"max_failures"`
	Timeout     Duration `toml:"timeout"`
}

type AgentConfig struct {
	Workspace           string  `toml:"workspace"`
	Temperature         float64 `toml:"temperature"`
	MaxTokens           int     `toml:"max_tokens"`
	MaxIterations       int     `toml:"max_iterations"`
	RestrictToWorkspace bool    `toml:"restrict_to_workspace"`
	HistoryLimit        int     `toml:"history_limit"`
	ParallelTools       bool    `toml:"parallel_tools"`
}

// SpawnConfig holds the defaults applied to every subagent run.
type SpawnConfig struct {
	MaxIterations int      `toml:"max_iterations"`
	RunTimeout    Duration `toml:"run_timeout"`
}

// SubagentConfig is a named subagent profile.
type SubagentConfig struct {
	Model         string   `toml:"model"`
	MaxIterations int      `toml:"max_iterations"`
	Tools         []string `toml:"tools"`
	Skills        []string `toml:"skills"`
}

type ToolsConfig struct {
	Exec ExecConfig `toml:"exec"`
	Web  WebConfig  `toml:"web"`
}

type ExecConfig struct {
	Enabled bool     `toml:"enabled"`
	Timeout Duration `toml:"timeout"`
}

type WebConfig struct {
	Brave BraveConfig `toml:"brave"`
}

type BraveConfig struct {
	APIKey string  `toml:"api_key"`
	RPS    float64 `toml:"rps"`
}

type PluginsConfig struct {
	Dir             string   `toml:"dir"`
	Bundled         []string `toml:"bundled"`
	DescribeTimeout Duration `toml:"describe_timeout"`
}

type GatewayConfig struct {
	Addr           string `toml:"addr"`
	Secret         string `toml:"secret"`
	DefaultChannel string `toml:"default_channel"`
	DefaultChatID  string `toml:"default_chat_id"`
}

type ChannelConfig struct {
	Enabled  bool              `toml:"enabled"`
	Type     string            `toml:"type"`
	Settings map[string]string `toml:"settings"`
}

type HeartbeatConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

type BusConfig struct {
	Capacity int `toml:"capacity"`
}

type TraceConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	URLPath     string  `toml:"url_path"`
	APIKey      string  `toml:"api_key"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
	Debug       bool    `toml:"debug"`
}

type DBConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes TOML strings such as "30s" or "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		DefaultLLM: "openai",
		LLMs: map[string]*LLMConfig{
			"openai": {
				Type:  "openai",
				Model: "gpt-4.1-mini",
			},
		},
		Agent: AgentConfig{
			Workspace:     defaultWorkspace(),
			Temperature:   0.7,
			MaxTokens:     4096,
			MaxIterations: 20,
			HistoryLimit:  50,
		},
		Spawn: SpawnConfig{
			MaxIterations: 15,
		},
		Tools: ToolsConfig{
			Exec: ExecConfig{Enabled: true, Timeout: Duration{60 * time.Second}},
			Web:  WebConfig{Brave: BraveConfig{RPS: 1}},
		},
		Plugins: PluginsConfig{
			DescribeTimeout: Duration{10 * time.Second},
		},
		Gateway: GatewayConfig{
			Addr: ":18790",
		},
		Heartbeat: HeartbeatConfig{
			Interval: Duration{30 * time.Minute},
		},
		Bus: BusConfig{
			Capacity: 100,
		},
		Trace: TraceConfig{
			Insecure: true,
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at path (or the default location when path is
// empty) on top of Default, then applies environment overrides. A .env file in
// the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = Path()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Agent.Workspace = ExpandHome(cfg.Agent.Workspace)
	if cfg.Plugins.Dir == "" {
		cfg.Plugins.Dir = filepath.Join(cfg.Agent.Workspace, "tools")
	}
	cfg.Plugins.Dir = ExpandHome(cfg.Plugins.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for _, l := range c.LLMs {
		if l.APIKey != "" {
			continue
		}
		switch l.Type {
		case "openai":
			l.APIKey = os.Getenv("SIDEKICK_OPENAI_API_KEY")
		case "anthropic":
			l.APIKey = os.Getenv("SIDEKICK_ANTHROPIC_API_KEY")
		}
	}
	if c.Tools.Web.Brave.APIKey == "" {
		c.Tools.Web.Brave.APIKey = os.Getenv("BRAVE_API_KEY")
	}
	if v := os.Getenv("SIDEKICK_WEBHOOK_SECRET"); v != "" && c.Gateway.Secret == "" {
		c.Gateway.Secret = v
	}
}

func (c *Config) Validate() error {
	l, ok := c.LLMs[c.DefaultLLM]
	if !ok {
		return fmt.Errorf("default LLM %q not found in config", c.DefaultLLM)
	}
	switch l.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm %q: unsupported type %q", c.DefaultLLM, l.Type)
	}
	if c.Spawn.MaxIterations <= 0 {
		return fmt.Errorf("spawn.max_iterations must be positive")
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("bus.capacity must be positive")
	}
	for name, s := range c.Subagents {
		if s.MaxIterations < 0 {
			return fmt.Errorf("subagent %q: max_iterations must not be negative", name)
		}
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Path is the default config file location.
func Path() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "sidekick", "config.toml")
}

func defaultWorkspace() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".sidekick", "workspace")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "sidekick", "sidekick.db")
}
