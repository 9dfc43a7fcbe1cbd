package subagent

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
	"sidekick/internal/tools"
)

// BuiltinTools are the tool names a profile may whitelist besides plugin
// tools, in default registration order.
var BuiltinTools = []string{
	"read_file",
	"write_file",
	"edit_file",
	"list_dir",
	"exec",
	"web_search",
	"web_fetch",
}

// Capabilities holds the global policy every subagent registry is built
// under. Profiles can narrow it but never widen it.
type Capabilities struct {
	Workspace           string
	RestrictToWorkspace bool
	ExecEnabled         bool
	ExecTimeout         time.Duration
	BraveAPIKey         string
	SearchLimiter       *rate.Limiter
	Plugins             *plugin.Loader
}

// Assemble builds a fresh registry for one run of p. A nil profile, or one
// without a whitelist, gets the default set plus every plugin tool.
func (c *Capabilities) Assemble(p *Profile) *agent.Registry {
	reg := agent.NewRegistry()

	if p == nil || len(p.Tools) == 0 {
		for _, name := range BuiltinTools {
			if t, ok := c.builtin(name); ok {
				reg.Register(t)
			}
		}
		if c.Plugins != nil {
			c.Plugins.RegisterInto(reg)
		}
		return reg
	}

	var pluginNames map[string]bool
	if c.Plugins != nil {
		loaded := c.Plugins.Load()
		pluginNames = make(map[string]bool, len(loaded))
		for name := range loaded {
			pluginNames[name] = true
		}
	}

	allow := make(map[string]bool)
	for _, name := range p.Tools {
		if isBuiltin(name) {
			if t, ok := c.builtin(name); ok {
				reg.Register(t)
			} else {
				slog.Debug("tool requested by profile is globally disabled, skipping", "profile", p.Name, "tool", name)
			}
			continue
		}
		if pluginNames[name] {
			allow[name] = true
			continue
		}
		slog.Warn("unknown tool in subagent profile, skipping", "profile", p.Name, "tool", name)
	}
	if len(allow) > 0 {
		c.Plugins.RegisterSelected(reg, allow)
	}
	return reg
}

func (c *Capabilities) builtin(name string) (agent.Tool, bool) {
	allowedDir := ""
	if c.RestrictToWorkspace {
		allowedDir = c.Workspace
	}

	switch name {
	case "read_file":
		return tools.NewReadFile(c.Workspace, allowedDir), true
	case "write_file":
		return tools.NewWriteFile(c.Workspace, allowedDir), true
	case "edit_file":
		return tools.NewEditFile(c.Workspace, allowedDir), true
	case "list_dir":
		return tools.NewListDir(c.Workspace, allowedDir), true
	case "exec":
		if !c.ExecEnabled {
			return nil, false
		}
		return tools.NewExec(c.Workspace, c.ExecTimeout, c.RestrictToWorkspace), true
	case "web_search":
		return tools.NewWebSearch(c.BraveAPIKey, c.SearchLimiter), true
	case "web_fetch":
		return tools.NewWebFetch(), true
	}
	return nil, false
}

// PluginContext is the plugin.Context matching this policy.
func (c *Capabilities) PluginContext() *plugin.Context {
	pctx := &plugin.Context{
		Workspace:           c.Workspace,
		WorkingDir:          c.Workspace,
		ExecTimeout:         c.ExecTimeout,
		RestrictToWorkspace: c.RestrictToWorkspace,
		BraveAPIKey:         c.BraveAPIKey,
	}
	if c.RestrictToWorkspace {
		pctx.AllowedDir = c.Workspace
	}
	return pctx
}

func isBuiltin(name string) bool {
	for _, b := range BuiltinTools {
		if b == name {
			return true
		}
	}
	return false
}
