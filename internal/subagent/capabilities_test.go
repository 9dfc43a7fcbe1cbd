package subagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(context.Context, map[string]any) (string, error) { return "plugin " + s.name, nil }

func stubPlugins(names ...string) *plugin.Loader {
	var ctors []plugin.Constructor
	for _, name := range names {
		ctors = append(ctors, plugin.Constructor{Name: name, Plain: func() (agent.Tool, error) {
			return &stubTool{name: name}, nil
		}})
	}
	return plugin.NewLoader(&plugin.Context{}, plugin.WithSources(plugin.Static("stubs", ctors...)))
}

func TestAssembleDefaultSet(t *testing.T) {
	caps := &Capabilities{Workspace: t.TempDir(), ExecEnabled: true}

	reg := caps.Assemble(nil)
	assert.Equal(t, []string{"read_file", "write_file", "edit_file", "list_dir", "exec", "web_search", "web_fetch"}, reg.Names())

	caps.ExecEnabled = false
	reg = caps.Assemble(&Profile{Name: "empty"})
	assert.Equal(t, []string{"read_file", "write_file", "edit_file", "list_dir", "web_search", "web_fetch"}, reg.Names())
}

func TestAssembleWhitelistOrder(t *testing.T) {
	caps := &Capabilities{Workspace: t.TempDir(), ExecEnabled: true}

	reg := caps.Assemble(&Profile{Name: "p", Tools: []string{"web_fetch", "nonexistent", "read_file", "exec"}})
	assert.Equal(t, []string{"web_fetch", "read_file", "exec"}, reg.Names())
}

func TestAssembleExecGatedGlobally(t *testing.T) {
	caps := &Capabilities{Workspace: t.TempDir(), ExecEnabled: false}

	reg := caps.Assemble(&Profile{Name: "ops", Tools: []string{"exec", "list_dir"}})
	assert.Equal(t, []string{"list_dir"}, reg.Names())
	assert.False(t, reg.Has("exec"))
}

func TestAssembleMergesPlugins(t *testing.T) {
	caps := &Capabilities{
		Workspace: t.TempDir(),
		Plugins:   stubPlugins("roll_dice", "get_weather", "read_file"),
	}

	reg := caps.Assemble(nil)
	names := reg.Names()
	assert.Equal(t, []string{"read_file", "write_file", "edit_file", "list_dir", "web_search", "web_fetch", "get_weather", "roll_dice"}, names)

	// The built-in read_file wins over the plugin of the same name.
	tool, ok := reg.Get("read_file")
	require.True(t, ok)
	assert.NotEqual(t, "stub read_file", tool.Description())
}

func TestAssembleWhitelistedPluginsOnly(t *testing.T) {
	caps := &Capabilities{
		Workspace: t.TempDir(),
		Plugins:   stubPlugins("roll_dice", "get_weather"),
	}

	reg := caps.Assemble(&Profile{Name: "fun", Tools: []string{"roll_dice", "web_search"}})
	assert.Equal(t, []string{"web_search", "roll_dice"}, reg.Names())

	out := reg.Execute(context.Background(), "roll_dice", map[string]any{})
	assert.Equal(t, "plugin roll_dice", out)
}

func TestAssembleReturnsFreshRegistry(t *testing.T) {
	caps := &Capabilities{Workspace: t.TempDir()}

	a := caps.Assemble(nil)
	b := caps.Assemble(nil)
	require.NotSame(t, a, b)

	a.Register(&stubTool{name: "extra"})
	assert.False(t, b.Has("extra"))
}

func TestAssembleRestrictsFilesystem(t *testing.T) {
	ws := t.TempDir()
	caps := &Capabilities{Workspace: ws, RestrictToWorkspace: true}
	reg := caps.Assemble(&Profile{Name: "p", Tools: []string{"read_file"}})

	out := reg.Execute(context.Background(), "read_file", map[string]any{"path": "/etc/hostname"})
	assert.Contains(t, out, "Error executing read_file")
}

func TestPluginContext(t *testing.T) {
	caps := &Capabilities{Workspace: "/ws", RestrictToWorkspace: true, BraveAPIKey: "k"}
	pctx := caps.PluginContext()
	assert.Equal(t, "/ws", pctx.Workspace)
	assert.Equal(t, "/ws", pctx.AllowedDir)
	assert.Equal(t, "/ws", pctx.WorkingDir)
	assert.Equal(t, "k", pctx.BraveAPIKey)

	caps.RestrictToWorkspace = false
	assert.Empty(t, caps.PluginContext().AllowedDir)
}
