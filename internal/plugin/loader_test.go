package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/agent"
)

type namedTool struct {
	name string
	from string
}

func (n *namedTool) Name() string        { return n.name }
func (n *namedTool) Description() string { return "from " + n.from }
func (n *namedTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (n *namedTool) Execute(context.Context, map[string]any) (string, error) { return n.from, nil }

func plain(name, from string) Constructor {
	return Constructor{Name: name, Plain: func() (agent.Tool, error) { return &namedTool{name: name, from: from}, nil }}
}

type countingSource struct {
	name  string
	calls atomic.Int32
	ctors []Constructor
	err   error
}

func (c *countingSource) Name() string { return c.name }
func (c *countingSource) Constructors() ([]Constructor, error) {
	c.calls.Add(1)
	return c.ctors, c.err
}

func TestLoaderIsolatesFailures(t *testing.T) {
	loader := NewLoader(&Context{Workspace: "/ws"}, WithSources(
		&countingSource{name: "a_broken", err: errors.New("syntax error")},
		Static("b_panics", Constructor{Name: "boom", Plain: func() (agent.Tool, error) { panic("init failed") }}),
		Static("c_mixed",
			Constructor{Name: "bad", Plain: func() (agent.Tool, error) { return nil, errors.New("missing dependency") }},
			plain("good", "c_mixed"),
		),
		Static("d_ok", plain("other", "d_ok")),
	))

	tools := loader.Load()
	assert.Len(t, tools, 2)
	assert.Contains(t, tools, "good")
	assert.Contains(t, tools, "other")
}

type panickyName struct{ namedTool }

func (panickyName) Name() string { panic("name unavailable") }

func TestLoaderSkipsNilAndBrokenTools(t *testing.T) {
	loader := NewLoader(&Context{}, WithSources(
		Static("a_nil", Constructor{Name: "nil", Plain: func() (agent.Tool, error) { return nil, nil }}),
		Static("b_name", Constructor{Name: "name", Plain: func() (agent.Tool, error) { return &panickyName{}, nil }}),
		Static("c_empty", plain("", "c_empty")),
		Static("d_ok", plain("fine", "d_ok")),
	))

	var tools map[string]agent.Tool
	require.NotPanics(t, func() { tools = loader.Load() })
	assert.Len(t, tools, 1)
	assert.Contains(t, tools, "fine")
}

func TestLoaderFirstSourceWinsCollisions(t *testing.T) {
	loader := NewLoader(nil, WithSources(
		Static("zeta", plain("dup", "zeta")),
		Static("alpha", plain("dup", "alpha")),
	))

	tools := loader.Load()
	require.Contains(t, tools, "dup")
	out, err := tools["dup"].Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", out)
}

func TestLoaderMemoizes(t *testing.T) {
	src := &countingSource{name: "s", ctors: []Constructor{plain("t", "s")}}
	loader := NewLoader(nil, WithSources(src))

	first := loader.Load()
	second := loader.Load()
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Same(t, first["t"], second["t"])
}

func TestLoaderPrefersContextConstructor(t *testing.T) {
	pctx := &Context{Workspace: "/ws"}
	loader := NewLoader(pctx, WithSources(
		Static("both", Constructor{
			WithContext: func(c *Context) (agent.Tool, error) { return &namedTool{name: "both", from: c.Workspace}, nil },
			Plain:       func() (agent.Tool, error) { return &namedTool{name: "both", from: "plain"}, nil },
		}),
		Static("fallback", Constructor{
			WithContext: func(*Context) (agent.Tool, error) { return nil, ErrContextUnsupported },
			Plain:       func() (agent.Tool, error) { return &namedTool{name: "fallback", from: "plain"}, nil },
		}),
		Static("ctxonly", Constructor{
			WithContext: func(*Context) (agent.Tool, error) { return nil, errors.New("bad workspace") },
			Plain:       func() (agent.Tool, error) { return &namedTool{name: "ctxonly", from: "plain"}, nil },
		}),
	))

	tools := loader.Load()
	ctx := context.Background()
	out, _ := tools["both"].Execute(ctx, nil)
	assert.Equal(t, "/ws", out)
	out, _ = tools["fallback"].Execute(ctx, nil)
	assert.Equal(t, "plain", out)
	assert.NotContains(t, tools, "ctxonly", "a real context error must not fall back")
}

func TestRegisterIntoKeepsBuiltins(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(&namedTool{name: "read_file", from: "builtin"})

	loader := NewLoader(nil, WithSources(Static("p",
		plain("read_file", "plugin"),
		plain("roll_dice", "plugin"),
	)))

	added := loader.RegisterInto(reg)
	assert.Equal(t, []string{"roll_dice"}, added)

	rf, _ := reg.Get("read_file")
	out, _ := rf.Execute(context.Background(), nil)
	assert.Equal(t, "builtin", out)
	assert.Equal(t, []string{"read_file", "roll_dice"}, reg.Names())
}

func TestRegisterSelected(t *testing.T) {
	reg := agent.NewRegistry()
	loader := NewLoader(nil, WithSources(Static("p", plain("a", "p"), plain("b", "p"))))

	added := loader.RegisterSelected(reg, map[string]bool{"b": true})
	assert.Equal(t, []string{"b"}, added)
	assert.False(t, reg.Has("a"))
}

func TestLoaderMissingDirIsEmpty(t *testing.T) {
	loader := NewLoader(nil, WithDir(filepath.Join(t.TempDir(), "absent"), 0))
	assert.Empty(t, loader.Load())
	assert.Empty(t, loader.Names())
}

func writeScript(t *testing.T, dir, name, body string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), mode))
}

func TestCommandPlugins(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "helper-ran")

	writeScript(t, dir, "shout", `#!/bin/sh
case "$1" in
describe)
  echo '[{"name":"shout","description":"Upper-case the input","parameters":{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]},"context":true}]'
  ;;
call)
  tr a-z A-Z
  printf ' %s' "$SIDEKICK_WORKSPACE"
  ;;
esac
`, 0o755)
	writeScript(t, dir, "broken", "#!/bin/sh\necho 'nope' >&2\nexit 1\n", 0o755)
	writeScript(t, dir, "garbage", "#!/bin/sh\necho 'not json'\n", 0o755)
	writeScript(t, dir, "_helper", "#!/bin/sh\ntouch "+marker+"\necho '[{\"name\":\"helper\"}]'\n", 0o755)
	writeScript(t, dir, "readme.txt", "not a plugin", 0o644)

	loader := NewLoader(&Context{Workspace: "/ws"}, WithDir(dir, 0))
	assert.Equal(t, []string{"shout"}, loader.Names())
	assert.NoFileExists(t, marker)

	tool := loader.Load()["shout"]
	out, err := tool.Execute(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, `{"TEXT":"HI"} /ws`, out)
}

func TestCommandPluginCallFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fails", `#!/bin/sh
if [ "$1" = describe ]; then echo '{"tools":[{"name":"fails","description":"always fails"}]}'; exit 0; fi
echo "bad input" >&2
exit 2
`, 0o755)

	tool := NewLoader(nil, WithDir(dir, 0)).Load()["fails"]
	require.NotNil(t, tool)
	_, err := tool.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
}

func TestParseSpecsRejectsNamelessTools(t *testing.T) {
	_, err := parseSpecs([]byte(`[{"description":"x"}]`))
	require.Error(t, err)

	specs, err := parseSpecs([]byte(`{"tools":[{"name":"a"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "object", specs[0].Parameters["type"])
}
