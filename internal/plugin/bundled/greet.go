package bundled

import (
	"context"
	"fmt"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
)

// Greet only has a context constructor.
func Greet() plugin.Source {
	return plugin.Static("greet", plugin.Constructor{
		Name: "greet",
		WithContext: func(pctx *plugin.Context) (agent.Tool, error) {
			if pctx == nil {
				return nil, fmt.Errorf("greet requires a plugin context")
			}
			return &greetTool{workspace: pctx.Workspace}, nil
		},
	})
}

type greetTool struct {
	workspace string
}

func (g *greetTool) Name() string        { return "greet" }
func (g *greetTool) Description() string { return "Greet someone by name." }

func (g *greetTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "description": "Who to greet"},
		},
		"required": []string{"name"},
	}
}

func (g *greetTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	return fmt.Sprintf("Hello, %s! (from workspace %s)", name, g.workspace), nil
}
