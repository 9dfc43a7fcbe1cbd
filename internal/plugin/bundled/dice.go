package bundled

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
)

// Dice needs no context.
func Dice() plugin.Source {
	return plugin.Static("dice", plugin.Constructor{
		Name:  "roll_dice",
		Plain: func() (agent.Tool, error) { return &diceTool{roll: func(n int) int { return rand.IntN(n) + 1 }}, nil },
	})
}

type diceTool struct {
	roll func(sides int) int
}

func (d *diceTool) Name() string        { return "roll_dice" }
func (d *diceTool) Description() string { return "Roll one or more dice with a given number of sides." }

func (d *diceTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sides": map[string]any{"type": "integer", "description": "Number of sides (default 6)", "minimum": 2, "maximum": 100},
			"count": map[string]any{"type": "integer", "description": "Number of dice (default 1)", "minimum": 1, "maximum": 20},
		},
		"required": []string{},
	}
}

func (d *diceTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	sides := intArg(args, "sides", 6)
	count := intArg(args, "count", 1)
	if sides < 2 || sides > 100 {
		return "", fmt.Errorf("sides must be between 2 and 100")
	}
	if count < 1 || count > 20 {
		return "", fmt.Errorf("count must be between 1 and 20")
	}

	rolls := make([]string, count)
	total := 0
	for i := range rolls {
		r := d.roll(sides)
		total += r
		rolls[i] = fmt.Sprint(r)
	}
	return fmt.Sprintf("Rolled %dd%d: [%s] (total: %d)", count, sides, strings.Join(rolls, ", "), total), nil
}
