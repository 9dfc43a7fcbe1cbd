package subagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sidekick/internal/agent"
)

// SpawnTool exposes Manager.Spawn to the main agent as the "spawn" tool.
type SpawnTool struct {
	manager *Manager
}

func NewSpawnTool(m *Manager) *SpawnTool {
	return &SpawnTool{manager: m}
}

func (s *SpawnTool) Name() string { return "spawn" }

func (s *SpawnTool) Description() string {
	desc := "Spawn a subagent to handle a task in the background. " +
		"Use this for complex or time-consuming tasks that can run independently. " +
		"The subagent will complete the task and report back when done."
	if names := profileNames(s.manager.profiles); len(names) > 0 {
		desc += " Available profiles: " + strings.Join(names, ", ") + "."
	}
	return desc
}

func (s *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "The task for the subagent to complete",
			},
			"label": map[string]any{
				"type":        "string",
				"description": "Optional short label for the task (for display)",
			},
			"profile": map[string]any{
				"type":        "string",
				"description": "Optional subagent profile that selects model, tools and skills",
			},
		},
		"required": []string{"task"},
	}
}

func (s *SpawnTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	taskText, _ := args["task"].(string)
	if strings.TrimSpace(taskText) == "" {
		return "", fmt.Errorf("task is required")
	}
	label, _ := args["label"].(string)
	profile, _ := args["profile"].(string)

	origin, _ := agent.OriginFromContext(ctx)
	msg, err := s.manager.Spawn(ctx, SpawnRequest{
		Task:    taskText,
		Label:   label,
		Origin:  origin,
		Profile: profile,
	})
	if errors.Is(err, ErrUnknownProfile) {
		return msg, nil
	}
	if err != nil {
		return "", err
	}
	return msg, nil
}
