package app

import (
	"fmt"
	"strings"
	"time"

	"sidekick/internal/skills"
)

// SystemPrompt is the main agent's system prompt.
func SystemPrompt(workspace string, available []skills.Skill, toolNames []string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# sidekick\n\n")
	b.WriteString("You are sidekick, a personal assistant with access to tools.\n\n")
	fmt.Fprintf(&b, "## Current Time\n%s (%s) (%s)\n\n", now.Format("2006-01-02 15:04"), now.Format("Monday"), now.Format("MST"))
	fmt.Fprintf(&b, "## Workspace\nYour workspace is at: %s\n\n", workspace)

	if len(toolNames) > 0 {
		fmt.Fprintf(&b, "## Tools\n%s\n\n", strings.Join(toolNames, ", "))
	}
	b.WriteString("Use the spawn tool for long or independent work; the result will arrive later as a system message. " +
		"Reply to the user directly in your final answer; use the message tool only to send something before you finish.\n")

	if len(available) > 0 {
		b.WriteString("\n## Skills\nRead a skill's SKILL.md with read_file before using it.\n")
		for _, s := range available {
			if s.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.Name)
			}
		}
	}
	return b.String()
}
