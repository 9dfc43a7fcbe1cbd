package subagent

import (
	"fmt"
	"strings"
	"time"

	"sidekick/internal/agent"
)

// capabilitySet is what a scoped registry lets a subagent do.
type capabilitySet struct {
	files bool
	exec  bool
	web   bool
}

func capabilitiesOf(reg *agent.Registry) capabilitySet {
	return capabilitySet{
		files: reg.Has("read_file") || reg.Has("write_file"),
		exec:  reg.Has("exec"),
		web:   reg.Has("web_search") || reg.Has("web_fetch"),
	}
}

// BuildPrompt renders the subagent system prompt. The "can" and "cannot"
// sections follow the tools actually present in reg, so the model is never
// told about a tool it does not have.
func BuildPrompt(reg *agent.Registry, workspace, skillsDir, preloaded string, now time.Time) string {
	caps := capabilitiesOf(reg)

	var can, cannot []string
	if caps.files {
		can = append(can, "Read and write files in the workspace")
	} else {
		cannot = append(cannot, "Read or write files (no file tools available)")
	}
	if caps.exec {
		can = append(can, "Execute shell commands")
	} else {
		cannot = append(cannot, "Execute shell commands (no exec tool available)")
	}
	if caps.web {
		can = append(can, "Search the web and fetch web pages")
	} else {
		cannot = append(cannot, "Search the web or fetch web pages (no web tools available)")
	}
	can = append(can, "Complete the task thoroughly")
	cannot = append(cannot,
		"Send messages directly to users (no message tool available)",
		"Spawn other subagents",
		"Access the main agent's conversation history",
	)

	var b strings.Builder
	b.WriteString("# Subagent\n\n")
	fmt.Fprintf(&b, "## Current Time\n%s\n\n", formatNow(now))
	b.WriteString("You are a subagent started by the main agent to carry out one specific task.\n\n")

	b.WriteString("## Rules\n")
	b.WriteString("1. Work only on the assigned task and nothing else.\n")
	b.WriteString("2. Your final response is reported back to the main agent.\n")
	b.WriteString("3. Do not start side tasks or conversations.\n")
	b.WriteString("4. Be concise but include everything the main agent needs.\n\n")

	b.WriteString("## What You Can Do\n")
	writeList(&b, can)
	b.WriteString("\n## What You Cannot Do\n")
	writeList(&b, cannot)

	b.WriteString("\n## Workspace\n")
	fmt.Fprintf(&b, "Your workspace is at: %s\n", workspace)
	fmt.Fprintf(&b, "Skills are available at: %s/ (read SKILL.md files as needed)\n", strings.TrimSuffix(skillsDir, "/"))

	if preloaded != "" {
		fmt.Fprintf(&b, "\n## Pre-loaded Skills\n\n%s\n", preloaded)
	}

	b.WriteString("\nWhen you have completed the task, provide a clear summary of your findings or actions.")
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func formatNow(now time.Time) string {
	return fmt.Sprintf("%s (%s) (%s)", now.Format("2006-01-02 15:04"), now.Format("Monday"), now.Format("MST"))
}
