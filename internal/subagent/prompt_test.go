package subagent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sidekick/internal/agent"
)

func TestBuildPromptAllCapabilities(t *testing.T) {
	caps := &Capabilities{Workspace: "/ws", ExecEnabled: true}
	now := time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC)

	prompt := BuildPrompt(caps.Assemble(nil), "/ws", "/ws/skills", "", now)

	assert.Contains(t, prompt, "# Subagent")
	assert.Contains(t, prompt, "## Current Time\n2026-10-18 09:05 (Sunday) (UTC)")
	assert.Contains(t, prompt, "- Read and write files in the workspace\n")
	assert.Contains(t, prompt, "- Execute shell commands\n")
	assert.Contains(t, prompt, "- Search the web and fetch web pages\n")
	assert.Contains(t, prompt, "- Complete the task thoroughly\n")
	assert.NotContains(t, prompt, "no exec tool available")
	assert.NotContains(t, prompt, "no file tools available")
	assert.NotContains(t, prompt, "no web tools available")

	assert.Contains(t, prompt, "- Send messages directly to users (no message tool available)")
	assert.Contains(t, prompt, "- Spawn other subagents")
	assert.Contains(t, prompt, "- Access the main agent's conversation history")
	assert.Contains(t, prompt, "Your workspace is at: /ws\n")
	assert.Contains(t, prompt, "Skills are available at: /ws/skills/ (read SKILL.md files as needed)")
	assert.NotContains(t, prompt, "## Pre-loaded Skills")
}

func TestBuildPromptNoTools(t *testing.T) {
	prompt := BuildPrompt(agent.NewRegistry(), "/ws", "/ws/skills", "### Skill: x\n\nbody", time.Now())

	assert.Contains(t, prompt, "- Read or write files (no file tools available)")
	assert.Contains(t, prompt, "- Execute shell commands (no exec tool available)")
	assert.Contains(t, prompt, "- Search the web or fetch web pages (no web tools available)")
	assert.Contains(t, prompt, "## Pre-loaded Skills\n\n### Skill: x\n\nbody")
	assert.Contains(t, prompt, "provide a clear summary of your findings or actions.")
}

func TestBuildPromptPartialCapabilities(t *testing.T) {
	caps := &Capabilities{Workspace: "/ws"}
	reg := caps.Assemble(&Profile{Name: "reader", Tools: []string{"read_file", "web_fetch"}})

	prompt := BuildPrompt(reg, "/ws", "/ws/skills", "", time.Now())
	assert.Contains(t, prompt, "- Read and write files in the workspace")
	assert.Contains(t, prompt, "- Search the web and fetch web pages")
	assert.Contains(t, prompt, "- Execute shell commands (no exec tool available)")
}
