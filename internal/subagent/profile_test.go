package subagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/config"
)

func TestProfilesFromConfig(t *testing.T) {
	profiles := ProfilesFromConfig(map[string]*config.SubagentConfig{
		"research": {Model: "gpt-4.1", MaxIterations: 3, Tools: []string{"web_search"}, Skills: []string{"summarize"}},
		"broken":   nil,
	})

	require.Len(t, profiles, 1)
	p := profiles["research"]
	assert.Equal(t, "research", p.Name)
	assert.Equal(t, "gpt-4.1", p.Model)
	assert.Equal(t, 3, p.MaxIterations)
	assert.Equal(t, []string{"web_search"}, p.Tools)
	assert.Equal(t, []string{"summarize"}, p.Skills)
	assert.Equal(t, []string{"research"}, profileNames(profiles))
}
