package subagent

import (
	"sort"

	"sidekick/internal/config"
)

// Profile is a named subagent configuration. Empty fields fall back to the
// manager's defaults; an empty Tools list means the default tool set.
type Profile struct {
	Name          string
	Model         string
	MaxIterations int
	Tools         []string
	Skills        []string
}

// ProfilesFromConfig converts the [subagents.*] tables.
func ProfilesFromConfig(cfg map[string]*config.SubagentConfig) map[string]*Profile {
	out := make(map[string]*Profile, len(cfg))
	for name, c := range cfg {
		if c == nil {
			continue
		}
		out[name] = &Profile{
			Name:          name,
			Model:         c.Model,
			MaxIterations: c.MaxIterations,
			Tools:         append([]string(nil), c.Tools...),
			Skills:        append([]string(nil), c.Skills...),
		}
	}
	return out
}

func profileNames(profiles map[string]*Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
