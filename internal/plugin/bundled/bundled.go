// Package bundled holds plugins compiled into the binary. They are enabled by
// name from configuration and loaded through the same path as user plugins.
package bundled

import (
	"log/slog"
	"sort"

	"sidekick/internal/plugin"
)

var registry = map[string]func() plugin.Source{
	"dice":    Dice,
	"greet":   Greet,
	"notes":   Notes,
	"weather": Weather,
}

// Names lists every bundled plugin.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sources returns the sources for the named plugins. Unknown names are
// logged and skipped.
func Sources(names []string) []plugin.Source {
	var out []plugin.Source
	for _, name := range names {
		src, ok := registry[name]
		if !ok {
			slog.Warn("bundled plugin not found", "name", name, "available", Names())
			continue
		}
		out = append(out, src())
	}
	return out
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
