package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sidekick/internal/agent"
)

type LoaderOption func(*Loader)

// WithDir enables discovery of command plugins in dir.
func WithDir(dir string, describeTimeout time.Duration) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
		l.describeTimeout = describeTimeout
	}
}

func WithSources(srcs ...Source) LoaderOption {
	return func(l *Loader) { l.sources = append(l.sources, srcs...) }
}

// Loader discovers plugin tools once and hands them out to any number of
// registries.
type Loader struct {
	pctx            *Context
	dir             string
	describeTimeout time.Duration
	sources         []Source

	mu     sync.Mutex
	loaded bool
	tools  map[string]agent.Tool
}

func NewLoader(pctx *Context, opts ...LoaderOption) *Loader {
	l := &Loader{pctx: pctx}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the discovered tools keyed by name. Discovery runs on the first
// call only; later calls return the cached result.
func (l *Loader) Load() map[string]agent.Tool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		l.tools = l.discover()
		l.loaded = true
	}

	out := make(map[string]agent.Tool, len(l.tools))
	for name, t := range l.tools {
		out[name] = t
	}
	return out
}

// Names returns the sorted names of the discovered tools.
func (l *Loader) Names() []string {
	tools := l.Load()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterInto adds every discovered tool whose name r does not already hold.
// Tools already in r win. It returns the names it registered.
func (l *Loader) RegisterInto(r *agent.Registry) []string {
	return l.RegisterSelected(r, nil)
}

// RegisterSelected is RegisterInto restricted to allow when allow is non-nil.
func (l *Loader) RegisterSelected(r *agent.Registry, allow map[string]bool) []string {
	tools := l.Load()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var added []string
	for _, name := range names {
		if allow != nil && !allow[name] {
			continue
		}
		if r.Has(name) {
			slog.Debug("plugin: name taken by built-in, skipping", "name", name)
			continue
		}
		r.Register(tools[name])
		added = append(added, name)
		slog.Debug("plugin: registered tool", "name", name)
	}
	return added
}

func (l *Loader) discover() map[string]agent.Tool {
	sources := append([]Source(nil), l.sources...)
	if l.dir != "" {
		found, err := DiscoverDir(l.dir, l.describeTimeout)
		if err != nil {
			slog.Warn("plugin: cannot scan tools directory", "dir", l.dir, "error", err)
		}
		sources = append(sources, found...)
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })

	tools := make(map[string]agent.Tool)
	for _, src := range sources {
		ctors, err := constructors(src)
		if err != nil {
			slog.Warn("plugin: failed to load source", "source", src.Name(), "error", err)
			continue
		}
		for _, c := range ctors {
			t, name, err := build(c, l.pctx)
			if err != nil {
				slog.Warn("plugin: failed to construct tool", "source", src.Name(), "constructor", c.Name, "error", err)
				continue
			}
			if _, dup := tools[name]; dup {
				slog.Debug("plugin: duplicate tool name, keeping first", "name", name, "source", src.Name())
				continue
			}
			tools[name] = t
		}
	}

	if len(tools) > 0 {
		slog.Info("plugin: tools loaded", "count", len(tools))
	}
	return tools
}

func constructors(src Source) (ctors []Constructor, err error) {
	defer func() {
		if p := recover(); p != nil {
			ctors, err = nil, fmt.Errorf("source panicked: %v", p)
		}
	}()
	return src.Constructors()
}
