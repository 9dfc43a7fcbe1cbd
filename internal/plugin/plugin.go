// Package plugin discovers user-supplied tools and merges them into a tool
// registry.
//
// Tools come from Sources. A source yields constructors; each constructor is
// built in isolation, so one broken plugin never prevents the others from
// loading. Sources are processed in lexicographic order of their names and the
// first tool to claim a name keeps it.
package plugin

import (
	"errors"
	"fmt"
	"time"

	"sidekick/internal/agent"
)

// ErrContextUnsupported is returned by a WithContext constructor that cannot
// take a Context. The loader then falls back to the plain constructor.
var ErrContextUnsupported = errors.New("plugin does not accept a context")

// Context is the immutable environment handed to plugin constructors.
type Context struct {
	Workspace           string
	AllowedDir          string
	WorkingDir          string
	ExecTimeout         time.Duration
	RestrictToWorkspace bool
	BraveAPIKey         string
}

// Constructor builds one tool. WithContext is preferred when set.
type Constructor struct {
	Name        string
	WithContext func(*Context) (agent.Tool, error)
	Plain       func() (agent.Tool, error)
}

type Source interface {
	Name() string
	Constructors() ([]Constructor, error)
}

type staticSource struct {
	name  string
	ctors []Constructor
}

// Static returns a source with a fixed constructor list.
func Static(name string, ctors ...Constructor) Source {
	return &staticSource{name: name, ctors: ctors}
}

func (s *staticSource) Name() string                         { return s.name }
func (s *staticSource) Constructors() ([]Constructor, error) { return s.ctors, nil }

// build constructs the tool and resolves its name. Panics from the
// constructor or from Name are turned into errors.
func build(c Constructor, pctx *Context) (t agent.Tool, name string, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, name, err = nil, "", fmt.Errorf("constructor panicked: %v", p)
		}
	}()

	t, err = construct(c, pctx)
	if err != nil {
		return nil, "", err
	}
	if t == nil {
		return nil, "", errors.New("constructor returned nil tool")
	}
	name = t.Name()
	if name == "" {
		return nil, "", errors.New("tool has an empty name")
	}
	return t, name, nil
}

func construct(c Constructor, pctx *Context) (agent.Tool, error) {
	if c.WithContext != nil {
		t, err := c.WithContext(pctx)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrContextUnsupported) {
			return nil, err
		}
		if c.Plain == nil {
			return nil, err
		}
	}
	if c.Plain != nil {
		return c.Plain()
	}
	return nil, errors.New("no constructor")
}
