package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sidekick/internal/llm"
)

// Tool is a named capability the model can invoke. Parameters returns a JSON
// schema object describing the arguments Execute accepts.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry is an ordered set of tools. Each subagent run and each main agent
// builds its own; registries are never shared between runs.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t, replacing any tool with the same name in place.
func (r *Registry) Register(t Tool) {
	schema, err := compileSchema(t)
	if err != nil {
		slog.Warn("tool schema does not compile, arguments will not be validated", "name", t.Name(), "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
	if schema != nil {
		r.schemas[t.Name()] = schema
	} else {
		delete(r.schemas, t.Name())
	}
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute runs the named tool. Every failure, including a panic inside the
// tool, comes back as an error string the model can read; Execute itself
// never fails.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	if schema != nil {
		if err := validateArgs(schema, args); err != nil {
			return fmt.Sprintf("Error: Invalid parameters for tool '%s': %v", name, err)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "name", name, "panic", p)
			result = fmt.Sprintf("Error executing %s: panic: %v", name, p)
		}
	}()

	out, err := withTrace(t).Execute(ctx, args)
	if err != nil {
		slog.Warn("tool execution failed", "name", name, "error", err)
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	return out
}

func compileSchema(t Tool) (*jsonschema.Schema, error) {
	params := t.Parameters()
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile("schema.json")
}

// validateArgs normalizes args through JSON so Go-typed values (ints,
// []string) validate the same way decoded model output does.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not JSON encodable: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}
