package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"larkgate/internal/proxy"
)

// ErrUnknownTool is returned by Call for a name that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Arg describes one tool argument.
type Arg struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	Default     any
	// Schema, when set, replaces the generated property schema.
	Schema map[string]any
}

// Handler runs a tool with already validated arguments.
type Handler func(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error)

// Tool is a named upstream operation.
type Tool struct {
	Name        string
	Description string
	Args        []Arg
	Handler     Handler
}

// InputSchema renders the tool's arguments as a JSON Schema object.
func (t Tool) InputSchema() map[string]any {
	properties := make(map[string]any, len(t.Args))
	required := []string{}

	for _, arg := range t.Args {
		prop := make(map[string]any)
		for k, v := range arg.Schema {
			prop[k] = v
		}
		if _, ok := prop["type"]; !ok && arg.Type != "" {
			prop["type"] = arg.Type
		}
		if arg.Description != "" {
			prop["description"] = arg.Description
		}
		if len(arg.Enum) > 0 {
			prop["enum"] = arg.Enum
		}
		if arg.Default != nil {
			prop["default"] = arg.Default
		}
		properties[arg.Name] = prop

		if arg.Required {
			required = append(required, arg.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// validate checks required arguments are present.
func (t Tool) validate(args map[string]any) error {
	for _, arg := range t.Args {
		if !arg.Required {
			continue
		}
		v, ok := args[arg.Name]
		if !ok || v == nil {
			return &proxy.RequestError{Field: arg.Name, Message: "is required"}
		}
		if s, isString := v.(string); isString && s == "" {
			return &proxy.RequestError{Field: arg.Name, Message: "must not be empty"}
		}
	}
	return nil
}

// Registry is an immutable, name-ordered set of tools.
type Registry struct {
	byName map[string]Tool
	sorted []Tool
}

// NewRegistry builds a registry. Duplicate names are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("tool %q is incomplete", t.Name)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		r.byName[t.Name] = t
		r.sorted = append(r.sorted, t)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].Name < r.sorted[j].Name })
	return r, nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every tool ordered by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Len is the number of registered tools.
func (r *Registry) Len() int {
	return len(r.sorted)
}

// Call validates args and runs the named tool.
func (r *Registry) Call(ctx context.Context, tc *Context, name string, args map[string]any) (*proxy.Envelope, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := t.validate(args); err != nil {
		return nil, err
	}
	return t.Handler(ctx, tc, args)
}
