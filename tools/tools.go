// Package tools defines the agent's capabilities: named, schema-described
// synchronous operations the model can request, and the registry that maps
// tool names to implementations.
package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/duneagent/dune/config"
)

// ErrNotFound is returned when the model requests a tool name that is not
// registered. It is surfaced to the model as a tool-result error so it can
// retry with a different tool.
var ErrNotFound = stderrors.New("tool not found")

// Schema is a JSON-schema-like description of a tool's parameters.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Descriptor identifies a tool to the model: a unique name, a description,
// and the parameter schema. Descriptors are immutable once registered.
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

// Tool is a single synchronous capability.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// Result is the JSON-serializable outcome of a tool invocation: either a
// tool-specific payload or an error message.
type Result struct {
	Payload map[string]interface{}
	Err     string
}

// IsError reports whether the result carries an error rather than a payload.
func (r Result) IsError() bool { return r.Err != "" }

// Body returns the wire shape of the result: the payload on success, or
// {"error": message} on failure.
func (r Result) Body() map[string]interface{} {
	if r.IsError() {
		return map[string]interface{}{"error": r.Err}
	}
	if r.Payload == nil {
		return map[string]interface{}{}
	}
	return r.Payload
}

// Errorf builds an error result.
func Errorf(format string, a ...interface{}) Result {
	return Result{Err: fmt.Sprintf(format, a...)}
}

// Registry holds all available tools, preserving registration order so the
// schema payload sent to the model is deterministic across runs.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry with every built-in tool registered, plus
// one tool per capability exported by the configured MCP servers.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	fs := &cfg.FilesystemAccess
	r.Register(&ReadFileTool{fsAccess: fs})
	r.Register(&ReadManyFilesTool{fsAccess: fs})
	r.Register(&LsTool{})
	r.Register(&GlobTool{})
	r.Register(&GrepTool{fsAccess: fs})
	r.Register(&EditTool{fsAccess: fs})
	r.Register(&WriteFileTool{fsAccess: fs})
	r.Register(&ShellTool{allowedCommands: cfg.AllowedCommands})
	r.Register(&WebSearchTool{})

	return r
}

// Register adds a tool under its descriptor name. Collisions are
// last-write-wins; a collision is flagged as a warning but is not an error.
func (r *Registry) Register(t Tool) {
	name := t.Descriptor().Name
	if _, exists := r.tools[name]; exists {
		fmt.Printf("Warning: tool '%s' registered more than once; the last registration wins.\n", name)
	} else {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns every registered descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

// Invoke looks up and runs a tool by name. Tool-internal errors, including
// argument-shape errors, are converted into an error result carrying the
// message rather than propagated; only the registry lookup itself can
// distinguish an unknown tool.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) Result {
	t, ok := r.tools[name]
	if !ok {
		return Errorf("%v: '%s' is not a registered tool", ErrNotFound, name)
	}
	payload, err := t.Execute(ctx, args)
	if err != nil {
		return Result{Err: err.Error()}
	}
	return Result{Payload: payload}
}

// ActiveDescriptors returns the descriptors selected by a toolset. A nil
// toolset places no restriction. Entries of the form "server.*" select every
// tool exported by that MCP server.
func (r *Registry) ActiveDescriptors(ts *config.Toolset) ([]Descriptor, error) {
	if ts == nil {
		return r.Descriptors(), nil
	}
	var out []Descriptor
	for _, entry := range ts.Tools {
		if strings.HasSuffix(entry, ".*") {
			prefix := strings.TrimSuffix(entry, "*")
			matched := false
			for _, name := range r.order {
				if strings.HasPrefix(name, prefix) {
					out = append(out, r.tools[name].Descriptor())
					matched = true
				}
			}
			if !matched {
				fmt.Printf("Warning: toolset '%s' entry '%s' matched no registered tools.\n", ts.Name, entry)
			}
			continue
		}
		t, ok := r.tools[entry]
		if !ok {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", entry, ts.Name)
		}
		out = append(out, t.Descriptor())
	}
	return out, nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks a command against the allowlist (with regex
// support). An empty allowlist places no restriction; the approval gate is
// the primary control for shell execution.
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if len(allowed) == 0 {
		return true, nil
	}
	if len(strings.Fields(command)) == 0 {
		return false, nil
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			fmt.Printf("Warning: Invalid regex in allowed_commands '%s': %v\n", pattern, err)
			// Fall back to simple string comparison if regex is invalid
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}

// Argument extraction helpers. Tool arguments arrive as an untyped JSON
// object; each tool validates its own expected shape and reports a usable
// message on mismatch.

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required '%s' argument", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid '%s' argument: expected a string, got %T", key, v)
	}
	return s, nil
}

func optionalStringArg(args map[string]interface{}, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid '%s' argument: expected a string, got %T", key, v)
	}
	return s, nil
}

func optionalIntArg(args map[string]interface{}, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64: // JSON numbers decode as float64
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("invalid '%s' argument: expected a number, got %T", key, v)
	}
}

func optionalBoolArg(args map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("invalid '%s' argument: expected a boolean, got %T", key, v)
	}
	return b, nil
}

func stringListArg(args map[string]interface{}, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required '%s' argument", key)
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid '%s' argument: expected an array of strings, got %T", key, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("invalid '%s' argument: element %d is %T, expected a string", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
