// Package tools provides the tool registry and dispatcher for agent runs.
//
// A Registry is an explicitly constructed, explicitly owned store of tool
// definitions and their executors. Build assembles one from provider tools
// and declarative config; Dispatch executes calls with full failure
// containment so a broken tool degrades one turn instead of aborting the
// run.
package tools

import (
	"context"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/reevelabs/reeve-agent/internal/genai"
)

// Handler executes a tool call. The returned value is placed under the
// "result" key of the function response; a returned error becomes an
// "error" payload instead. Handlers never abort a run.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool represents a callable tool: the declaration advertised to the
// model plus the executor that serves calls to it.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Handler     Handler        `json:"-"`
}

// Registry holds the effective tool set for a run. It is built once and
// read by the loop afterwards; runs are strictly sequential, so access
// is not synchronized.
type Registry struct {
	// ValidateArgs enables JSON Schema validation of call arguments
	// before dispatch, for tools whose declared schema compiles.
	// Invalid arguments then short-circuit to an error payload without
	// invoking the handler.
	ValidateArgs bool

	logger  *slog.Logger
	tools   map[string]*Tool
	order   []string
	schemas map[string]*jsonschema.Schema
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, replacing any existing tool with the same name.
// Entries without a name are silently skipped. A tool registered without
// a handler is bound to the built-in executor for its name here, so
// every registered tool is callable and dispatch never probes types.
func (r *Registry) Register(t *Tool) {
	if t == nil || t.Name == "" {
		return
	}
	if t.Handler == nil {
		t.Handler = builtinFor(t.Name)
	}
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t

	delete(r.schemas, t.Name)
	if len(t.Parameters) > 0 {
		s, err := compileSchema(t.Parameters)
		if err != nil {
			r.logger.Warn("tool schema does not compile", "tool", t.Name, "error", err)
		} else {
			r.schemas[t.Name] = s
		}
	}
}

// Unregister removes a tool by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.tools = make(map[string]*Tool)
	r.schemas = make(map[string]*jsonschema.Schema)
	r.order = nil
}

// Get retrieves a tool by name. Returns nil if not registered.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Declarations returns the function declarations to advertise to the
// model, in registration order. Parameters pass through as declared;
// the model client omits degenerate schemas on the wire.
func (r *Registry) Declarations() []genai.FunctionDeclaration {
	decls := make([]genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}
