// Package agent implements the bounded think-act loop that decides, per
// chat turn, whether to answer directly or dispatch a tool (document
// search, web search, full-document read) and thread its result back into
// the conversation with the Text Model. Grounded on original_source
// agents/orchestrator.py and agents/tools/{base,rag,web_search,file_reader,
// registry}.py for control flow and tool semantics, restructured into the
// teacher's agent/react.go + agent/executor.go idiom (a Plan/Act loop
// driven by functional-options configuration) and pkg/agents/tools/
// tool_registry.go for the registry shape.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
)

// ParameterType names the JSON-ish type of a ToolParameter, matching the
// vocabulary the system prompt describes to the model.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamArray   ParameterType = "array"
	ParamObject  ParameterType = "object"
)

// Parameter describes one named input a Tool accepts.
type Parameter struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool
	Default     any
}

// Definition is a Tool's name, description, and parameter list, as
// rendered into the system prompt that tells the model what it can call.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Result is what a Tool.Execute call reports back to the orchestrator.
// Sources, when present, are threaded into the assistant message's
// citation list; the orchestrator never fails the turn over a tool's
// outcome: a Result with Success=false and a Go error returned by Execute
// are both fed back into the loop. Only a missing tool (ToolNotFound from
// the Registry) ends the turn.
type Result struct {
	Success bool
	Output  string
	Error   string
	Sources []SourceRef
}

// SourceRef is a tool's normalized citation, independent of schema.Source
// so this package doesn't need to reach into internal/schema for a
// formatting concern. The orchestrator returns these as-is in
// Response.Sources and the done event; it does not convert them to
// schema.Source values.
type SourceRef struct {
	Index          int
	Document       string
	Page           *int
	ChunkID        string
	Similarity     float32
	URL            string
	ContentPreview string
}

// Tool is a named, parameterized capability the agent may invoke.
type Tool interface {
	Name() string
	Definition() Definition
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

// SuccessResult builds a successful Result, mirroring ToolResult.success_result.
func SuccessResult(output string, sources ...SourceRef) Result {
	return Result{Success: true, Output: output, Sources: sources}
}

// ErrorResult builds a failed Result, mirroring ToolResult.error_result. A
// failed Result is not a Go error: the orchestrator feeds Error back into
// the conversation and keeps looping.
func ErrorResult(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ValidateRequired checks that every required parameter named in def is
// present in params, mirroring BaseTool.validate_params.
func ValidateRequired(def Definition, params map[string]any) error {
	for _, p := range def.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			return fmt.Errorf("missing required parameter: %s", p.Name)
		}
	}
	return nil
}

// Registry is a name->tool mapping, process-wide and read-mostly after
// startup per spec.md's concurrency discipline.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger attaches a logger, following obs's WithLogger(*slog.Logger)
// convention. Registries created without one fall back to slog.Default().
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]Tool), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Re-registering a name overwrites the previous
// tool and logs a warning, per spec.md: "Duplicate registration is
// allowed but logs a warning and overwrites."
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	} else {
		r.logger.Warn("tool registered under an existing name, overwriting", "tool", tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name, returning ToolNotFound (with the list of
// known names in Details) if absent.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, apperr.NewWithDetails("agent.Registry.Get", apperr.KindToolNotFound,
			fmt.Sprintf("tool %q not registered", name), nil,
			map[string]any{"known_tools": strings.Join(r.order, ", ")})
	}
	return tool, nil
}

// Definitions returns the Definition of every registered tool, in
// registration order, for the system-prompt builder.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}
