// Package mocktool provides a configurable mock implementing
// internal/agent's Tool interface, adapted from the teacher's
// testutil/mocktool.go (same Name/Execute/call-recording shape,
// WithResult/WithError/WithExecuteFunc options) onto this domain's
// Definition/Result types instead of schema.ToolResult.
package mocktool

import (
	"context"
	"sync"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/agent"
)

// Tool is a configurable mock satisfying agent.Tool. It records Execute
// calls and returns a preset Result, error, or a custom function's output.
type Tool struct {
	mu sync.Mutex

	name       string
	definition agent.Definition
	result     agent.Result
	err        error
	executeFn  func(ctx context.Context, params map[string]any) (agent.Result, error)

	executeCalls int
	lastParams   map[string]any
}

// Option configures a Tool.
type Option func(*Tool)

// New creates a Tool with the given name, applying any additional options.
// Its Definition defaults to a single required "query" string parameter.
func New(name string, opts ...Option) *Tool {
	m := &Tool{
		name: name,
		definition: agent.Definition{
			Name:        name,
			Description: "mock tool",
			Parameters:  []agent.Parameter{{Name: "query", Type: agent.ParamString, Required: true}},
		},
		result: agent.SuccessResult("mock result"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithDefinition overrides the tool's Definition.
func WithDefinition(def agent.Definition) Option {
	return func(m *Tool) { m.definition = def }
}

// WithResult configures the mock to return result from Execute.
func WithResult(result agent.Result) Option {
	return func(m *Tool) { m.result = result }
}

// WithError configures the mock to return err (a Go error, not a failed
// Result) from Execute.
func WithError(err error) Option {
	return func(m *Tool) { m.err = err }
}

// WithExecuteFunc sets a custom function to call on Execute, overriding
// the canned result/error.
func WithExecuteFunc(fn func(ctx context.Context, params map[string]any) (agent.Result, error)) Option {
	return func(m *Tool) { m.executeFn = fn }
}

func (m *Tool) Name() string { return m.name }

func (m *Tool) Definition() agent.Definition { return m.definition }

// Execute runs the tool, returning the configured result or error. It
// records the call and params for later inspection.
func (m *Tool) Execute(ctx context.Context, params map[string]any) (agent.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executeCalls++
	m.lastParams = params

	if m.executeFn != nil {
		return m.executeFn(ctx, params)
	}
	if m.err != nil {
		return agent.Result{}, m.err
	}
	return m.result, nil
}

// ExecuteCalls returns the number of times Execute has been called.
func (m *Tool) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executeCalls
}

// LastParams returns the params passed to the most recent Execute call.
func (m *Tool) LastParams() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastParams
}

// SetResult updates the canned result for subsequent calls.
func (m *Tool) SetResult(result agent.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	m.err = nil
}

// SetError updates the error for subsequent calls.
func (m *Tool) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Reset clears all recorded calls.
func (m *Tool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeCalls = 0
	m.lastParams = nil
}
