package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// Thought is one parsed step of the think-act loop: a reasoning string
// plus either an action to dispatch or a direct response.
type Thought struct {
	Thought     string
	Action      string
	ActionInput map[string]any
	Response    string
}

// ToolCall records one tool dispatch and its outcome, returned alongside
// the final Response for the caller to persist or inspect.
type ToolCall struct {
	Tool    string
	Input   map[string]any
	Output  string
	Success bool
}

// Response is the terminal outcome of a non-streaming Process call.
type Response struct {
	Text            string
	Thoughts        []Thought
	ToolCalls       []ToolCall
	Sources         []SourceRef
	Iterations      int
	ExecutionTimeMS float64
}

// EventKind names the SSE event types the streaming variant emits, per
// spec.md §4.J / §6.
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventThought  EventKind = "thought"
	EventToolStart EventKind = "tool_start"
	EventToolEnd  EventKind = "tool_end"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is one emission of the streaming variant.
type Event struct {
	Kind EventKind
	Data map[string]any
}

// Orchestrator runs the bounded think-act loop described in spec.md §4.J.
type Orchestrator struct {
	llm           *llmclient.Client
	registry      *Registry
	maxIterations int
	metrics       *obs.ComponentMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations overrides the default iteration cap (5).
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator over the given Text Model client and tool
// registry.
func New(llm *llmclient.Client, registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{llm: llm, registry: registry, maxIterations: 5}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) systemPrompt() string {
	defs := o.registry.Definitions()
	var b strings.Builder
	b.WriteString("You are a helpful assistant with access to the following tools:\n\n")
	for _, d := range defs {
		b.WriteString(fmt.Sprintf("- %s: %s\n", d.Name, d.Description))
		for _, p := range d.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			b.WriteString(fmt.Sprintf("    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description))
		}
	}
	b.WriteString(
		"\nRespond with a JSON object containing:\n" +
			`  "thought": your reasoning about what to do next` + "\n" +
			`  "action": the tool name to call, or "respond" to answer directly` + "\n" +
			`  "action_input": an object of parameters for the tool (omit when responding)` + "\n" +
			`  "response": your final answer to the user (only when action is "respond")` + "\n")
	return b.String()
}

// Process runs the think-act loop to completion and returns the final
// response, mirroring AgentOrchestrator.process_message.
func (o *Orchestrator) Process(ctx context.Context, userMessage string, history []llmclient.Message) (Response, error) {
	start := time.Now()
	systemPrompt := o.systemPrompt()
	messages := append(append([]llmclient.Message{}, history...), llmclient.Message{Role: llmclient.RoleUser, Content: userMessage})

	var thoughts []Thought
	var toolCalls []ToolCall
	var sources []SourceRef

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		replyText, err := o.llm.Chat(ctx, messages, systemPrompt)
		if err != nil {
			o.record(ctx, "process", start, err)
			return Response{}, err
		}

		thought := parseThought(replyText)
		thoughts = append(thoughts, thought)

		if thought.Action == "respond" || thought.Response != "" {
			final := thought.Response
			if final == "" {
				final = replyText
			}
			resp := Response{
				Text:            final,
				Thoughts:        thoughts,
				ToolCalls:       toolCalls,
				Sources:         sources,
				Iterations:      iteration + 1,
				ExecutionTimeMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			o.record(ctx, "process", start, nil)
			return resp, nil
		}

		result, dispatchErr := o.dispatch(ctx, thought)
		if dispatchErr != nil {
			o.record(ctx, "process", start, dispatchErr)
			return Response{}, dispatchErr
		}

		toolCalls = append(toolCalls, ToolCall{
			Tool: thought.Action, Input: thought.ActionInput,
			Output: toolOutputOrError(result), Success: result.Success,
		})
		if result.Success {
			sources = append(sources, result.Sources...)
		}

		messages = append(messages,
			llmclient.Message{Role: llmclient.RoleAssistant, Content: replyText},
			llmclient.Message{Role: llmclient.RoleUser, Content: toolFollowUpMessage(thought.Action, result)})
	}

	err := apperr.NewWithDetails("agent.Process", apperr.KindMaxIterationsExceeded,
		fmt.Sprintf("exceeded %d tool iterations", o.maxIterations), nil,
		map[string]any{"max_iterations": o.maxIterations})
	o.record(ctx, "process", start, err)
	return Response{}, err
}

// ProcessStream is the streaming variant of Process: identical control
// flow, but emits Event values as it progresses rather than returning only
// the terminal Response, per spec.md §4.J's streaming contract.
func (o *Orchestrator) ProcessStream(ctx context.Context, userMessage string, history []llmclient.Message) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		systemPrompt := o.systemPrompt()
		messages := append(append([]llmclient.Message{}, history...), llmclient.Message{Role: llmclient.RoleUser, Content: userMessage})
		var sources []SourceRef

		for iteration := 0; iteration < o.maxIterations; iteration++ {
			stream, err := o.llm.Stream(ctx, messages, systemPrompt)
			if err != nil {
				yield(Event{Kind: EventError, Data: map[string]any{"error": err.Error()}}, err)
				return
			}

			var replyText strings.Builder
			streamErr := error(nil)
			for token, tErr := range stream {
				if tErr != nil {
					streamErr = tErr
					break
				}
				replyText.WriteString(token)
				if !yield(Event{Kind: EventMessage, Data: map[string]any{"token": token, "iteration": iteration}}, nil) {
					return
				}
			}
			if streamErr != nil {
				yield(Event{Kind: EventError, Data: map[string]any{"error": streamErr.Error()}}, streamErr)
				return
			}

			thought := parseThought(replyText.String())
			if !yield(Event{Kind: EventThought, Data: map[string]any{"thought": thought.Thought, "action": thought.Action}}, nil) {
				return
			}

			if thought.Action == "respond" || thought.Response != "" {
				final := thought.Response
				if final == "" {
					final = replyText.String()
				}
				yield(Event{Kind: EventDone, Data: map[string]any{
					"response": final, "sources": sources, "iterations": iteration + 1,
					"execution_time_ms": float64(time.Since(start).Microseconds()) / 1000,
				}}, nil)
				return
			}

			yield(Event{Kind: EventToolStart, Data: map[string]any{"tool": thought.Action, "input": thought.ActionInput}}, nil)

			result, dispatchErr := o.dispatch(ctx, thought)
			if dispatchErr != nil {
				yield(Event{Kind: EventError, Data: map[string]any{"tool": thought.Action, "error": dispatchErr.Error()}}, dispatchErr)
				return
			}

			preview := result.Output
			if len(preview) > 200 {
				preview = preview[:200]
			}
			if !result.Success {
				preview = result.Error
			}
			yield(Event{Kind: EventToolEnd, Data: map[string]any{
				"tool": thought.Action, "success": result.Success, "result_preview": preview,
			}}, nil)

			if result.Success {
				sources = append(sources, result.Sources...)
			}

			messages = append(messages,
				llmclient.Message{Role: llmclient.RoleAssistant, Content: replyText.String()},
				llmclient.Message{Role: llmclient.RoleUser, Content: toolFollowUpMessage(thought.Action, result)})
		}

		err := apperr.NewWithDetails("agent.ProcessStream", apperr.KindMaxIterationsExceeded,
			fmt.Sprintf("exceeded %d tool iterations", o.maxIterations), nil,
			map[string]any{"max_iterations": o.maxIterations})
		yield(Event{Kind: EventError, Data: map[string]any{"error": err.Error()}}, err)
	}
}

// dispatch looks the named tool up in the registry and executes it. A
// missing tool is fatal to the turn (ToolNotFound propagates); an
// execution failure is not (ToolExecution becomes a Result with
// Success=false, fed back into the loop).
func (o *Orchestrator) dispatch(ctx context.Context, thought Thought) (Result, error) {
	tool, err := o.registry.Get(thought.Action)
	if err != nil {
		return Result{}, err
	}

	if err := ValidateRequired(tool.Definition(), thought.ActionInput); err != nil {
		return ErrorResult("%s", err), nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, thought.ActionInput)
	if err != nil {
		o.record(ctx, "tool."+thought.Action, start, err)
		return ErrorResult("tool %q failed: %v", thought.Action, err), nil
	}
	o.record(ctx, "tool."+thought.Action, start, nil)
	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, op string, start time.Time, err error) {
	o.metrics.RecordOp(ctx, op, start, err)
}

func toolOutputOrError(r Result) string {
	if r.Success {
		return r.Output
	}
	return r.Error
}

// toolFollowUpMessage builds the synthetic user message threaded back into
// the conversation after a tool dispatch, mirroring orchestrator.py's two
// shapes: a failure notice inviting a different approach, or a labeled
// result the model can cite from.
func toolFollowUpMessage(toolName string, r Result) string {
	if !r.Success {
		return fmt.Sprintf("Tool '%s' failed: %s. Please try a different approach or respond without the tool.", toolName, r.Error)
	}
	return fmt.Sprintf("Tool '%s' returned: %s", toolName, r.Output)
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// parseThought implements the reply-parsing fallback chain from spec.md
// §4.J step 3: fenced ```json block, then whole-reply JSON, then a direct
// response.
func parseThought(replyText string) Thought {
	if m := fencedJSONPattern.FindStringSubmatch(replyText); m != nil {
		if t, ok := decodeThought(m[1]); ok {
			return t
		}
	}
	if t, ok := decodeThought(replyText); ok {
		return t
	}
	return Thought{Thought: "Responding directly", Action: "respond", Response: replyText}
}

func decodeThought(raw string) (Thought, bool) {
	var payload struct {
		Thought     string         `json:"thought"`
		Action      string         `json:"action"`
		ActionInput map[string]any `json:"action_input"`
		Response    string         `json:"response"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return Thought{}, false
	}
	return Thought{
		Thought:     payload.Thought,
		Action:      payload.Action,
		ActionInput: payload.ActionInput,
		Response:    payload.Response,
	}, true
}
