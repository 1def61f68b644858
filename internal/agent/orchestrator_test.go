package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
)

func TestParseThoughtFromFencedJSON(t *testing.T) {
	reply := "Let me think.\n```json\n{\"thought\": \"checking docs\", \"action\": \"rag_search\", \"action_input\": {\"query\": \"deadline\"}}\n```\n"
	thought := parseThought(reply)
	if thought.Action != "rag_search" || thought.ActionInput["query"] != "deadline" {
		t.Fatalf("unexpected thought: %+v", thought)
	}
}

func TestParseThoughtFromWholeReplyJSON(t *testing.T) {
	reply := `{"thought": "answering", "action": "respond", "response": "The answer is 42."}`
	thought := parseThought(reply)
	if thought.Action != "respond" || thought.Response != "The answer is 42." {
		t.Fatalf("unexpected thought: %+v", thought)
	}
}

func TestParseThoughtFallsBackToDirectResponse(t *testing.T) {
	reply := "The answer is just plain text, not JSON at all."
	thought := parseThought(reply)
	if thought.Action != "respond" || thought.Response != reply {
		t.Fatalf("unexpected thought: %+v", thought)
	}
}

// stubTool lets tests control a dispatched tool's outcome without a real backend.
type stubTool struct {
	name   string
	result Result
	err    error
	calls  int
}

func (s *stubTool) Name() string { return s.name }
func (s *stubTool) Definition() Definition {
	return Definition{Name: s.name, Description: "stub", Parameters: []Parameter{{Name: "query", Type: ParamString, Required: true}}}
}
func (s *stubTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	s.calls++
	return s.result, s.err
}

func newChatServer(t *testing.T, replies []string) *httptest.Server {
	t.Helper()
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := replies[i]
		if i < len(replies)-1 {
			i++
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
}

func TestProcessRespondsDirectlyOnFirstIteration(t *testing.T) {
	srv := newChatServer(t, []string{`{"thought": "answering", "action": "respond", "response": "Hello there."}`})
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	o := New(llm, NewRegistry())
	resp, err := o.Process(context.Background(), "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Hello there." || resp.Iterations != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestProcessDispatchesToolThenResponds(t *testing.T) {
	srv := newChatServer(t, []string{
		`{"thought": "need docs", "action": "lookup", "action_input": {"query": "deadline"}}`,
		`{"thought": "done", "action": "respond", "response": "The deadline is Dec 15."}`,
	})
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	reg := NewRegistry()
	page := 3
	tool := &stubTool{name: "lookup", result: SuccessResult("found it", SourceRef{Index: 1, Document: "plan.pdf", Page: &page})}
	reg.Register(tool)

	o := New(llm, reg)
	resp, err := o.Process(context.Background(), "when is the deadline?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 1 {
		t.Fatalf("expected the tool to be dispatched once, got %d", tool.calls)
	}
	if resp.Text != "The deadline is Dec 15." || resp.Iterations != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Document != "plan.pdf" {
		t.Fatalf("expected the tool's sources to be threaded through, got %+v", resp.Sources)
	}
}

func TestProcessToolFailureIsNotFatalToTheTurn(t *testing.T) {
	srv := newChatServer(t, []string{
		`{"thought": "try lookup", "action": "lookup", "action_input": {"query": "x"}}`,
		`{"thought": "fallback", "action": "respond", "response": "I could not find that."}`,
	})
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	reg := NewRegistry()
	tool := &stubTool{name: "lookup", result: ErrorResult("backend unavailable")}
	reg.Register(tool)

	o := New(llm, reg)
	resp, err := o.Process(context.Background(), "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "I could not find that." {
		t.Fatalf("expected the orchestrator to recover and respond, got %+v", resp)
	}
}

func TestProcessMissingToolPropagatesToolNotFound(t *testing.T) {
	srv := newChatServer(t, []string{`{"thought": "try", "action": "does_not_exist", "action_input": {}}`})
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	o := New(llm, NewRegistry())
	_, err := o.Process(context.Background(), "anything", nil)
	if !apperr.Is(err, apperr.KindToolNotFound) {
		t.Fatalf("expected KindToolNotFound, got %v", err)
	}
}

func TestProcessMaxIterationsExceeded(t *testing.T) {
	srv := newChatServer(t, []string{`{"thought": "loop", "action": "lookup", "action_input": {"query": "x"}}`})
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	reg := NewRegistry()
	reg.Register(&stubTool{name: "lookup", result: SuccessResult("ok")})

	o := New(llm, reg, WithMaxIterations(2))
	_, err := o.Process(context.Background(), "anything", nil)
	if !apperr.Is(err, apperr.KindMaxIterationsExceeded) {
		t.Fatalf("expected KindMaxIterationsExceeded, got %v", err)
	}
}
