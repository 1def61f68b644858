package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/testutil/mocktool"
)

func TestRegistryDispatchesToMockTool(t *testing.T) {
	tool := mocktool.New("lookup", mocktool.WithResult(SuccessResult("answer found")))
	registry := NewRegistry()
	registry.Register(tool)

	got, err := registry.Get("lookup")
	if err != nil {
		t.Fatal(err)
	}
	result, err := got.Execute(context.Background(), map[string]any{"query": "deadline"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Output != "answer found" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if tool.ExecuteCalls() != 1 {
		t.Fatalf("expected 1 execute call, got %d", tool.ExecuteCalls())
	}
	if tool.LastParams()["query"] != "deadline" {
		t.Fatalf("unexpected last params: %+v", tool.LastParams())
	}
}

func TestRegistryMockToolReturnsError(t *testing.T) {
	tool := mocktool.New("flaky", mocktool.WithError(errors.New("backend unavailable")))
	registry := NewRegistry()
	registry.Register(tool)

	got, _ := registry.Get("flaky")
	_, err := got.Execute(context.Background(), nil)
	if err == nil || err.Error() != "backend unavailable" {
		t.Fatalf("expected the configured error, got %v", err)
	}
}

func TestRegistryMockToolResetClearsCallHistory(t *testing.T) {
	tool := mocktool.New("lookup")
	registry := NewRegistry()
	registry.Register(tool)

	got, _ := registry.Get("lookup")
	got.Execute(context.Background(), map[string]any{"query": "x"})
	tool.Reset()

	if tool.ExecuteCalls() != 0 || tool.LastParams() != nil {
		t.Fatalf("expected Reset to clear call history, got calls=%d params=%+v", tool.ExecuteCalls(), tool.LastParams())
	}
}
