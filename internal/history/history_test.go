package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

func msg(role schema.Role, content string) schema.Message {
	return schema.Message{Role: role, Kind: schema.MessageText, Content: content}
}

func TestPrepareReturnsAsIsWithinBudget(t *testing.T) {
	h := []schema.Message{msg(schema.RoleUser, "hi"), msg(schema.RoleAssistant, "hello")}
	result, err := Prepare(context.Background(), nil, h, "", 1000, 20)
	if err != nil {
		t.Fatal(err)
	}
	if result.Truncated {
		t.Fatal("expected no truncation within budget")
	}
	if len(result.Messages) != len(h) {
		t.Fatalf("expected all messages preserved, got %d", len(result.Messages))
	}
}

func TestPrepareTruncatesWithoutSummarizingBelowThreshold(t *testing.T) {
	h := []schema.Message{
		msg(schema.RoleUser, strings.Repeat("x", 400)),
		msg(schema.RoleAssistant, strings.Repeat("y", 400)),
		msg(schema.RoleUser, "short"),
	}
	result, err := Prepare(context.Background(), nil, h, "", 50, 20)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Truncated {
		t.Fatal("expected truncation when over budget")
	}
	if result.Summary != "" {
		t.Fatal("expected no summary below the summarize threshold")
	}
	if len(result.Messages) == 0 || result.Messages[len(result.Messages)-1].Content != "short" {
		t.Fatalf("expected the newest message retained last, got %+v", result.Messages)
	}
}

func TestPrepareSummarizesAboveThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "a short summary"},
			"done":    true,
		})
	}))
	defer srv.Close()
	llm := llmclient.New(srv.URL, "text-model")

	var h []schema.Message
	for i := 0; i < 10; i++ {
		h = append(h, msg(schema.RoleUser, strings.Repeat("word ", 20)))
	}

	result, err := Prepare(context.Background(), llm, h, "", 200, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Truncated {
		t.Fatal("expected truncation/summarization above the threshold")
	}
	if result.Summary != "a short summary" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	if len(result.Messages) == 0 || result.Messages[0].Role != schema.RoleSystem {
		t.Fatalf("expected a leading system summary message, got %+v", result.Messages)
	}
	if !strings.HasPrefix(result.Messages[0].Content, "[Previous conversation summary: ") {
		t.Fatalf("unexpected summary message content: %q", result.Messages[0].Content)
	}
	wantKept := 6 / 2
	if len(result.Messages) != 1+wantKept {
		t.Fatalf("expected 1 summary message + %d recent messages, got %d total", wantKept, len(result.Messages))
	}
}

func TestEstimateTokensIsCharsOverFour(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Fatalf("expected 2 tokens for 8 chars, got %d", got)
	}
}

func TestFormatRAGContextEmptyResultsReturnsEmptyString(t *testing.T) {
	if got := FormatRAGContext(nil, 1500); got != "" {
		t.Fatalf("expected empty string for no results, got %q", got)
	}
}

func TestFormatRAGContextIncludesCitations(t *testing.T) {
	page := 3
	results := []RAGResult{
		{DocumentFilename: "report.pdf", PageNumber: &page, Content: "some content"},
	}
	out := FormatRAGContext(results, 1500)
	if !strings.Contains(out, "[report.pdf, p.3]") {
		t.Fatalf("expected a citation in the formatted context, got %q", out)
	}
	if !strings.Contains(out, "some content") {
		t.Fatalf("expected chunk content in the formatted context, got %q", out)
	}
}

func TestFormatRAGContextStopsAtTokenBudget(t *testing.T) {
	var results []RAGResult
	for i := 0; i < 50; i++ {
		results = append(results, RAGResult{DocumentFilename: "doc.pdf", Content: strings.Repeat("word ", 50)})
	}
	out := FormatRAGContext(results, 100)
	if EstimateTokens(out) > 150 {
		t.Fatalf("expected formatted context to respect the token budget roughly, got %d tokens", EstimateTokens(out))
	}
}
