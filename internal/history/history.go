// Package history prepares conversation history for an LLM context
// window: estimate token usage, summarize older turns when the
// conversation has grown long, or else truncate from the oldest message
// forward. Grounded line-for-line on original_source
// services/history.py's HistoryManager.prepare_context (the chars/4
// token estimate, the three branches, the SUMMARIZE_THRESHOLD/2 keep
// count, the "[Previous conversation summary: ...]" prefix),
// restructured into the teacher's memory/summary_buffer.go idiom: an
// explicit struct-returning function with no hidden state, rather than a
// stateful manager object carrying a moving summary buffer.
package history

import (
	"context"
	"fmt"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

// EstimateTokens is the chars/4 rough estimate used throughout this
// package, verbatim from history.py's estimate_tokens.
func EstimateTokens(text string) int {
	return len(text) / 4
}

func estimateHistoryTokens(h []schema.Message) int {
	total := 0
	for _, m := range h {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Result is the outcome of Prepare: the history to send to the model,
// whether it was truncated or summarized, and the summary text when one
// was generated.
type Result struct {
	Messages  []schema.Message
	Truncated bool
	Summary   string
}

// Prepare implements spec.md §4.I's three-branch contract:
//  1. If tokens(history)+tokens(systemContext) <= maxTokens, return as-is.
//  2. Else if len(history) > summarizeThreshold, keep the last
//     summarizeThreshold/2 messages verbatim, summarize the rest via llm,
//     prepend a "[Previous conversation summary: ...]" system message,
//     and truncate further (step 3) if still over budget.
//  3. Else, walk history from newest backward, accumulating messages
//     while within budget, and return oldest-first.
func Prepare(ctx context.Context, llm *llmclient.Client, h []schema.Message, systemContext string, maxTokens, summarizeThreshold int) (Result, error) {
	total := estimateHistoryTokens(h)
	if systemContext != "" {
		total += EstimateTokens(systemContext)
	}
	if total <= maxTokens {
		return Result{Messages: h}, nil
	}

	if len(h) > summarizeThreshold {
		return summarizeAndTruncate(ctx, llm, h, systemContext, maxTokens, summarizeThreshold)
	}

	return Result{Messages: truncate(h, systemContext, maxTokens), Truncated: true}, nil
}

func summarizeAndTruncate(ctx context.Context, llm *llmclient.Client, h []schema.Message, systemContext string, maxTokens, summarizeThreshold int) (Result, error) {
	keepCount := summarizeThreshold / 2
	if keepCount > len(h) {
		keepCount = len(h)
	}
	old := h[:len(h)-keepCount]
	recent := h[len(h)-keepCount:]

	var llmMessages []llmclient.Message
	for _, m := range old {
		llmMessages = append(llmMessages, llmclient.Message{Role: string(m.Role), Content: m.Content})
	}
	summary, err := llm.SummarizeConversation(ctx, llmMessages)
	if err != nil {
		return Result{}, err
	}

	summaryMessage := schema.Message{
		Role:    schema.RoleSystem,
		Kind:    schema.MessageText,
		Content: fmt.Sprintf("[Previous conversation summary: %s]", summary),
	}
	newHistory := append([]schema.Message{summaryMessage}, recent...)

	total := estimateHistoryTokens(newHistory)
	if systemContext != "" {
		total += EstimateTokens(systemContext)
	}
	if total > maxTokens {
		newHistory = truncate(newHistory, systemContext, maxTokens)
	}

	return Result{Messages: newHistory, Truncated: true, Summary: summary}, nil
}

// truncate walks h from newest backward, accumulating messages while
// within budget, and returns the kept messages oldest-first.
func truncate(h []schema.Message, systemContext string, maxTokens int) []schema.Message {
	systemTokens := 0
	if systemContext != "" {
		systemTokens = EstimateTokens(systemContext)
	}
	available := maxTokens - systemTokens

	var kept []schema.Message
	current := 0
	for i := len(h) - 1; i >= 0; i-- {
		msgTokens := EstimateTokens(h[i].Content)
		if current+msgTokens > available {
			break
		}
		kept = append([]schema.Message{h[i]}, kept...)
		current += msgTokens
	}
	return kept
}

// FormatRAGContext renders retrieval results as a citation-annotated
// context block, grounded on history.py's format_rag_context. Chunks are
// added in order until max_tokens would be exceeded.
func FormatRAGContext(results []RAGResult, maxTokens int) string {
	if len(results) == 0 {
		return ""
	}
	if maxTokens <= 0 {
		maxTokens = 1500
	}

	header := "Relevant information from documents:\n"
	var b []byte
	b = append(b, header...)
	current := EstimateTokens(header)

	for i, r := range results {
		citation := "[" + r.DocumentFilename
		if r.PageNumber != nil {
			citation += fmt.Sprintf(", p.%d", *r.PageNumber)
		}
		citation += "]"
		chunk := fmt.Sprintf("\n%d. %s\n%s\n", i+1, citation, r.Content)
		chunkTokens := EstimateTokens(chunk)
		if current+chunkTokens > maxTokens {
			break
		}
		b = append(b, chunk...)
		current += chunkTokens
	}
	return string(b)
}

// RAGResult is the minimal shape FormatRAGContext needs from a retrieval
// hit, kept separate from retrieval.Result so this package doesn't import
// internal/retrieval for a handful of fields.
type RAGResult struct {
	DocumentFilename string
	PageNumber       *int
	Content          string
}
