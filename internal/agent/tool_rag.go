package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/embedder"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/retrieval"
)

// RAGSearchTool searches the document knowledge base via dense vector
// similarity, grounded on original_source agents/tools/rag.py.
type RAGSearchTool struct {
	retrieval *retrieval.Store
	embedder  *embedder.Client
}

// NewRAGSearchTool creates a rag_search tool over the given retrieval
// store and embedding client.
func NewRAGSearchTool(store *retrieval.Store, emb *embedder.Client) *RAGSearchTool {
	return &RAGSearchTool{retrieval: store, embedder: emb}
}

func (t *RAGSearchTool) Name() string { return "rag_search" }

func (t *RAGSearchTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Search through uploaded documents to find relevant information. " +
			"Use this tool when the user asks questions that might be answered by the " +
			"documents in the knowledge base. Returns the most relevant text passages " +
			"from the documents.",
		Parameters: []Parameter{
			{Name: "query", Type: ParamString, Description: "The search query to find relevant documents", Required: true},
			{Name: "top_k", Type: ParamNumber, Description: fmt.Sprintf("Number of results to return (1-%d)", retrieval.MaxTopK), Default: retrieval.DefaultTopK},
			{Name: "document_ids", Type: ParamArray, Description: "Optional list of document IDs to search within"},
		},
	}
}

func (t *RAGSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	if err := ValidateRequired(t.Definition(), params); err != nil {
		return ErrorResult("%s", err), nil
	}
	query, _ := params["query"].(string)

	topK := retrieval.DefaultTopK
	if v, ok := params["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	var documentIDs []string
	if raw, ok := params["document_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				documentIDs = append(documentIDs, s)
			}
		}
	}

	queryEmbedding, err := t.embedder.EmbedOne(ctx, query)
	if err != nil {
		return ErrorResult("search failed: %v", err), nil
	}

	results, err := t.retrieval.Dense(ctx, queryEmbedding, retrieval.Params{
		TopK: topK, DocumentIDs: documentIDs,
	})
	if err != nil {
		return ErrorResult("search failed: %v", err), nil
	}

	if len(results) == 0 {
		return SuccessResult("No relevant documents found for this query."), nil
	}

	var parts []string
	var sources []SourceRef
	for i, r := range results {
		label := fmt.Sprintf("Source %d: %s", i+1, r.DocumentFilename)
		if r.PageNumber != nil {
			label += fmt.Sprintf(", Page %d", *r.PageNumber)
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", label, r.Content))

		preview := r.Content
		if len(preview) > 100 {
			preview = preview[:100]
		}
		sources = append(sources, SourceRef{
			Index: i + 1, Document: r.DocumentFilename, Page: r.PageNumber,
			ChunkID: r.ChunkID, Similarity: float32(r.SimilarityScore), ContentPreview: preview,
		})
	}

	return SuccessResult(strings.Join(parts, "\n\n---\n\n"), sources...), nil
}
