package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/retrieval"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

// FileReaderTool returns the full concatenated content of an uploaded
// document, grounded on original_source agents/tools/file_reader.py.
type FileReaderTool struct {
	retrieval *retrieval.Store
}

// NewFileReaderTool creates a file_reader tool over the given retrieval
// store (which also owns the read-only document/chunk lookups this tool
// needs).
func NewFileReaderTool(store *retrieval.Store) *FileReaderTool {
	return &FileReaderTool{retrieval: store}
}

func (t *FileReaderTool) Name() string { return "file_reader" }

func (t *FileReaderTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Read the full content of an uploaded document. Use this when you need " +
			"to see the complete text of a specific document rather than just searching for " +
			"relevant passages. Provide either the document ID or filename.",
		Parameters: []Parameter{
			{Name: "document_id", Type: ParamString, Description: "The ID of the document to read"},
			{Name: "filename", Type: ParamString, Description: "The filename of the document to read"},
			{Name: "page_numbers", Type: ParamArray, Description: "Optional list of specific page numbers to read"},
		},
	}
}

func (t *FileReaderTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	documentID, _ := params["document_id"].(string)
	filename, _ := params["filename"].(string)

	if documentID == "" && filename == "" {
		return ErrorResult("must provide either 'document_id' or 'filename'"), nil
	}

	var pageNumbers []int
	if raw, ok := params["page_numbers"].([]any); ok {
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				pageNumbers = append(pageNumbers, int(f))
			}
		}
	}

	doc, err := t.findDocument(ctx, documentID, filename)
	if err != nil {
		return ErrorResult("failed to read file: %v", err), nil
	}
	if doc == nil {
		id := documentID
		if id == "" {
			id = filename
		}
		return ErrorResult("document not found: %s", id), nil
	}
	if doc.Status != string(schema.DocumentCompleted) {
		return ErrorResult("document is not ready (status: %s)", doc.Status), nil
	}

	content, err := t.documentContent(ctx, doc, pageNumbers)
	if err != nil {
		return ErrorResult("failed to read file: %v", err), nil
	}

	return SuccessResult(content), nil
}

func (t *FileReaderTool) findDocument(ctx context.Context, documentID, filename string) (*retrieval.DocumentMeta, error) {
	if documentID != "" {
		return t.retrieval.DocumentByID(ctx, documentID)
	}
	return t.retrieval.DocumentByFilename(ctx, filename)
}

// documentContent concatenates a document's chunks in index order,
// inserting a "--- Page N ---" marker whenever the page number changes,
// mirroring file_reader.py's _get_document_content.
func (t *FileReaderTool) documentContent(ctx context.Context, doc *retrieval.DocumentMeta, pageNumbers []int) (string, error) {
	chunks, err := t.retrieval.ChunksForDocument(ctx, doc.ID, pageNumbers)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		if doc.Summary != "" {
			return doc.Summary, nil
		}
		return "No content available.", nil
	}

	var b strings.Builder
	var currentPage *int
	for i, c := range chunks {
		if c.PageNumber != nil && (currentPage == nil || *c.PageNumber != *currentPage) {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(fmt.Sprintf("--- Page %d ---\n", *c.PageNumber))
			currentPage = c.PageNumber
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.Content)
	}
	return b.String(), nil
}
