package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/embedder"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/extractor"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

func TestHashBytesIsDeterministic(t *testing.T) {
	a := hashBytes([]byte("hello world"))
	b := hashBytes([]byte("hello world"))
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected a 64-char hex sha256, got %d chars", len(a))
	}
}

func TestChunkContentMergesVisualSection(t *testing.T) {
	p := New(nil, nil, nil)
	pages := []extractor.Page{
		{PageNumber: 1, Text: "Some page text."},
	}
	descriptions := map[int][]string{1: {"A photo of a cat."}}

	chunks, err := p.chunkContent(pages, descriptions)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if !strings.Contains(chunks[0].Content, visualContentHeader) {
		t.Fatalf("expected merged chunk to contain the visual content header, got %q", chunks[0].Content)
	}
	if !strings.Contains(chunks[0].Content, "A photo of a cat.") {
		t.Fatalf("expected merged chunk to contain the image description, got %q", chunks[0].Content)
	}
	if chunks[0].ContentKind != schema.ContentMerged {
		t.Fatalf("expected merged content kind, got %q", chunks[0].ContentKind)
	}
}

func TestChunkContentVisionOnlyPageGetsVisionKind(t *testing.T) {
	p := New(nil, nil, nil)
	pages := []extractor.Page{
		{PageNumber: 1, Text: ""},
	}
	descriptions := map[int][]string{1: {"A diagram with no page text."}}

	chunks, err := p.chunkContent(pages, descriptions)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].ContentKind != schema.ContentVision {
		t.Fatalf("expected vision content kind, got %q", chunks[0].ContentKind)
	}
}

func TestChunkContentSkipsEmptyPages(t *testing.T) {
	p := New(nil, nil, nil)
	pages := []extractor.Page{
		{PageNumber: 1, Text: "   "},
		{PageNumber: 2, Text: "Real content here."},
	}
	chunks, err := p.chunkContent(pages, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected the blank page to be skipped, got %d chunks", len(chunks))
	}
}

func TestChunkContentReindexesDensely(t *testing.T) {
	p := New(nil, nil, nil, WithChunkSize(20), WithChunkOverlap(5))
	pages := []extractor.Page{
		{PageNumber: 1, Text: strings.Repeat("First page text. ", 10)},
		{PageNumber: 2, Text: strings.Repeat("Second page text. ", 10)},
	}
	chunks, err := p.chunkContent(pages, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks across two pages, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d, want dense sequence", i, c.ChunkIndex)
		}
	}
}

func TestSummarizeSamplesFirstTenChunksOnly(t *testing.T) {
	var seenUser string
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []llmclient.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if m.Role == llmclient.RoleUser {
				seenUser = m.Content
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "a summary"},
			"done":    true,
		})
	}))
	defer llmSrv.Close()

	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2}}})
	}))
	defer embedSrv.Close()

	llm := llmclient.New(llmSrv.URL, "text-model")
	embed := embedder.New(embedSrv.URL, "embed-model")
	p := New(nil, embed, llm)

	chunks := make([]schema.Chunk, 15)
	for i := range chunks {
		chunks[i] = schema.Chunk{Content: chunkLabel(i)}
	}

	summary, embedding, err := p.summarize(context.Background(), chunks, "doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "a summary" {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if len(embedding) != 2 {
		t.Fatalf("unexpected embedding: %v", embedding)
	}
	if !strings.Contains(seenUser, chunkLabel(0)) || !strings.Contains(seenUser, chunkLabel(summaryChunkSample-1)) {
		t.Fatal("expected summarize prompt to include the first sampled chunks")
	}
	if strings.Contains(seenUser, chunkLabel(summaryChunkSample)) {
		t.Fatal("expected summarize prompt to exclude chunks beyond the sample size")
	}
}

func chunkLabel(i int) string {
	return "chunk-content-marker-" + strings.Repeat("x", i+1)
}

func TestDescribeImagesReturnsEmptyWithoutDescriber(t *testing.T) {
	p := New(nil, nil, nil)
	pages := []extractor.Page{
		{PageNumber: 1, Images: []extractor.Image{{Data: []byte{1, 2, 3}, Width: 100, Height: 100}}},
	}
	out, err := p.describeImages(context.Background(), pages, "doc-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no descriptions without a vision describer, got %v", out)
	}
}

func TestWrapStagePreservesAppErrKind(t *testing.T) {
	_, origErr := extractor.ExtractFromBytes([]byte("not a pdf"))
	if origErr == nil {
		t.Fatal("expected garbage bytes to fail extraction")
	}
	wrapped := wrapStage("processor.Process", "doc-1", origErr)
	if wrapped != origErr {
		t.Fatalf("expected an *apperr.Error to pass through unwrapped, got %v", wrapped)
	}
}
