package chunker

import (
	"strings"
	"testing"
)

func TestSplitWhitespaceOnlyReturnsNoChunks(t *testing.T) {
	chunks, err := Split(FixedSize, "   \n\t  \n")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace-only input, got %d", len(chunks))
	}
}

func TestSplitFixedSizeDenseIndices(t *testing.T) {
	text := strings.Repeat("This is a sentence. ", 200)
	chunks, err := Split(FixedSize, text, WithChunkSize(300), WithChunkOverlap(50))
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long input, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has ChunkIndex %d, want dense sequence", i, c.ChunkIndex)
		}
	}
}

func TestSplitFixedSizeIsDeterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma delta. ", 150)
	a, err := Split(FixedSize, text, WithChunkSize(250), WithChunkOverlap(40))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Split(FixedSize, text, WithChunkSize(250), WithChunkOverlap(40))
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Content != b[i].Content {
			t.Fatalf("chunk %d differs between identical runs", i)
		}
	}
}

func TestSplitFixedSizeNoLeadingOrTrailingWhitespace(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one too. " +
		"Fourth sentence. Fifth sentence. Sixth sentence to pad the window out nicely."
	chunks, err := Split(FixedSize, text, WithChunkSize(40), WithChunkOverlap(5))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if c.Content != strings.TrimSpace(c.Content) {
			t.Fatalf("chunk content must be trimmed, got %q", c.Content)
		}
	}
}

func TestSplitParagraphCombinesSmallParagraphs(t *testing.T) {
	text := "Para one.\n\nPara two.\n\nPara three."
	chunks, err := Split(Paragraph, text, WithChunkSize(1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected paragraphs under the size budget to combine into 1 chunk, got %d", len(chunks))
	}
}

func TestSplitParagraphSplitsOnSizeBudget(t *testing.T) {
	para := strings.Repeat("word ", 50)
	text := para + "\n\n" + para + "\n\n" + para
	chunks, err := Split(Paragraph, text, WithChunkSize(100))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks once paragraphs exceed the size budget, got %d", len(chunks))
	}
}

func TestSplitSemanticSplitsOnHeaders(t *testing.T) {
	text := "# Introduction\nSome intro text.\n\n# Methods\nSome methods text."
	chunks, err := Split(Semantic, text, WithChunkSize(1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 sections split on headers, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "# Introduction") {
		t.Fatalf("expected first section to start at its header, got %q", chunks[0].Content)
	}
}

func TestSplitSemanticSubChunksOversizedSections(t *testing.T) {
	big := strings.Repeat("This is a sentence. ", 100)
	text := "# Section\n" + big
	chunks, err := Split(Semantic, text, WithChunkSize(100))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized section to be sub-chunked, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("sub-chunked section must reindex densely, got index %d at position %d", c.ChunkIndex, i)
		}
	}
}

func TestSplitUnknownStrategy(t *testing.T) {
	if _, err := Split("not-a-strategy", "some text"); err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}
