package retrieval

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestDenseFiltersByMinSimilarityAndStopsAtTopK(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "original_filename", "content", "page_number", "chunk_index", "metadata", "distance"}).
		AddRow("c1", "d1", "a.pdf", "alpha", nil, 0, []byte(`{"k":"v"}`), 0.1).
		AddRow("c2", "d1", "a.pdf", "beta", nil, 1, []byte(`{}`), 0.9).
		AddRow("c3", "d1", "a.pdf", "gamma", nil, 2, []byte(`{}`), 0.2)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	out, err := s.Dense(context.Background(), []float32{0.1, 0.2}, Params{TopK: 2, MinSimilarity: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results (c2 filtered by min_similarity), got %d: %+v", len(out), out)
	}
	if out[0].ChunkID != "c1" || out[1].ChunkID != "c3" {
		t.Fatalf("unexpected chunk order: %+v", out)
	}
	if out[0].Metadata["k"] != "v" {
		t.Fatalf("expected decoded metadata, got %+v", out[0].Metadata)
	}
}

func TestDenseFiltersByDocumentIDs(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "original_filename", "content", "page_number", "chunk_index", "metadata", "distance"}).
		AddRow("c1", "d1", "a.pdf", "alpha", nil, 0, []byte(`{}`), 0.1)
	mock.ExpectQuery("SELECT").WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(rows)

	out, err := s.Dense(context.Background(), []float32{0.1}, Params{TopK: 5, DocumentIDs: []string{"d1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
}

func TestHybridRanksByCombinedScoreThenDistance(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "original_filename", "content", "page_number", "chunk_index", "metadata", "vector_score", "text_score"}).
		AddRow("a", "d1", "a.pdf", "alpha", nil, 0, []byte(`{}`), 0.9, 0.1).
		AddRow("b", "d1", "a.pdf", "beta", nil, 1, []byte(`{}`), 0.2, 0.9).
		AddRow("c", "d1", "a.pdf", "gamma", nil, 2, []byte(`{}`), 0.8, 0.2)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	out, err := s.Hybrid(context.Background(), "query text", []float32{0.1}, Params{TopK: 3, MinSimilarity: 0.3}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results (b filtered by min_similarity on vector score), got %d: %+v", len(out), out)
	}
	if out[0].ChunkID != "a" || out[1].ChunkID != "c" {
		t.Fatalf("expected a then c by combined score, got %+v", out)
	}
}

func TestHybridDefaultsWeightsWhenBothZero(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "original_filename", "content", "page_number", "chunk_index", "metadata", "vector_score", "text_score"}).
		AddRow("a", "d1", "a.pdf", "alpha", nil, 0, []byte(`{}`), 1.0, 0.0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	out, err := s.Hybrid(context.Background(), "q", []float32{0.1}, Params{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	want := DefaultVectorWeight*1.0 + DefaultTextWeight*0.0
	if out[0].SimilarityScore != want {
		t.Fatalf("expected default-weighted score %v, got %v", want, out[0].SimilarityScore)
	}
}

func TestDocumentsClampsTopKToMax(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "original_filename", "summary", "similarity"}).
		AddRow("d1", "a.pdf", "summary a", 0.5)
	mock.ExpectQuery("SELECT").WithArgs(sqlmock.AnyArg(), MaxTopK).WillReturnRows(rows)

	out, err := s.Documents(context.Background(), []float32{0.1}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].DocumentID != "d1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestDocumentByIDReturnsNilOnNoRows(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id", "original_filename", "status", "summary", "page_count"}))

	got, err := s.DocumentByID(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for no rows, got %+v", got)
	}
}

func TestDocumentByFilenameReturnsMeta(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"id", "original_filename", "status", "summary", "page_count"}).
		AddRow("d1", "a.pdf", "completed", "summary", 3)
	mock.ExpectQuery("SELECT").WithArgs("a.pdf").WillReturnRows(rows)

	got, err := s.DocumentByFilename(context.Background(), "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "d1" || got.PageCount != 3 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestChunksForDocumentFiltersByPageNumbers(t *testing.T) {
	s, mock := newTestStore(t)
	page1 := 1
	rows := sqlmock.NewRows([]string{"content", "page_number"}).AddRow("page one text", &page1)
	mock.ExpectQuery("SELECT").WithArgs("d1", sqlmock.AnyArg()).WillReturnRows(rows)

	out, err := s.ChunksForDocument(context.Background(), "d1", []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Content != "page one text" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestChunksForDocumentWithoutPageFilter(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"content", "page_number"}).AddRow("all content", nil)
	mock.ExpectQuery("SELECT").WithArgs("d1").WillReturnRows(rows)

	out, err := s.ChunksForDocument(context.Background(), "d1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
}
