// Package retrieval implements dense, hybrid, and document-level search
// over Postgres+pgvector. Grounded on the teacher's
// pkg/vectorstores/pgvector/pgvector_store.go for connection handling
// (database/sql + github.com/lib/pq, no ORM) and on original_source
// services/search/vector.py for the exact SQL: the `<=>` cosine-distance
// operator, the `1 - distance >= min_similarity` filter applied in Go
// rather than in the WHERE clause (so ORDER BY distance LIMIT keeps using
// the vector index), and the `vector_score*w1 + text_score*w2` hybrid
// formula.
package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// Defaults and limits, verbatim from spec.md §4.G.
const (
	DefaultTopK         = 10
	MaxTopK             = 20
	DefaultMinSimilarity = 0.3
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// Result is one chunk-level search hit.
type Result struct {
	ChunkID          string
	DocumentID       string
	DocumentFilename string
	Content          string
	PageNumber       *int
	ChunkIndex       int
	SimilarityScore  float64
	Metadata         map[string]string
}

// DocumentResult is one document-level search hit.
type DocumentResult struct {
	DocumentID string
	Filename   string
	Summary    string
	Similarity float64
}

// Store runs similarity queries against the chunks/documents tables.
type Store struct {
	db      *sql.DB
	metrics *obs.ComponentMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over an already-opened pool. The pool's lifecycle
// (Open/Ping/Close) is the caller's responsibility, matching the
// teacher's NewPgVectorStore taking a pre-validated connection.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params bounds a search request; a TopK at or below zero becomes
// DefaultTopK, a TopK above MaxTopK is clamped to MaxTopK, and a
// MinSimilarity at or below zero becomes DefaultMinSimilarity.
type Params struct {
	TopK          int
	MinSimilarity float64
	DocumentIDs   []string
}

func (p Params) normalized() Params {
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.TopK > MaxTopK {
		p.TopK = MaxTopK
	}
	if p.MinSimilarity <= 0 {
		p.MinSimilarity = DefaultMinSimilarity
	}
	return p
}

func embeddingLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

const denseSearchQuery = `
SELECT
	c.id, c.document_id, d.original_filename, c.content, c.page_number,
	c.chunk_index, c.metadata, c.embedding <=> $1 AS distance
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE
	c.embedding IS NOT NULL
	AND d.deleted = false
	AND d.status = 'completed'
	%s
ORDER BY distance ASC, c.chunk_index ASC
LIMIT $2
`

// Dense runs a cosine-distance nearest-neighbor search, grounded on
// vector.py's VectorSearchService.search. The min_similarity floor is
// applied after the query returns (so the ORDER BY distance LIMIT plan
// stays index-friendly), matching spec.md's Open Question resolution in
// favor of the result-filter form.
func (s *Store) Dense(ctx context.Context, queryEmbedding []float32, params Params) ([]Result, error) {
	start := time.Now()
	p := params.normalized()

	filter := ""
	args := []any{embeddingLiteral(queryEmbedding), overfetch(p.TopK)}
	if len(p.DocumentIDs) > 0 {
		filter = "AND c.document_id = ANY($3)"
		args = append(args, pq.Array(p.DocumentIDs))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(denseSearchQuery, filter), args...)
	if err != nil {
		s.record(ctx, "Dense", start, err)
		return nil, apperr.New("retrieval.Dense", apperr.KindVectorSearch, err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var distance float64
		var metaJSON []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.DocumentFilename, &r.Content, &r.PageNumber, &r.ChunkIndex, &metaJSON, &distance); err != nil {
			s.record(ctx, "Dense", start, err)
			return nil, apperr.New("retrieval.Dense", apperr.KindVectorSearch, err)
		}
		r.SimilarityScore = 1 - distance
		if r.SimilarityScore < p.MinSimilarity {
			continue
		}
		r.Metadata = decodeMetadata(metaJSON)
		out = append(out, r)
		if len(out) >= p.TopK {
			break
		}
	}
	s.record(ctx, "Dense", start, rows.Err())
	return out, rows.Err()
}

const hybridSearchQuery = `
SELECT
	c.id, c.document_id, d.original_filename, c.content, c.page_number,
	c.chunk_index, c.metadata,
	1 - (c.embedding <=> $1) AS vector_score,
	COALESCE(ts_rank(c.search_vector, plainto_tsquery('english', $2)), 0) AS text_score
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE
	c.embedding IS NOT NULL
	AND d.deleted = false
	AND d.status = 'completed'
	%s
`

// Hybrid ranks by vectorWeight*(1-distance) + textWeight*ts_rank, with the
// min_similarity floor applied to the vector component alone, matching
// spec.md §4.G and the worked example in §8 ("B, A, C" at default
// weights; "A, C" once min_similarity excludes B on the vector score).
func (s *Store) Hybrid(ctx context.Context, query string, queryEmbedding []float32, params Params, vectorWeight, textWeight float64) ([]Result, error) {
	start := time.Now()
	p := params.normalized()
	if vectorWeight == 0 && textWeight == 0 {
		vectorWeight, textWeight = DefaultVectorWeight, DefaultTextWeight
	}

	filter := ""
	args := []any{embeddingLiteral(queryEmbedding), query}
	if len(p.DocumentIDs) > 0 {
		filter = "AND c.document_id = ANY($3)"
		args = append(args, pq.Array(p.DocumentIDs))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(hybridSearchQuery, filter), args...)
	if err != nil {
		s.record(ctx, "Hybrid", start, err)
		return nil, apperr.New("retrieval.Hybrid", apperr.KindVectorSearch, err)
	}
	defer rows.Close()

	type scored struct {
		Result
		combined float64
		distance float64
	}
	var candidates []scored
	for rows.Next() {
		var r Result
		var vectorScore, textScore float64
		var metaJSON []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.DocumentFilename, &r.Content, &r.PageNumber, &r.ChunkIndex, &metaJSON, &vectorScore, &textScore); err != nil {
			s.record(ctx, "Hybrid", start, err)
			return nil, apperr.New("retrieval.Hybrid", apperr.KindVectorSearch, err)
		}
		if vectorScore < p.MinSimilarity {
			continue
		}
		r.Metadata = decodeMetadata(metaJSON)
		r.SimilarityScore = vectorWeight*vectorScore + textWeight*textScore
		candidates = append(candidates, scored{Result: r, combined: r.SimilarityScore, distance: 1 - vectorScore})
	}
	if err := rows.Err(); err != nil {
		s.record(ctx, "Hybrid", start, err)
		return nil, apperr.New("retrieval.Hybrid", apperr.KindVectorSearch, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.combined != b.combined {
			return a.combined > b.combined
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	n := p.TopK
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]Result, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].Result
	}
	s.record(ctx, "Hybrid", start, nil)
	return out, nil
}

const documentSearchQuery = `
SELECT id, original_filename, summary, 1 - (summary_embedding <=> $1) AS similarity
FROM documents
WHERE summary_embedding IS NOT NULL AND deleted = false AND status = 'completed'
ORDER BY summary_embedding <=> $1
LIMIT $2
`

// Documents runs a document-level search over summary_embedding, grounded
// on vector.py's search_documents.
func (s *Store) Documents(ctx context.Context, queryEmbedding []float32, topK int) ([]DocumentResult, error) {
	start := time.Now()
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	rows, err := s.db.QueryContext(ctx, documentSearchQuery, embeddingLiteral(queryEmbedding), topK)
	if err != nil {
		s.record(ctx, "Documents", start, err)
		return nil, apperr.New("retrieval.Documents", apperr.KindVectorSearch, err)
	}
	defer rows.Close()

	var out []DocumentResult
	for rows.Next() {
		var d DocumentResult
		if err := rows.Scan(&d.DocumentID, &d.Filename, &d.Summary, &d.Similarity); err != nil {
			s.record(ctx, "Documents", start, err)
			return nil, apperr.New("retrieval.Documents", apperr.KindVectorSearch, err)
		}
		out = append(out, d)
	}
	s.record(ctx, "Documents", start, rows.Err())
	return out, rows.Err()
}

// DocumentMeta is the subset of a document row the file-reader tool needs
// to decide whether it can read the document's content.
type DocumentMeta struct {
	ID        string
	Filename  string
	Status    string
	Summary   string
	PageCount int
}

const documentByIDQuery = `
SELECT id, original_filename, status, summary, page_count
FROM documents WHERE id = $1 AND deleted = false
`

const documentByFilenameQuery = `
SELECT id, original_filename, status, summary, page_count
FROM documents WHERE original_filename = $1 AND deleted = false
ORDER BY created_at DESC LIMIT 1
`

// DocumentByID fetches a document's metadata by id, grounded on
// file_reader.py's _find_document(document_id=...).
func (s *Store) DocumentByID(ctx context.Context, id string) (*DocumentMeta, error) {
	return s.fetchDocumentMeta(ctx, documentByIDQuery, id)
}

// DocumentByFilename fetches the most recently created non-deleted
// document with the given filename, grounded on file_reader.py's
// _find_document(filename=...).
func (s *Store) DocumentByFilename(ctx context.Context, filename string) (*DocumentMeta, error) {
	return s.fetchDocumentMeta(ctx, documentByFilenameQuery, filename)
}

func (s *Store) fetchDocumentMeta(ctx context.Context, query, arg string) (*DocumentMeta, error) {
	start := time.Now()
	var d DocumentMeta
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&d.ID, &d.Filename, &d.Status, &d.Summary, &d.PageCount)
	if err == sql.ErrNoRows {
		s.record(ctx, "DocumentByID", start, nil)
		return nil, nil
	}
	if err != nil {
		s.record(ctx, "DocumentByID", start, err)
		return nil, apperr.New("retrieval.fetchDocumentMeta", apperr.KindVectorSearch, err)
	}
	s.record(ctx, "DocumentByID", start, nil)
	return &d, nil
}

const chunksForDocumentQuery = `
SELECT content, page_number FROM chunks
WHERE document_id = $1 %s
ORDER BY chunk_index ASC
`

// ChunkContent is one chunk's content and page number, as returned by
// ChunksForDocument.
type ChunkContent struct {
	Content    string
	PageNumber *int
}

// ChunksForDocument returns a document's chunk contents in index order,
// optionally restricted to a set of page numbers, grounded on
// file_reader.py's _get_document_content.
func (s *Store) ChunksForDocument(ctx context.Context, documentID string, pageNumbers []int) ([]ChunkContent, error) {
	start := time.Now()

	filter := ""
	args := []any{documentID}
	if len(pageNumbers) > 0 {
		filter = "AND page_number = ANY($2)"
		args = append(args, pq.Array(pageNumbers))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(chunksForDocumentQuery, filter), args...)
	if err != nil {
		s.record(ctx, "ChunksForDocument", start, err)
		return nil, apperr.New("retrieval.ChunksForDocument", apperr.KindVectorSearch, err)
	}
	defer rows.Close()

	var out []ChunkContent
	for rows.Next() {
		var row ChunkContent
		if err := rows.Scan(&row.Content, &row.PageNumber); err != nil {
			s.record(ctx, "ChunksForDocument", start, err)
			return nil, apperr.New("retrieval.ChunksForDocument", apperr.KindVectorSearch, err)
		}
		out = append(out, row)
	}
	s.record(ctx, "ChunksForDocument", start, rows.Err())
	return out, rows.Err()
}

func (s *Store) record(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOp(ctx, op, start, err)
}

// overfetch asks the database for more candidates than top_k so the
// min_similarity floor (applied in Go, not SQL) still has enough rows to
// filter from without a second round trip.
func overfetch(topK int) int {
	n := topK * 3
	if n < topK+10 {
		n = topK + 10
	}
	return n
}

func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]string{}
	}
	return m
}
