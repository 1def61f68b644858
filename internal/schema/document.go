// Package schema defines the domain types shared across every internal
// package: Document, Chunk, Chat, Branch, Message, and the tagged Source
// union. They are plain structs with typed fields, grounded on the
// teacher's pkg/schema/document.go and pkg/schema/message.go shape but
// replacing the teacher's loose map[string]string metadata bag with the
// concrete fields this domain's invariants require.
package schema

import "time"

// DocumentStatus is a Document's lifecycle stage. Transitions are
// monotonic (Pending -> Processing -> Completed | Failed) except that
// Failed is terminal.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// EmbeddingDim is the fixed embedding dimensionality D every chunk and
// document-summary embedding must satisfy.
const EmbeddingDim = 768

// Document is one row per uploaded file.
type Document struct {
	ID               string
	StoredFilename   string
	OriginalFilename string
	MIMEType         string
	ByteSize         int64
	ContentHash      string // SHA-256 hex, unique among non-deleted documents
	Status           DocumentStatus
	ErrorMessage     string
	PageCount        int
	ChunkCount       int
	Summary          string
	SummaryEmbedding []float32
	Metadata         map[string]string // title/author/etc.
	CreatedAt        time.Time
	ProcessingStartedAt  *time.Time
	ProcessingFinishedAt *time.Time
	Deleted          bool
	DeletedAt        *time.Time
}

// ContentKind classifies how a Chunk's text was produced.
type ContentKind string

const (
	ContentText   ContentKind = "text"
	ContentVision ContentKind = "vision"
	ContentMerged ContentKind = "merged"
)

// Chunk is a contiguous, indexed slice of a Document's merged content.
type Chunk struct {
	ID           string
	DocumentID   string
	ChunkIndex   int // zero-based, dense and unique within the document
	PageNumber   *int
	Content      string
	ContentKind  ContentKind
	TokenCount   int
	Embedding    []float32 // length EmbeddingDim, nil until the embedding stage runs
	Metadata     map[string]string
}
