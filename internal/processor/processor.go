// Package processor orchestrates the ingestion pipeline: hash, extract,
// describe images, merge and chunk, embed, summarize. Grounded on
// original_source services/document/processor.py's DocumentProcessor for
// the named stages and their percentages, restructured into the teacher's
// functional-options constructor idiom and using internal/syncutil's
// WorkerPool to bound per-page vision concurrency instead of the Python
// original's unbounded asyncio.gather-free sequential loop.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/chunker"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/embedder"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/extractor"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/sanitize"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/syncutil"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/vision"
)

// Stage names, matching spec.md §4.F's stage table verbatim.
type Stage string

const (
	StageHashing       Stage = "hashing"
	StageExtraction    Stage = "extraction"
	StageVision        Stage = "vision"
	StageChunking      Stage = "chunking"
	StageEmbedding     Stage = "embedding"
	StageSummarization Stage = "summary"
	StageComplete      Stage = "complete"
)

// Progress is one progress update, grounded on processor.py's
// ProcessingProgress dataclass.
type Progress struct {
	DocumentID string
	Step       Stage
	Percent    float64
	Message    string
}

// ProgressFunc receives progress updates during Process. It may be nil.
type ProgressFunc func(Progress)

const visualContentHeader = "--- Visual Content on This Page ---"
const visualContentFooter = "--- End Visual Content ---"

// summaryChunkSample is the number of leading chunks used to prompt the
// document summary, matching spec.md §4.F's "first 10 chunks" rule.
const summaryChunkSample = 10

// Result is the full output of processing one document.
type Result struct {
	FileHash         string
	PageCount        int
	Summary          string
	SummaryEmbedding []float32
	Chunks           []schema.Chunk
	Metadata         map[string]string
	ProcessingTime   time.Duration
}

// Processor wires the extractor, vision describer, chunker, embedder, and
// text model into the ingestion pipeline.
type Processor struct {
	vision            *vision.Describer
	embed             *embedder.Client
	llm               *llmclient.Client
	chunkStrategy     string
	chunkSize         int
	chunkOverlap      int
	maxPageConcurrent int
	metrics           *obs.ComponentMetrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithChunkStrategy overrides the chunking strategy (chunker.FixedSize by
// default).
func WithChunkStrategy(strategy string) Option {
	return func(p *Processor) { p.chunkStrategy = strategy }
}

// WithChunkSize overrides the chunk size passed to the chunker.
func WithChunkSize(n int) Option {
	return func(p *Processor) { p.chunkSize = n }
}

// WithChunkOverlap overrides the chunk overlap passed to the chunker.
func WithChunkOverlap(n int) Option {
	return func(p *Processor) { p.chunkOverlap = n }
}

// WithMaxPageConcurrency bounds how many pages are vision-described
// concurrently.
func WithMaxPageConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxPageConcurrent = n
		}
	}
}

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor backed by the given vision describer, embedding
// client, and text model client.
func New(visionDescriber *vision.Describer, embedClient *embedder.Client, llm *llmclient.Client, opts ...Option) *Processor {
	p := &Processor{
		vision:            visionDescriber,
		embed:             embedClient,
		llm:               llm,
		chunkStrategy:     chunker.FixedSize,
		chunkSize:         1000,
		chunkOverlap:      200,
		maxPageConcurrent: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) report(fn ProgressFunc, documentID string, step Stage, percent float64, message string) {
	if fn == nil {
		return
	}
	fn(Progress{DocumentID: documentID, Step: step, Percent: percent, Message: message})
}

// Process runs a document through the full pipeline. Any stage failure is
// fatal: the caller is expected to mark the document Failed and persist no
// partial chunks, matching spec.md §4.F.
func (p *Processor) Process(ctx context.Context, documentID string, fileBytes []byte, filename string, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	op := "processor.Process"

	p.report(progress, documentID, StageHashing, 5, "Calculating file hash")
	hash := hashBytes(fileBytes)

	p.report(progress, documentID, StageExtraction, 10, "Extracting text and images")
	doc, err := extractor.ExtractFromBytes(fileBytes)
	if err != nil {
		return nil, wrapStage(op, documentID, err)
	}

	p.report(progress, documentID, StageVision, 20, "Analyzing visual content")
	descriptionsByPage, err := p.describeImages(ctx, doc.Pages, documentID, func(pct float64) {
		p.report(progress, documentID, StageVision, 20+pct*30, "Analyzing page visuals")
	})
	if err != nil {
		return nil, wrapStage(op, documentID, err)
	}

	p.report(progress, documentID, StageChunking, 55, "Splitting into chunks")
	chunks, err := p.chunkContent(doc.Pages, descriptionsByPage)
	if err != nil {
		return nil, wrapStage(op, documentID, err)
	}

	p.report(progress, documentID, StageEmbedding, 65, "Generating embeddings")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := p.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, wrapStage(op, documentID, err)
	}
	for i := range chunks {
		if i < len(embeddings) {
			chunks[i].Embedding = embeddings[i]
		}
	}
	p.report(progress, documentID, StageEmbedding, 85, "Embeddings complete")

	p.report(progress, documentID, StageSummarization, 90, "Generating document summary")
	summary, summaryEmbedding, err := p.summarize(ctx, chunks, filename)
	if err != nil {
		return nil, wrapStage(op, documentID, err)
	}

	p.report(progress, documentID, StageComplete, 100, "Processing complete")

	return &Result{
		FileHash:         hash,
		PageCount:        len(doc.Pages),
		Summary:          summary,
		SummaryEmbedding: summaryEmbedding,
		Chunks:           chunks,
		Metadata:         doc.Metadata,
		ProcessingTime:   time.Since(start),
	}, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// describeImages flattens meaningful images across all pages and
// describes them in per-page batches, bounding concurrency across pages
// with a WorkerPool. Progress is linear in images processed, matching
// spec.md's "progress linear in images processed".
func (p *Processor) describeImages(ctx context.Context, pages []extractor.Page, documentID string, progress func(float64)) (map[int][]string, error) {
	type pageImages struct {
		pageNumber int
		images     []vision.Image
	}

	var work []pageImages
	totalImages := 0
	for _, page := range pages {
		if len(page.Images) == 0 {
			continue
		}
		imgs := make([]vision.Image, len(page.Images))
		for i, img := range page.Images {
			imgs[i] = vision.Image{Data: img.Data, Width: img.Width, Height: img.Height}
		}
		work = append(work, pageImages{pageNumber: page.PageNumber, images: imgs})
		totalImages += len(imgs)
	}

	result := make(map[int][]string)
	if totalImages == 0 || p.vision == nil {
		return result, nil
	}

	var mu sync.Mutex
	var firstErr error
	processed := 0

	pool := syncutil.NewWorkerPool(p.maxPageConcurrent)
	for _, w := range work {
		w := w
		if err := pool.Submit(func() {
			descs, err := p.vision.DescribeBatch(ctx, w.images, w.pageNumber)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("processor: vision analysis failed for page %d: %w", w.pageNumber, err)
				}
				processed += len(w.images)
				if progress != nil {
					progress(float64(processed) / float64(totalImages))
				}
				return
			}
			var nonEmpty []string
			for _, d := range descs {
				if strings.TrimSpace(d) != "" {
					nonEmpty = append(nonEmpty, d)
				}
			}
			if len(nonEmpty) > 0 {
				result[w.pageNumber] = nonEmpty
			}
			processed += len(w.images)
			if progress != nil {
				progress(float64(processed) / float64(totalImages))
			}
		}); err != nil {
			return nil, err
		}
	}
	pool.Wait()

	return result, firstErr
}

// chunkContent merges per-page image descriptions into page text, chunks
// each page, and reindexes globally, matching spec.md's image-description
// merging and the original's _chunk_content.
func (p *Processor) chunkContent(pages []extractor.Page, descriptionsByPage map[int][]string) ([]schema.Chunk, error) {
	var all []schema.Chunk

	for _, page := range pages {
		text := sanitize.Text(page.Text)
		descriptions := descriptionsByPage[page.PageNumber]

		kind := schema.ContentText
		merged := text
		if len(descriptions) > 0 {
			var b strings.Builder
			b.WriteString(text)
			if text != "" {
				b.WriteString("\n\n")
			}
			b.WriteString(visualContentHeader)
			b.WriteString("\n")
			for i, d := range descriptions {
				if len(descriptions) > 1 {
					fmt.Fprintf(&b, "Image %d: %s\n", i+1, d)
				} else {
					fmt.Fprintf(&b, "%s\n", d)
				}
			}
			b.WriteString(visualContentFooter)
			merged = b.String()
			if text == "" {
				kind = schema.ContentVision
			} else {
				kind = schema.ContentMerged
			}
		}

		if strings.TrimSpace(merged) == "" {
			continue
		}

		pageChunks, err := chunker.Split(p.chunkStrategy, merged,
			chunker.WithChunkSize(p.chunkSize),
			chunker.WithChunkOverlap(p.chunkOverlap),
			chunker.WithPageNumber(page.PageNumber),
			chunker.WithContentKind(kind),
		)
		if err != nil {
			return nil, err
		}
		all = append(all, pageChunks...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		pi, pj := all[i].PageNumber, all[j].PageNumber
		if pi == nil || pj == nil {
			return false
		}
		return *pi < *pj
	})

	for i := range all {
		all[i].ChunkIndex = i
	}

	return all, nil
}

// summarize takes up to the first summaryChunkSample chunks, requests a
// document summary from the text model, and embeds it.
func (p *Processor) summarize(ctx context.Context, chunks []schema.Chunk, filename string) (string, []float32, error) {
	n := summaryChunkSample
	if n > len(chunks) {
		n = len(chunks)
	}

	var sample strings.Builder
	fmt.Fprintf(&sample, "Document: %s\n\n", filename)
	for _, c := range chunks[:n] {
		sample.WriteString(c.Content)
		sample.WriteString("\n\n")
	}

	summary, err := p.llm.Summarize(ctx, sample.String(), 0)
	if err != nil {
		return "", nil, apperr.New("processor.summarize", apperr.KindGeneration, err)
	}

	embedding, err := p.embed.EmbedOne(ctx, summary)
	if err != nil {
		return "", nil, apperr.New("processor.summarize", apperr.KindEmbedding, err)
	}

	return summary, embedding, nil
}

func wrapStage(op, documentID string, err error) error {
	if _, ok := err.(*apperr.Error); ok {
		return err
	}
	return apperr.NewWithDetails(op, apperr.KindDocumentProcessing, err.Error(), err, map[string]any{"document_id": documentID})
}
