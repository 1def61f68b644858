// Package chunker splits document text into ordered, indexed chunks using
// one of three strategies (fixed-size, paragraph, semantic), grounded
// line-for-line on original_source's services/document/chunker.py for the
// boundary-search and reindexing semantics, restructured into the teacher's
// textsplitters idiom (rag/splitter: a named strategy passed to
// Split(strategy, text, opts...), functional options) instead of a single
// class with a strategy string field.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

// Strategy names, matching original_source's ChunkingStrategy constants.
const (
	FixedSize = "fixed_size"
	Paragraph = "paragraph"
	Semantic  = "semantic"
)

// sentenceBoundaries are searched for, last-occurrence-first, within the
// trailing 20% of a fixed-size window — verbatim from chunker.py.
var sentenceBoundaries = []string{". ", ".\n", "? ", "?\n", "! ", "!\n"}

// Options configures a chunking run.
type Options struct {
	ChunkSize    int // S, target chunk size in characters, in [100, 4000]
	ChunkOverlap int // O, must be < ChunkSize
	PageNumber   *int
	ContentKind  schema.ContentKind
}

// Option is a functional option over Options, following the teacher's
// textsplitters WithChunkSize/WithChunkOverlap convention.
type Option func(*Options)

// WithChunkSize sets the target chunk size.
func WithChunkSize(n int) Option {
	return func(o *Options) { o.ChunkSize = n }
}

// WithChunkOverlap sets the overlap window.
func WithChunkOverlap(n int) Option {
	return func(o *Options) { o.ChunkOverlap = n }
}

// WithPageNumber stamps the resulting chunks with a page number.
func WithPageNumber(n int) Option {
	return func(o *Options) { o.PageNumber = &n }
}

// WithContentKind stamps the resulting chunks with a content kind.
func WithContentKind(k schema.ContentKind) Option {
	return func(o *Options) { o.ContentKind = k }
}

func defaultOptions() Options {
	return Options{ChunkSize: 1000, ChunkOverlap: 200, ContentKind: schema.ContentText}
}

// Split splits text using the named strategy (FixedSize, Paragraph, or
// Semantic), reindexing chunk_index densely from 0. Whitespace-only input
// returns no chunks.
func Split(strategy string, text string, opts ...Option) ([]schema.Chunk, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	switch strategy {
	case Paragraph:
		return chunkByParagraph(text, o), nil
	case Semantic:
		return chunkSemantic(text, o), nil
	case FixedSize, "":
		return chunkFixedSize(text, o), nil
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", strategy)
	}
}

// chunkFixedSize implements the fixed-size-with-boundary-preference
// algorithm: advance a window of ChunkSize characters, search the trailing
// 20% for the last occurrence of a sentence-ending separator, and advance
// the cursor with ChunkOverlap overlap.
func chunkFixedSize(text string, o Options) []schema.Chunk {
	runes := []rune(text)
	n := len(runes)
	var chunks []schema.Chunk
	start := 0

	for start < n {
		end := start + o.ChunkSize
		if end > n {
			end = n
		}

		if end < n {
			searchStart := end - int(float64(o.ChunkSize)*0.2)
			if searchStart < start {
				searchStart = start
			}
			searchText := string(runes[searchStart:end])
			for _, sep := range sentenceBoundaries {
				if idx := strings.LastIndex(searchText, sep); idx != -1 {
					end = searchStart + len([]rune(searchText[:idx])) + len([]rune(sep))
					break
				}
			}
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, newChunk(content, len(chunks), o))
		}

		nextStart := end - o.ChunkOverlap
		if nextStart <= start {
			// Guard against a non-advancing cursor when overlap >= the
			// distance covered by this window. Config.Validate's
			// ChunkOverlap < ChunkSize invariant does not rule this out:
			// a sentence boundary can pull end back to 80% of the window,
			// so an overlap above that would otherwise loop forever.
			nextStart = end
		}
		start = nextStart
		if start >= n-o.ChunkOverlap {
			break
		}
	}

	return chunks
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// chunkByParagraph accumulates paragraphs until the next one would exceed
// ChunkSize, then emits the accumulation and starts a new one.
func chunkByParagraph(text string, o Options) []schema.Chunk {
	paragraphs := paragraphSplit.Split(text, -1)
	var chunks []schema.Chunk
	var current strings.Builder

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content != "" {
			chunks = append(chunks, newChunk(content, len(chunks), o))
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > o.ChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// headerPattern matches markdown hash headers, title-case lines ending in
// ":", and numbered items — verbatim from chunker.py's header_pattern.
var headerPattern = regexp.MustCompile(`^(?:#{1,6}\s+.+|[A-Z][A-Za-z\s]+:|\d+\.\s+.+)$`)

// chunkSemantic splits on header-like lines into sections, then re-runs
// fixed-size chunking on any section exceeding 1.5x ChunkSize.
func chunkSemantic(text string, o Options) []schema.Chunk {
	lines := strings.Split(text, "\n")
	var sections []string
	var current []string

	flush := func() {
		section := strings.TrimSpace(strings.Join(current, "\n"))
		if section != "" {
			sections = append(sections, section)
		}
		current = nil
	}

	for _, line := range lines {
		if headerPattern.MatchString(strings.TrimSpace(line)) && len(current) > 0 {
			flush()
			current = []string{line}
		} else {
			current = append(current, line)
		}
	}
	flush()

	var final []schema.Chunk
	for _, section := range sections {
		if len(section) > int(float64(o.ChunkSize)*1.5) {
			sub := chunkFixedSize(section, o)
			for _, c := range sub {
				c.ChunkIndex = len(final)
				final = append(final, c)
			}
		} else {
			final = append(final, newChunk(section, len(final), o))
		}
	}

	return final
}

func newChunk(content string, index int, o Options) schema.Chunk {
	kind := o.ContentKind
	if kind == "" {
		kind = schema.ContentText
	}
	return schema.Chunk{
		ChunkIndex:  index,
		PageNumber:  o.PageNumber,
		Content:     content,
		ContentKind: kind,
		TokenCount:  len(content) / 4,
	}
}
