// Package embedder wraps the local embedding model server's HTTP API,
// grounded on the teacher's pkg/embeddings + pkg/llms/providers/ollama
// Ollama-wrapping shape, but issued through internal/httpclient (since
// this domain has no dedicated Go SDK dependency the way the teacher's
// Ollama providers use github.com/ollama/ollama/api) rather than a
// provider-specific client library.
package embedder

import (
	"context"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/httpclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// DefaultBatchSize mirrors spec.md's embedding_batch_size default.
const DefaultBatchSize = 16

// Client embeds texts in batches against a local model server's
// POST /api/embed endpoint.
type Client struct {
	http      *httpclient.Client
	model     string
	batchSize int
	keepAlive string
	metrics   *obs.ComponentMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithBatchSize overrides the default batch size.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithKeepAlive sets the keep_alive duration string sent with every request.
func WithKeepAlive(keepAlive string) Option {
	return func(c *Client) {
		c.keepAlive = keepAlive
	}
}

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client backed by an httpclient.Client pointed at
// baseURL, embedding with model.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		http:      httpclient.New(httpclient.WithBaseURL(baseURL), httpclient.WithRetries(2)),
		model:     model,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch embeds texts, splitting into BatchSize-sized requests and
// preserving input order in the returned slice.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	result := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := httpclient.DoJSON[embedResponse](ctx, c.http, "POST", "/api/embed", embedRequest{
			Model:     c.model,
			Input:     texts[i:end],
			KeepAlive: c.keepAlive,
		})
		if err != nil {
			c.metrics.RecordOp(ctx, "embed_batch", start, err)
			return nil, apperr.New("embedder.EmbedBatch", apperr.KindEmbedding, err)
		}
		result = append(result, resp.Embeddings...)
	}

	c.metrics.RecordOp(ctx, "embed_batch", start, nil)
	return result, nil
}

// EmbedOne embeds a single text, used for query-time embedding.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperr.NewWithMessage("embedder.EmbedOne", apperr.KindEmbedding, "empty embedding response", nil)
	}
	return vecs[0], nil
}
