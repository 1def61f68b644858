package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// PayloadSource mirrors the citation fields an agent turn attaches to a
// response, duplicated here (rather than imported from internal/agent) so
// this package has no dependency on the orchestrator. Nothing in this
// package converts between agent.SourceRef and PayloadSource.
type PayloadSource struct {
	Index          int     `json:"index"`
	Document       string  `json:"document"`
	Page           *int    `json:"page,omitempty"`
	ChunkID        string  `json:"chunk_id,omitempty"`
	Similarity     float32 `json:"similarity,omitempty"`
	URL            string  `json:"url,omitempty"`
	ContentPreview string  `json:"content_preview,omitempty"`
}

// Payload is the full response cached for a (query, chunk-set) fingerprint:
// spec.md §4.K's "full response payload".
type Payload struct {
	Response string          `json:"response"`
	Sources  []PayloadSource `json:"sources,omitempty"`
}

// Key computes the short fingerprint spec.md §4.K names: a hash of the
// query joined with the sorted set of chunk ids that fed the answer, so two
// requests that retrieve the same chunks for the same query share a cache
// entry regardless of chunk ordering.
func Key(query string, chunkIDs []string) string {
	sorted := append([]string(nil), chunkIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ResponseCache wraps a Backend with the query/chunk-set key scheme and
// metrics recording. A nil *ResponseCache (the cache_enabled=false case)
// is safe to call: Get always misses and Put is a no-op, mirroring
// spec.md's "disabled entries are never errors" and the nil-receiver-safe
// pattern obs.ComponentMetrics already establishes for this codebase.
type ResponseCache struct {
	backend Backend
	ttl     time.Duration
	metrics *obs.ComponentMetrics
}

// NewResponseCache wraps backend with the given default TTL. Pass a nil
// backend (or a nil *ResponseCache) to disable caching entirely.
func NewResponseCache(backend Backend, ttl time.Duration, metrics *obs.ComponentMetrics) *ResponseCache {
	return &ResponseCache{backend: backend, ttl: ttl, metrics: metrics}
}

// Get looks up a previously cached response for query and the chunk ids
// that would be used to answer it. A miss (including a disabled cache)
// returns (Payload{}, false, nil).
func (c *ResponseCache) Get(ctx context.Context, query string, chunkIDs []string) (Payload, bool, error) {
	if c == nil || c.backend == nil {
		return Payload{}, false, nil
	}
	start := time.Now()
	raw, ok, err := c.backend.Get(ctx, Key(query, chunkIDs))
	c.metrics.RecordOp(ctx, "get", start, err)
	if err != nil || !ok {
		return Payload{}, false, err
	}
	payload, ok := decodePayload(raw)
	return payload, ok, nil
}

// Put stores payload under the fingerprint for query and chunkIDs. A
// disabled cache silently discards the write.
func (c *ResponseCache) Put(ctx context.Context, query string, chunkIDs []string, payload Payload) error {
	if c == nil || c.backend == nil {
		return nil
	}
	start := time.Now()
	err := c.backend.Set(ctx, Key(query, chunkIDs), payload, c.ttl)
	c.metrics.RecordOp(ctx, "set", start, err)
	return err
}

// decodePayload accepts both the value an in-process backend hands back
// unchanged (a Payload) and the generic map a JSON-backed backend (redis)
// produces after round-tripping through encoding/json.
func decodePayload(v any) (Payload, bool) {
	if p, ok := v.(Payload); ok {
		return p, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false
	}
	return p, true
}
