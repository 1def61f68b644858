// Package llmclient wraps the local text/vision model server's chat and
// streaming-generate endpoints, grounded line-for-line on the teacher's
// pkg/llms/providers/ollama/provider.go (generateInternal/streamInternal,
// the bufio.Scanner-over-NDJSON loop, the done:true sentinel, keep_alive)
// but built on internal/httpclient instead of net/http directly, and using
// /api/chat's structured messages (with optional per-message image parts)
// rather than the teacher's single-prompt /api/generate, since this
// domain's vision describer needs image-bearing chat turns.
package llmclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/httpclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// Role names accepted by the chat endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn. Images, when present, are base64-encoded PNG
// payloads attached to a user turn, matching the vision describer's
// image-content-block pattern.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Client talks to the local model server's /api/chat endpoint.
type Client struct {
	http        *httpclient.Client
	model       string
	temperature float32
	topP        float32
	maxTokens   int
	keepAlive   string
	metrics     *obs.ComponentMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float32) Option { return func(c *Client) { c.temperature = t } }

// WithTopP sets the default nucleus-sampling top_p.
func WithTopP(p float32) Option { return func(c *Client) { c.topP = p } }

// WithMaxTokens sets the default response token cap.
func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

// WithKeepAlive sets the keep_alive duration string sent with every request.
func WithKeepAlive(keepAlive string) Option { return func(c *Client) { c.keepAlive = keepAlive } }

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option { return func(c *Client) { c.metrics = m } }

// New creates a Client backed by an httpclient.Client pointed at baseURL,
// generating with model.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		http:        httpclient.New(httpclient.WithBaseURL(baseURL), httpclient.WithRetries(2)),
		model:       model,
		temperature: 0.7,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model     string      `json:"model"`
	Messages  []Message   `json:"messages"`
	Stream    bool        `json:"stream"`
	Options   chatOptions `json:"options,omitempty"`
	KeepAlive string      `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// callOptions holds the per-call overrides a caller can layer over the
// client's defaults (e.g. the vision describer and summarizer both want a
// lower temperature than interactive chat).
type callOptions struct {
	temperature *float32
}

// CallOption overrides a single request's sampling parameters.
type CallOption func(*callOptions)

// WithCallTemperature overrides the temperature for one call.
func WithCallTemperature(t float32) CallOption {
	return func(o *callOptions) { o.temperature = &t }
}

func (c *Client) buildRequest(messages []Message, system string, stream bool, opts []CallOption) chatRequest {
	co := callOptions{}
	for _, opt := range opts {
		opt(&co)
	}
	temperature := c.temperature
	if co.temperature != nil {
		temperature = *co.temperature
	}

	all := messages
	if system != "" {
		all = append([]Message{{Role: RoleSystem, Content: system}}, messages...)
	}

	return chatRequest{
		Model:    c.model,
		Messages: all,
		Stream:   stream,
		Options: chatOptions{
			Temperature: temperature,
			TopP:        c.topP,
			NumPredict:  c.maxTokens,
		},
		KeepAlive: c.keepAlive,
	}
}

// Chat sends messages (with an optional system prompt prepended) and
// returns the full assistant reply.
func (c *Client) Chat(ctx context.Context, messages []Message, system string, opts ...CallOption) (string, error) {
	start := time.Now()
	req := c.buildRequest(messages, system, false, opts)

	resp, err := httpclient.DoJSON[chatResponse](ctx, c.http, "POST", "/api/chat", req)
	if err != nil {
		c.metrics.RecordOp(ctx, "chat", start, err)
		return "", c.wrapTransportError("llmclient.Chat", err)
	}
	c.metrics.RecordOp(ctx, "chat", start, nil)
	return resp.Message.Content, nil
}

// Stream sends messages and returns a lazy, finite, non-restartable
// sequence of content deltas, grounded on the teacher's streamInternal
// NDJSON scan loop.
func (c *Client) Stream(ctx context.Context, messages []Message, system string, opts ...CallOption) (iter.Seq2[string, error], error) {
	req := c.buildRequest(messages, system, true, opts)

	resp, err := c.http.Do(ctx, "POST", "/api/chat", req, map[string]string{"Accept": "application/x-ndjson"})
	if err != nil {
		return nil, c.wrapTransportError("llmclient.Stream", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, apperr.New("llmclient.Stream", apperr.KindBackendUnavailable, fmt.Errorf("status %d", resp.StatusCode))
	}

	return func(yield func(string, error) bool) {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			var chunk chatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				yield("", apperr.New("llmclient.Stream", apperr.KindGeneration, err))
				return
			}
			if chunk.Message.Content != "" {
				if !yield(chunk.Message.Content, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", apperr.New("llmclient.Stream", apperr.KindGeneration, err))
		}
	}, nil
}

// Summarize produces a factual summary of text, at a low temperature,
// optionally capped to maxWords.
func (c *Client) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	prompt := "Summarize the following text concisely, preserving key facts."
	if maxWords > 0 {
		prompt = fmt.Sprintf("%s Limit the summary to %d words.", prompt, maxWords)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: text}}, prompt, WithCallTemperature(0.2))
}

// GenerateTitle produces a short title (<=100 chars) for a conversation
// from its first message.
func (c *Client) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	title, err := c.Chat(ctx, []Message{{Role: RoleUser, Content: firstMessage}},
		"Generate a short, descriptive title (5 words or fewer) for a conversation that starts with the following message. Respond with only the title.",
		WithCallTemperature(0.2))
	if err != nil {
		return "", err
	}
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	return title, nil
}

// SummarizeConversation produces a running summary of a message history,
// used by the history manager when the token budget is exceeded.
func (c *Client) SummarizeConversation(ctx context.Context, messages []Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}
	return c.Summarize(ctx, transcript.String(), 0)
}

func (c *Client) wrapTransportError(op string, err error) error {
	if apiErr, ok := err.(*httpclient.APIError); ok {
		if apiErr.StatusCode == 404 {
			return apperr.NewWithMessage(op, apperr.KindModelNotFound, "model not found", err)
		}
		return apperr.New(op, apperr.KindGeneration, err)
	}
	return apperr.New(op, apperr.KindBackendUnavailable, err)
}
