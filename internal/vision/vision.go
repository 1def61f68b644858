// Package vision describes embedded document images in natural language
// using a chat-capable vision model, grounded on original_source
// services/llm/vision.py (the gating thresholds, the white-canvas padding,
// the per-image and batched multi-image prompts) and the teacher's
// llms/anthropic.go image-content-block pattern for attaching base64 image
// payloads to a chat turn via internal/llmclient.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
)

// Gating and batching constants, verbatim from spec.md §4.D.
const (
	MinMeaningfulPixels = 1000
	MinDimension        = 20
	ModelMinDimension   = 32
	DefaultBatchSize    = 4
	MaxContextChars     = 500
)

const systemPrompt = `You are an expert at analyzing images and documents.
Describe the visual content in detail, including any text visible in the
image, diagrams, charts, or figures with their meaning, tables with their
structure and data, and any other relevant visual elements. Be thorough
but concise.`

// Image is one candidate image to describe, carrying its already-decoded
// pixel dimensions (the extractor reports these independently of the raw
// bytes so gating doesn't require decoding twice).
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Describer produces natural-language descriptions of document images.
type Describer struct {
	llm       *llmclient.Client
	batchSize int
	metrics   *obs.ComponentMetrics
	logger    *slog.Logger
}

// Option configures a Describer.
type Option func(*Describer)

// WithBatchSize overrides the default multi-image batch size.
func WithBatchSize(n int) Option {
	return func(d *Describer) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(d *Describer) { d.metrics = m }
}

// WithLogger attaches a logger, following obs's WithLogger(*slog.Logger)
// convention. Describers created without one fall back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Describer) { d.logger = logger }
}

// New creates a Describer backed by llm.
func New(llm *llmclient.Client, opts ...Option) *Describer {
	d := &Describer{llm: llm, batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// isMeaningful rejects images below the pixel/dimension meaningfulness
// threshold, matching spec.md §4.D.
func isMeaningful(img Image) bool {
	if img.Width < MinDimension || img.Height < MinDimension {
		return false
	}
	return img.Width*img.Height >= MinMeaningfulPixels
}

// padToModelMinimum centers an undersized image on a white canvas so it
// meets the vision model's minimum input size, matching vision.py's
// intent (Pillow's ImageOps.pad) via the standard image/draw package.
func padToModelMinimum(data []byte, width, height int) ([]byte, error) {
	if width >= ModelMinDimension && height >= ModelMinDimension {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decode image for padding: %w", err)
	}

	canvasW, canvasH := width, height
	if canvasW < ModelMinDimension {
		canvasW = ModelMinDimension
	}
	if canvasH < ModelMinDimension {
		canvasH = ModelMinDimension
	}

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	offsetX := (canvasW - width) / 2
	offsetY := (canvasH - height) / 2
	draw.Draw(canvas, image.Rect(offsetX, offsetY, offsetX+width, offsetY+height), src, src.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("vision: encode padded image: %w", err)
	}
	return buf.Bytes(), nil
}

func toBase64PNG(img Image) (string, error) {
	data, err := padToModelMinimum(img.Data, img.Width, img.Height)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DescribeOne describes a single image, naming its page and index, with up
// to 500 characters of surrounding text context. Returns an empty string
// (not an error) for non-meaningful images, matching spec.md's "filters
// input" contract.
func (d *Describer) DescribeOne(ctx context.Context, img Image, pageNumber, imageIndex int, context_ string) (string, error) {
	if !isMeaningful(img) {
		return "", nil
	}

	b64, err := toBase64PNG(img)
	if err != nil {
		return "", err
	}

	if len(context_) > MaxContextChars {
		context_ = context_[:MaxContextChars]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "This is image %d on page %d of a document.\n", imageIndex+1, pageNumber)
	if context_ != "" {
		fmt.Fprintf(&prompt, "Surrounding text context:\n---\n%s\n---\n", context_)
	}
	prompt.WriteString("Describe this image: its type, key information conveyed, and any text or labels present.")

	reply, err := d.llm.Chat(ctx, []llmclient.Message{
		{Role: llmclient.RoleUser, Content: prompt.String(), Images: []string{b64}},
	}, systemPrompt, llmclient.WithCallTemperature(0.3))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

var imageMarker = regexp.MustCompile(`(?m)^\[IMAGE (\d+)\]\s*$`)

// DescribeBatch groups up to BatchSize images into one multi-image request.
// If the model returns fewer [IMAGE k] sections than requested, it falls
// back to describing each image individually; any individual failure
// yields an empty description rather than aborting the batch, matching
// spec.md's resilience contract.
func (d *Describer) DescribeBatch(ctx context.Context, images []Image, pageNumber int) ([]string, error) {
	descriptions := make([]string, len(images))
	meaningfulIdx := make([]int, 0, len(images))
	for i, img := range images {
		if isMeaningful(img) {
			meaningfulIdx = append(meaningfulIdx, i)
		}
	}
	if len(meaningfulIdx) == 0 {
		return descriptions, nil
	}

	for start := 0; start < len(meaningfulIdx); start += d.batchSize {
		end := start + d.batchSize
		if end > len(meaningfulIdx) {
			end = len(meaningfulIdx)
		}
		group := meaningfulIdx[start:end]

		b64s := make([]string, 0, len(group))
		var prompt strings.Builder
		fmt.Fprintf(&prompt, "This page (%d) contains %d images. Describe each one under its own [IMAGE k] heading.\n", pageNumber, len(group))
		for k, idx := range group {
			b64, err := toBase64PNG(images[idx])
			if err != nil {
				continue
			}
			b64s = append(b64s, b64)
			fmt.Fprintf(&prompt, "[IMAGE %d]\n", k+1)
		}

		reply, err := d.llm.Chat(ctx, []llmclient.Message{
			{Role: llmclient.RoleUser, Content: prompt.String(), Images: b64s},
		}, systemPrompt, llmclient.WithCallTemperature(0.3))
		if err != nil {
			d.fallbackIndividual(ctx, images, group, pageNumber, descriptions)
			continue
		}

		parts, found := splitByImageMarker(reply, len(group))
		if found < len(group) {
			d.fallbackIndividual(ctx, images, group, pageNumber, descriptions)
			continue
		}
		for k, idx := range group {
			descriptions[idx] = strings.TrimSpace(parts[k])
		}
	}

	return descriptions, nil
}

func (d *Describer) fallbackIndividual(ctx context.Context, images []Image, group []int, pageNumber int, out []string) {
	for k, idx := range group {
		desc, err := d.DescribeOne(ctx, images[idx], pageNumber, k, "")
		if err != nil {
			d.logger.Warn("image description failed, using empty description",
				"page", pageNumber, "image_index", idx, "error", err)
			out[idx] = ""
			continue
		}
		out[idx] = desc
	}
}

// splitByImageMarker splits a batch reply on [IMAGE k] section markers,
// matching spec.md's "split on [IMAGE k] markers" contract. found reports
// how many of the expected markers were actually present, which the
// caller uses to decide whether to fall back to individual description.
func splitByImageMarker(reply string, expected int) (parts []string, found int) {
	locs := imageMarker.FindAllStringSubmatchIndex(reply, -1)
	if len(locs) == 0 {
		return nil, 0
	}

	sections := make(map[int]string)
	for i, loc := range locs {
		numStr := reply[loc[2]:loc[3]]
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		start := loc[1]
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[n] = reply[start:end]
	}

	parts = make([]string, expected)
	for k := 1; k <= expected; k++ {
		if s, ok := sections[k]; ok {
			parts[k-1] = s
			found++
		}
	}
	return parts, found
}
