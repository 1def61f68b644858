package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type chatResp struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func TestDescribeOneSkipsTinyImage(t *testing.T) {
	d := New(llmclient.New("http://unused", "vision-model"))
	desc, err := d.DescribeOne(context.Background(), Image{Data: solidPNG(t, 1, 1), Width: 1, Height: 1}, 1, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if desc != "" {
		t.Fatalf("expected empty description for a 1x1 image, got %q", desc)
	}
}

func TestDescribeOneDescribesMeaningfulImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResp{Done: true}
		resp.Message.Content = "A bar chart showing quarterly revenue."
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	d := New(llmclient.New(srv.URL, "vision-model"))
	desc, err := d.DescribeOne(context.Background(), Image{Data: solidPNG(t, 100, 100), Width: 100, Height: 100}, 3, 1, "some context")
	if err != nil {
		t.Fatal(err)
	}
	if desc != "A bar chart showing quarterly revenue." {
		t.Fatalf("unexpected description: %q", desc)
	}
}

func TestDescribeBatchSplitsOnMarkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResp{Done: true}
		resp.Message.Content = "[IMAGE 1]\nFirst image is a photo.\n[IMAGE 2]\nSecond image is a chart.\n"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	d := New(llmclient.New(srv.URL, "vision-model"), WithBatchSize(4))
	images := []Image{
		{Data: solidPNG(t, 100, 100), Width: 100, Height: 100},
		{Data: solidPNG(t, 100, 100), Width: 100, Height: 100},
	}
	descs, err := d.DescribeBatch(context.Background(), images, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptions, got %d", len(descs))
	}
	if descs[0] == "" || descs[1] == "" {
		t.Fatalf("expected both images described, got %q / %q", descs[0], descs[1])
	}
}

func TestDescribeBatchFallsBackWhenMarkersMissing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := chatResp{Done: true}
		if calls == 1 {
			resp.Message.Content = "a vague reply with no markers"
		} else {
			resp.Message.Content = "individual description"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	d := New(llmclient.New(srv.URL, "vision-model"), WithBatchSize(4))
	images := []Image{
		{Data: solidPNG(t, 100, 100), Width: 100, Height: 100},
		{Data: solidPNG(t, 100, 100), Width: 100, Height: 100},
	}
	descs, err := d.DescribeBatch(context.Background(), images, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range descs {
		if d != "individual description" {
			t.Fatalf("expected fallback description at %d, got %q", i, d)
		}
	}
}

func TestFallbackIndividualWarnsOnPerImageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	d := New(llmclient.New(srv.URL, "vision-model"), WithLogger(logger))

	images := []Image{{Data: solidPNG(t, 100, 100), Width: 100, Height: 100}}
	out := make([]string, 1)
	d.fallbackIndividual(context.Background(), images, []int{0}, 3, out)

	if out[0] != "" {
		t.Fatalf("expected an empty description on failure, got %q", out[0])
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected a warning to be logged, got %q", buf.String())
	}
}
