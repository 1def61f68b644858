package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const duckduckgoFixture = `
<html><body>
<div id="links" class="results">
  <div class="result results_links_deep web-result">
    <a class="result__a" href="https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage1">Example Result One</a>
    <a class="result__snippet">This is the first snippet.</a>
  </div>
  <div class="result results_links_deep web-result">
    <a class="result__a" href="https://example.com/page2">Example Result Two</a>
    <a class="result__snippet">This is the second snippet.</a>
  </div>
</div>
</body></html>`

func TestWebSearchToolParsesResultsFromHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(duckduckgoFixture))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(srv.Client(), 5)
	tool.endpoint = srv.URL

	results, err := tool.search(context.Background(), "example", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Title != "Example Result One" {
		t.Fatalf("unexpected title: %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/page1" {
		t.Fatalf("expected redirect unwrapped, got %q", results[0].URL)
	}
	if results[0].Snippet != "This is the first snippet." {
		t.Fatalf("unexpected snippet: %q", results[0].Snippet)
	}
	if results[1].URL != "https://example.com/page2" {
		t.Fatalf("expected a direct (non-redirect) url preserved, got %q", results[1].URL)
	}
}

func TestWebSearchToolOutOfRangeDefaultFallsBackToFive(t *testing.T) {
	tool := NewWebSearchTool(nil, 50)
	if tool.maxResults != 5 {
		t.Fatalf("expected an out-of-range default to fall back to 5, got %d", tool.maxResults)
	}
}

func TestWebSearchToolNoResultsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="links" class="results"></div></body></html>`))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(srv.Client(), 5)
	tool.endpoint = srv.URL
	result, err := tool.Execute(context.Background(), map[string]any{"query": "nothing"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Output != "No web results found for this query." {
		t.Fatalf("unexpected result: %+v", result)
	}
}
