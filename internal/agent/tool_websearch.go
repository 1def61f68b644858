package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
)

const duckduckgoURL = "https://html.duckduckgo.com/html/"

// WebSearchTool searches the web via a DuckDuckGo HTML scrape, grounded on
// original_source agents/tools/web_search.py + services/search/web.py. The
// Python original hand-rolls string scanning "to avoid a BeautifulSoup
// dependency"; this port instead walks a proper DOM tree with
// golang.org/x/net/html, the one HTML-parsing library the example corpus
// reaches for.
type WebSearchTool struct {
	http       *http.Client
	endpoint   string
	maxResults int
}

// WebResult is one parsed DuckDuckGo hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
}

// NewWebSearchTool creates a web_search tool with the given default result
// cap. A default outside [1,10] falls back to 5.
func NewWebSearchTool(client *http.Client, defaultMaxResults int) *WebSearchTool {
	if client == nil {
		client = http.DefaultClient
	}
	if defaultMaxResults <= 0 || defaultMaxResults > 10 {
		defaultMaxResults = 5
	}
	return &WebSearchTool{http: client, endpoint: duckduckgoURL, maxResults: defaultMaxResults}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Search the web for current information. Use this tool when you need to " +
			"find information that might not be in the uploaded documents, such as recent news, " +
			"general knowledge, or external references. Returns titles, URLs, and snippets from web pages.",
		Parameters: []Parameter{
			{Name: "query", Type: ParamString, Description: "The search query", Required: true},
			{Name: "max_results", Type: ParamNumber, Description: "Maximum number of results (1-10)", Default: t.maxResults},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	if err := ValidateRequired(t.Definition(), params); err != nil {
		return ErrorResult("%s", err), nil
	}
	query, _ := params["query"].(string)

	maxResults := t.maxResults
	if v, ok := params["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}
	if maxResults > 10 {
		maxResults = 10
	}

	results, err := t.search(ctx, query, maxResults)
	if err != nil {
		return ErrorResult("web search failed: %v", err), nil
	}
	if len(results) == 0 {
		return SuccessResult("No web results found for this query."), nil
	}

	var parts []string
	var sources []SourceRef
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[%d] %s\nURL: %s\n%s", i+1, r.Title, r.URL, r.Snippet))
		sources = append(sources, SourceRef{Index: i + 1, Document: r.Title, URL: r.URL, ContentPreview: r.Snippet})
	}
	return SuccessResult(strings.Join(parts, "\n\n"), sources...), nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint,
		strings.NewReader(url.Values{"q": {query}}.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, apperr.New("agent.WebSearchTool.search", apperr.KindWebSearch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New("agent.WebSearchTool.search", apperr.KindWebSearch, fmt.Errorf("status %d", resp.StatusCode))
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, apperr.New("agent.WebSearchTool.search", apperr.KindWebSearch, err)
	}
	return parseDuckDuckGoResults(root, maxResults), nil
}

// parseDuckDuckGoResults walks the parsed DOM for DuckDuckGo's
// `<div class="result ...">` blocks, each containing an `<a
// class="result__a">` (title/href) and a `<... class="result__snippet">`.
func parseDuckDuckGoResults(root *html.Node, maxResults int) []WebResult {
	var out []WebResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if r, ok := extractResult(n); ok {
				out = append(out, r)
			}
		}
		for c := n.FirstChild; c != nil && len(out) < maxResults; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func extractResult(block *html.Node) (WebResult, bool) {
	var title, href, snippet string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href = attr(n, "href")
			title = textContent(n)
		}
		if n.Type == html.ElementNode && hasClassPrefix(n, "result__snippet") {
			snippet = textContent(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(block)

	if title == "" || href == "" {
		return WebResult{}, false
	}
	return WebResult{Title: strings.TrimSpace(title), URL: resolveRedirect(href), Snippet: strings.TrimSpace(snippet)}, true
}

// resolveRedirect unwraps DuckDuckGo's "/l/?uddg=<encoded target>"
// redirect links to the real destination URL.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func hasClassPrefix(n *html.Node, prefix string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
