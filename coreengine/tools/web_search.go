package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
)

const (
	duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

	defaultWebResults = 5
	maxWebResults     = 10

	// webSearchTimeout bounds one search round trip.
	webSearchTimeout = 15 * time.Second

	// webBodyLimit caps how much of the result page is read.
	webBodyLimit = 1 << 20 // 1MB

	// snippetLimit bounds each snippet in the formatted block.
	snippetLimit = 200
)

// WebResult is a single web search hit.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool searches the web through the DuckDuckGo HTML endpoint,
// which needs no API key. Results are parsed out of the returned page.
type WebSearchTool struct {
	client   *http.Client
	endpoint string
	logger   Logger
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(logger Logger) *WebSearchTool {
	return &WebSearchTool{
		client:   &http.Client{Timeout: webSearchTimeout},
		endpoint: duckDuckGoEndpoint,
		logger:   logger,
	}
}

// Definition returns the registry definition for this tool.
func (t *WebSearchTool) Definition() *ToolDefinition {
	return &ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for articles, blog posts, and general information. Returns titles, URLs, and snippets.",
		Category:    "research",
		RiskLevel:   "low",
		Handler:     t.handle,
	}
}

func (t *WebSearchTool) handle(ctx context.Context, params map[string]any) (map[string]any, error) {
	query := strings.TrimSpace(typeutil.SafeStringDefault(params["query"], ""))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	maxResults := typeutil.SafeIntDefault(params["max_results"], defaultWebResults)
	if maxResults < 1 {
		maxResults = defaultWebResults
	}
	if maxResults > maxWebResults {
		maxResults = maxWebResults
	}

	results, err := t.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("web_search_completed", "query", query, "results", len(results))

	resultMaps := make([]map[string]any, 0, len(results))
	for _, r := range results {
		resultMaps = append(resultMaps, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Snippet,
		})
	}

	return map[string]any{
		"results":   resultMaps,
		"count":     len(results),
		"formatted": formatWebResults(query, results),
	}, nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	searchURL := t.endpoint + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	// The HTML endpoint serves browsers; plain Go user agents get blocked.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	return parseWebResults(string(body), maxResults)
}

// parseWebResults extracts results from the DuckDuckGo HTML page. Each
// result lives in a div whose class contains "results_links"; the link
// anchor carries class "result__a" and the snippet "result__snippet".
func parseWebResults(page string, maxResults int) ([]WebResult, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []WebResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && strings.Contains(nodeAttr(n, "class"), "results_links") {
			if r := extractWebResult(n); r.URL != "" && r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

func extractWebResult(n *html.Node) WebResult {
	var result WebResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := nodeAttr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				result.URL = resolveRedirect(nodeAttr(n, "href"))
				result.Title = nodeText(n)
			case strings.Contains(class, "result__snippet"):
				result.Snippet = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return result
}

// resolveRedirect unwraps DuckDuckGo's uddg redirect wrapper so results
// carry the destination URL.
func resolveRedirect(href string) string {
	const prefix = "//duckduckgo.com/l/?uddg="
	if !strings.HasPrefix(href, prefix) {
		return href
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(href, prefix))
	if err != nil {
		return href
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

func nodeAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// formatWebResults renders a bounded text block for prompt inclusion.
func formatWebResults(query string, results []WebResult) string {
	if len(results) == 0 {
		return "No web results found for: " + query
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d web results:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", truncateRunes(r.Snippet, snippetLimit))
		}
	}
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
