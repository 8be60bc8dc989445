package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
)

const (
	semanticScholarEndpoint = "https://api.semanticscholar.org/graph/v1/paper/search"

	// maxPapers caps how many results reach the formatted prompt block.
	maxPapers = 3

	paperSearchTimeout = 15 * time.Second

	// abstractLimit bounds each abstract in runes before the ellipsis.
	abstractLimit = 50

	// formattedAuthors is how many author names the formatted text keeps.
	formattedAuthors = 2
)

// Paper is a single academic search hit.
type Paper struct {
	PaperID       string   `json:"paper_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Year          int      `json:"year"`
	Abstract      string   `json:"abstract"`
	CitationCount int      `json:"citation_count"`
	URL           string   `json:"url"`
}

// PaperSearchTool searches academic papers through the Semantic Scholar
// Graph API. An API key is optional; anonymous access has lower rate
// limits.
type PaperSearchTool struct {
	client   *http.Client
	endpoint string
	apiKey   string
	logger   Logger
}

// NewPaperSearchTool creates the paper search tool. apiKey may be empty.
func NewPaperSearchTool(apiKey string, logger Logger) *PaperSearchTool {
	if apiKey == "" {
		logger.Info("paper_search_anonymous_access")
	}
	return &PaperSearchTool{
		client:   &http.Client{Timeout: paperSearchTimeout},
		endpoint: semanticScholarEndpoint,
		apiKey:   apiKey,
		logger:   logger,
	}
}

// Definition returns the registry definition for this tool.
func (t *PaperSearchTool) Definition() *ToolDefinition {
	return &ToolDefinition{
		Name:        "paper_search",
		Description: "Search academic papers on Semantic Scholar. Returns papers with authors, abstracts, and citation counts. Use year_from to filter recent papers.",
		Category:    "research",
		RiskLevel:   "low",
		Handler:     t.handle,
	}
}

func (t *PaperSearchTool) handle(ctx context.Context, params map[string]any) (map[string]any, error) {
	query := strings.TrimSpace(typeutil.SafeStringDefault(params["query"], ""))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	maxResults := typeutil.SafeIntDefault(params["max_results"], maxPapers)
	if maxResults < 1 || maxResults > maxPapers {
		maxResults = maxPapers
	}
	yearFrom := typeutil.SafeIntDefault(params["year_from"], 0)

	papers, err := t.search(ctx, query, maxResults, yearFrom)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("paper_search_completed", "query", query, "papers", len(papers))

	paperMaps := make([]map[string]any, 0, len(papers))
	for _, p := range papers {
		paperMaps = append(paperMaps, map[string]any{
			"paper_id":       p.PaperID,
			"title":          p.Title,
			"authors":        append([]string(nil), p.Authors...),
			"year":           p.Year,
			"abstract":       p.Abstract,
			"citation_count": p.CitationCount,
			"url":            p.URL,
		})
	}

	return map[string]any{
		"papers":    paperMaps,
		"count":     len(papers),
		"formatted": formatPapers(papers),
	}, nil
}

// searchResponse mirrors the Graph API search payload.
type searchResponse struct {
	Total int            `json:"total"`
	Data  []paperPayload `json:"data"`
}

type paperPayload struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	URL           string `json:"url"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

func (t *PaperSearchTool) search(ctx context.Context, query string, maxResults, yearFrom int) ([]Paper, error) {
	values := url.Values{}
	values.Set("query", query)
	values.Set("limit", fmt.Sprintf("%d", maxResults))
	values.Set("fields", "paperId,title,authors,year,abstract,citationCount,url")
	if yearFrom > 0 {
		values.Set("year", fmt.Sprintf("%d-", yearFrom))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build paper search request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paper search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paper search returned HTTP %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode paper search response: %w", err)
	}

	papers := make([]Paper, 0, len(payload.Data))
	for _, p := range payload.Data {
		if len(papers) >= maxResults {
			break
		}
		if p.Title == "" {
			continue
		}
		authors := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			authors = append(authors, a.Name)
		}
		papers = append(papers, Paper{
			PaperID:       p.PaperID,
			Title:         p.Title,
			Authors:       authors,
			Year:          p.Year,
			Abstract:      truncateRunes(p.Abstract, abstractLimit),
			CitationCount: p.CitationCount,
			URL:           p.URL,
		})
	}

	return papers, nil
}

// formatPapers renders the minimal text block the roles see: title, year,
// truncated authors, truncated abstract.
func formatPapers(papers []Paper) string {
	if len(papers) == 0 {
		return "No academic papers found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d papers:\n", len(papers))
	for i, p := range papers {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, p.Title, formatYear(p.Year))
		fmt.Fprintf(&sb, "   %s\n", formatAuthors(p.Authors))
		if p.Abstract != "" {
			fmt.Fprintf(&sb, "   %s\n", p.Abstract)
		}
	}
	return sb.String()
}

func formatAuthors(authors []string) string {
	if len(authors) <= formattedAuthors {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:formattedAuthors], ", ") + " et al."
}

func formatYear(year int) string {
	if year <= 0 {
		return "n.d."
	}
	return fmt.Sprintf("%d", year)
}
