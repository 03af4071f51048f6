package tools

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/duneagent/dune/errors"
)

const searchResultLimit = 5

// WebSearchTool queries the DuckDuckGo HTML endpoint and returns the top
// results as formatted text blocks.
type WebSearchTool struct {
	// HTTPClient may be replaced in tests; the zero value uses a 30s timeout.
	HTTPClient *http.Client
}

func (t *WebSearchTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "web_search",
		Description: "Search the web for information on a given query and return the top results.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"query": {Type: "string", Description: "The search query."},
			},
			Required: []string{"query"},
		},
	}
}

var (
	resultLinkRe    = regexp.MustCompile(`(?s)class="result__a"[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	resultSnippetRe = regexp.MustCompile(`(?s)class="result__snippet"[^>]*>(.*?)</a>`)
	tagRe           = regexp.MustCompile(`<[^>]+>`)
)

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build search request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dune/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("search request returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read search response")
	}

	results := parseSearchResults(string(body))
	if len(results) == 0 {
		return nil, errors.New("no search results found for '%s'", query)
	}
	return map[string]interface{}{"results": results}, nil
}

// parseSearchResults extracts title/link/snippet blocks from the DuckDuckGo
// HTML page. The parsing is intentionally loose: the page layout is not an
// API contract, so anything unrecognized is simply skipped.
func parseSearchResults(page string) []string {
	links := resultLinkRe.FindAllStringSubmatch(page, searchResultLimit)
	snippets := resultSnippetRe.FindAllStringSubmatch(page, searchResultLimit)

	var results []string
	for i, link := range links {
		title := cleanHTML(link[2])
		href := cleanRedirectURL(link[1])
		snippet := ""
		if i < len(snippets) {
			snippet = cleanHTML(snippets[i][1])
		}
		block := "Title: " + title + "\nLink: " + href
		if snippet != "" {
			block += "\nDescription: " + snippet
		}
		results = append(results, block)
	}
	return results
}

func cleanHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s, "")))
}

// cleanRedirectURL unwraps DuckDuckGo's /l/?uddg= redirect links.
func cleanRedirectURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}
