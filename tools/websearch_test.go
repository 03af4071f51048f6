package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchResultPage = `
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Documentation</a>
  <a class="result__snippet" href="#">Official docs for the Go language.</a>
</div>
<div class="result">
  <a class="result__a" href="https://pkg.go.dev/">pkg.go.dev</a>
  <a class="result__snippet" href="#">Package discovery site.</a>
</div>
`

func TestParseSearchResults(t *testing.T) {
	results := parseSearchResults(searchResultPage)
	require.Len(t, results, 2)

	assert.Contains(t, results[0], "Title: The Go Documentation")
	assert.Contains(t, results[0], "Link: https://go.dev/doc/")
	assert.Contains(t, results[0], "Description: Official docs for the Go language.")

	assert.Contains(t, results[1], "Link: https://pkg.go.dev/")
}

func TestParseSearchResultsLimit(t *testing.T) {
	page := ""
	for i := 0; i < 10; i++ {
		page += fmt.Sprintf(`<a class="result__a" href="https://example.com/%d">Result %d</a>`, i, i)
	}
	results := parseSearchResults(page)
	assert.Len(t, results, searchResultLimit)
}

func TestCleanRedirectURL(t *testing.T) {
	assert.Equal(t, "https://go.dev/doc/",
		cleanRedirectURL("//duckduckgo.com/l/?uddg="+url.QueryEscape("https://go.dev/doc/")+"&rut=abc"))
	assert.Equal(t, "https://pkg.go.dev/", cleanRedirectURL("https://pkg.go.dev/"))
	assert.Equal(t, "https://example.com", cleanRedirectURL("//example.com"))
}

func TestWebSearchExecute(t *testing.T) {
	var gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, searchResultPage)
	}))
	defer server.Close()

	// Rewrite every request to the test server.
	client := &http.Client{Transport: &rewriteTransport{target: server.URL}}
	tool := &WebSearchTool{HTTPClient: client}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "golang docs",
	})
	require.NoError(t, err)
	assert.Equal(t, "golang docs", gotQuery)
	assert.NotEmpty(t, gotUA)

	results := payload["results"].([]string)
	assert.Len(t, results, 2)
}

func TestWebSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no results markup</body></html>")
	}))
	defer server.Close()

	client := &http.Client{Transport: &rewriteTransport{target: server.URL}}
	tool := &WebSearchTool{HTTPClient: client}

	_, err := tool.Execute(context.Background(), map[string]interface{}{"query": "nothing"})
	assert.Error(t, err)
}

type rewriteTransport struct {
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = targetURL.Scheme
	req.URL.Host = targetURL.Host
	return http.DefaultTransport.RoundTrip(req)
}
