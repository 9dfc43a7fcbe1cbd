package tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	bravesearch "github.com/cnosuke/go-brave-search"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	htmlScriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	htmlStyleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
)

const (
	defaultFetchChars = 50_000
	maxFetchBody      = 2 << 20
	userAgent         = "Mozilla/5.0 (compatible; sidekick/1.0)"
)

// WebSearch queries Brave Search. Requests share one limiter so concurrent
// subagents stay inside the API plan's rate.
type WebSearch struct {
	brave   *bravesearch.Client
	limiter *rate.Limiter
}

// NewWebSearch builds the tool. An empty apiKey yields a tool that reports
// the missing configuration when called.
func NewWebSearch(apiKey string, limiter *rate.Limiter) *WebSearch {
	w := &WebSearch{limiter: limiter}
	if apiKey != "" {
		client, err := bravesearch.NewClient(apiKey)
		if err != nil {
			slog.Warn("web_search: brave client unavailable", "error", err)
		}
		w.brave = client
	}
	return w
}

// NewSearchLimiter allows rps requests per second with a burst of one.
func NewSearchLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (w *WebSearch) Name() string { return "web_search" }
func (w *WebSearch) Description() string {
	return "Search the web. Returns titles, URLs, and snippets."
}

func (w *WebSearch) Parameters() map[string]any {
	return schema(map[string]any{
		"query": prop("string", "Search query"),
		"count": map[string]any{
			"type":        "integer",
			"description": "Number of results (1-10)",
			"minimum":     1,
			"maximum":     10,
		},
	}, "query")
}

func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (string, error) {
	if w.brave == nil {
		return "", errors.New("web search is not configured (BRAVE_API_KEY missing)")
	}
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", errors.New("query is required")
	}
	count := min(max(intArg(args, "count", 5), 1), 10)

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limit: %w", err)
		}
	}

	slog.Debug("web_search", "query", query, "count", count)
	resp, err := w.brave.WebSearch(ctx, query, &bravesearch.WebSearchParams{
		Count: count,
	})
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	results := resp.GetWebResults()
	if len(results) == 0 {
		return "No results for: " + query, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Description)
	}
	return truncate([]byte(b.String())), nil
}

// WebFetch downloads a page and returns its readable text.
type WebFetch struct {
	client *http.Client
}

func NewWebFetch() *WebFetch {
	return &WebFetch{client: &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

func (w *WebFetch) Name() string { return "web_fetch" }
func (w *WebFetch) Description() string {
	return "Fetch a URL and extract its readable text content."
}

func (w *WebFetch) Parameters() map[string]any {
	return schema(map[string]any{
		"url": prop("string", "URL to fetch"),
		"max_chars": map[string]any{
			"type":        "integer",
			"description": "Maximum characters of text to return",
			"minimum":     100,
		},
	}, "url")
}

func (w *WebFetch) Execute(ctx context.Context, args map[string]any) (string, error) {
	raw := strings.TrimSpace(stringArg(args, "url"))
	if err := validateURL(raw); err != nil {
		return "", err
	}
	maxChars := intArg(args, "max_chars", defaultFetchChars)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	slog.Debug("web_fetch", "url", raw)
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || looksLikeHTML(text) {
		text = extractText(text)
	}
	return fmt.Sprintf("URL: %s\n\n%s", resp.Request.URL, truncateTo([]byte(text), maxChars)), nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https urls are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s[:min(len(s), 256)])
	return strings.Contains(head, "<!doctype") || strings.Contains(head, "<html")
}

func extractText(s string) string {
	s = htmlScriptRe.ReplaceAllString(s, "")
	s = htmlStyleRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
