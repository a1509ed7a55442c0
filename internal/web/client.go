// Package web searches the web and fetches readable page text
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

const (
	defaultSearchURL = "https://html.duckduckgo.com/html/"
	userAgent        = "steward/1.0 (+personal assistant)"
	maxBodyBytes     = 2 << 20
	maxTextChars     = 15000
	cacheEntries     = 128
	cacheTTL         = 15 * time.Minute
)

// Client implements search and fetch over plain HTTP
type Client struct {
	httpClient *http.Client
	searchURL  string
	pages      *expirable.LRU[string, types.WebPage]
}

// Config holds web client configuration
type Config struct {
	SearchURL  string // DuckDuckGo HTML endpoint, overridable for tests
	HTTPClient *http.Client
}

// NewClient creates a client
func NewClient(cfg Config) *Client {
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		searchURL:  cfg.SearchURL,
		pages:      expirable.NewLRU[string, types.WebPage](cacheEntries, nil, cacheTTL),
	}
}

func (c *Client) get(ctx context.Context, rawURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &retry.StatusError{Service: "web", Code: resp.StatusCode, Message: resp.Status}
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("parse HTML: %w", err)
	}
	return doc, resp.Request.URL.String(), nil
}

// Search returns up to limit results from the DuckDuckGo HTML endpoint
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	u, err := url.Parse(c.searchURL)
	if err != nil {
		return nil, fmt.Errorf("search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	doc, _, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var results []types.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if !ok || title == "" {
			return true
		}
		results = append(results, types.SearchResult{
			Title:   title,
			URL:     resultURL(href),
			Snippet: collapse(s.Find(".result__snippet").Text()),
		})
		return len(results) < limit
	})
	logging.Debug("web", "search %q: %d result(s)", query, len(results))
	return results, nil
}

// resultURL unwraps DuckDuckGo redirect links
func resultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Fetch returns the title and readable text of a page. Pages are cached
// for a few minutes.
func (c *Client) Fetch(ctx context.Context, rawURL string) (types.WebPage, error) {
	if page, ok := c.pages.Get(rawURL); ok {
		logging.Debug("web", "cache hit %s", rawURL)
		return page, nil
	}
	doc, finalURL, err := c.get(ctx, rawURL)
	if err != nil {
		return types.WebPage{}, err
	}
	page := types.WebPage{
		URL:   finalURL,
		Title: collapse(doc.Find("title").First().Text()),
		Text:  readableText(doc),
	}
	c.pages.Add(rawURL, page)
	return page, nil
}

// readableText keeps headings, paragraphs and list items in document order
func readableText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, iframe, noscript, form").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			b.WriteString("- ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})
	text := strings.TrimSpace(b.String())
	if text == "" {
		text = collapse(doc.Find("body").Text())
	}
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}
	return text
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
