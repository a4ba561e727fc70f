package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

// FetcherConfig configures URL ingestion.
type FetcherConfig struct {
	// Parallelism is max concurrent requests per domain.
	Parallelism int
	// Delay between requests to the same domain.
	Delay time.Duration
	// Timeout per request.
	Timeout time.Duration
	// MaxBodyBytes caps a fetched response body.
	MaxBodyBytes int64
	// UserAgent sent with requests.
	UserAgent string
}

// Fetcher fetches a URL and extracts its main textual content.
// Readability extraction is attempted first; when it yields nothing (e.g.
// non-article pages), the whole document text minus script/style is used.
type Fetcher struct {
	cfg    FetcherConfig
	logger *slog.Logger
}

// NewFetcher creates a URL fetcher.
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "forge-ingest/1.0"
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Fetch downloads rawURL and returns its extracted content as a Source.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Source{}, fmt.Errorf("invalid URL %q", rawURL)
	}

	body, err := f.download(rawURL)
	if err != nil {
		return Source{}, err
	}

	title, content := f.extract(body, parsed)
	if content == "" {
		return Source{}, fmt.Errorf("no textual content extracted from %q", rawURL)
	}
	if title == "" {
		title = rawURL
	}

	f.logger.Debug("fetched url", "url", rawURL, "title", title, "content_length", len(content))

	return Source{
		ID:         contentID("url", rawURL),
		Title:      title,
		Content:    content,
		SourceType: SourceTypeURL,
		SourceURL:  rawURL,
		Metadata:   map[string]string{"host": parsed.Host},
	}, nil
}

// download retrieves the raw response body with colly, honoring the
// configured per-domain limits.
func (f *Fetcher) download(rawURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	c.MaxBodySize = int(f.cfg.MaxBodyBytes)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.cfg.Parallelism,
		Delay:       f.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configuring fetch limits: %w", err)
	}

	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetching %q: %w", rawURL, err)
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetching %q: %w", rawURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %q", rawURL)
	}
	return body, nil
}

// extract pulls the page title and main text out of an HTML body.
func (f *Fetcher) extract(body []byte, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.Title), normalizeWhitespace(article.TextContent)
	}

	// Fallback: whole-document text with script/style stripped.
	if doc, qErr := goquery.NewDocumentFromReader(bytes.NewReader(body)); qErr == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	content = normalizeWhitespace(stripMarkup(body))
	return title, content
}

// stripMarkup extracts the text nodes of an HTML document, skipping
// script, style and noscript subtrees.
func stripMarkup(body []byte) string {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return sb.String()
}
