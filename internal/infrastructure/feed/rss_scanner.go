// Package feed implements article acquisition via scanner strategies. The RSS
// scanner covers every feed-based site; new strategies register themselves in
// the scanner registry under their own name.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/scanner"
)

// RSSScanner polls RSS/Atom feeds and fetches each entry's page to extract
// the article body.
type RSSScanner struct {
	parser *gofeed.Parser
	client *http.Client
}

// NewRSSScanner wires an HTTP client shared by the feed parser and the page
// fetcher.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	return &RSSScanner{parser: parser, client: client}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan walks every configured feed and returns one article per entry. Entries
// without a usable link are skipped; a feed that cannot be parsed fails the
// whole scan so the caller can log the site.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	if len(req.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	results := make([]domain.Article, 0)
	seen := map[string]struct{}{}

	for _, feed := range req.Feeds {
		parsed, err := r.parser.ParseURLWithContext(feed.URL, ctx)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
		}

		for _, item := range parsed.Items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}

			publishedAt := time.Now().UTC()
			if item.PublishedParsed != nil {
				publishedAt = item.PublishedParsed.UTC()
			} else if item.UpdatedParsed != nil {
				publishedAt = item.UpdatedParsed.UTC()
			}

			content := r.fetchBody(ctx, link)
			if content == "" {
				content = fallbackContent(item)
			}

			results = append(results, domain.Article{
				Link:        link,
				Title:       strings.TrimSpace(item.Title),
				Content:     content,
				Source:      req.SiteName,
				PublishedAt: publishedAt,
			})
		}
	}

	return results, nil
}

// fetchBody downloads the article page and joins its paragraph text. An
// unreachable or unparseable page yields an empty string; the caller falls
// back to the feed-provided summary.
func (r *RSSScanner) fetchBody(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "NewsRadar/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	var paragraphs []string
	doc.Find("article p, main p, p").Each(func(i int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(dedupeOrdered(paragraphs), "\n\n")
}

func fallbackContent(item *gofeed.Item) string {
	if content := strings.TrimSpace(item.Content); content != "" {
		return content
	}
	return strings.TrimSpace(item.Description)
}

// dedupeOrdered removes duplicate paragraphs the selector union can produce
// while keeping document order.
func dedupeOrdered(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
