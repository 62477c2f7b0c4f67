package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// ExtractorDeps wires the stores and the classifier into the entity extractor.
type ExtractorDeps struct {
	Articles   ports.ArticleStore
	Entities   ports.EntityStore
	Classifier ports.Classifier
	CvePattern *regexp.Regexp
	MaxTokens  int
	Logger     *slog.Logger
}

// Extractor scans article text for CVE identifiers and delegates company-name
// recognition to the classifier. Both passes are idempotent: mention inserts
// absorb duplicates.
type Extractor struct {
	articles   ports.ArticleStore
	entities   ports.EntityStore
	classifier ports.Classifier
	cvePattern *regexp.Regexp
	maxTokens  int
	logger     *slog.Logger
}

// NewExtractor constructs the entity extraction component.
func NewExtractor(deps ExtractorDeps) *Extractor {
	return &Extractor{
		articles:   deps.Articles,
		entities:   deps.Entities,
		classifier: deps.Classifier,
		cvePattern: deps.CvePattern,
		maxTokens:  deps.MaxTokens,
		logger:     deps.Logger,
	}
}

// ScanCves applies the CVE pattern to every stored article and records each
// distinct match as a mention. Re-running over already-scanned articles
// inserts nothing new.
func (e *Extractor) ScanCves(ctx context.Context) error {
	if e.cvePattern == nil {
		return fmt.Errorf("cve pattern is not configured")
	}

	articles, err := e.articles.Articles(ctx)
	if err != nil {
		return fmt.Errorf("load articles: %w", err)
	}

	inserted := 0
	for _, article := range articles {
		for _, cveID := range findCves(e.cvePattern, article.Content) {
			ok, err := e.entities.InsertCveMention(ctx, domain.CveMention{
				ArticleLink: article.Link,
				CveID:       cveID,
				PublishedAt: article.PublishedAt,
			})
			if err != nil {
				return fmt.Errorf("insert cve mention %s: %w", cveID, err)
			}
			if ok {
				inserted++
			}
		}
	}

	e.debug("cve scan done", "articles", len(articles), "new_mentions", inserted)
	return nil
}

// ExtractCompanies asks the classifier for company names in every article that
// has no company rows yet. A failed classification call skips that batch only.
func (e *Extractor) ExtractCompanies(ctx context.Context) error {
	if e.classifier == nil {
		e.debug("company extraction skipped: no classifier configured")
		return nil
	}

	candidates, err := e.articles.ArticlesMissingCompanies(ctx)
	if err != nil {
		return fmt.Errorf("load extraction candidates: %w", err)
	}
	if len(candidates) == 0 {
		e.debug("all articles already have company extractions")
		return nil
	}

	inserted := 0
	for chunk := range batch.Partition(summaryItems(candidates), e.maxTokens) {
		companies, err := e.classifier.ExtractCompanies(ctx, chunk)
		if err != nil {
			e.warn("company extraction batch failed", "size", len(chunk), "error", err)
			continue
		}

		for _, item := range chunk {
			for _, name := range companies[item.ID] {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				ok, err := e.entities.InsertCompanyMention(ctx, domain.CompanyMention{
					ArticleLink: item.ID,
					Company:     name,
				})
				if err != nil {
					return fmt.Errorf("insert company mention: %w", err)
				}
				if ok {
					inserted++
				}
			}
		}
	}

	e.debug("company extraction done", "candidates", len(candidates), "new_mentions", inserted)
	return nil
}

// findCves returns the distinct CVE identifiers in text, in order of first
// appearance.
func findCves(pattern *regexp.Regexp, text string) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, match := range pattern.FindAllString(text, -1) {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		ids = append(ids, match)
	}
	return ids
}

// summaryItems builds ordered classification items from articles, skipping
// those with blank summaries.
func summaryItems(articles []domain.Article) []batch.Item {
	items := make([]batch.Item, 0, len(articles))
	for _, article := range articles {
		text := strings.TrimSpace(article.Summary())
		if text == "" || text == "-" {
			continue
		}
		items = append(items, batch.Item{ID: article.Link, Text: text})
	}
	return items
}

func (e *Extractor) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Extractor) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
