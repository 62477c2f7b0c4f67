package ports

import (
	"context"
	"errors"
	"time"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/domain"
)

// ErrCveNotFound reports that the registry has no record for an identifier.
var ErrCveNotFound = errors.New("cve not found")

// ArticleSource pulls fresh articles from upstream feeds.
type ArticleSource interface {
	FetchLatest(ctx context.Context) ([]domain.Article, error)
}

// ArticleStore persists raw articles and exposes the candidate selections the
// analysis passes run on.
type ArticleStore interface {
	// InsertArticle stores the article if its link is absent; re-inserting an
	// existing link is a no-op and reports false.
	InsertArticle(ctx context.Context, article domain.Article) (bool, error)
	Articles(ctx context.Context) ([]domain.Article, error)
	UngroupedArticles(ctx context.Context) ([]domain.Article, error)
	ArticlesMissingCompanies(ctx context.Context) ([]domain.Article, error)
	// ArticlesNotSubgrouped returns articles grouped under the category that
	// have no subgroup membership within that category yet.
	ArticlesNotSubgrouped(ctx context.Context, category string) ([]domain.Article, error)
}

// EntityStore persists extracted mentions and CVE enrichment rows.
type EntityStore interface {
	InsertCompanyMention(ctx context.Context, mention domain.CompanyMention) (bool, error)
	InsertCveMention(ctx context.Context, mention domain.CveMention) (bool, error)
	DistinctCveIDs(ctx context.Context) ([]string, error)
	// CveMentionCounts returns the current number of distinct mentioning
	// articles per CVE identifier.
	CveMentionCounts(ctx context.Context) (map[string]int, error)
	HasCveInfo(ctx context.Context, cveID string) (bool, error)
	UpsertCveInfo(ctx context.Context, info domain.CveInfo) error
	// UpdateCveMentionCount overwrites the stored mention total of an existing
	// info row; missing rows are left untouched.
	UpdateCveMentionCount(ctx context.Context, cveID string, count int) error
}

// GroupStore applies one classified batch of group or subgroup results as a
// single atomic unit, so a failed run never leaves a group without members.
type GroupStore interface {
	SaveCategoryAssignments(ctx context.Context, assignments []domain.GroupAssignment) error
	SaveSubgroupBatch(ctx context.Context, category string, proposals []domain.SubgroupProposal) error
}

// ViewStore serves the read-only projections consumed by the dashboard.
// A zero cutoff means no date filter; otherwise articles published at or
// after the cutoff are included.
type ViewStore interface {
	ArticleCounts(ctx context.Context, cutoff time.Time) (domain.ArticleCounts, error)
	CveTable(ctx context.Context, cutoff time.Time) ([]domain.CveSummary, error)
	GroupList(ctx context.Context, cutoff time.Time) ([]domain.GroupSummary, error)
	SubgroupList(ctx context.Context, category string, cutoff time.Time) ([]domain.SubgroupSummary, error)
	CompaniesForArticles(ctx context.Context, links []string) ([]string, error)
}

// Classifier is the external text-classification service, called once per
// batch. Failures are reported per call and recovered at batch granularity.
type Classifier interface {
	// Categorize assigns each article in the batch one category from the
	// fixed list. Articles missing from the result stay unassigned.
	Categorize(ctx context.Context, items []batch.Item, categories []string) (map[string]string, error)
	// ProposeSubgroups clusters the batch into labeled subgroups with
	// generated summaries for the given category.
	ProposeSubgroups(ctx context.Context, items []batch.Item, category string) ([]domain.SubgroupProposal, error)
	// ExtractCompanies returns the company names mentioned per article.
	ExtractCompanies(ctx context.Context, items []batch.Item) (map[string][]string, error)
}

// CveRegistry looks up authoritative CVE metadata by identifier. Lookup
// returns ErrCveNotFound when the registry has no record.
type CveRegistry interface {
	Lookup(ctx context.Context, cveID string) (domain.CveRecord, error)
}

// Scheduler controls when pipeline passes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
