package usecase

import (
	"context"
	"fmt"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// DateFilter expresses the dashboard date presets as an hour window. Zero
// hours means all time. The boundary is inclusive: an article published
// exactly Hours ago is still included.
type DateFilter struct {
	Hours int
}

// Cutoff converts the filter into the store's cutoff convention (zero time =
// no filter).
func (f DateFilter) Cutoff(now time.Time) time.Time {
	if f.Hours <= 0 {
		return time.Time{}
	}
	return now.UTC().Add(-time.Duration(f.Hours) * time.Hour)
}

// DashboardSnapshot bundles the headline projections for one date filter.
type DashboardSnapshot struct {
	Counts domain.ArticleCounts
	Cves   []domain.CveSummary
	Groups []domain.GroupSummary
}

// DashboardViews composes the read-only store projections for display.
type DashboardViews struct {
	store ports.ViewStore
}

// NewDashboardViews wraps the view store.
func NewDashboardViews(store ports.ViewStore) *DashboardViews {
	return &DashboardViews{store: store}
}

// Snapshot loads the article counts, the CVE table, and the group listing for
// the filter in one pass.
func (v *DashboardViews) Snapshot(ctx context.Context, now time.Time, filter DateFilter) (DashboardSnapshot, error) {
	cutoff := filter.Cutoff(now)

	counts, err := v.store.ArticleCounts(ctx, cutoff)
	if err != nil {
		return DashboardSnapshot{}, fmt.Errorf("article counts: %w", err)
	}

	cves, err := v.store.CveTable(ctx, cutoff)
	if err != nil {
		return DashboardSnapshot{}, fmt.Errorf("cve table: %w", err)
	}

	groups, err := v.store.GroupList(ctx, cutoff)
	if err != nil {
		return DashboardSnapshot{}, fmt.Errorf("group list: %w", err)
	}

	return DashboardSnapshot{Counts: counts, Cves: cves, Groups: groups}, nil
}

// Subgroups lists the category's subgroups with article counts restricted to
// the filter.
func (v *DashboardViews) Subgroups(ctx context.Context, now time.Time, category string, filter DateFilter) ([]domain.SubgroupSummary, error) {
	subgroups, err := v.store.SubgroupList(ctx, category, filter.Cutoff(now))
	if err != nil {
		return nil, fmt.Errorf("subgroup list: %w", err)
	}
	return subgroups, nil
}

// Companies returns the distinct company names mentioned across the given
// article links.
func (v *DashboardViews) Companies(ctx context.Context, links []string) ([]string, error) {
	companies, err := v.store.CompaniesForArticles(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("companies for articles: %w", err)
	}
	return companies, nil
}
