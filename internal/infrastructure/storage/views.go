package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
)

// ArticleCounts returns the dashboard headline numbers, optionally restricted
// to articles published at or after the cutoff.
func (s *SQLStore) ArticleCounts(ctx context.Context, cutoff time.Time) (domain.ArticleCounts, error) {
	var counts domain.ArticleCounts

	totalQ := s.builder.Select("COUNT(*)").From("articles a")
	groupedQ := s.builder.
		Select("COUNT(DISTINCT m.article_link)", "COUNT(DISTINCT m.group_id)").
		From("two_phase_article_group_memberships m").
		Join("articles a ON a.link = m.article_link")
	if !cutoff.IsZero() {
		totalQ = totalQ.Where(sq.GtOrEq{"a.published_date": formatTime(cutoff)})
		groupedQ = groupedQ.Where(sq.GtOrEq{"a.published_date": formatTime(cutoff)})
	}

	query, args, err := totalQ.ToSql()
	if err != nil {
		return counts, fmt.Errorf("build total count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total); err != nil {
		return counts, fmt.Errorf("count articles: %w", err)
	}

	query, args, err = groupedQ.ToSql()
	if err != nil {
		return counts, fmt.Errorf("build grouped count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Grouped, &counts.Groups); err != nil {
		return counts, fmt.Errorf("count grouped articles: %w", err)
	}

	counts.Ungrouped = counts.Total - counts.Grouped
	return counts, nil
}

// CveTable builds the dashboard CVE summary: one row per mentioned CVE with
// aggregated mention stats joined against enrichment data, sorted by times
// seen descending then identifier.
func (s *SQLStore) CveTable(ctx context.Context, cutoff time.Time) ([]domain.CveSummary, error) {
	mentionsQ := s.builder.
		Select("ac.cve_id", "ac.article_link", "a.published_date").
		From("article_cves ac").
		Join("articles a ON ac.article_link = a.link")
	if !cutoff.IsZero() {
		mentionsQ = mentionsQ.Where(sq.GtOrEq{"a.published_date": formatTime(cutoff)})
	}

	query, args, err := mentionsQ.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cve mentions query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cve mentions: %w", err)
	}
	defer rows.Close()

	summaries := map[string]*domain.CveSummary{}
	var order []string
	for rows.Next() {
		var (
			cveID     string
			link      string
			published sql.NullString
		)
		if err := rows.Scan(&cveID, &link, &published); err != nil {
			return nil, fmt.Errorf("scan cve mention: %w", err)
		}

		summary, ok := summaries[cveID]
		if !ok {
			summary = &domain.CveSummary{CveID: cveID}
			summaries[cveID] = summary
			order = append(order, cveID)
		}
		summary.TimesSeen++
		summary.ArticleLinks = append(summary.ArticleLinks, link)

		if published.Valid {
			at := parseTime(published.String)
			if summary.FirstMention.IsZero() || at.Before(summary.FirstMention) {
				summary.FirstMention = at
			}
			if at.After(summary.LastMention) {
				summary.LastMention = at
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cve mentions: %w", err)
	}
	if len(order) == 0 {
		return nil, nil
	}

	if err := s.attachCveInfo(ctx, summaries); err != nil {
		return nil, err
	}

	table := make([]domain.CveSummary, 0, len(order))
	for _, id := range order {
		table = append(table, *summaries[id])
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].TimesSeen != table[j].TimesSeen {
			return table[i].TimesSeen > table[j].TimesSeen
		}
		return table[i].CveID < table[j].CveID
	})
	return table, nil
}

func (s *SQLStore) attachCveInfo(ctx context.Context, summaries map[string]*domain.CveSummary) error {
	query, args, err := s.builder.
		Select("cve_id", "base_score", "vendor", "affected_products", "cve_url", "vendor_link", "solution").
		From("cve_info").
		ToSql()
	if err != nil {
		return fmt.Errorf("build cve info query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query cve info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cveID    string
			score    sql.NullFloat64
			vendor   sql.NullString
			products sql.NullString
			cveURL   sql.NullString
			vendURL  sql.NullString
			solution sql.NullString
		)
		if err := rows.Scan(&cveID, &score, &vendor, &products, &cveURL, &vendURL, &solution); err != nil {
			return fmt.Errorf("scan cve info: %w", err)
		}

		summary, ok := summaries[cveID]
		if !ok {
			continue
		}
		if score.Valid {
			value := score.Float64
			summary.BaseScore = &value
		}
		summary.Vendor = vendor.String
		summary.AffectedProducts = products.String
		summary.CveURL = cveURL.String
		summary.VendorLink = vendURL.String
		summary.Solution = solution.String
	}
	return rows.Err()
}

// GroupList returns all phase-1 groups with their article counts restricted
// to the date filter, largest first.
func (s *SQLStore) GroupList(ctx context.Context, cutoff time.Time) ([]domain.GroupSummary, error) {
	builder := s.builder.
		Select("g.group_id", "g.main_topic", "g.sub_topic", "g.group_label",
			"g.updated_at", "COUNT(a.link) AS article_count").
		From("two_phase_article_groups g").
		LeftJoin("two_phase_article_group_memberships m ON m.group_id = g.group_id")
	if cutoff.IsZero() {
		builder = builder.LeftJoin("articles a ON a.link = m.article_link")
	} else {
		builder = builder.LeftJoin(
			"articles a ON a.link = m.article_link AND a.published_date >= ?",
			formatTime(cutoff))
	}
	builder = builder.
		GroupBy("g.group_id", "g.main_topic", "g.sub_topic", "g.group_label", "g.updated_at").
		OrderBy("article_count DESC", "g.updated_at DESC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build group list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group list: %w", err)
	}
	defer rows.Close()

	var groups []domain.GroupSummary
	for rows.Next() {
		var (
			group   domain.GroupSummary
			updated sql.NullString
		)
		if err := rows.Scan(&group.GroupID, &group.MainTopic, &group.SubTopic,
			&group.GroupLabel, &updated, &group.ArticleCount); err != nil {
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		if updated.Valid {
			group.UpdatedAt = parseTime(updated.String)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group list: %w", err)
	}
	return groups, nil
}

// SubgroupList returns the category's subgroups with date-filtered article
// counts, most recently updated first.
func (s *SQLStore) SubgroupList(ctx context.Context, category string, cutoff time.Time) ([]domain.SubgroupSummary, error) {
	builder := s.builder.
		Select("sg.subgroup_id", "sg.category", "sg.group_label", "sg.summary",
			"sg.updated_at", "COUNT(a.link) AS article_count").
		From("two_phase_subgroups sg").
		LeftJoin("two_phase_subgroup_memberships sm ON sm.subgroup_id = sg.subgroup_id")
	if cutoff.IsZero() {
		builder = builder.LeftJoin("articles a ON a.link = sm.article_link")
	} else {
		builder = builder.LeftJoin(
			"articles a ON a.link = sm.article_link AND a.published_date >= ?",
			formatTime(cutoff))
	}
	builder = builder.
		Where(sq.Eq{"sg.category": category}).
		GroupBy("sg.subgroup_id", "sg.category", "sg.group_label", "sg.summary", "sg.updated_at").
		OrderBy("sg.updated_at DESC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subgroup list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subgroup list: %w", err)
	}
	defer rows.Close()

	var subgroups []domain.SubgroupSummary
	for rows.Next() {
		var (
			subgroup domain.SubgroupSummary
			summary  sql.NullString
			updated  sql.NullString
		)
		if err := rows.Scan(&subgroup.SubgroupID, &subgroup.Category, &subgroup.GroupLabel,
			&summary, &updated, &subgroup.ArticleCount); err != nil {
			return nil, fmt.Errorf("scan subgroup summary: %w", err)
		}
		subgroup.Summary = summary.String
		if updated.Valid {
			subgroup.UpdatedAt = parseTime(updated.String)
		}
		subgroups = append(subgroups, subgroup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subgroup list: %w", err)
	}
	return subgroups, nil
}

// CompaniesForArticles returns the distinct company names mentioned across
// the given article links, sorted alphabetically.
func (s *SQLStore) CompaniesForArticles(ctx context.Context, links []string) ([]string, error) {
	if len(links) == 0 {
		return nil, nil
	}

	query, args, err := s.builder.
		Select("DISTINCT company_name").
		From("article_companies").
		Where(sq.Eq{"article_link": links}).
		OrderBy("company_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build companies query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var companies []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}
