package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
)

// InsertCompanyMention records a (article, company) pair; duplicates are
// absorbed silently.
func (s *SQLStore) InsertCompanyMention(ctx context.Context, mention domain.CompanyMention) (bool, error) {
	query, args, err := s.builder.
		Insert("article_companies").
		Columns("article_link", "company_name").
		Values(mention.ArticleLink, mention.Company).
		Suffix("ON CONFLICT (article_link, company_name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build company insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert company mention: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("company rows affected: %w", err)
	}
	return affected > 0, nil
}

// InsertCveMention records a (article, cve) pair; duplicates are absorbed
// silently so repeated scans stay idempotent.
func (s *SQLStore) InsertCveMention(ctx context.Context, mention domain.CveMention) (bool, error) {
	query, args, err := s.builder.
		Insert("article_cves").
		Columns("article_link", "cve_id", "published_date").
		Values(mention.ArticleLink, mention.CveID, formatTime(mention.PublishedAt)).
		Suffix("ON CONFLICT (article_link, cve_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build cve mention insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert cve mention: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cve mention rows affected: %w", err)
	}
	return affected > 0, nil
}

// DistinctCveIDs lists every CVE identifier mentioned in any article.
func (s *SQLStore) DistinctCveIDs(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.
		Select("DISTINCT cve_id").
		From("article_cves").
		OrderBy("cve_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distinct cves query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query distinct cves: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cve id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cve ids: %w", err)
	}

	return ids, nil
}

// CveMentionCounts returns the number of distinct mentioning articles per CVE.
// Mention rows are unique per (article, cve), so a plain count is already the
// distinct-article total.
func (s *SQLStore) CveMentionCounts(ctx context.Context) (map[string]int, error) {
	query, args, err := s.builder.
		Select("cve_id", "COUNT(*)").
		From("article_cves").
		GroupBy("cve_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build mention counts query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mention counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan mention count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mention counts: %w", err)
	}

	return counts, nil
}

// HasCveInfo reports whether an enrichment row exists for the identifier.
func (s *SQLStore) HasCveInfo(ctx context.Context, cveID string) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From("cve_info").
		Where(sq.Eq{"cve_id": cveID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build cve info check: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, fmt.Errorf("check cve info: %w", err)
}

// UpdateCveMentionCount resynchronizes the stored mention total of an
// existing enrichment row. A missing row is a no-op; the next enrichment pass
// creates it with the current count.
func (s *SQLStore) UpdateCveMentionCount(ctx context.Context, cveID string, count int) error {
	query, args, err := s.builder.
		Update("cve_info").
		Set("times_mentioned", count).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"cve_id": cveID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mention count update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update mention count: %w", err)
	}
	return nil
}

// UpsertCveInfo inserts the enrichment row or overwrites all enrichable
// fields of the existing one, bumping its updated timestamp.
func (s *SQLStore) UpsertCveInfo(ctx context.Context, info domain.CveInfo) error {
	query, args, err := s.builder.
		Insert("cve_info").
		Columns("cve_id", "base_score", "vendor", "affected_products", "cve_url",
			"vendor_link", "solution", "times_mentioned", "raw_json").
		Values(info.CveID, info.BaseScore, info.Vendor, info.AffectedProducts, info.CveURL,
			info.VendorLink, info.Solution, info.TimesMentioned, string(info.RawJSON)).
		Suffix(`ON CONFLICT (cve_id) DO UPDATE SET
			base_score = excluded.base_score,
			vendor = excluded.vendor,
			affected_products = excluded.affected_products,
			cve_url = excluded.cve_url,
			vendor_link = excluded.vendor_link,
			solution = excluded.solution,
			times_mentioned = excluded.times_mentioned,
			raw_json = excluded.raw_json,
			updated_at = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cve info upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert cve info: %w", err)
	}
	return nil
}
