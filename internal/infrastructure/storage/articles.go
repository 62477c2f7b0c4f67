package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
)

var articleColumns = []string{"a.link", "a.title", "a.content", "a.source", "a.published_date"}

// InsertArticle stores the article unless its link already exists. Reports
// whether a row was written.
func (s *SQLStore) InsertArticle(ctx context.Context, article domain.Article) (bool, error) {
	query, args, err := s.builder.
		Insert("articles").
		Columns("link", "title", "content", "source", "published_date").
		Values(article.Link, article.Title, article.Content, article.Source, formatTime(article.PublishedAt)).
		Suffix("ON CONFLICT (link) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build article insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("article rows affected: %w", err)
	}
	return affected > 0, nil
}

// Articles returns every stored article, newest first.
func (s *SQLStore) Articles(ctx context.Context) ([]domain.Article, error) {
	builder := s.builder.
		Select(articleColumns...).
		From("articles a").
		OrderBy("a.published_date DESC")

	return s.queryArticles(ctx, builder)
}

// UngroupedArticles returns articles without any phase-1 group membership.
func (s *SQLStore) UngroupedArticles(ctx context.Context) ([]domain.Article, error) {
	builder := s.builder.
		Select(articleColumns...).
		From("articles a").
		Where(`NOT EXISTS (
			SELECT 1 FROM two_phase_article_group_memberships m
			WHERE m.article_link = a.link
		)`).
		OrderBy("a.published_date DESC")

	return s.queryArticles(ctx, builder)
}

// ArticlesMissingCompanies returns articles with no company extraction rows.
func (s *SQLStore) ArticlesMissingCompanies(ctx context.Context) ([]domain.Article, error) {
	builder := s.builder.
		Select(articleColumns...).
		From("articles a").
		Where(`NOT EXISTS (
			SELECT 1 FROM article_companies ac
			WHERE ac.article_link = a.link
		)`).
		OrderBy("a.published_date DESC")

	return s.queryArticles(ctx, builder)
}

// ArticlesNotSubgrouped returns articles grouped under the category that have
// no subgroup membership within that category.
func (s *SQLStore) ArticlesNotSubgrouped(ctx context.Context, category string) ([]domain.Article, error) {
	builder := s.builder.
		Select(articleColumns...).
		From("articles a").
		Join("two_phase_article_group_memberships m ON m.article_link = a.link").
		Join("two_phase_article_groups g ON g.group_id = m.group_id").
		Where(sq.Eq{"g.main_topic": category}).
		Where(`NOT EXISTS (
			SELECT 1 FROM two_phase_subgroup_memberships sm
			JOIN two_phase_subgroups sg ON sg.subgroup_id = sm.subgroup_id
			WHERE sm.article_link = a.link AND sg.category = ?
		)`, category).
		OrderBy("a.published_date DESC")

	return s.queryArticles(ctx, builder)
}

func (s *SQLStore) queryArticles(ctx context.Context, builder sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var (
			article   domain.Article
			published sql.NullString
		)
		if err := rows.Scan(&article.Link, &article.Title, &article.Content, &article.Source, &published); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if published.Valid {
			article.PublishedAt = parseTime(published.String)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}

	return articles, nil
}
