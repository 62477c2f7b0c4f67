package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"NewsRadar/internal/domain"
)

// SaveCategoryAssignments applies one phase-1 batch atomically. Each
// assignment resolves to an existing group row matched by (main topic, sub
// topic, label) or creates one, then gains membership rows for its articles.
// An article that already holds any membership keeps it; it is never moved.
func (s *SQLStore) SaveCategoryAssignments(ctx context.Context, assignments []domain.GroupAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, assignment := range assignments {
			groupID, err := s.resolveGroup(ctx, tx, assignment)
			if err != nil {
				return err
			}

			added := 0
			for _, link := range assignment.Articles {
				grouped, err := s.hasAnyMembership(ctx, tx, link)
				if err != nil {
					return err
				}
				if grouped {
					continue
				}
				if err := s.insertMembership(ctx, tx, link, groupID); err != nil {
					return err
				}
				added++
			}

			if added > 0 {
				if err := s.touchGroup(ctx, tx, groupID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SaveSubgroupBatch applies one phase-2 batch atomically. Proposals are merged
// into an existing subgroup matched by (category, label) when one exists, so
// no two subgroups in a category ever carry the same label.
func (s *SQLStore) SaveSubgroupBatch(ctx context.Context, category string, proposals []domain.SubgroupProposal) error {
	if len(proposals) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, proposal := range proposals {
			subgroupID, err := s.resolveSubgroup(ctx, tx, category, proposal)
			if err != nil {
				return err
			}

			for _, link := range proposal.Articles {
				query, args, err := s.builder.
					Insert("two_phase_subgroup_memberships").
					Columns("article_link", "subgroup_id").
					Values(link, subgroupID).
					Suffix("ON CONFLICT (article_link, subgroup_id) DO NOTHING").
					ToSql()
				if err != nil {
					return fmt.Errorf("build subgroup membership insert: %w", err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("insert subgroup membership: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *SQLStore) resolveGroup(ctx context.Context, tx *sql.Tx, assignment domain.GroupAssignment) (int64, error) {
	query, args, err := s.builder.
		Select("group_id").
		From("two_phase_article_groups").
		Where(sq.Eq{
			"main_topic":  assignment.MainTopic,
			"sub_topic":   assignment.SubTopic,
			"group_label": assignment.GroupLabel,
		}).
		OrderBy("group_id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build group lookup: %w", err)
	}

	var groupID int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&groupID)
	if err == nil {
		return groupID, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("lookup group: %w", err)
	}

	query, args, err = s.builder.
		Insert("two_phase_article_groups").
		Columns("main_topic", "sub_topic", "group_label").
		Values(assignment.MainTopic, assignment.SubTopic, assignment.GroupLabel).
		Suffix("RETURNING group_id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build group insert: %w", err)
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&groupID); err != nil {
		return 0, fmt.Errorf("insert group: %w", err)
	}
	return groupID, nil
}

func (s *SQLStore) resolveSubgroup(ctx context.Context, tx *sql.Tx, category string, proposal domain.SubgroupProposal) (int64, error) {
	query, args, err := s.builder.
		Select("subgroup_id").
		From("two_phase_subgroups").
		Where(sq.Eq{"category": category, "group_label": proposal.Label}).
		OrderBy("subgroup_id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build subgroup lookup: %w", err)
	}

	var subgroupID int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&subgroupID)
	if err == nil {
		// Merge into the existing subgroup; the first summary wins.
		return subgroupID, s.touchSubgroup(ctx, tx, subgroupID)
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("lookup subgroup: %w", err)
	}

	query, args, err = s.builder.
		Insert("two_phase_subgroups").
		Columns("category", "group_label", "summary").
		Values(category, proposal.Label, proposal.Summary).
		Suffix("RETURNING subgroup_id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build subgroup insert: %w", err)
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&subgroupID); err != nil {
		return 0, fmt.Errorf("insert subgroup: %w", err)
	}
	return subgroupID, nil
}

func (s *SQLStore) hasAnyMembership(ctx context.Context, tx *sql.Tx, link string) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From("two_phase_article_group_memberships").
		Where(sq.Eq{"article_link": link}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build membership check: %w", err)
	}

	var one int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, fmt.Errorf("check membership: %w", err)
}

func (s *SQLStore) insertMembership(ctx context.Context, tx *sql.Tx, link string, groupID int64) error {
	query, args, err := s.builder.
		Insert("two_phase_article_group_memberships").
		Columns("article_link", "group_id").
		Values(link, groupID).
		Suffix("ON CONFLICT (article_link, group_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build membership insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *SQLStore) touchGroup(ctx context.Context, tx *sql.Tx, groupID int64) error {
	query, args, err := s.builder.
		Update("two_phase_article_groups").
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"group_id": groupID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build group touch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch group: %w", err)
	}
	return nil
}

func (s *SQLStore) touchSubgroup(ctx context.Context, tx *sql.Tx, subgroupID int64) error {
	query, args, err := s.builder.
		Update("two_phase_subgroups").
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"subgroup_id": subgroupID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build subgroup touch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch subgroup: %w", err)
	}
	return nil
}
