package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// fallbackCategory absorbs articles the classifier assigns outside the
// configured category set.
const fallbackCategory = "Other"

// GroupingDeps wires stores and the classifier into the grouping engine.
type GroupingDeps struct {
	Articles   ports.ArticleStore
	Groups     ports.GroupStore
	Classifier ports.Classifier
	Categories []string
	MaxTokens  int
	Logger     *slog.Logger
}

// GroupingEngine runs the two-phase topical grouping. Phase 1 assigns every
// ungrouped article one top-level category; phase 2 partitions each category's
// articles into labeled subgroups. A grouped article is terminal: it is never
// re-classified because candidate selection excludes articles with a
// membership row.
type GroupingEngine struct {
	articles   ports.ArticleStore
	groups     ports.GroupStore
	classifier ports.Classifier
	categories []string
	maxTokens  int
	logger     *slog.Logger
}

// NewGroupingEngine constructs the engine from explicit configuration.
func NewGroupingEngine(deps GroupingDeps) *GroupingEngine {
	return &GroupingEngine{
		articles:   deps.Articles,
		groups:     deps.Groups,
		classifier: deps.Classifier,
		categories: deps.Categories,
		maxTokens:  deps.MaxTokens,
		logger:     deps.Logger,
	}
}

// Categories returns the configured ordered category set.
func (g *GroupingEngine) Categories() []string {
	return g.categories
}

// RunPhaseOne categorizes all currently ungrouped articles. Each batch gets
// exactly one classifier call; a failed call leaves that batch's articles
// ungrouped for the next run. Each batch's resulting group and membership
// writes are applied as one atomic unit.
func (g *GroupingEngine) RunPhaseOne(ctx context.Context) error {
	if g.classifier == nil {
		g.debug("phase 1 skipped: no classifier configured")
		return nil
	}

	candidates, err := g.articles.UngroupedArticles(ctx)
	if err != nil {
		return fmt.Errorf("load ungrouped articles: %w", err)
	}
	if len(candidates) == 0 {
		g.debug("no ungrouped articles for phase 1")
		return nil
	}
	g.debug("phase 1 start", "candidates", len(candidates))

	valid := make(map[string]struct{}, len(g.categories))
	for _, category := range g.categories {
		valid[category] = struct{}{}
	}

	for chunk := range batch.Partition(summaryItems(candidates), g.maxTokens) {
		assigned, err := g.classifier.Categorize(ctx, chunk, g.categories)
		if err != nil {
			g.warn("categorize batch failed", "size", len(chunk), "error", err)
			continue
		}

		byCategory := map[string][]string{}
		for _, item := range chunk {
			category, ok := assigned[item.ID]
			if !ok || strings.TrimSpace(category) == "" {
				// Left ungrouped; picked up again on the next run.
				continue
			}
			if _, known := valid[category]; !known {
				category = fallbackCategory
			}
			byCategory[category] = append(byCategory[category], item.ID)
		}

		assignments := g.orderedAssignments(byCategory)
		if len(assignments) == 0 {
			continue
		}
		if err := g.groups.SaveCategoryAssignments(ctx, assignments); err != nil {
			return fmt.Errorf("save category assignments: %w", err)
		}
	}

	return nil
}

// RunPhaseTwo subgroups the articles of one category that have no subgroup
// membership there yet. Proposed labels already present in the category are
// merged into the existing subgroup so labels never fragment across batches.
func (g *GroupingEngine) RunPhaseTwo(ctx context.Context, category string) error {
	if g.classifier == nil {
		return nil
	}

	candidates, err := g.articles.ArticlesNotSubgrouped(ctx, category)
	if err != nil {
		return fmt.Errorf("load subgroup candidates for %s: %w", category, err)
	}
	if len(candidates) == 0 {
		g.debug("no subgroup candidates", "category", category)
		return nil
	}
	g.debug("phase 2 start", "category", category, "candidates", len(candidates))

	for chunk := range batch.Partition(summaryItems(candidates), g.maxTokens) {
		proposals, err := g.classifier.ProposeSubgroups(ctx, chunk, category)
		if err != nil {
			g.warn("subgroup batch failed", "category", category, "size", len(chunk), "error", err)
			continue
		}

		inBatch := make(map[string]struct{}, len(chunk))
		for _, item := range chunk {
			inBatch[item.ID] = struct{}{}
		}

		kept := make([]domain.SubgroupProposal, 0, len(proposals))
		for _, proposal := range proposals {
			if strings.TrimSpace(proposal.Label) == "" {
				continue
			}
			var members []string
			for _, link := range proposal.Articles {
				if _, ok := inBatch[link]; ok {
					members = append(members, link)
				}
			}
			if len(members) == 0 {
				continue
			}
			proposal.Articles = members
			kept = append(kept, proposal)
		}

		if len(kept) == 0 {
			continue
		}
		if err := g.groups.SaveSubgroupBatch(ctx, category, kept); err != nil {
			return fmt.Errorf("save subgroups for %s: %w", category, err)
		}
	}

	return nil
}

// RunPhaseTwoAll runs phase 2 for every configured category in order.
func (g *GroupingEngine) RunPhaseTwoAll(ctx context.Context) error {
	for _, category := range g.categories {
		if err := g.RunPhaseTwo(ctx, category); err != nil {
			return err
		}
	}
	return nil
}

// orderedAssignments emits one assignment per category in the configured
// order, so repeated runs resolve groups deterministically. Phase 1 groups use
// the category itself as the label with an empty sub-topic.
func (g *GroupingEngine) orderedAssignments(byCategory map[string][]string) []domain.GroupAssignment {
	order := g.categories
	if _, listed := byCategory[fallbackCategory]; listed {
		found := false
		for _, category := range order {
			if category == fallbackCategory {
				found = true
				break
			}
		}
		if !found {
			order = append(append([]string{}, order...), fallbackCategory)
		}
	}

	var assignments []domain.GroupAssignment
	for _, category := range order {
		links := byCategory[category]
		if len(links) == 0 {
			continue
		}
		assignments = append(assignments, domain.GroupAssignment{
			MainTopic:  category,
			SubTopic:   "",
			GroupLabel: category,
			Articles:   links,
		})
	}
	return assignments
}

func (g *GroupingEngine) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *GroupingEngine) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
