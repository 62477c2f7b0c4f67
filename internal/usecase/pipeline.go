package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsRadar/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ArticleSource
	Articles   ports.ArticleStore
	Extractor  *Extractor
	Enricher   *CveEnricher
	Grouping   *GroupingEngine
	RefreshCve bool
	Logger     *slog.Logger
}

// Pipeline runs the sequential passes of one aggregation cycle: ingest fresh
// articles, extract entities, enrich CVEs, then the two grouping phases.
// Passes share no state outside the store, so an aborted run leaves committed
// batches intact and the rest re-processable.
type Pipeline struct {
	source     ports.ArticleSource
	articles   ports.ArticleStore
	extractor  *Extractor
	enricher   *CveEnricher
	grouping   *GroupingEngine
	refreshCve bool
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		articles:   deps.Articles,
		extractor:  deps.Extractor,
		enricher:   deps.Enricher,
		grouping:   deps.Grouping,
		refreshCve: deps.RefreshCve,
		logger:     deps.Logger,
	}
}

// Run executes one full pass. A source failure is logged and skipped so the
// analysis passes still run over already-stored articles.
func (p *Pipeline) Run(ctx context.Context, now time.Time) error {
	if err := p.ingest(ctx, now); err != nil {
		p.warn("ingest pass failed", "error", err)
	}

	if p.extractor != nil {
		if err := p.extractor.ExtractCompanies(ctx); err != nil {
			return fmt.Errorf("extract companies: %w", err)
		}
		if err := p.extractor.ScanCves(ctx); err != nil {
			return fmt.Errorf("scan cves: %w", err)
		}
	}

	if p.enricher != nil {
		if err := p.enricher.Run(ctx, p.refreshCve); err != nil {
			return fmt.Errorf("enrich cves: %w", err)
		}
	}

	if p.grouping != nil {
		if err := p.grouping.RunPhaseOne(ctx); err != nil {
			return fmt.Errorf("grouping phase 1: %w", err)
		}
		if err := p.grouping.RunPhaseTwoAll(ctx); err != nil {
			return fmt.Errorf("grouping phase 2: %w", err)
		}
	}

	p.debug("pipeline run complete")
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, now time.Time) error {
	if p.source == nil || p.articles == nil {
		return nil
	}

	fetched, err := p.source.FetchLatest(ctx)
	if err != nil {
		return fmt.Errorf("fetch latest: %w", err)
	}

	stored := 0
	for _, article := range fetched {
		if article.Link == "" {
			continue
		}
		if article.PublishedAt.IsZero() {
			article.PublishedAt = now
		}
		article.PublishedAt = article.PublishedAt.UTC()

		inserted, err := p.articles.InsertArticle(ctx, article)
		if err != nil {
			return fmt.Errorf("insert article %s: %w", article.Link, err)
		}
		if inserted {
			stored++
		}
	}

	p.debug("ingest done", "fetched", len(fetched), "stored", stored)
	return nil
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
