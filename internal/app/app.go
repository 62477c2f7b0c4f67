// Package app wires configuration into the running application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"NewsRadar/internal/config"
	"NewsRadar/internal/infrastructure/feed"
	"NewsRadar/internal/infrastructure/llm"
	"NewsRadar/internal/infrastructure/registry"
	"NewsRadar/internal/infrastructure/scheduler"
	"NewsRadar/internal/infrastructure/storage"
	"NewsRadar/internal/logging"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/scanner"
	"NewsRadar/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.SQLStore
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.DSN, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	cvePattern, err := regexp.Compile(cfg.Grouping.CvePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid cve pattern %q: %w", cfg.Grouping.CvePattern, err)
	}

	reg := scanner.NewRegistry()
	reg.Register(feed.NewRSSScanner(nil))

	source := feed.NewStrategySource(reg, cfg.Sites, baseLogger.With("component", "source"))

	var classifier ports.Classifier
	if cfg.Classifier.APIKey != "" {
		classifier = llm.NewClassifier(cfg.Classifier, baseLogger.With("component", "classifier"))
	} else {
		baseLogger.Warn("no classifier api key configured; classification passes will be skipped")
	}

	cveRegistry := registry.NewClient(cfg.Registry.BaseURL, nil)

	extractor := usecase.NewExtractor(usecase.ExtractorDeps{
		Articles:   store,
		Entities:   store,
		Classifier: classifier,
		CvePattern: cvePattern,
		MaxTokens:  cfg.Grouping.MaxTokensPerBatch,
		Logger:     baseLogger.With("component", "extractor"),
	})

	enricher := usecase.NewCveEnricher(usecase.CveEnricherDeps{
		Entities: store,
		Registry: cveRegistry,
		Logger:   baseLogger.With("component", "enricher"),
	})

	grouping := usecase.NewGroupingEngine(usecase.GroupingDeps{
		Articles:   store,
		Groups:     store,
		Classifier: classifier,
		Categories: cfg.Grouping.Categories,
		MaxTokens:  cfg.Grouping.MaxTokensPerBatch,
		Logger:     baseLogger.With("component", "grouping"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Articles:   store,
		Extractor:  extractor,
		Enricher:   enricher,
		Grouping:   grouping,
		RefreshCve: cfg.Grouping.RefreshCveInfo,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	var sched *usecase.Scheduler
	if cfg.Scheduler.CronExpression != "" {
		driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
		sched = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		pipeline:  pipeline,
		scheduler: sched,
	}, nil
}

// Run initializes the schema, executes one immediate pipeline pass, and then
// either returns (no cron configured) or keeps running on the schedule until
// the context is canceled.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	now := time.Now().In(a.cfg.Scheduler.Location())
	if err := a.pipeline.Run(ctx, now); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if a.scheduler == nil {
		return nil
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}
