package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// CveEnricherDeps wires the entity store and the registry into the enricher.
type CveEnricherDeps struct {
	Entities ports.EntityStore
	Registry ports.CveRegistry
	Logger   *slog.Logger
}

// CveEnricher resolves every distinct mentioned CVE against the registry and
// upserts the normalized metadata. Identifiers the registry does not know or
// returns malformed payloads for are skipped and retried on a later run.
type CveEnricher struct {
	entities ports.EntityStore
	registry ports.CveRegistry
	logger   *slog.Logger
}

// NewCveEnricher constructs the enrichment component.
func NewCveEnricher(deps CveEnricherDeps) *CveEnricher {
	return &CveEnricher{
		entities: deps.Entities,
		registry: deps.Registry,
		logger:   deps.Logger,
	}
}

// Run enriches all mentioned CVEs. When refresh is false, identifiers that
// already have an info row keep it untouched; when true every identifier is
// re-fetched and its enrichable fields overwritten. The stored mention count
// is always the store's current distinct-article total.
func (e *CveEnricher) Run(ctx context.Context, refresh bool) error {
	ids, err := e.entities.DistinctCveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list mentioned cves: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	counts, err := e.entities.CveMentionCounts(ctx)
	if err != nil {
		return fmt.Errorf("count cve mentions: %w", err)
	}

	updated := 0
	for _, id := range ids {
		if !refresh {
			exists, err := e.entities.HasCveInfo(ctx, id)
			if err != nil {
				return fmt.Errorf("check cve info %s: %w", id, err)
			}
			if exists {
				// No registry round trip, but the mention total still has to
				// track articles stored since the last enrichment.
				if err := e.entities.UpdateCveMentionCount(ctx, id, counts[id]); err != nil {
					return fmt.Errorf("sync mention count %s: %w", id, err)
				}
				continue
			}
		}

		record, err := e.registry.Lookup(ctx, id)
		if errors.Is(err, ports.ErrCveNotFound) {
			e.debug("cve unknown to registry", "cve", id)
			continue
		}
		if err != nil {
			e.warn("cve lookup failed", "cve", id, "error", err)
			continue
		}

		info := domain.CveInfo{
			CveID:            id,
			BaseScore:        record.BaseScore,
			Vendor:           strings.Join(record.Vendors, ", "),
			AffectedProducts: strings.Join(record.Products, ", "),
			CveURL:           record.PageURL,
			VendorLink:       record.VendorLink,
			Solution:         record.Solution,
			TimesMentioned:   counts[id],
			RawJSON:          record.Raw,
		}
		if err := e.entities.UpsertCveInfo(ctx, info); err != nil {
			return fmt.Errorf("upsert cve info %s: %w", id, err)
		}
		updated++
	}

	e.debug("cve enrichment done", "mentioned", len(ids), "updated", updated)
	return nil
}

func (e *CveEnricher) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *CveEnricher) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
