// Command radarview prints the dashboard projections for a stored database:
// article counts, the CVE mention table, the group listing, and optionally one
// category's subgroups.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/infrastructure/storage"
	"NewsRadar/internal/logging"
	"NewsRadar/internal/usecase"
)

func main() {
	hours := flag.Int("hours", 0, "restrict to articles published in the last N hours (0 = all time)")
	category := flag.String("category", "", "also list this category's subgroups")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	store, err := storage.Open(cfg.Database.DSN, logger.With("component", "storage"))
	if err != nil {
		logger.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		logger.Error("init schema", "error", err)
		os.Exit(1)
	}

	views := usecase.NewDashboardViews(store)
	now := time.Now()
	filter := usecase.DateFilter{Hours: *hours}

	snapshot, err := views.Snapshot(ctx, now, filter)
	if err != nil {
		logger.Error("load snapshot", "error", err)
		os.Exit(1)
	}

	printSnapshot(snapshot, filter)

	if *category != "" {
		subgroups, err := views.Subgroups(ctx, now, *category, filter)
		if err != nil {
			logger.Error("load subgroups", "error", err)
			os.Exit(1)
		}
		printSubgroups(*category, subgroups)
	}
}

func printSnapshot(snapshot usecase.DashboardSnapshot, filter usecase.DateFilter) {
	window := "all time"
	if filter.Hours > 0 {
		window = fmt.Sprintf("last %d hours", filter.Hours)
	}
	fmt.Printf("Articles (%s): total=%d grouped=%d ungrouped=%d groups=%d\n\n",
		window, snapshot.Counts.Total, snapshot.Counts.Grouped,
		snapshot.Counts.Ungrouped, snapshot.Counts.Groups)

	if len(snapshot.Cves) == 0 {
		fmt.Println("No CVE mentions for this filter.")
	} else {
		fmt.Println("CVE mentions:")
		for _, row := range snapshot.Cves {
			score := "-"
			if row.BaseScore != nil {
				score = fmt.Sprintf("%.1f", *row.BaseScore)
			}
			fmt.Printf("  %-18s seen=%-3d score=%-4s %s\n", row.CveID, row.TimesSeen, score, row.Vendor)
		}
	}
	fmt.Println()

	if len(snapshot.Groups) == 0 {
		fmt.Println("No groups for this filter.")
		return
	}
	fmt.Println("Groups:")
	for _, group := range snapshot.Groups {
		fmt.Printf("  %-45s articles=%d\n", group.GroupLabel, group.ArticleCount)
	}
}

func printSubgroups(category string, subgroups []domain.SubgroupSummary) {
	fmt.Printf("\nSubgroups in %q:\n", category)
	if len(subgroups) == 0 {
		fmt.Println("  No subgroups for this filter.")
		return
	}
	for _, subgroup := range subgroups {
		fmt.Printf("  %-45s articles=%d\n", subgroup.GroupLabel, subgroup.ArticleCount)
		if summary := strings.TrimSpace(subgroup.Summary); summary != "" {
			fmt.Printf("    %s\n", summary)
		}
	}
}
