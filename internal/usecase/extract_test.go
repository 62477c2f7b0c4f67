package usecase

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/domain"
)

var cvePattern = regexp.MustCompile(`\bCVE-\d{4}-\d{4,7}\b`)

func TestScanCvesRecordsDistinctMentions(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		testArticle("https://a.example/1", "Attackers exploit CVE-2023-12345 and CVE-2023-1234; CVE-2023-12345 remains unpatched."),
	)
	extractor := NewExtractor(ExtractorDeps{
		Articles:   store,
		Entities:   store,
		CvePattern: cvePattern,
		MaxTokens:  1000,
	})

	if err := extractor.ScanCves(context.Background()); err != nil {
		t.Fatalf("ScanCves returned error: %v", err)
	}

	ids, _ := store.DistinctCveIDs(context.Background())
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct cves, got %v", ids)
	}
	if ids[0] != "CVE-2023-1234" || ids[1] != "CVE-2023-12345" {
		t.Fatalf("unexpected cve ids: %v", ids)
	}
}

func TestScanCvesIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore(testArticle("https://a.example/1", "see CVE-2024-0001"))
	extractor := NewExtractor(ExtractorDeps{
		Articles:   store,
		Entities:   store,
		CvePattern: cvePattern,
		MaxTokens:  1000,
	})

	for i := 0; i < 2; i++ {
		if err := extractor.ScanCves(context.Background()); err != nil {
			t.Fatalf("ScanCves run %d: %v", i+1, err)
		}
	}

	counts, _ := store.CveMentionCounts(context.Background())
	if counts["CVE-2024-0001"] != 1 {
		t.Fatalf("expected 1 mention after rescan, got %d", counts["CVE-2024-0001"])
	}
}

func TestExtractCompaniesStoresMentions(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		testArticle("https://a.example/1", "Acme Corp confirmed the breach."),
		testArticle("https://a.example/2", "No companies here."),
	)
	classifier := &fakeClassifier{
		companiesFn: func(items []batch.Item) (map[string][]string, error) {
			return map[string][]string{
				"https://a.example/1": {"Acme Corp", " Globex ", ""},
			}, nil
		},
	}
	extractor := NewExtractor(ExtractorDeps{
		Articles:   store,
		Entities:   store,
		Classifier: classifier,
		CvePattern: cvePattern,
		MaxTokens:  1000,
	})

	if err := extractor.ExtractCompanies(context.Background()); err != nil {
		t.Fatalf("ExtractCompanies returned error: %v", err)
	}

	got := store.companies["https://a.example/1"]
	if len(got) != 2 {
		t.Fatalf("expected 2 companies, got %v", got)
	}
	if _, ok := got["Globex"]; !ok {
		t.Fatalf("expected trimmed company name, got %v", got)
	}
}

func TestExtractCompaniesSkipsFailedBatch(t *testing.T) {
	t.Parallel()

	store := newMemStore(testArticle("https://a.example/1", "some text"))
	classifier := &fakeClassifier{
		companiesFn: func([]batch.Item) (map[string][]string, error) {
			return nil, fmt.Errorf("upstream unavailable")
		},
	}
	extractor := NewExtractor(ExtractorDeps{
		Articles:   store,
		Entities:   store,
		Classifier: classifier,
		CvePattern: cvePattern,
		MaxTokens:  1000,
	})

	if err := extractor.ExtractCompanies(context.Background()); err != nil {
		t.Fatalf("a failed batch must not fail the pass: %v", err)
	}
	if len(store.companies) != 0 {
		t.Fatalf("expected no mentions after failed batch, got %v", store.companies)
	}
}

func TestExtractCompaniesWithoutClassifier(t *testing.T) {
	t.Parallel()

	store := newMemStore(testArticle("https://a.example/1", "some text"))
	extractor := NewExtractor(ExtractorDeps{
		Articles:   store,
		Entities:   store,
		CvePattern: cvePattern,
		MaxTokens:  1000,
	})

	if err := extractor.ExtractCompanies(context.Background()); err != nil {
		t.Fatalf("expected silent skip without classifier, got %v", err)
	}
}

func TestSummaryItemsSkipsBlankSummaries(t *testing.T) {
	t.Parallel()

	blank := testArticle("https://a.example/blank", "")
	blank.Title = ""
	full := testArticle("https://a.example/full", "body")

	items := summaryItems([]domain.Article{blank, full})
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ID != "https://a.example/full" {
		t.Fatalf("unexpected item id: %s", items[0].ID)
	}
}
