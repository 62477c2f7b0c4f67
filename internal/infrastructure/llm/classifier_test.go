package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/config"
)

func newTestClassifier(endpoint string) *Classifier {
	c := NewClassifier(config.ClassifierConfig{
		Endpoint: endpoint,
		Model:    "test-model",
		APIKey:   "test-key",
	}, nil)
	c.wait = func(context.Context, time.Duration) error { return nil }
	return c
}

func completionResponse(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestCategorizeParsesFencedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		completionResponse(t, w, "```json\n{\"assignments\":[{\"article_id\":\"a1\",\"category\":\"Ransomware\"}]}\n```")
	}))
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	assigned, err := classifier.Categorize(context.Background(),
		[]batch.Item{{ID: "a1", Text: "lockbit"}}, []string{"Ransomware", "Other"})
	if err != nil {
		t.Fatalf("Categorize returned error: %v", err)
	}
	if assigned["a1"] != "Ransomware" {
		t.Fatalf("unexpected assignment: %v", assigned)
	}
}

func TestProposeSubgroupsParsesGroups(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		completionResponse(t, w,
			`{"groups":[{"group_label":"LockBit","summary":"Affiliates return.","articles":["a1","a2"]}]}`)
	}))
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	groups, err := classifier.ProposeSubgroups(context.Background(),
		[]batch.Item{{ID: "a1", Text: "x"}, {ID: "a2", Text: "y"}}, "Ransomware")
	if err != nil {
		t.Fatalf("ProposeSubgroups returned error: %v", err)
	}
	if len(groups) != 1 || groups[0].Label != "LockBit" || len(groups[0].Articles) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestExtractCompaniesParsesExtractions(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		completionResponse(t, w,
			`{"extractions":[{"article_id":"a1","companies":["Acme","Globex"]}]}`)
	}))
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	companies, err := classifier.ExtractCompanies(context.Background(),
		[]batch.Item{{ID: "a1", Text: "Acme and Globex"}})
	if err != nil {
		t.Fatalf("ExtractCompanies returned error: %v", err)
	}
	if len(companies["a1"]) != 2 {
		t.Fatalf("unexpected companies: %v", companies)
	}
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		completionResponse(t, w, `{"assignments":[]}`)
	}))
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	if _, err := classifier.Categorize(context.Background(),
		[]batch.Item{{ID: "a1", Text: "x"}}, []string{"Other"}); err != nil {
		t.Fatalf("expected success on the third attempt: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	classifier := newTestClassifier(server.URL)
	if _, err := classifier.Categorize(context.Background(),
		[]batch.Item{{ID: "a1", Text: "x"}}, []string{"Other"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxRetries {
		t.Fatalf("expected %d attempts, got %d", maxRetries, attempts)
	}
}

func TestCompleteStopsRetryingOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		cancel()
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	classifier := NewClassifier(config.ClassifierConfig{
		Endpoint: server.URL,
		Model:    "test-model",
		APIKey:   "test-key",
	}, nil)

	_, err := classifier.Categorize(ctx, []batch.Item{{ID: "a1", Text: "x"}}, []string{"Other"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation to surface, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("cancellation must skip the backoff and further attempts, got %d attempts", attempts)
	}
}

func TestCompleteRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(config.ClassifierConfig{Endpoint: "https://example.invalid"}, nil)
	if _, err := classifier.Categorize(context.Background(),
		[]batch.Item{{ID: "a1", Text: "x"}}, []string{"Other"}); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}

func TestCleanResponse(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		if got := cleanResponse(in); got != want {
			t.Fatalf("cleanResponse(%q) = %q, want %q", in, got, want)
		}
	}
}
