// Package llm implements the classification oracle on an OpenAI-compatible
// chat completion API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	maxRetries     = 3
	retryDelay     = 2 * time.Second
	requestTimeout = 240 * time.Second
)

// Classifier implements ports.Classifier backed by OpenAI-compatible APIs.
// Each public method performs exactly one classification task per call; the
// internal retry loop only covers transport-level failures of that call.
type Classifier struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a client from configuration.
func NewClassifier(cfg config.ClassifierConfig, logger *slog.Logger) *Classifier {
	return &Classifier{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
		wait:   waitRetry,
	}
}

// waitRetry blocks for the backoff delay unless the context ends first.
func waitRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Categorize asks the model to place each article into exactly one category
// from the list, returning the assignment keyed by article identifier.
func (c *Classifier) Categorize(ctx context.Context, items []batch.Item, categories []string) (map[string]string, error) {
	var categoriesText strings.Builder
	for _, category := range categories {
		fmt.Fprintf(&categoriesText, "- %s\n", category)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Here is the list of valid categories:\n\n%s\n", categoriesText.String())
	prompt.WriteString("Below are article summaries. For each article, pick one category (or 'Other'). ")
	prompt.WriteString("Return JSON only, in this format:\n")
	prompt.WriteString(`{ "assignments": [ {"article_id": "...", "category": "..."}, ... ] }` + "\n\n")
	writeItems(&prompt, items)

	system := "You are an AI that assigns each article to exactly one category from the list. " +
		"If no category fits, choose 'Other'. Return valid JSON only."

	content, err := c.complete(ctx, system, prompt.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Assignments []struct {
			ArticleID string `json:"article_id"`
			Category  string `json:"category"`
		} `json:"assignments"`
	}
	if err := json.Unmarshal([]byte(cleanResponse(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode category assignments: %w", err)
	}

	assigned := make(map[string]string, len(parsed.Assignments))
	for _, assignment := range parsed.Assignments {
		if assignment.ArticleID == "" {
			continue
		}
		assigned[assignment.ArticleID] = strings.TrimSpace(assignment.Category)
	}
	return assigned, nil
}

// ProposeSubgroups asks the model to cluster the batch into labeled subgroups
// with short summaries for the given category.
func (c *Classifier) ProposeSubgroups(ctx context.Context, items []batch.Item, category string) ([]domain.SubgroupProposal, error) {
	var prompt strings.Builder
	prompt.WriteString("Below are articles assigned to this category. Group them by specific sub-topic.\n")
	prompt.WriteString("For each subgroup, return:\n")
	prompt.WriteString("  - group_label: a short descriptive title\n")
	prompt.WriteString("  - summary: a 2-3 sentence summary of these articles\n")
	prompt.WriteString("  - articles: an array of article IDs\n\n")
	prompt.WriteString("Return JSON only, with the structure:\n")
	prompt.WriteString(`{ "groups": [ {"group_label": "...", "summary": "...", "articles": [ ... ]}, ... ] }` + "\n\n")
	writeItems(&prompt, items)

	system := fmt.Sprintf("You are grouping articles specifically for category '%s'.", category)

	content, err := c.complete(ctx, system, prompt.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Groups []domain.SubgroupProposal `json:"groups"`
	}
	if err := json.Unmarshal([]byte(cleanResponse(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode subgroup proposals: %w", err)
	}
	return parsed.Groups, nil
}

// ExtractCompanies asks the model for the company names mentioned in each
// article of the batch.
func (c *Classifier) ExtractCompanies(ctx context.Context, items []batch.Item) (map[string][]string, error) {
	var prompt strings.Builder
	prompt.WriteString("You are a named-entity recognition AI. For each article, extract all company names mentioned. ")
	prompt.WriteString("Return only JSON with the format:\n")
	prompt.WriteString(`{ "extractions": [ {"article_id": "...", "companies": ["CompanyA", "CompanyB"]}, ... ] }` + "\n\n")
	writeItems(&prompt, items)

	system := "Extract company names from the provided article texts."

	content, err := c.complete(ctx, system, prompt.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Extractions []struct {
			ArticleID string   `json:"article_id"`
			Companies []string `json:"companies"`
		} `json:"extractions"`
	}
	if err := json.Unmarshal([]byte(cleanResponse(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode company extractions: %w", err)
	}

	companies := make(map[string][]string, len(parsed.Extractions))
	for _, extraction := range parsed.Extractions {
		if extraction.ArticleID == "" {
			continue
		}
		companies[extraction.ArticleID] = extraction.Companies
	}
	return companies, nil
}

func (c *Classifier) complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("classifier misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	estimate := batch.EstimateTokens(system) + batch.EstimateTokens(user)
	c.debug("classification request", "model", c.model, "approx_tokens", estimate)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		content, err := c.send(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		c.debug("classification attempt failed", "attempt", attempt, "error", err)
		if attempt < maxRetries {
			if waitErr := c.wait(ctx, retryDelay); waitErr != nil {
				return "", fmt.Errorf("classification aborted after %d attempts: %w", attempt, waitErr)
			}
		}
	}
	return "", fmt.Errorf("classification failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Classifier) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("classifier error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func writeItems(prompt *strings.Builder, items []batch.Item) {
	for _, item := range items {
		fmt.Fprintf(prompt, "Article ID=%s:\n%s\n\n", item.ID, item.Text)
	}
}

// cleanResponse strips markdown fences and a leading "json" tag that chat
// models sometimes wrap around their output.
func cleanResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func (c *Classifier) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
