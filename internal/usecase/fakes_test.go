package usecase

import (
	"context"
	"sort"
	"time"

	"NewsRadar/internal/batch"
	"NewsRadar/internal/domain"
)

// memStore is an in-memory stand-in for the SQL store, implementing the
// article, entity, and group store ports with the same idempotence rules.
type memStore struct {
	articles    []domain.Article
	companies   map[string]map[string]struct{}
	cveMentions map[string]map[string]struct{}
	cveInfo     map[string]domain.CveInfo

	assignments []domain.GroupAssignment
	membership  map[string]string

	subgroupSaves map[string][]domain.SubgroupProposal
	subgrouped    map[string]map[string]struct{}
}

func newMemStore(articles ...domain.Article) *memStore {
	return &memStore{
		articles:      articles,
		companies:     map[string]map[string]struct{}{},
		cveMentions:   map[string]map[string]struct{}{},
		cveInfo:       map[string]domain.CveInfo{},
		membership:    map[string]string{},
		subgroupSaves: map[string][]domain.SubgroupProposal{},
		subgrouped:    map[string]map[string]struct{}{},
	}
}

func (m *memStore) InsertArticle(_ context.Context, article domain.Article) (bool, error) {
	for _, existing := range m.articles {
		if existing.Link == article.Link {
			return false, nil
		}
	}
	m.articles = append(m.articles, article)
	return true, nil
}

func (m *memStore) Articles(context.Context) ([]domain.Article, error) {
	return m.articles, nil
}

func (m *memStore) UngroupedArticles(context.Context) ([]domain.Article, error) {
	var out []domain.Article
	for _, article := range m.articles {
		if _, ok := m.membership[article.Link]; !ok {
			out = append(out, article)
		}
	}
	return out, nil
}

func (m *memStore) ArticlesMissingCompanies(context.Context) ([]domain.Article, error) {
	var out []domain.Article
	for _, article := range m.articles {
		if len(m.companies[article.Link]) == 0 {
			out = append(out, article)
		}
	}
	return out, nil
}

func (m *memStore) ArticlesNotSubgrouped(_ context.Context, category string) ([]domain.Article, error) {
	var out []domain.Article
	for _, article := range m.articles {
		if m.membership[article.Link] != category {
			continue
		}
		if _, done := m.subgrouped[category][article.Link]; done {
			continue
		}
		out = append(out, article)
	}
	return out, nil
}

func (m *memStore) InsertCompanyMention(_ context.Context, mention domain.CompanyMention) (bool, error) {
	set, ok := m.companies[mention.ArticleLink]
	if !ok {
		set = map[string]struct{}{}
		m.companies[mention.ArticleLink] = set
	}
	if _, exists := set[mention.Company]; exists {
		return false, nil
	}
	set[mention.Company] = struct{}{}
	return true, nil
}

func (m *memStore) InsertCveMention(_ context.Context, mention domain.CveMention) (bool, error) {
	set, ok := m.cveMentions[mention.CveID]
	if !ok {
		set = map[string]struct{}{}
		m.cveMentions[mention.CveID] = set
	}
	if _, exists := set[mention.ArticleLink]; exists {
		return false, nil
	}
	set[mention.ArticleLink] = struct{}{}
	return true, nil
}

func (m *memStore) DistinctCveIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.cveMentions))
	for id := range m.cveMentions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) CveMentionCounts(context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(m.cveMentions))
	for id, links := range m.cveMentions {
		counts[id] = len(links)
	}
	return counts, nil
}

func (m *memStore) HasCveInfo(_ context.Context, cveID string) (bool, error) {
	_, ok := m.cveInfo[cveID]
	return ok, nil
}

func (m *memStore) UpsertCveInfo(_ context.Context, info domain.CveInfo) error {
	m.cveInfo[info.CveID] = info
	return nil
}

func (m *memStore) UpdateCveMentionCount(_ context.Context, cveID string, count int) error {
	info, ok := m.cveInfo[cveID]
	if !ok {
		return nil
	}
	info.TimesMentioned = count
	m.cveInfo[cveID] = info
	return nil
}

func (m *memStore) SaveCategoryAssignments(_ context.Context, assignments []domain.GroupAssignment) error {
	for _, assignment := range assignments {
		recorded := assignment
		recorded.Articles = nil
		for _, link := range assignment.Articles {
			if _, grouped := m.membership[link]; grouped {
				continue
			}
			m.membership[link] = assignment.MainTopic
			recorded.Articles = append(recorded.Articles, link)
		}
		if len(recorded.Articles) > 0 {
			m.assignments = append(m.assignments, recorded)
		}
	}
	return nil
}

func (m *memStore) SaveSubgroupBatch(_ context.Context, category string, proposals []domain.SubgroupProposal) error {
	m.subgroupSaves[category] = append(m.subgroupSaves[category], proposals...)
	done, ok := m.subgrouped[category]
	if !ok {
		done = map[string]struct{}{}
		m.subgrouped[category] = done
	}
	for _, proposal := range proposals {
		for _, link := range proposal.Articles {
			done[link] = struct{}{}
		}
	}
	return nil
}

// fakeClassifier counts calls and delegates to optional function fields; a nil
// field makes the corresponding method return empty results.
type fakeClassifier struct {
	categorizeFn func(items []batch.Item, categories []string) (map[string]string, error)
	subgroupsFn  func(items []batch.Item, category string) ([]domain.SubgroupProposal, error)
	companiesFn  func(items []batch.Item) (map[string][]string, error)

	categorizeCalls int
	subgroupCalls   int
	companyCalls    int
}

func (f *fakeClassifier) Categorize(_ context.Context, items []batch.Item, categories []string) (map[string]string, error) {
	f.categorizeCalls++
	if f.categorizeFn == nil {
		return map[string]string{}, nil
	}
	return f.categorizeFn(items, categories)
}

func (f *fakeClassifier) ProposeSubgroups(_ context.Context, items []batch.Item, category string) ([]domain.SubgroupProposal, error) {
	f.subgroupCalls++
	if f.subgroupsFn == nil {
		return nil, nil
	}
	return f.subgroupsFn(items, category)
}

func (f *fakeClassifier) ExtractCompanies(_ context.Context, items []batch.Item) (map[string][]string, error) {
	f.companyCalls++
	if f.companiesFn == nil {
		return map[string][]string{}, nil
	}
	return f.companiesFn(items)
}

// fakeRegistry serves canned records per identifier.
type fakeRegistry struct {
	records map[string]domain.CveRecord
	errs    map[string]error
	lookups []string
}

func (f *fakeRegistry) Lookup(_ context.Context, cveID string) (domain.CveRecord, error) {
	f.lookups = append(f.lookups, cveID)
	if err, ok := f.errs[cveID]; ok {
		return domain.CveRecord{}, err
	}
	if record, ok := f.records[cveID]; ok {
		return record, nil
	}
	return domain.CveRecord{}, nil
}

// fakeSource returns canned articles or an error.
type fakeSource struct {
	articles []domain.Article
	err      error
}

func (f *fakeSource) FetchLatest(context.Context) ([]domain.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.articles, nil
}

func testArticle(link, content string) domain.Article {
	return domain.Article{
		Link:        link,
		Title:       "title " + link,
		Content:     content,
		Source:      "test",
		PublishedAt: time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}
