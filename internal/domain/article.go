package domain

import "time"

// Article is a core entity describing one scraped news item. The link is the
// natural key; articles are never mutated after insertion.
type Article struct {
	Link        string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
}

// Summary returns the expanded text submitted to the classifier.
func (a Article) Summary() string {
	return a.Title + " - " + a.Content
}

// CompanyMention records a company name extracted from one article.
type CompanyMention struct {
	ArticleLink string
	Company     string
}

// CveMention records a CVE identifier found in one article, carrying the
// article's published timestamp for date-filtered views.
type CveMention struct {
	ArticleLink string
	CveID       string
	PublishedAt time.Time
}
