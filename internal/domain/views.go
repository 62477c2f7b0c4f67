package domain

import "time"

// ArticleCounts aggregates the dashboard headline numbers for a date filter.
type ArticleCounts struct {
	Total     int
	Grouped   int
	Ungrouped int
	Groups    int
}

// CveSummary is one row of the dashboard CVE table.
type CveSummary struct {
	CveID            string
	TimesSeen        int
	FirstMention     time.Time
	LastMention      time.Time
	ArticleLinks     []string
	BaseScore        *float64
	Vendor           string
	AffectedProducts string
	CveURL           string
	VendorLink       string
	Solution         string
}

// GroupSummary is one row of the dashboard group listing.
type GroupSummary struct {
	GroupID      int64
	MainTopic    string
	SubTopic     string
	GroupLabel   string
	ArticleCount int
	UpdatedAt    time.Time
}

// SubgroupSummary is one row of the per-category subgroup listing.
type SubgroupSummary struct {
	SubgroupID   int64
	Category     string
	GroupLabel   string
	Summary      string
	ArticleCount int
	UpdatedAt    time.Time
}
