package domain

import "encoding/json"

// CveRecord is the normalized view of a registry payload. The registry client
// resolves both the legacy and the current record shapes into this type, so
// downstream code never sees the raw formats.
type CveRecord struct {
	BaseScore  *float64
	Vendors    []string
	Products   []string
	PageURL    string
	VendorLink string
	Solution   string
	Raw        json.RawMessage
}

// CveInfo is the persisted enrichment row for one CVE identifier.
// TimesMentioned is recomputed from mention rows at upsert time, never
// incremented.
type CveInfo struct {
	CveID            string
	BaseScore        *float64
	Vendor           string
	AffectedProducts string
	CveURL           string
	VendorLink       string
	Solution         string
	TimesMentioned   int
	RawJSON          []byte
}
