// Package registry implements the CVE metadata lookup against a MITRE-style
// CVE services API. The registry serves two payload generations; both are
// normalized into domain.CveRecord at parse time.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	defaultBaseURL = "https://cveawg.mitre.org"
	cvePageBase    = "https://cveawg.mitre.org/cve/"
)

// cvssKeyPrecedence orders the metric sub-records a score may live in.
var cvssKeyPrecedence = []string{"cvssV4_0", "cvssV3_1", "cvssV3_0", "cvssV2_0"}

// Client talks to the CVE registry over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ ports.CveRegistry = (*Client)(nil)

// NewClient creates a reusable registry client; an empty baseURL selects the
// public MITRE endpoint.
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}
}

// Lookup fetches and normalizes the record for one CVE identifier. It returns
// ports.ErrCveNotFound when the registry has no record, and a descriptive
// error for malformed payloads so the caller can skip the identifier.
func (c *Client) Lookup(ctx context.Context, cveID string) (domain.CveRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/cve/"+cveID, nil)
	if err != nil {
		return domain.CveRecord{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CveRecord{}, fmt.Errorf("lookup %s: %w", cveID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.CveRecord{}, ports.ErrCveNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.CveRecord{}, fmt.Errorf("registry returned %s for %s", resp.Status, cveID)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.CveRecord{}, fmt.Errorf("read registry response: %w", err)
	}

	record, err := ParseRecord(cveID, raw)
	if err != nil {
		return domain.CveRecord{}, err
	}
	return record, nil
}

// ParseRecord resolves a registry payload into the normalized record. The
// shape is detected once here; downstream logic never sees the raw formats.
func ParseRecord(cveID string, raw []byte) (domain.CveRecord, error) {
	var probe struct {
		DataType   string          `json:"dataType"`
		LegacyType string          `json:"data_type"`
		LegacyMeta json.RawMessage `json:"CVE_data_meta"`
		Message    string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.CveRecord{}, fmt.Errorf("malformed registry payload for %s: %w", cveID, err)
	}
	if strings.EqualFold(probe.Message, "CVE not found") {
		return domain.CveRecord{}, ports.ErrCveNotFound
	}

	switch {
	case probe.DataType == "CVE_RECORD":
		return parseCurrent(cveID, raw)
	case probe.LegacyType == "CVE" || len(probe.LegacyMeta) > 0:
		return parseLegacy(cveID, raw)
	default:
		return domain.CveRecord{}, fmt.Errorf("unrecognized registry payload shape for %s", cveID)
	}
}

type reference struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

type cnaContainer struct {
	Metrics  []map[string]json.RawMessage `json:"metrics"`
	Affected []struct {
		Vendor  string `json:"vendor"`
		Product string `json:"product"`
	} `json:"affected"`
	References []reference `json:"references"`
	Solutions  []struct {
		Value string `json:"value"`
	} `json:"solutions"`
}

func parseCurrent(cveID string, raw []byte) (domain.CveRecord, error) {
	var payload struct {
		Containers struct {
			CNA cnaContainer   `json:"cna"`
			ADP []cnaContainer `json:"adp"`
		} `json:"containers"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.CveRecord{}, fmt.Errorf("malformed current record for %s: %w", cveID, err)
	}

	cna := payload.Containers.CNA

	metrics := append([]map[string]json.RawMessage{}, cna.Metrics...)
	for _, adp := range payload.Containers.ADP {
		metrics = append(metrics, adp.Metrics...)
	}

	vendors := map[string]struct{}{}
	products := map[string]struct{}{}
	for _, affected := range cna.Affected {
		if affected.Vendor != "" {
			vendors[affected.Vendor] = struct{}{}
		}
		if affected.Product != "" {
			products[affected.Product] = struct{}{}
		}
	}

	var solutions []string
	for _, solution := range cna.Solutions {
		if solution.Value != "" {
			solutions = append(solutions, solution.Value)
		}
	}

	record := domain.CveRecord{
		BaseScore:  scoreFromMetrics(metrics),
		Vendors:    sortedKeys(vendors),
		Products:   sortedKeys(products),
		PageURL:    cvePageBase + cveID,
		VendorLink: vendorLink(cna.References),
		Solution:   strings.Join(solutions, "\n\n"),
		Raw:        json.RawMessage(raw),
	}
	if record.Solution == "" {
		record.Solution = advisoryReference(cna.References)
	}
	return record, nil
}

func parseLegacy(cveID string, raw []byte) (domain.CveRecord, error) {
	var payload struct {
		Affects struct {
			Vendor struct {
				VendorData []struct {
					VendorName string `json:"vendor_name"`
					Product    struct {
						ProductData []struct {
							ProductName string `json:"product_name"`
						} `json:"product_data"`
					} `json:"product"`
				} `json:"vendor_data"`
			} `json:"vendor"`
		} `json:"affects"`
		Impact struct {
			Cvss json.RawMessage `json:"cvss"`
		} `json:"impact"`
		References struct {
			ReferenceData []reference `json:"reference_data"`
		} `json:"references"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.CveRecord{}, fmt.Errorf("malformed legacy record for %s: %w", cveID, err)
	}

	vendors := map[string]struct{}{}
	products := map[string]struct{}{}
	for _, vendor := range payload.Affects.Vendor.VendorData {
		if vendor.VendorName != "" {
			vendors[vendor.VendorName] = struct{}{}
		}
		for _, product := range vendor.Product.ProductData {
			if product.ProductName != "" {
				products[product.ProductName] = struct{}{}
			}
		}
	}

	record := domain.CveRecord{
		BaseScore:  legacyScore(payload.Impact.Cvss),
		Vendors:    sortedKeys(vendors),
		Products:   sortedKeys(products),
		PageURL:    cvePageBase + cveID,
		VendorLink: vendorLink(payload.References.ReferenceData),
		Solution:   advisoryReference(payload.References.ReferenceData),
		Raw:        json.RawMessage(raw),
	}
	return record, nil
}

// scoreFromMetrics picks the first base score available, honoring the metric
// key precedence within each metric entry.
func scoreFromMetrics(metrics []map[string]json.RawMessage) *float64 {
	for _, metric := range metrics {
		for _, key := range cvssKeyPrecedence {
			entry, ok := metric[key]
			if !ok {
				continue
			}
			var cvss struct {
				BaseScore *float64 `json:"baseScore"`
			}
			if err := json.Unmarshal(entry, &cvss); err != nil {
				continue
			}
			if cvss.BaseScore != nil {
				return cvss.BaseScore
			}
		}
	}
	return nil
}

// legacyScore reads impact.cvss, which the legacy shape serves either as an
// object or as a list of objects.
func legacyScore(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var single struct {
		BaseScore *float64 `json:"baseScore"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.BaseScore != nil {
		return single.BaseScore
	}

	var list []struct {
		BaseScore *float64 `json:"baseScore"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, entry := range list {
			if entry.BaseScore != nil {
				return entry.BaseScore
			}
		}
	}
	return nil
}

// vendorLink prefers a reference tagged as vendor advisory, then any URL that
// looks vendor-hosted, then the first reference.
func vendorLink(references []reference) string {
	if advisory := advisoryReference(references); advisory != "" {
		return advisory
	}
	if len(references) > 0 {
		return references[0].URL
	}
	return ""
}

func advisoryReference(references []reference) string {
	for _, ref := range references {
		for _, tag := range ref.Tags {
			if tag == "vendor-advisory" {
				return ref.URL
			}
		}
		if strings.Contains(strings.ToLower(ref.URL), "vendor") {
			return ref.URL
		}
	}
	return ""
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
