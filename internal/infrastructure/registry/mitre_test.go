package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"NewsRadar/internal/ports"
)

const currentPayload = `{
  "dataType": "CVE_RECORD",
  "containers": {
    "cna": {
      "metrics": [
        {"cvssV3_1": {"baseScore": 8.8}}
      ],
      "affected": [
        {"vendor": "Acme", "product": "Widget"},
        {"vendor": "Acme", "product": "Gadget"},
        {"vendor": "Globex", "product": "Widget"}
      ],
      "references": [
        {"url": "https://example.com/report"},
        {"url": "https://acme.example/advisory", "tags": ["vendor-advisory"]}
      ],
      "solutions": [
        {"value": "Upgrade to 2.1."},
        {"value": "Disable remote access."}
      ]
    },
    "adp": [
      {"metrics": [{"cvssV4_0": {"baseScore": 9.1}}]}
    ]
  }
}`

const legacyPayload = `{
  "data_type": "CVE",
  "CVE_data_meta": {"ID": "CVE-2019-0001"},
  "affects": {
    "vendor": {
      "vendor_data": [
        {
          "vendor_name": "Initech",
          "product": {"product_data": [{"product_name": "TPS"}]}
        }
      ]
    }
  },
  "impact": {"cvss": {"baseScore": 5.4}},
  "references": {
    "reference_data": [
      {"url": "https://initech.example/fix"}
    ]
  }
}`

func TestParseCurrentRecord(t *testing.T) {
	t.Parallel()

	record, err := ParseRecord("CVE-2024-1111", []byte(currentPayload))
	if err != nil {
		t.Fatalf("ParseRecord returned error: %v", err)
	}

	if record.BaseScore == nil || *record.BaseScore != 8.8 {
		t.Fatalf("cna metrics must win over adp, got %v", record.BaseScore)
	}
	if len(record.Vendors) != 2 || record.Vendors[0] != "Acme" || record.Vendors[1] != "Globex" {
		t.Fatalf("unexpected vendors: %v", record.Vendors)
	}
	if len(record.Products) != 2 {
		t.Fatalf("products must be deduplicated, got %v", record.Products)
	}
	if record.VendorLink != "https://acme.example/advisory" {
		t.Fatalf("unexpected vendor link: %s", record.VendorLink)
	}
	if record.Solution != "Upgrade to 2.1.\n\nDisable remote access." {
		t.Fatalf("unexpected solution: %q", record.Solution)
	}
	if record.PageURL != "https://cveawg.mitre.org/cve/CVE-2024-1111" {
		t.Fatalf("unexpected page url: %s", record.PageURL)
	}
}

func TestParseCurrentRecordMetricPrecedence(t *testing.T) {
	t.Parallel()

	payload := `{
	  "dataType": "CVE_RECORD",
	  "containers": {
	    "cna": {
	      "metrics": [
	        {"cvssV2_0": {"baseScore": 4.0}, "cvssV3_1": {"baseScore": 7.5}}
	      ]
	    }
	  }
	}`
	record, err := ParseRecord("CVE-2024-2222", []byte(payload))
	if err != nil {
		t.Fatalf("ParseRecord returned error: %v", err)
	}
	if record.BaseScore == nil || *record.BaseScore != 7.5 {
		t.Fatalf("cvssV3_1 must take precedence over cvssV2_0, got %v", record.BaseScore)
	}
}

func TestParseLegacyRecord(t *testing.T) {
	t.Parallel()

	record, err := ParseRecord("CVE-2019-0001", []byte(legacyPayload))
	if err != nil {
		t.Fatalf("ParseRecord returned error: %v", err)
	}

	if record.BaseScore == nil || *record.BaseScore != 5.4 {
		t.Fatalf("unexpected base score: %v", record.BaseScore)
	}
	if len(record.Vendors) != 1 || record.Vendors[0] != "Initech" {
		t.Fatalf("unexpected vendors: %v", record.Vendors)
	}
	if len(record.Products) != 1 || record.Products[0] != "TPS" {
		t.Fatalf("unexpected products: %v", record.Products)
	}
	if record.VendorLink != "https://initech.example/fix" {
		t.Fatalf("unexpected vendor link: %s", record.VendorLink)
	}
}

func TestParseRecordNotFoundMessage(t *testing.T) {
	t.Parallel()

	_, err := ParseRecord("CVE-2024-3333", []byte(`{"message":"CVE not found"}`))
	if !errors.Is(err, ports.ErrCveNotFound) {
		t.Fatalf("expected ErrCveNotFound, got %v", err)
	}
}

func TestParseRecordUnrecognizedShape(t *testing.T) {
	t.Parallel()

	if _, err := ParseRecord("CVE-2024-4444", []byte(`{"something":"else"}`)); err == nil {
		t.Fatal("expected error for unrecognized payload")
	}
	if _, err := ParseRecord("CVE-2024-5555", []byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestLookupAgainstServer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cve/CVE-2024-1111":
			w.Write([]byte(currentPayload))
		case "/api/cve/CVE-2024-9999":
			http.NotFound(w, r)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "bad path", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())

	record, err := client.Lookup(context.Background(), "CVE-2024-1111")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if record.BaseScore == nil || *record.BaseScore != 8.8 {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := client.Lookup(context.Background(), "CVE-2024-9999"); !errors.Is(err, ports.ErrCveNotFound) {
		t.Fatalf("expected ErrCveNotFound for 404, got %v", err)
	}
}
