package maxmind

import (
	"context"
	"reflect"
	"testing"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
)

func TestMatcher_ASNMustMatchExactly(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Exact"},
			{Network: "10.0.1.0/24", ASN: "645001", Organization: "Superstring"},
			{Network: "10.0.2.0/24", ASN: "4500", Organization: "Substring"},
			{Network: "10.0.3.0/24", ASN: "164500", Organization: "Suffix"},
		},
	}}
	defs := []config.SearchDefinition{{Name: "Org", Keywords: []string{"64500"}}}

	results, err := NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []string{"10.0.0.0/24"}
	if !reflect.DeepEqual(results[0].Ranges, want) {
		t.Errorf("Expected ranges %v, got %v", want, results[0].Ranges)
	}
}

func TestMatcher_KeywordIsCaseInsensitiveSubstring(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "1", Organization: "WIDGETS International"},
			{Network: "10.0.1.0/24", ASN: "2", Organization: "Tiny widgets shop"},
			{Network: "10.0.2.0/24", ASN: "3", Organization: "Gadgets Inc"},
		},
	}}

	tests := []struct {
		keyword string
		want    []string
	}{
		{"widgets", []string{"10.0.0.0/24", "10.0.1.0/24"}},
		{"WiDgEtS", []string{"10.0.0.0/24", "10.0.1.0/24"}},
		{"gadgets inc", []string{"10.0.2.0/24"}},
		{"nomatch", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			defs := []config.SearchDefinition{{Name: "Org", Keywords: []string{tt.keyword}}}
			results, err := NewMatcher(false).Match(context.Background(), defs, sources)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !reflect.DeepEqual(results[0].Ranges, tt.want) {
				t.Errorf("Keyword %q: expected %v, got %v", tt.keyword, tt.want, results[0].Ranges)
			}
		})
	}
}

// A keyword never matches against the ASN field unless it is all digits, and
// an all-digit keyword never matches against the description.
func TestMatcher_TokenClassification(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Org mentioning 64501 in text"},
			{Network: "10.0.1.0/24", ASN: "64501", Organization: "Another"},
		},
	}}

	// "64501" is all digits: ASN equality only, the description mention of
	// 64501 must not contribute.
	defs := []config.SearchDefinition{{Name: "Org", Keywords: []string{"64501"}}}
	results, err := NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := []string{"10.0.1.0/24"}
	if !reflect.DeepEqual(results[0].Ranges, want) {
		t.Errorf("Expected %v, got %v", want, results[0].Ranges)
	}

	// "AS64500" has letters: substring match against description only.
	defs = []config.SearchDefinition{{Name: "Org", Keywords: []string{"AS64500"}}}
	results, err = NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results[0].Ranges) != 0 {
		t.Errorf("Expected no matches for %q, got %v", "AS64500", results[0].Ranges)
	}
}

// The same network can be discovered once per keyword and once per file;
// every occurrence is kept.
func TestMatcher_DuplicatesPreserved(t *testing.T) {
	sources := []Source{
		{Name: "ipv4.csv", Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Acme Corp"},
		}},
		{Name: "ipv6.csv", Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Acme Corp"},
		}},
	}
	defs := []config.SearchDefinition{{Name: "Acme", Keywords: []string{"64500", "acme"}}}

	results, err := NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Two keywords times two files, all hitting the same row.
	want := []string{"10.0.0.0/24", "10.0.0.0/24", "10.0.0.0/24", "10.0.0.0/24"}
	if !reflect.DeepEqual(results[0].Ranges, want) {
		t.Errorf("Expected %v, got %v", want, results[0].Ranges)
	}
}

func TestMatcher_MergeRangesDeduplicatesAndMerges(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/25", ASN: "64500", Organization: "Acme Corp"},
			{Network: "10.0.0.128/25", ASN: "64500", Organization: "Acme Corp"},
			{Network: "10.0.0.0/25", ASN: "64500", Organization: "Acme Corp"},
		},
	}}
	defs := []config.SearchDefinition{{Name: "Acme", Keywords: []string{"64500", "acme"}}}

	results, err := NewMatcher(true).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []string{"10.0.0.0/24"}
	if !reflect.DeepEqual(results[0].Ranges, want) {
		t.Errorf("Expected merged %v, got %v", want, results[0].Ranges)
	}
}

func TestMatcher_Idempotent(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Acme Corp"},
			{Network: "10.0.1.0/24", ASN: "64501", Organization: "Widgets Inc"},
			{Network: "10.0.2.0/24", ASN: "64502", Organization: "acme subsidiary"},
		},
	}}
	defs := []config.SearchDefinition{
		{Name: "Acme", Keywords: []string{"64500", "acme"}},
		{Name: "Widgets", Keywords: []string{"widgets"}},
	}

	m := NewMatcher(false)
	first, err := m.Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := m.Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results across runs, got %v then %v", first, second)
	}
}

func TestMatcher_EmptyOrgsStillReturned(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{{Network: "10.0.0.0/24", ASN: "64500", Organization: "Acme Corp"}},
	}}
	defs := []config.SearchDefinition{
		{Name: "Nothing", Keywords: []string{"zzz-no-such-org"}},
		{Name: "Acme", Keywords: []string{"acme"}},
	}

	results, err := NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Name != "Nothing" || len(results[0].Ranges) != 0 {
		t.Errorf("Expected empty result for %q first, got %+v", "Nothing", results[0])
	}
	if results[1].Name != "Acme" {
		t.Errorf("Expected declaration order preserved, got %+v", results)
	}
}

// The scenario from the importer's documentation: one ASN token and one
// description token contributing independently.
func TestMatcher_ASNAndKeywordTokensAreIndependent(t *testing.T) {
	sources := []Source{{
		Name: "blocks.csv",
		Rows: []Row{
			{Network: "10.0.0.0/24", ASN: "64500", Organization: "Acme Corp"},
			{Network: "10.0.1.0/24", ASN: "64501", Organization: "Widgets Inc"},
			{Network: "10.0.2.0/24", ASN: "64502", Organization: "Other"},
		},
	}}
	defs := []config.SearchDefinition{{Name: "Acme", Keywords: []string{"64500", "widgets"}}}

	results, err := NewMatcher(false).Match(context.Background(), defs, sources)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := OrgResult{Name: "Acme", Ranges: []string{"10.0.0.0/24", "10.0.1.0/24"}}
	if !reflect.DeepEqual(results[0], want) {
		t.Errorf("Expected %+v, got %+v", want, results[0])
	}
}

func TestIsASN(t *testing.T) {
	tests := []struct {
		keyword string
		want    bool
	}{
		{"64500", true},
		{"0", true},
		{"", false},
		{"AS64500", false},
		{"64 500", false},
		{"sixty", false},
		{"64500x", false},
	}
	for _, tt := range tests {
		if got := isASN(tt.keyword); got != tt.want {
			t.Errorf("isASN(%q) = %v, want %v", tt.keyword, got, tt.want)
		}
	}
}
