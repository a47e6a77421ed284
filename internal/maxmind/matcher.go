package maxmind

import (
	"context"
	"net"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/thcyron/cidrmerge"
	"golang.org/x/sync/errgroup"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
)

// OrgResult is the aggregated outcome for one search definition: every
// network whose row matched one of the organization's keywords, in discovery
// order. The same network can appear more than once when several keywords or
// files match it; that duplication is kept unless merging is enabled.
type OrgResult struct {
	Name   string
	Ranges []string
}

// Matcher scans parsed dataset sources against the configured search
// definitions.
type Matcher struct {
	mergeRanges bool
}

// NewMatcher creates a Matcher. With mergeRanges set, each organization's
// result is deduplicated and adjacent CIDRs are collapsed before it is
// returned.
func NewMatcher(mergeRanges bool) *Matcher {
	return &Matcher{mergeRanges: mergeRanges}
}

// Match produces one OrgResult per search definition, in definition order.
// Every keyword of every organization scans every row of every source from
// the beginning: an all-digit keyword must equal the row's ASN exactly, any
// other keyword must occur case-insensitively in the row's organization
// description. Organizations with no matches still appear in the output.
//
// The per-organization scans are independent and read-only, so they run
// concurrently; results land in fixed slots, keeping the output order
// deterministic.
func (m *Matcher) Match(ctx context.Context, defs []config.SearchDefinition, sources []Source) ([]OrgResult, error) {
	results := make([]OrgResult, len(defs))

	g, ctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = m.matchOrg(def, sources)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Matcher) matchOrg(def config.SearchDefinition, sources []Source) OrgResult {
	result := OrgResult{Name: def.Name}

	log.Info("collecting IP ranges", "org", def.Name)

	for _, keyword := range def.Keywords {
		if isASN(keyword) {
			for _, src := range sources {
				for _, row := range src.Rows {
					if row.ASN == keyword {
						result.Ranges = append(result.Ranges, row.Network)
						log.Debug("matched range by ASN",
							"org", def.Name, "asn", keyword, "range", row.Network)
					}
				}
			}
			continue
		}

		needle := strings.ToLower(keyword)
		for _, src := range sources {
			for _, row := range src.Rows {
				if strings.Contains(strings.ToLower(row.Organization), needle) {
					result.Ranges = append(result.Ranges, row.Network)
					log.Debug("matched range by keyword",
						"org", def.Name, "keyword", keyword, "range", row.Network, "description", row.Organization)
				}
			}
		}
	}

	if m.mergeRanges {
		result.Ranges = mergeCIDRs(result.Ranges)
	}
	return result
}

// isASN reports whether the keyword is composed entirely of digits, which
// marks it as an exact ASN match rather than a description substring.
func isASN(keyword string) bool {
	if keyword == "" {
		return false
	}
	for _, r := range keyword {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mergeCIDRs collapses duplicate and adjacent networks. Entries that do not
// parse as CIDR are kept verbatim (deduplicated) after the merged networks.
func mergeCIDRs(ranges []string) []string {
	var nets []*net.IPNet
	var raw []string
	seen := make(map[string]bool)

	for _, r := range ranges {
		if _, n, err := net.ParseCIDR(r); err == nil {
			nets = append(nets, n)
			continue
		}
		if !seen[r] {
			seen[r] = true
			raw = append(raw, r)
		}
	}

	merged := cidrmerge.Merge(nets)
	out := make([]string, 0, len(merged)+len(raw))
	for _, n := range merged {
		out = append(out, n.String())
	}
	return append(out, raw...)
}
