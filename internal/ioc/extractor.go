package ioc

import (
	"net/netip"
	"sort"
	"strings"
	"unicode/utf8"

	"prism/internal/domain"
)

// ContextRadius is how many characters of text on each side of the first
// match are kept as the IOC context.
const ContextRadius = 80

// Extractor applies an ordered pattern list to text. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	patterns []Pattern
	benign   func(domain.IOCType, string) bool
}

func NewExtractor() *Extractor {
	return &Extractor{patterns: Precedence, benign: IsBenign}
}

// NewExtractorWith builds an extractor over a custom pattern order.
// A nil benign filter reports everything.
func NewExtractorWith(patterns []Pattern, benign func(domain.IOCType, string) bool) *Extractor {
	if benign == nil {
		benign = func(domain.IOCType, string) bool { return false }
	}
	return &Extractor{patterns: patterns, benign: benign}
}

type span struct{ start, end int }

type found struct {
	ioc   domain.IOC
	start int
}

// Extract returns the IOCs in text, one per (type, value), ordered by the
// position of their first mention.
func (e *Extractor) Extract(text string) []domain.IOC {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var claimed []span
	seen := make(map[domain.IOCType]map[string]struct{})
	var out []found

	for _, p := range e.patterns {
		for _, m := range p.Find(text) {
			if !claimable(claimed, m.Start, m.End) {
				continue
			}
			value, ok := p.Normalize(m.Raw)
			if !ok {
				continue
			}
			claimed = append(claimed, span{m.Start, m.End})

			if e.benign(p.Type, value) {
				continue
			}
			if seen[p.Type] == nil {
				seen[p.Type] = make(map[string]struct{})
			}
			if _, dup := seen[p.Type][value]; dup {
				continue
			}
			seen[p.Type][value] = struct{}{}

			out = append(out, found{
				ioc: domain.IOC{
					Type:    p.Type,
					Value:   value,
					Context: Context(text, m.Start, m.End),
				},
				start: m.Start,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })

	iocs := make([]domain.IOC, len(out))
	for i, f := range out {
		iocs[i] = f.ioc
	}
	return iocs
}

// claimable reports whether [start, end) may be emitted. A span is blocked
// by any claimed span it overlaps, unless it strictly contains all of them.
func claimable(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start >= s.end || s.start >= end {
			continue
		}
		if s.start < start || s.end > end || (s.start == start && s.end == end) {
			return false
		}
	}
	return true
}

// Context returns the text within ContextRadius characters of [start, end)
// with whitespace runs collapsed.
func Context(text string, start, end int) string {
	from := start
	for i := 0; i < ContextRadius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < ContextRadius && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return strings.Join(strings.Fields(text[from:to]), " ")
}

var (
	benignIPs = toSet("1.1.1.1", "8.8.8.8", "8.8.4.4", "255.255.255.255")

	benignDomains = []string{
		"example.com", "example.org", "example.net", "domain.com", "website.com",
		"google.com", "microsoft.com", "apple.com", "facebook.com", "twitter.com", "github.com",
	}
)

// IsBenign reports values that are valid indicators but never worth
// reporting: non-routable or well-known resolver IPs, placeholder and
// big-platform domains, and hashes dominated by one character.
func IsBenign(t domain.IOCType, value string) bool {
	switch t {
	case domain.IOCIP:
		if _, ok := benignIPs[value]; ok {
			return true
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return true
		}
		return addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() ||
			addr.IsLinkLocalUnicast() || addr.IsMulticast()
	case domain.IOCDomain:
		for _, d := range benignDomains {
			if value == d || strings.HasSuffix(value, "."+d) {
				return true
			}
		}
	case domain.IOCHashMD5, domain.IOCHashSHA1, domain.IOCHashSHA256:
		return lowEntropy(value)
	}
	return false
}

// lowEntropy is true when a single character makes up more than half of s.
func lowEntropy(s string) bool {
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
		if counts[s[i]]*2 > len(s) {
			return true
		}
	}
	return false
}
