// Package evidence normalizes the supporting material attached to signals.
//
// The one hard rule lives here: an item may only be marked verified when its
// source belongs to an allow-listed class (official filings, regulator
// disclosures, vetted mainstream outlets). Everything else is unverified no
// matter how much trust the producer assigned to it.
package evidence

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// SourceClass groups evidence sources by provenance
type SourceClass string

const (
	ClassFiling     SourceClass = "filing"
	ClassRegulator  SourceClass = "regulator"
	ClassMainstream SourceClass = "mainstream"
	ClassSocial     SourceClass = "social"
	ClassUnknown    SourceClass = "unknown"
)

// Verifiable reports whether the class may ever carry a verified flag
func (c SourceClass) Verifiable() bool {
	switch c {
	case ClassFiling, ClassRegulator, ClassMainstream:
		return true
	}
	return false
}

// ParseClass converts a policy string into a SourceClass
func ParseClass(s string) (SourceClass, error) {
	c := SourceClass(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ClassFiling, ClassRegulator, ClassMainstream, ClassSocial, ClassUnknown:
		return c, nil
	}
	return "", fmt.Errorf("source class %q: %w", s, contracts.ErrOutOfRange)
}

var defaultSources = map[string]SourceClass{
	// official filings
	"sec":           ClassFiling,
	"sec.gov":       ClassFiling,
	"edgar":         ClassFiling,
	"filing":        ClassFiling,
	"nseindia.com":  ClassFiling,
	"bseindia.com":  ClassFiling,
	"nse":           ClassFiling,
	"bse":           ClassFiling,
	"exchange":      ClassFiling,
	"annual_report": ClassFiling,

	// regulators
	"sebi":        ClassRegulator,
	"sebi.gov.in": ClassRegulator,
	"rbi":         ClassRegulator,
	"rbi.org.in":  ClassRegulator,
	"fca":         ClassRegulator,
	"regulator":   ClassRegulator,

	// vetted mainstream outlets
	"reuters":                      ClassMainstream,
	"reuters.com":                  ClassMainstream,
	"bloomberg":                    ClassMainstream,
	"bloomberg.com":                ClassMainstream,
	"gdelt":                        ClassMainstream,
	"economic times":               ClassMainstream,
	"financial times":              ClassMainstream,
	"economictimes":                ClassMainstream,
	"economictimes.indiatimes.com": ClassMainstream,
	"livemint":                     ClassMainstream,
	"livemint.com":                 ClassMainstream,
	"moneycontrol":                 ClassMainstream,
	"moneycontrol.com":             ClassMainstream,
	"ft.com":                       ClassMainstream,
	"wsj":                          ClassMainstream,
	"wsj.com":                      ClassMainstream,
	"cnbc":                         ClassMainstream,
	"cnbc.com":                     ClassMainstream,

	// social
	"twitter":     ClassSocial,
	"twitter.com": ClassSocial,
	"x.com":       ClassSocial,
	"tweet":       ClassSocial,
	"reddit":      ClassSocial,
	"reddit.com":  ClassSocial,
	"youtube":     ClassSocial,
	"youtube.com": ClassSocial,
	"stocktwits":  ClassSocial,
	"telegram":    ClassSocial,
	"rumor":       ClassSocial,
}

// Rules holds the source classification table and the verified allow-list
type Rules struct {
	sources map[string]SourceClass
	allowed map[SourceClass]bool
}

// DefaultRules returns the built-in table with filings, regulators and
// mainstream outlets allow-listed
func DefaultRules() *Rules {
	r, _ := NewRules(nil, []SourceClass{ClassFiling, ClassRegulator, ClassMainstream})
	return r
}

// NewRules builds rules from extra source mappings and the allow-listed classes.
// Only verifiable classes may be allow-listed.
func NewRules(extra map[string]SourceClass, allowed []SourceClass) (*Rules, error) {
	if len(allowed) == 0 {
		return nil, fmt.Errorf("empty verified allow-list: %w", contracts.ErrOutOfRange)
	}

	r := &Rules{
		sources: make(map[string]SourceClass, len(defaultSources)+len(extra)),
		allowed: make(map[SourceClass]bool, len(allowed)),
	}
	for k, v := range defaultSources {
		r.sources[k] = v
	}
	for k, v := range extra {
		if _, err := ParseClass(string(v)); err != nil {
			return nil, err
		}
		r.sources[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, c := range allowed {
		if !c.Verifiable() {
			return nil, fmt.Errorf("class %q cannot be allow-listed: %w", c, contracts.ErrOutOfRange)
		}
		r.allowed[c] = true
	}
	return r, nil
}

// Classify maps a free-form source (name, host or URL) to its class.
// Exact names win. Hosts and URLs match by registered-domain suffix only.
// Plain names fall back to word tokens, where any social token wins.
func (r *Rules) Classify(source string) SourceClass {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return ClassUnknown
	}
	if c, ok := r.sources[s]; ok {
		return c
	}

	if host, ok := hostOf(s); ok {
		labels := strings.Split(host, ".")
		for i := 0; i < len(labels)-1; i++ {
			if c, ok := r.sources[strings.Join(labels[i:], ".")]; ok {
				return c
			}
		}
		return ClassUnknown
	}

	class := ClassUnknown
	for _, tok := range strings.FieldsFunc(s, isSeparator) {
		c, ok := r.sources[tok]
		if !ok {
			continue
		}
		if c == ClassSocial {
			return ClassSocial
		}
		if class == ClassUnknown {
			class = c
		}
	}
	return class
}

// Allowed reports whether a class is on the verified allow-list
func (r *Rules) Allowed(c SourceClass) bool {
	return r.allowed[c]
}

// Normalize returns a copy of item with Verified forced false unless the
// source class is allow-listed. Nothing else is altered.
func (r *Rules) Normalize(item contracts.EvidenceItem) contracts.EvidenceItem {
	if item.Verified && !r.Allowed(r.Classify(item.Source)) {
		item.Verified = false
	}
	return item
}

// NormalizeAll normalizes every item into a fresh slice
func (r *Rules) NormalizeAll(items []contracts.EvidenceItem) []contracts.EvidenceItem {
	out := make([]contracts.EvidenceItem, len(items))
	for i, it := range items {
		out[i] = r.Normalize(it)
	}
	return out
}

// Validate reports contract violations in a produced item
func Validate(item contracts.EvidenceItem) error {
	if math.IsNaN(item.SourceTrust) || item.SourceTrust < 0 || item.SourceTrust > 1 {
		return fmt.Errorf("evidence %s source_trust %v: %w", item.DocID, item.SourceTrust, contracts.ErrOutOfRange)
	}
	return nil
}

// hostOf reports the host of a URL or bare host name. Free text is not a host.
func hostOf(s string) (string, bool) {
	if !strings.Contains(s, "://") {
		if !strings.Contains(s, ".") || strings.ContainsAny(s, " \t") {
			return "", false
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.TrimPrefix(u.Hostname(), "www."), true
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '-', '/', ':', ',', '(', ')', '|', '.':
		return true
	}
	return false
}
