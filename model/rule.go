package model

import (
	"strings"

	"github.com/c360/focusstream/feature"
)

const ruleBasedVersion = "rule-based/1.2.0"

// DefaultDistractionDomains are domains treated as known distractions
// when no explicit lists are configured.
var DefaultDistractionDomains = []string{
	"youtube.com",
	"tiktok.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"reddit.com",
	"facebook.com",
	"twitch.tv",
	"netflix.com",
}

// DefaultProductiveDomains are domains treated as known productive
// contexts when no explicit lists are configured.
var DefaultProductiveDomains = []string{
	"github.com",
	"stackoverflow.com",
	"docs.google.com",
	"wikipedia.org",
}

// RuleBased is the zero-dependency strategy: a domain allow/deny-list
// heuristic with a rate-based fallback for unlisted domains.
type RuleBased struct {
	distraction map[string]struct{}
	productive  map[string]struct{}
}

// NewRuleBased builds the rule-based strategy. Empty lists fall back to
// the package defaults. Matching is by host suffix, so "m.youtube.com"
// hits the "youtube.com" entry.
func NewRuleBased(distractionDomains, productiveDomains []string) *RuleBased {
	if len(distractionDomains) == 0 {
		distractionDomains = DefaultDistractionDomains
	}
	if len(productiveDomains) == 0 {
		productiveDomains = DefaultProductiveDomains
	}

	return &RuleBased{
		distraction: toSet(distractionDomains),
		productive:  toSet(productiveDomains),
	}
}

func toSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// Predict scores the window. Listed domains dominate; unlisted domains
// fall back to interaction-rate heuristics with lower confidence.
func (r *RuleBased) Predict(features feature.Vector, domain string) (float64, float64) {
	if matchesSuffix(r.distraction, domain) {
		return 0.9, 0.8
	}
	if matchesSuffix(r.productive, domain) {
		return 0.1, 0.8
	}

	// Unlisted domain: sustained passive scrolling with few page visits
	// reads as drift, active clicking and typing reads as engagement.
	p := 0.5
	switch {
	case features.ScrollRatePerMinute > 30:
		p = 0.7
	case features.KeystrokeBurstCount > 0 && features.ScrollRatePerMinute < 10:
		p = 0.3
	}

	return clamp01(p), 0.4
}

// Version returns the strategy version string
func (r *RuleBased) Version() string {
	return ruleBasedVersion
}

// matchesSuffix reports whether domain or any parent domain is in the set
func matchesSuffix(set map[string]struct{}, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if _, ok := set[domain]; ok {
		return true
	}
	for i := strings.IndexByte(domain, '.'); i >= 0; i = strings.IndexByte(domain, '.') {
		domain = domain[i+1:]
		if _, ok := set[domain]; ok {
			return true
		}
	}
	return false
}
