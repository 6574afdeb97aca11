// Package rules classifies listing sources against operator-managed domain
// whitelists and blacklists.
package rules

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

// Verdict is the classification of a single listing source.
type Verdict struct {
	Whitelisted bool
	Blacklisted bool
	// Unlisted is true when a whitelist exists and the source is not on it.
	Unlisted bool
	// Rule is the matching rule, if any.
	Rule *model.DomainRule
}

// RuleSet is an immutable snapshot of domain rules.
type RuleSet struct {
	whitelist []model.DomainRule
	blacklist []model.DomainRule
}

// NewRuleSet partitions rules by type. Domains are lowercased with any
// leading "www." removed.
func NewRuleSet(rules []model.DomainRule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range rules {
		r.Domain = NormalizeDomain(r.Domain)
		if r.Domain == "" {
			continue
		}
		switch r.RuleType {
		case model.RuleWhitelist:
			rs.whitelist = append(rs.whitelist, r)
		case model.RuleBlacklist:
			rs.blacklist = append(rs.blacklist, r)
		}
	}
	return rs
}

// HasWhitelist reports whether any whitelist rule is configured.
func (rs *RuleSet) HasWhitelist() bool { return rs != nil && len(rs.whitelist) > 0 }

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.whitelist) + len(rs.blacklist)
}

// Classify checks a listing link (and its free-form source label) against
// the rules. Blacklist wins over whitelist.
func (rs *RuleSet) Classify(link, source string) Verdict {
	if rs == nil {
		return Verdict{}
	}
	host := hostOf(link)
	label := strings.ToLower(strings.TrimSpace(source))

	for i := range rs.blacklist {
		if matches(host, label, rs.blacklist[i].Domain) {
			return Verdict{Blacklisted: true, Rule: &rs.blacklist[i]}
		}
	}
	for i := range rs.whitelist {
		if matches(host, label, rs.whitelist[i].Domain) {
			return Verdict{Whitelisted: true, Rule: &rs.whitelist[i]}
		}
	}
	// Only sources with a real link can be judged against the whitelist.
	if len(rs.whitelist) > 0 && host != "" {
		return Verdict{Unlisted: true}
	}
	return Verdict{}
}

// NormalizeDomain lowercases a domain or URL and strips scheme, path and "www.".
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if strings.Contains(d, "://") {
		d = hostOf(d)
	}
	d = strings.TrimSuffix(d, "/")
	return strings.TrimPrefix(d, "www.")
}

// ValidateRule checks that a rule can be stored.
func ValidateRule(r model.DomainRule) error {
	if NormalizeDomain(r.Domain) == "" {
		return eris.New("rules: domain is required")
	}
	if r.RuleType != model.RuleWhitelist && r.RuleType != model.RuleBlacklist {
		return eris.Errorf("rules: unknown rule type %q", r.RuleType)
	}
	return nil
}

func hostOf(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func matches(host, label, domain string) bool {
	if host != "" && (host == domain || strings.HasSuffix(host, "."+domain)) {
		return true
	}
	return label != "" && strings.Contains(label, domain)
}
