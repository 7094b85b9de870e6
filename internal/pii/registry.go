package pii

import (
	"fmt"
	"regexp"
)

// Category names are a stable external contract; audit logs and API
// consumers key off them.
const (
	CategoryIPv4          = "ipv4"
	CategoryIPv6          = "ipv6"
	CategoryEmail         = "email"
	CategoryPhone         = "phone"
	CategorySSN           = "ssn"
	CategoryCreditCard    = "credit_card"
	CategoryAPIKeyGeneric = "api_key_generic"
	CategoryAWSAccessKey  = "aws_access_key"
	CategoryAWSSecret     = "aws_secret"
	CategoryJWT           = "jwt"
	CategoryPrivateKey    = "private_key"
	CategoryGitHubToken   = "github_token"
	CategoryStripeKey     = "stripe_key"
	CategorySlackToken    = "slack_token"
	CategoryGoogleAPI     = "google_api"
	CategoryContextSecret = "context_secret"
)

// defaultPatterns is the built-in pattern table in registry order.
// api_key_generic and context_secret deliberately overlap with the
// specific categories.
var defaultPatterns = []struct {
	name string
	expr string
}{
	{CategoryIPv4, `\b(?:[0-9]{1,3}[.,]){3}[0-9]{1,3}\b`},
	{CategoryIPv6, `\b(?:[A-Fa-f0-9]{1,4}:){7}[A-Fa-f0-9]{1,4}\b`},
	{CategoryEmail, `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
	{CategoryPhone, `\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.]?[0-9]{4}\b`},
	{CategorySSN, `\b\d{3}-\d{2}-\d{4}\b`},
	{CategoryCreditCard, `\b(?:\d{4}[-\s]?){3}\d{4}\b`},
	{CategoryAPIKeyGeneric, `\b[A-Za-z0-9_-]{20,}\b`},
	{CategoryAWSAccessKey, `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`},
	{CategoryAWSSecret, `\b[A-Za-z0-9/+=]{40}\b`},
	{CategoryJWT, `\beyJ[A-Za-z0-9_=-]+\.eyJ[A-Za-z0-9_=-]+\.[A-Za-z0-9_.+/=-]+\b`},
	{CategoryPrivateKey, `-----BEGIN (?:RSA |EC )?PRIVATE KEY-----`},
	{CategoryGitHubToken, `\bghp_[A-Za-z0-9]{36}\b`},
	{CategoryStripeKey, `\b(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}\b`},
	// The captured group (the token body) is what gets reported and localized.
	{CategorySlackToken, `\bxox[baprs]-([0-9a-zA-Z]{10,48})\b`},
	{CategoryGoogleAPI, `\bAIza[0-9A-Za-z_-]{35}\b`},
	// Reports the value, not the whole key=value pair.
	{CategoryContextSecret, `(?i)\b[a-z0-9_]*(?:password|passwd|secret|token|key|pwd|auth|api|email|phone)[a-z0-9_]*\s*[:=]\s*["']?([A-Za-z0-9+/=._@-]+)["']?`},
}

// Registry is an immutable, ordered set of uniquely named patterns.
// It never changes after construction and may be shared freely.
type Registry struct {
	patterns []Pattern
	index    map[string]int
}

var builtin = mustBuildDefault()

func mustBuildDefault() *Registry {
	patterns := make([]Pattern, 0, len(defaultPatterns))
	for _, def := range defaultPatterns {
		patterns = append(patterns, Pattern{Name: def.name, Matcher: regexp.MustCompile(def.expr)})
	}
	reg, err := NewRegistry(patterns)
	if err != nil {
		panic(err)
	}
	return reg
}

// DefaultRegistry returns the built-in registry
func DefaultRegistry() *Registry {
	return builtin
}

// NewRegistry builds a registry from patterns in the given order.
// Names must be non-empty and unique, and every pattern needs a matcher.
func NewRegistry(patterns []Pattern) (*Registry, error) {
	reg := &Registry{
		patterns: make([]Pattern, 0, len(patterns)),
		index:    make(map[string]int, len(patterns)),
	}
	for _, p := range patterns {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern name must not be empty")
		}
		if p.Matcher == nil {
			return nil, fmt.Errorf("pattern %s has no matcher", p.Name)
		}
		if _, dup := reg.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate pattern name: %s", p.Name)
		}
		reg.index[p.Name] = len(reg.patterns)
		reg.patterns = append(reg.patterns, p)
	}
	return reg, nil
}

// Subset returns a registry restricted to names, keeping registry order.
// The keyword "all" selects every pattern.
func (r *Registry) Subset(names []string) (*Registry, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "all" {
			return r, nil
		}
		if _, ok := r.index[name]; !ok {
			return nil, fmt.Errorf("unknown detector: %s", name)
		}
		want[name] = true
	}

	var selected []Pattern
	for _, p := range r.patterns {
		if want[p.Name] {
			selected = append(selected, p)
		}
	}
	return NewRegistry(selected)
}

// Names returns the pattern names in registry order
func (r *Registry) Names() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of registered patterns
func (r *Registry) Len() int {
	return len(r.patterns)
}

// Lookup returns the pattern registered under name
func (r *Registry) Lookup(name string) (Pattern, bool) {
	i, ok := r.index[name]
	if !ok {
		return Pattern{}, false
	}
	return r.patterns[i], true
}

// Detect scans text with every pattern. Each scan is unanchored, global and
// non-overlapping, left to right. Patterns with a capture group report the
// first group instead of the whole match.
func (r *Registry) Detect(text string) Findings {
	var findings Findings
	for _, p := range r.patterns {
		if matches := scanAll(p.Matcher, text); len(matches) > 0 {
			findings = append(findings, Finding{Category: p.Name, Matches: matches})
		}
	}
	return findings
}

func scanAll(re *regexp.Regexp, text string) []string {
	if re.NumSubexp() == 0 {
		return re.FindAllString(text, -1)
	}

	subs := re.FindAllStringSubmatch(text, -1)
	if len(subs) == 0 {
		return nil
	}
	matches := make([]string, 0, len(subs))
	for _, sub := range subs {
		matches = append(matches, sub[1])
	}
	return matches
}
