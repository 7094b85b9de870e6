package pii

import "regexp"

// Pattern is a single named PII matcher. The compiled expression is
// stateless and safe for concurrent use.
type Pattern struct {
	Name    string
	Matcher *regexp.Regexp
}

// Finding holds every substring one category matched, in scan order.
// Duplicates are kept: a literal that appears three times yields three entries.
type Finding struct {
	Category string   `json:"category"`
	Matches  []string `json:"matches"`
}

// Findings lists the categories that matched at least once, in registry order
type Findings []Finding

// Empty reports whether no category matched
func (f Findings) Empty() bool {
	return len(f) == 0
}

// Categories returns the matched category names in registry order
func (f Findings) Categories() []string {
	names := make([]string, 0, len(f))
	for _, finding := range f {
		names = append(names, finding.Category)
	}
	return names
}

// Terms flattens every matched substring across all categories. The same
// substring may appear several times when categories overlap.
func (f Findings) Terms() []string {
	var terms []string
	for _, finding := range f {
		terms = append(terms, finding.Matches...)
	}
	return terms
}

// Get returns the matches recorded for category, or nil
func (f Findings) Get(category string) []string {
	for _, finding := range f {
		if finding.Category == category {
			return finding.Matches
		}
	}
	return nil
}

// Map returns the findings keyed by category name
func (f Findings) Map() map[string][]string {
	m := make(map[string][]string, len(f))
	for _, finding := range f {
		m[finding.Category] = finding.Matches
	}
	return m
}

// Count returns the total number of matched substrings
func (f Findings) Count() int {
	n := 0
	for _, finding := range f {
		n += len(finding.Matches)
	}
	return n
}
