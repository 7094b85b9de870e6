package pii

import (
	"regexp"
	"strings"
)

// Mask replaces every detected value with a [CATEGORY] placeholder. Patterns
// run in registry order over the progressively masked text, so a value caught
// by an earlier category is not reported again by a broader one. Patterns with
// a capture group mask only the group.
func (r *Registry) Mask(text string) string {
	for _, p := range r.patterns {
		text = maskAll(p.Matcher, text, "["+strings.ToUpper(p.Name)+"]")
	}
	return text
}

// Mask replaces every detected value in text with a category placeholder
func (d *Detector) Mask(text string) string {
	return d.registry.Mask(text)
}

func maskAll(re *regexp.Regexp, text, placeholder string) string {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if len(loc) >= 4 && loc[2] >= 0 {
			start, end = loc[2], loc[3]
		}
		b.WriteString(text[last:start])
		b.WriteString(placeholder)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
