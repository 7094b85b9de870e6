// Package locate maps matched strings back to the image regions where OCR
// saw them.
//
// A term is localized only when a single OCR token contains all of it. Values
// the OCR engine split across several tokens, such as a spaced card number,
// produce no box.
package locate

import (
	"strings"

	"github.com/raaihank/pixel-sentinel/internal/geom"
	"github.com/raaihank/pixel-sentinel/internal/ocr"
)

// Locate returns the box of every token that contains one of terms, compared
// case-insensitively. Boxes follow token reading order. A token is emitted once
// per distinct term it contains, where "Key" and "KEY" count as two terms;
// empty terms never match.
//
// Boxes are raw: callers pad and clamp them.
func Locate(tokens []ocr.Token, terms []string) []geom.Box {
	needles := normalize(terms)
	if len(needles) == 0 {
		return nil
	}

	var boxes []geom.Box
	for _, tok := range tokens {
		text := strings.ToLower(tok.Text)
		for _, needle := range needles {
			if strings.Contains(text, needle) {
				boxes = append(boxes, tok.Box)
			}
		}
	}
	return boxes
}

// normalize drops empty and repeated terms, keeping first-seen order, and
// lowercases the rest. Terms differing only in case stay distinct.
func normalize(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	needles := make([]string, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		needles = append(needles, strings.ToLower(term))
	}
	return needles
}
