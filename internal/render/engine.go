// Package render implements the token substitution engine that turns a
// document resource and a set of collected fields into the final receipt.
package render

import (
	"sort"
	"strings"
)

// escaper covers the five reserved markup characters. Every value is
// escaped before it is inserted into the document so a field value can
// never alter the document structure.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape escapes a value for insertion into a document.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Engine replaces recognized tokens in a document with computed values.
//
// Replacement is a single left-to-right pass with longest-match-first
// resolution: at every word boundary the longest recognized token name
// wins, so a short token can never corrupt a longer one it is embedded
// in (TOTAL inside CARTTOTAL, DATE inside ORDERDATE, PRODUCT inside
// PRODUCT_IMAGE). A candidate only matches when the characters around
// it are not word characters.
type Engine struct{}

// NewEngine creates a new token substitution engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Render substitutes every recognized token in doc with its escaped
// value. Tokens without a value and text that matches no token are left
// untouched.
func (e *Engine) Render(doc string, values map[string]string) string {
	tokens := make([]string, 0, len(values))
	for name := range values {
		tokens = append(tokens, name)
	}
	// Longest first; lexicographic among equals for determinism.
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	var b strings.Builder
	b.Grow(len(doc))

	for i := 0; i < len(doc); {
		// Only attempt a match at a word boundary.
		if i > 0 && isWordChar(doc[i-1]) {
			b.WriteByte(doc[i])
			i++
			continue
		}

		matched := false
		for _, name := range tokens {
			end := i + len(name)
			if end > len(doc) || doc[i:end] != name {
				continue
			}
			if end < len(doc) && isWordChar(doc[end]) {
				continue
			}
			b.WriteString(Escape(values[name]))
			i = end
			matched = true
			break
		}
		if !matched {
			b.WriteByte(doc[i])
			i++
		}
	}

	return b.String()
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9')
}
