// package cache persists track resolutions keyed by normalized query fingerprints
package cache

import (
	"regexp"
	"strings"
)

// The fingerprint format is a compatibility contract with existing
// cache databases. Changing any of these rules orphans every stored
// entry, so treat edits here as a schema migration.
var (
	featuringRe   = regexp.MustCompile(`(?i)\s*[\(\[]?(?:feat\.?|ft\.?|featuring)\s+[^\]\)]+[\]\)]?\s*`)
	bracketedRe   = regexp.MustCompile(`\s*[\(\[][^\]\)]*[\]\)]\s*`)
	punctuationRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// normalizeText lowercases a field, drops featuring clauses and
// bracketed segments, strips punctuation, and collapses whitespace.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	text = featuringRe.ReplaceAllString(text, "")
	text = bracketedRe.ReplaceAllString(text, "")
	text = punctuationRe.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint derives the cache key for a query: the pipe-joined
// normalized title, artist, and album. Duration and transient query
// rewrites never participate.
func Fingerprint(title, artist, album string) string {
	return normalizeText(title) + "|" + normalizeText(artist) + "|" + normalizeText(album)
}

// HasTitle reports whether a fingerprint carries a non-empty title
// segment. Negative entries are refused for title-less fingerprints
// since they would blanket every query with the same artist.
func HasTitle(fingerprint string) bool {
	title, _, _ := strings.Cut(fingerprint, "|")
	return title != ""
}
