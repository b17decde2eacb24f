// package matching scores catalog candidates against track queries
package matching

import (
	"math"
	"regexp"
	"strings"

	"github.com/desertthunder/trackmatch/internal/models"
)

// Base field weights, renormalized over whichever fields both sides carry.
const (
	titleWeight  = 0.50
	artistWeight = 0.30
	albumWeight  = 0.20

	// Duration contributes a small adjustment on top of the field score:
	// full credit inside the tight band, linear decay out to the wide band.
	durationBonus    = 0.05
	durationTightSec = 3.0
	durationWideSec  = 15.0

	wholeQueryFactor = 0.85
)

var (
	leadingArticleRe = regexp.MustCompile(`^\s*the\s+`)
	parentheticalRe  = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	featClauseRe     = regexp.MustCompile(`(?i)\s*(?:feat\.?|ft\.?|featuring|with)\s+.*$`)
	editionMarkerRe  = regexp.MustCompile(`(?i)\s*-\s*(?:remaster(?:ed)?(?:\s+\d{4})?|radio edit|single version|album version|deluxe edition|expanded edition|clean version|explicit version)\b.*$`)
	separatorRe      = regexp.MustCompile(`[&,/\\]`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
	trailingYearRe   = regexp.MustCompile(`\s*\b\d{4}\b\s*$`)
	nonWordRe        = regexp.MustCompile(`[^\w\s]`)
	artistSplitRe    = regexp.MustCompile(`[,;&/]|\s+and\s+`)
)

// cleanString normalizes a metadata field for comparison: lowercases,
// drops the leading article, strips parentheticals, featuring clauses,
// edition markers after a dash, separator characters, and a trailing
// year token.
func cleanString(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("“", "", "”", "", "’", "", `"`, "", "'", "").Replace(s)
	s = leadingArticleRe.ReplaceAllString(s, "")
	s = parentheticalRe.ReplaceAllString(s, "")
	s = featClauseRe.ReplaceAllString(s, "")
	s = editionMarkerRe.ReplaceAllString(s, "")
	s = separatorRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = trailingYearRe.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}

// similarityRatio is a SequenceMatcher-style ratio derived from
// Levenshtein distance over runes.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra, rb := []rune(a), []rune(b)
	dist := levenshtein(ra, rb)
	longest := max(len(ra), len(rb))
	return 1.0 - float64(dist)/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// stringSimilarity compares two cleaned strings: exact match wins,
// containment earns a length-weighted 0.9, everything else falls back
// to the edit-distance ratio.
func stringSimilarity(source, target string) float64 {
	source = strings.TrimSpace(strings.ToLower(source))
	target = strings.TrimSpace(strings.ToLower(target))
	if source == "" || target == "" {
		return 0.0
	}
	if source == target {
		return 1.0
	}
	if strings.Contains(target, source) || strings.Contains(source, target) {
		shorter := math.Min(float64(len(source)), float64(len(target)))
		longer := math.Max(float64(len(source)), float64(len(target)))
		return 0.9 * (shorter / longer)
	}
	return similarityRatio(source, target)
}

// splitArtists breaks a credit string into individual cleaned names,
// treating featuring clauses as additional artists.
func splitArtists(s string) []string {
	if s == "" {
		return nil
	}

	var names []string
	main := featClauseRe.ReplaceAllString(s, "")

	featRe := regexp.MustCompile(`(?i)(?:feat\.?|ft\.?|featuring|with)\s+([^,;&/]+)`)
	for _, m := range featRe.FindAllStringSubmatch(s, -1) {
		if cleaned := cleanString(m[1]); cleaned != "" {
			names = append(names, cleaned)
		}
	}

	for _, part := range artistSplitRe.Split(main, -1) {
		if cleaned := cleanString(part); cleaned != "" {
			names = append(names, cleaned)
		}
	}

	return names
}

// Clean applies the comparison normalizer to a raw string. Exposed so
// the resolver can rewrite queries whose literal form finds nothing.
func Clean(s string) string {
	return cleanString(s)
}

// PrimaryArtist returns the first credited artist from a credit
// string, cleaned, or "" when the credit is empty.
func PrimaryArtist(s string) string {
	names := splitArtists(s)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// artistSimilarity tolerates multi-artist credits and featuring
// variants: exact name-set overlap scores by coverage, otherwise each
// source name is matched against its best counterpart.
func artistSimilarity(source, target string) float64 {
	sourceNames := splitArtists(source)
	targetNames := splitArtists(target)
	if len(sourceNames) == 0 || len(targetNames) == 0 {
		return 0.0
	}

	targetSet := make(map[string]bool, len(targetNames))
	for _, n := range targetNames {
		targetSet[n] = true
	}

	exact := 0
	for _, n := range sourceNames {
		if targetSet[n] {
			exact++
		}
	}
	if exact > 0 {
		return float64(exact) / float64(max(len(sourceNames), len(targetNames)))
	}

	total := 0.0
	for _, sn := range sourceNames {
		best := 0.0
		for _, tn := range targetNames {
			if sim := stringSimilarity(sn, tn); sim > best {
				best = sim
			}
		}
		total += best
	}
	return 0.8 * (total / float64(len(sourceNames)))
}

// wholeQueryText collapses all fields into one cleaned string. Catches
// feeds where metadata landed in the wrong fields ("Song | Artist |
// Album" stuffed into the title).
func wholeQueryText(title, artist, album string) string {
	var parts []string
	for _, field := range []string{title, artist, album} {
		field = nonWordRe.ReplaceAllString(field, " ")
		if cleaned := cleanString(field); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " ")
}

// durationAdjustment returns the signed score contribution from
// duration proximity. Zero when either side lacks a duration.
func durationAdjustment(querySecs, candidateSecs float64) float64 {
	if querySecs <= 0 || candidateSecs <= 0 {
		return 0.0
	}

	diff := math.Abs(querySecs - candidateSecs)
	switch {
	case diff <= durationTightSec:
		return durationBonus
	case diff >= durationWideSec:
		return -durationBonus
	default:
		// Linear decay from +bonus at the tight band to -bonus at the wide band.
		frac := (diff - durationTightSec) / (durationWideSec - durationTightSec)
		return durationBonus * (1.0 - 2.0*frac)
	}
}

// Score computes a normalized similarity in [0,1] between a query and
// a candidate. Pure and deterministic: identical inputs always yield
// an identical float. Fields absent on either side are excluded from
// weight normalization rather than penalized.
func Score(q models.TrackQuery, c models.Candidate) float64 {
	type fieldScore struct {
		weight     float64
		similarity float64
	}

	var fields []fieldScore

	if strings.TrimSpace(q.Title) != "" {
		fields = append(fields, fieldScore{titleWeight, stringSimilarity(cleanString(q.Title), cleanString(c.Title))})
	}
	if strings.TrimSpace(q.Artist) != "" {
		fields = append(fields, fieldScore{artistWeight, artistSimilarity(q.Artist, c.Artist)})
	}
	if strings.TrimSpace(q.Album) != "" && strings.TrimSpace(c.Album) != "" {
		fields = append(fields, fieldScore{albumWeight, stringSimilarity(cleanString(q.Album), cleanString(c.Album))})
	}

	if len(fields) == 0 {
		return 0.0
	}

	totalWeight := 0.0
	for _, f := range fields {
		totalWeight += f.weight
	}

	fieldTotal := 0.0
	for _, f := range fields {
		fieldTotal += (f.weight / totalWeight) * f.similarity
	}

	// Whole-query fallback for field-misaligned metadata: prefer the
	// structured score, but let a strong combined match through at a
	// discount.
	whole := 0.0
	queryCombined := wholeQueryText(q.Title, q.Artist, q.Album)
	candidateCombined := wholeQueryText(c.Title, c.Artist, c.Album)
	if queryCombined != "" && candidateCombined != "" {
		whole = stringSimilarity(queryCombined, candidateCombined) * wholeQueryFactor
	}

	score := math.Max(fieldTotal, whole) + durationAdjustment(q.DurationSecs, c.DurationSecs)

	return math.Max(0.0, math.Min(1.0, score))
}
