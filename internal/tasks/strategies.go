package tasks

import (
	"github.com/desertthunder/trackmatch/internal/matching"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/services"
)

// searchStrategy is one rung of the backend search ladder: a named
// query rewrite tried in order until one returns results.
type searchStrategy struct {
	name  string
	query services.SearchQuery
}

// buildStrategies derives the search ladder for a query, most specific
// first. Later rungs progressively loosen the query: primary artist
// only, swapped title/artist (a common metadata misassignment), bare
// title, then a normalized rewrite with noise stripped from both
// fields. Duplicate rungs are dropped so a clean query stays short.
func buildStrategies(q models.TrackQuery, limit int) []searchStrategy {
	var ladder []searchStrategy
	seen := make(map[string]bool)

	add := func(name, title, artist, album string) {
		if title == "" && artist == "" {
			return
		}
		key := title + "\x00" + artist + "\x00" + album
		if seen[key] {
			return
		}
		seen[key] = true
		ladder = append(ladder, searchStrategy{
			name:  name,
			query: services.SearchQuery{Title: title, Artist: artist, Album: album, Limit: limit},
		})
	}

	if q.Album != "" {
		add("full", q.Title, q.Artist, q.Album)
	}
	add("title_artist", q.Title, q.Artist, "")

	if primary := matching.PrimaryArtist(q.Artist); primary != "" {
		add("primary_artist", q.Title, primary, "")
	}
	if q.Artist != "" {
		add("swapped", q.Artist, q.Title, "")
	}
	add("title_only", q.Title, "", "")
	add("normalized", matching.Clean(q.Title), matching.Clean(q.Artist), "")

	return ladder
}
