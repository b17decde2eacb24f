// package index serves candidates from an offline snapshot of the catalog
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmatch/internal/models"
)

// TrackIndex implements [services.LocalIndex] over an in-memory bleve
// index built from a catalog snapshot.
type TrackIndex struct {
	index  bleve.Index
	logger *log.Logger
	mu     sync.RWMutex
}

// New creates an empty in-memory track index.
func New(logger *log.Logger) (*TrackIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &TrackIndex{index: idx, logger: logger}, nil
}

// buildIndexMapping maps title/artist/album as analyzed text and the
// backend id as an exact keyword. All fields are stored so hits can be
// turned back into candidates without a second lookup.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"title", "artist", "album"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = simple.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	idMapping := bleve.NewTextFieldMapping()
	idMapping.Analyzer = keyword.Name
	idMapping.Store = true
	docMapping.AddFieldMappingsAt("id", idMapping)

	durationMapping := bleve.NewNumericFieldMapping()
	durationMapping.Store = true
	docMapping.AddFieldMappingsAt("duration", durationMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

func trackDoc(c models.Candidate) map[string]any {
	return map[string]any{
		"id":       c.BackendID,
		"title":    c.Title,
		"artist":   c.Artist,
		"album":    c.Album,
		"duration": c.DurationSecs,
	}
}

// Build indexes a catalog snapshot in batches, replacing nothing:
// call on a fresh index.
func (t *TrackIndex) Build(tracks []models.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	const batchSize = 500

	for i := 0; i < len(tracks); i += batchSize {
		end := min(i+batchSize, len(tracks))

		batch := t.index.NewBatch()
		for _, c := range tracks[i:end] {
			if c.BackendID == "" {
				continue
			}
			if err := batch.Index(c.BackendID, trackDoc(c)); err != nil {
				return fmt.Errorf("failed to index track %s: %w", c.BackendID, err)
			}
		}

		if err := t.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to commit batch %d-%d: %w", i, end, err)
		}
	}

	t.logger.Info("built local track index", "tracks", len(tracks))
	return nil
}

// BuildFromFile loads a JSON catalog dump (an array of tracks) and
// indexes it.
func (t *TrackIndex) BuildFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog dump: %w", err)
	}

	var dump []struct {
		ID           string  `json:"id"`
		Title        string  `json:"title"`
		Artist       string  `json:"artist"`
		Album        string  `json:"album"`
		DurationSecs float64 `json:"duration_seconds"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		return 0, fmt.Errorf("failed to parse catalog dump: %w", err)
	}

	tracks := make([]models.Candidate, len(dump))
	for i, d := range dump {
		tracks[i] = models.Candidate{
			BackendID:    d.ID,
			Title:        d.Title,
			Artist:       d.Artist,
			Album:        d.Album,
			DurationSecs: d.DurationSecs,
		}
	}

	return len(tracks), t.Build(tracks)
}

// Count returns the number of indexed tracks.
func (t *TrackIndex) Count() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index.DocCount()
}

// Close releases index resources.
func (t *TrackIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Close()
}

// Nearest returns up to k candidates near the query. Title matches are
// boosted over artist and album; a fuzzy title query adds typo
// tolerance. Hits carry local-index provenance and no score (the
// matching package rescoring is authoritative).
func (t *TrackIndex) Nearest(ctx context.Context, q models.TrackQuery, k int) ([]models.Candidate, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var queries []query.Query

	if q.Title != "" {
		titleMatch := bleve.NewMatchQuery(q.Title)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		queries = append(queries, titleMatch)

		fuzzy := bleve.NewFuzzyQuery(q.Title)
		fuzzy.SetField("title")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.8)
		queries = append(queries, fuzzy)
	}
	if q.Artist != "" {
		artistMatch := bleve.NewMatchQuery(q.Artist)
		artistMatch.SetField("artist")
		artistMatch.SetBoost(1.5)
		queries = append(queries, artistMatch)
	}
	if q.Album != "" {
		albumMatch := bleve.NewMatchQuery(q.Album)
		albumMatch.SetField("album")
		queries = append(queries, albumMatch)
	}

	if len(queries) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), k, 0, false)
	req.Fields = []string{"id", "title", "artist", "album", "duration"}

	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		c := models.Candidate{BackendID: hit.ID, Provenance: models.ProvenanceLocalIndex}
		if v, ok := hit.Fields["title"].(string); ok {
			c.Title = v
		}
		if v, ok := hit.Fields["artist"].(string); ok {
			c.Artist = v
		}
		if v, ok := hit.Fields["album"].(string); ok {
			c.Album = v
		}
		if v, ok := hit.Fields["duration"].(float64); ok {
			c.DurationSecs = v
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}
