package services

import (
	"context"

	"github.com/desertthunder/trackmatch/internal/models"
)

// SearchQuery is a structured search request against the catalog
// backend. Text, when set, replaces the structured fields (used for
// operator-typed manual searches).
type SearchQuery struct {
	Title  string
	Artist string
	Album  string
	Text   string
	Limit  int
}

// Backend is the authoritative track catalog.
type Backend interface {
	// SearchTracks runs one search and returns raw candidates. An empty
	// result is not an error.
	SearchTracks(ctx context.Context, q SearchQuery) ([]models.Candidate, error)

	// GetTrack fetches a single track by its backend id. Used to verify
	// linked identifiers carried on incoming queries.
	GetTrack(ctx context.Context, id string) (*models.Candidate, error)

	// Name returns the backend name for logs.
	Name() string
}

// QueryCleaner rewrites noisy query metadata into a cleaner variant.
// Implementations are best-effort: any failure degrades the pipeline
// rather than aborting it.
type QueryCleaner interface {
	CleanQuery(ctx context.Context, q models.TrackQuery) (*models.TrackQuery, error)
}

// LocalIndex serves nearby candidates from an offline snapshot of the
// catalog. Optional: a nil index skips the stage entirely.
type LocalIndex interface {
	Nearest(ctx context.Context, q models.TrackQuery, k int) ([]models.Candidate, error)
}
