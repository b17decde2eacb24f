package models

import (
	"fmt"
	"strings"
	"time"
)

// Provenance identifies where a candidate came from. Linked candidates
// carry an external identifier match and outrank search results when
// scores tie.
type Provenance int

const (
	ProvenanceSearch Provenance = iota
	ProvenanceLocalIndex
	ProvenanceLinked
	ProvenanceManual
)

// String returns a human-readable label for the provenance.
func (p Provenance) String() string {
	switch p {
	case ProvenanceSearch:
		return "search"
	case ProvenanceLocalIndex:
		return "local_index"
	case ProvenanceLinked:
		return "linked"
	case ProvenanceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseProvenance maps a stored label back to its Provenance value.
func ParseProvenance(s string) Provenance {
	switch s {
	case "local_index":
		return ProvenanceLocalIndex
	case "linked":
		return ProvenanceLinked
	case "manual":
		return ProvenanceManual
	default:
		return ProvenanceSearch
	}
}

// TrackQuery is a loosely-specified track reference to resolve.
// Title is the only required field; DurationSecs of 0 means unknown.
type TrackQuery struct {
	Title        string  `json:"title"`
	Artist       string  `json:"artist,omitempty"`
	Album        string  `json:"album,omitempty"`
	DurationSecs float64 `json:"duration_secs,omitempty"`

	// ExternalIDs maps provider names to previously-resolved identifiers
	// (e.g. "backend" -> catalog id). Never part of the cache fingerprint.
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
}

// Validate checks that the query carries enough metadata to search on.
func (q TrackQuery) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("track query requires a title")
	}
	return nil
}

// Display returns a short "Title - Artist" form for logs and review prompts.
func (q TrackQuery) Display() string {
	if q.Artist == "" {
		return q.Title
	}
	return fmt.Sprintf("%s - %s", q.Title, q.Artist)
}

// Candidate is a catalog track proposed as a match for a query.
type Candidate struct {
	BackendID    string     `json:"backend_id"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist,omitempty"`
	Album        string     `json:"album,omitempty"`
	DurationSecs float64    `json:"duration_secs,omitempty"`
	Provenance   Provenance `json:"provenance"`
	Score        float64    `json:"score"`
}

// ResolutionStatus describes how a query left the pipeline.
type ResolutionStatus int

const (
	StatusResolved ResolutionStatus = iota
	StatusNotFound
	StatusSkipped
	StatusAborted
	StatusCacheHit
)

// String returns a human-readable label for the status.
func (s ResolutionStatus) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNotFound:
		return "not_found"
	case StatusSkipped:
		return "skipped"
	case StatusAborted:
		return "aborted"
	case StatusCacheHit:
		return "cache_hit"
	default:
		return "unknown"
	}
}

// Resolution is the final outcome for one query. Candidate is nil
// unless Status is StatusResolved or StatusCacheHit.
type Resolution struct {
	Query      TrackQuery       `json:"query"`
	Candidate  *Candidate       `json:"candidate,omitempty"`
	Status     ResolutionStatus `json:"status"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// ConfirmationRequest is one manual-review work item. Positions lists
// the batch indexes sharing this fingerprint after dedup.
type ConfirmationRequest struct {
	ID          string      `json:"id"`
	Query       TrackQuery  `json:"query"`
	Fingerprint string      `json:"fingerprint"`
	Candidates  []Candidate `json:"candidates"`
	Positions   []int       `json:"positions"`
}
