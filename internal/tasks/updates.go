package tasks

import (
	"fmt"

	"github.com/desertthunder/trackmatch/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CacheLookup Phase = iota
	LocalCandidates
	BackendSearch
	LLMCleanup
	ManualReview
	Resolved
	NotFound
)

func (p Phase) String() string {
	switch p {
	case CacheLookup:
		return "cache_lookup"
	case LocalCandidates:
		return "local_candidates"
	case BackendSearch:
		return "backend_search"
	case LLMCleanup:
		return "llm_cleanup"
	case ManualReview:
		return "manual_review"
	case Resolved:
		return "resolved"
	case NotFound:
		return "not_found"
	default:
		return ""
	}
}

func resolvingUpdate(step, total int, q models.TrackQuery) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackendSearch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, q.Display()),
	}
}

func cacheHitUpdate(step, total int, q models.TrackQuery) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CacheLookup,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (cached)", step, total, q.Display()),
	}
}

func resolvedUpdate(step, total int, q models.TrackQuery, c *models.Candidate) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolved,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%.2f)", step, total, q.Display(), c.Score),
		Data:    c,
	}
}

func notFoundUpdate(step, total int, q models.TrackQuery) ProgressUpdate {
	return ProgressUpdate{
		Phase:   NotFound,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s", step, total, q.Display()),
	}
}

func manualReviewUpdate(step, total int, q models.TrackQuery, candidates int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ManualReview,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ? %s (%d candidates for review)", step, total, q.Display(), candidates),
	}
}
