// package confirm queues ambiguous resolutions for operator review
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmatch/internal/cache"
	"github.com/desertthunder/trackmatch/internal/matching"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
)

// DecisionKind enumerates what an operator can do with a review item.
type DecisionKind int

const (
	// DecisionSkip leaves the query unresolved without caching anything.
	DecisionSkip DecisionKind = iota
	// DecisionSelect accepts one of the presented candidates.
	DecisionSelect
	// DecisionSearch runs a free-text search and re-presents the item.
	DecisionSearch
	// DecisionAbort stops the review session entirely.
	DecisionAbort
)

// Decision is an operator's verdict on one review item. Index is the
// candidate position for DecisionSelect; Query is the free-text input
// for DecisionSearch.
type Decision struct {
	Kind  DecisionKind
	Index int
	Query string
}

// Operator presents a review item and collects a decision. The
// terminal implementation lives in the ui package; tests script one.
type Operator interface {
	Review(ctx context.Context, req models.ConfirmationRequest) (Decision, error)
}

// SearchFunc runs a free-text catalog search on the operator's behalf.
type SearchFunc func(ctx context.Context, text string) ([]models.Candidate, error)

// Outcome pairs a drained request with its final resolution.
type Outcome struct {
	Request    models.ConfirmationRequest
	Resolution models.Resolution
}

// Queue collects confirmation requests and replays them to an operator
// one at a time. Requests sharing a fingerprint are merged: their
// candidate lists are unioned by backend id and their batch positions
// concatenated, so the operator decides each distinct query once.
type Queue struct {
	store  *cache.Store
	logger *log.Logger
	items  []models.ConfirmationRequest
	byFp   map[string]int
}

// NewQueue creates an empty review queue writing decisions to store.
func NewQueue(store *cache.Store, logger *log.Logger) *Queue {
	return &Queue{store: store, logger: logger, byFp: make(map[string]int)}
}

// Enqueue adds a request, merging it into an existing item when one
// already covers the same fingerprint.
func (q *Queue) Enqueue(req models.ConfirmationRequest) {
	idx, ok := q.byFp[req.Fingerprint]
	if !ok {
		q.byFp[req.Fingerprint] = len(q.items)
		q.items = append(q.items, req)
		return
	}

	existing := &q.items[idx]
	existing.Positions = append(existing.Positions, req.Positions...)

	seen := make(map[string]bool, len(existing.Candidates))
	for _, c := range existing.Candidates {
		seen[c.BackendID] = true
	}
	for _, c := range req.Candidates {
		if !seen[c.BackendID] {
			existing.Candidates = append(existing.Candidates, c)
			seen[c.BackendID] = true
		}
	}
}

// Len returns the number of distinct pending items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns the pending items in arrival order.
func (q *Queue) Items() []models.ConfirmationRequest {
	return q.items
}

// Drain walks the queue in order, asking the operator for a decision
// on each item. A selection is cached as a positive entry under the
// request's original fingerprint with manual provenance. A skip
// resolves nothing but records a negative entry under the fingerprint
// (titled queries only), so the declined search is not repeated. A
// search decision re-ranks the new results against the original query
// and re-presents the item. Abort stops the session and returns
// [shared.ErrOperatorAbort] along with the outcomes settled so far;
// undrained items stay queued.
func (q *Queue) Drain(ctx context.Context, op Operator, search SearchFunc) ([]Outcome, error) {
	var outcomes []Outcome

	for len(q.items) > 0 {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		req := q.items[0]

		decision, err := op.Review(ctx, req)
		if err != nil {
			return outcomes, fmt.Errorf("review failed for %s: %w", req.Query.Display(), err)
		}

		switch decision.Kind {
		case DecisionAbort:
			q.logger.Info("review session aborted", "remaining", len(q.items))
			return outcomes, shared.ErrOperatorAbort

		case DecisionSearch:
			if search == nil {
				q.logger.Warn("manual search unavailable")
				continue
			}
			hits, err := search(ctx, decision.Query)
			if err != nil {
				q.logger.Warn("manual search failed", "query", decision.Query, "err", err)
				continue
			}
			q.items[0].Candidates = matching.Rank(req.Query, hits)
			continue

		case DecisionSelect:
			if decision.Index < 0 || decision.Index >= len(req.Candidates) {
				q.logger.Warn("selection out of range", "index", decision.Index)
				continue
			}
			chosen := req.Candidates[decision.Index]
			chosen.Provenance = models.ProvenanceManual

			if err := q.store.PutPositive(req.Fingerprint, chosen); err != nil {
				q.logger.Warn("failed to cache manual selection", "fingerprint", req.Fingerprint, "err", err)
			}

			outcomes = append(outcomes, Outcome{
				Request: req,
				Resolution: models.Resolution{
					Query:      req.Query,
					Candidate:  &chosen,
					Status:     models.StatusResolved,
					ResolvedAt: time.Now(),
				},
			})

		default:
			if err := q.store.PutNegative(req.Fingerprint); err != nil && !errors.Is(err, shared.ErrInvalidInput) {
				q.logger.Warn("failed to cache skipped query", "fingerprint", req.Fingerprint, "err", err)
			}

			outcomes = append(outcomes, Outcome{
				Request: req,
				Resolution: models.Resolution{
					Query:      req.Query,
					Status:     models.StatusSkipped,
					ResolvedAt: time.Now(),
				},
			})
		}

		delete(q.byFp, req.Fingerprint)
		q.items = q.items[1:]
		for fp, i := range q.byFp {
			q.byFp[fp] = i - 1
		}
	}

	return outcomes, nil
}
