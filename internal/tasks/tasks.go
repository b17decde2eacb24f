// package tasks orchestrates track resolution against the catalog.
//
// The core abstraction is Resolver, which runs each query through the
// staged pipeline and resolves batches with a bounded worker pool.
// Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmatch/internal/cache"
	"github.com/desertthunder/trackmatch/internal/matching"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/services"
	"github.com/desertthunder/trackmatch/internal/shared"
	"golang.org/x/time/rate"
)

// scoreFloor is the score below which a candidate is never worth an
// operator's time.
const scoreFloor = 0.05

// Resolver runs the staged resolution pipeline: cache lookup, linked
// identifier verification, local index candidates, the backend search
// ladder, an optional LLM query rewrite, and finally the manual review
// band. The local index and query cleaner are optional; the pipeline
// skips their stages when unset.
type Resolver struct {
	backend  services.Backend
	index    services.LocalIndex
	cleaner  services.QueryCleaner
	store    *cache.Store
	limiter  *rate.Limiter
	cfg      shared.ResolverConfig
	logger   *log.Logger
	progress chan<- ProgressUpdate
	fallback bool
}

// NewResolver creates a resolver with the required dependencies.
// Thresholds and worker count come from cfg; the rate limiter is
// shared by all workers so batch concurrency never exceeds the
// configured backend request rate.
func NewResolver(backend services.Backend, store *cache.Store, cfg shared.ResolverConfig, logger *log.Logger) *Resolver {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}

	return &Resolver{
		backend: backend,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cfg:     cfg,
		logger:  logger,
	}
}

// SetLocalIndex enables the offline candidate stage.
func (r *Resolver) SetLocalIndex(index services.LocalIndex) {
	r.index = index
}

// SetQueryCleaner enables the LLM fallback stage.
func (r *Resolver) SetQueryCleaner(cleaner services.QueryCleaner) {
	r.cleaner = cleaner
}

// SetManualFallback routes queries with no reviewable candidates to
// the confirmation queue instead of caching a negative, so an operator
// can search by hand before the miss is recorded. Interactive runs
// enable this; unattended runs keep the direct negative write.
func (r *Resolver) SetManualFallback(enabled bool) {
	r.fallback = enabled
}

// SetProgressChannel sets a channel for receiving progress updates.
// Sends are non-blocking: a slow consumer drops updates rather than
// stalling resolution.
func (r *Resolver) SetProgressChannel(ch chan<- ProgressUpdate) {
	r.progress = ch
}

func (r *Resolver) sendProgress(update ProgressUpdate) {
	if r.progress == nil {
		return
	}

	select {
	case r.progress <- update:
	default:
	}
}

// Resolve runs the full pipeline for one query. A confident match is
// cached and returned with StatusResolved (StatusCacheHit when a prior
// run already decided). When candidates land in the review band the
// returned request carries them and the resolution stays
// StatusNotFound until an operator decides. Backend search failures
// are absorbed as zero candidates so the remaining stages still run;
// an absorbed failure also suppresses the negative cache write. Cache
// read failures fail the query; nothing is written on cancellation.
func (r *Resolver) Resolve(ctx context.Context, q models.TrackQuery) (models.Resolution, *models.ConfirmationRequest, error) {
	res := models.Resolution{Query: q, Status: models.StatusNotFound, ResolvedAt: time.Now()}

	if err := q.Validate(); err != nil {
		res.Status = models.StatusSkipped
		return res, nil, fmt.Errorf("%w: %s", shared.ErrInvalidInput, err)
	}

	fingerprint := cache.Fingerprint(q.Title, q.Artist, q.Album)

	entry, err := r.store.Get(fingerprint)
	if err != nil {
		res.Status = models.StatusAborted
		return res, nil, err
	}

	switch entry.Kind {
	case cache.Positive:
		c := entryCandidate(entry)
		res.Status = models.StatusCacheHit
		res.Candidate = &c
		return res, nil, nil
	case cache.Negative:
		return res, nil, nil
	}

	var pool []models.Candidate

	if id := q.ExternalIDs[r.backend.Name()]; id != "" {
		if linked, err := r.backend.GetTrack(ctx, id); err == nil {
			pool = append(pool, *linked)
		} else {
			r.logger.Debug("linked identifier did not verify", "id", id, "err", err)
		}
	}

	if r.index != nil {
		if hits, err := r.index.Nearest(ctx, q, r.cfg.SearchLimit); err == nil {
			pool = append(pool, hits...)
		} else {
			r.logger.Warn("local index lookup failed", "err", err)
		}
	}

	if best := r.confident(q, pool); best != nil {
		return r.accept(fingerprint, q, *best)
	}

	hits, err := r.searchLadder(ctx, q)
	searchFailed := false
	if err != nil {
		if ctx.Err() != nil {
			res.Status = models.StatusAborted
			return res, nil, ctx.Err()
		}
		r.logger.Warn("backend search unavailable", "query", q.Display(), "err", err)
		searchFailed = true
	}
	pool = append(pool, hits...)

	if best := r.confident(q, pool); best != nil {
		return r.accept(fingerprint, q, *best)
	}

	// Rescued hits are scored against the repaired metadata: the whole
	// point of cleanup is that the original fields are unreliable. The
	// result is still cached under the original fingerprint.
	var cleanedRanked []models.Candidate
	if r.cleaner != nil {
		if cleaned, hits := r.cleanedSearch(ctx, q); cleaned != nil && len(hits) > 0 {
			cleanedRanked = matching.Rank(*cleaned, hits)
			if cleanedRanked[0].Score >= r.cfg.HighThreshold && !ambiguousTop(cleanedRanked) {
				return r.accept(fingerprint, q, cleanedRanked[0])
			}
		}
	}

	if ctx.Err() != nil {
		res.Status = models.StatusAborted
		return res, nil, ctx.Err()
	}

	ranked := mergeRanked(matching.Rank(q, matching.Dedupe(pool)), cleanedRanked)
	reviewable := reviewBand(ranked, r.cfg.MidThreshold)
	if len(reviewable) > 0 || r.fallback {
		req := &models.ConfirmationRequest{
			ID:          shared.GenerateID(),
			Query:       q,
			Fingerprint: fingerprint,
			Candidates:  reviewable,
		}
		return res, req, nil
	}

	// A failed search is not evidence of absence.
	if searchFailed {
		return res, nil, nil
	}

	if err := r.store.PutNegative(fingerprint); err != nil && !errors.Is(err, shared.ErrInvalidInput) {
		r.logger.Warn("failed to cache negative result", "fingerprint", fingerprint, "err", err)
	}

	return res, nil, nil
}

// accept caches a confident match under the query's fingerprint and
// returns it. A failed write is logged but does not undo the match.
func (r *Resolver) accept(fingerprint string, q models.TrackQuery, best models.Candidate) (models.Resolution, *models.ConfirmationRequest, error) {
	if err := r.store.PutPositive(fingerprint, best); err != nil {
		r.logger.Warn("failed to cache resolution", "fingerprint", fingerprint, "err", err)
	}

	return models.Resolution{
		Query:      q,
		Candidate:  &best,
		Status:     models.StatusResolved,
		ResolvedAt: time.Now(),
	}, nil, nil
}

// ambiguityEpsilon matches the ranking tie-break band: runner-ups
// closer than this are tied with the winner.
const ambiguityEpsilon = 0.01

// confident returns the top-ranked candidate when it clears the high
// threshold and no tied runner-up names a different track.
func (r *Resolver) confident(q models.TrackQuery, pool []models.Candidate) *models.Candidate {
	ranked := matching.Rank(q, matching.Dedupe(pool))
	if len(ranked) == 0 || ranked[0].Score < r.cfg.HighThreshold {
		return nil
	}
	if ambiguousTop(ranked) {
		r.logger.Debug("tied candidates held for review", "query", q.Display())
		return nil
	}

	best := ranked[0]
	return &best
}

// ambiguousTop reports whether the runner-up ties the winner while
// naming a different track. Tied scores on the same cleaned title are
// catalog duplicates, not ambiguity.
func ambiguousTop(ranked []models.Candidate) bool {
	if len(ranked) < 2 {
		return false
	}

	top, next := ranked[0], ranked[1]
	if next.Score < top.Score-ambiguityEpsilon {
		return false
	}
	if next.BackendID == top.BackendID {
		return false
	}
	return matching.Clean(next.Title) != matching.Clean(top.Title)
}

// searchLadder tries each strategy in order and stops at the first one
// returning results. Every backend call waits on the shared rate
// limiter; a retryable failure earns exactly one more attempt.
func (r *Resolver) searchLadder(ctx context.Context, q models.TrackQuery) ([]models.Candidate, error) {
	for _, s := range buildStrategies(q, r.cfg.SearchLimit) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		hits, err := r.backend.SearchTracks(ctx, s.query)
		if err != nil && services.IsRetryable(err) {
			r.logger.Debug("retrying search", "strategy", s.name, "err", err)
			if werr := r.limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
			hits, err = r.backend.SearchTracks(ctx, s.query)
		}
		if err != nil {
			return nil, fmt.Errorf("search failed (%s): %w", s.name, err)
		}

		if len(hits) > 0 {
			r.logger.Debug("search strategy matched", "strategy", s.name, "results", len(hits))
			return hits, nil
		}
	}

	return nil, nil
}

// SearchText runs a rate-limited free-text search, used by operator
// driven manual lookup during review. Results are scored against the
// original query by the caller.
func (r *Resolver) SearchText(ctx context.Context, text string) ([]models.Candidate, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hits, err := r.backend.SearchTracks(ctx, services.SearchQuery{Text: text, Limit: r.cfg.SearchLimit})
	if err != nil && services.IsRetryable(err) {
		if werr := r.limiter.Wait(ctx); werr != nil {
			return nil, werr
		}
		hits, err = r.backend.SearchTracks(ctx, services.SearchQuery{Text: text, Limit: r.cfg.SearchLimit})
	}
	if err != nil {
		return nil, fmt.Errorf("manual search failed: %w", err)
	}
	return hits, nil
}

// cleanedSearch asks the LLM for repaired metadata and re-runs the
// search ladder once with it. Any failure degrades silently: the
// cleaner is advisory and its absence never fails a query.
func (r *Resolver) cleanedSearch(ctx context.Context, q models.TrackQuery) (*models.TrackQuery, []models.Candidate) {
	cleaned, err := r.cleaner.CleanQuery(ctx, q)
	if err != nil {
		r.logger.Debug("query cleanup unavailable", "err", err)
		return nil, nil
	}
	if cleaned == nil {
		return nil, nil
	}
	if cleaned.Title == q.Title && cleaned.Artist == q.Artist && cleaned.Album == q.Album {
		return nil, nil
	}

	r.logger.Debug("retrying with cleaned metadata", "title", cleaned.Title, "artist", cleaned.Artist)

	hits, err := r.searchLadder(ctx, *cleaned)
	if err != nil {
		r.logger.Debug("cleaned search failed", "err", err)
		return nil, nil
	}
	return cleaned, hits
}

// mergeRanked folds b into a, keeping the higher score per backend id,
// and re-sorts by score.
func mergeRanked(a, b []models.Candidate) []models.Candidate {
	if len(b) == 0 {
		return a
	}

	idx := make(map[string]int, len(a))
	for i, c := range a {
		idx[c.BackendID] = i
	}
	for _, c := range b {
		if i, ok := idx[c.BackendID]; ok {
			if c.Score > a[i].Score {
				a[i] = c
			}
		} else {
			idx[c.BackendID] = len(a)
			a = append(a, c)
		}
	}

	sort.SliceStable(a, func(i, j int) bool { return a[i].Score > a[j].Score })
	return a
}

// reviewBand keeps ranked candidates worth showing an operator: those
// at or above the mid threshold, or failing that anything above the
// absolute floor.
func reviewBand(ranked []models.Candidate, mid float64) []models.Candidate {
	var keep []models.Candidate
	for _, c := range ranked {
		if c.Score >= mid {
			keep = append(keep, c)
		}
	}
	if len(keep) > 0 {
		return keep
	}

	for _, c := range ranked {
		if c.Score >= scoreFloor {
			keep = append(keep, c)
		}
	}
	return keep
}

func entryCandidate(e cache.Entry) models.Candidate {
	return models.Candidate{
		BackendID:  e.BackendID,
		Title:      e.Title,
		Artist:     e.Artist,
		Album:      e.Album,
		Score:      e.Score,
		Provenance: models.ParseProvenance(e.Source),
	}
}

type resolveJob struct {
	pos   int
	query models.TrackQuery
}

type resolveOutcome struct {
	pos        int
	resolution models.Resolution
	pending    *models.ConfirmationRequest
	err        error
}

// BatchResult aggregates the outcome of a batch run. Resolutions is
// indexed by input position; Pending holds the review items still
// waiting on an operator, each tagged with its source position.
type BatchResult struct {
	Resolutions []models.Resolution
	Pending     []models.ConfirmationRequest
	Resolved    int
	CacheHits   int
	NotFound    int
	Failed      int
	Errors      []error
}

// ResolveBatch resolves queries concurrently with a bounded worker
// pool. Workers share the resolver's rate limiter so the backend sees
// at most the configured request rate regardless of worker count.
// Cancellation stops feeding new work; in-flight queries finish or
// abort and unprocessed positions keep StatusNotFound.
func (r *Resolver) ResolveBatch(ctx context.Context, queries []models.TrackQuery) (*BatchResult, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: no queries to resolve", shared.ErrInvalidInput)
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > 10 {
		workers = 10
	}

	jobs := make(chan resolveJob, len(queries))
	results := make(chan resolveOutcome, len(queries))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.resolveWorker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for i, q := range queries {
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.sendProgress(resolvingUpdate(i+1, len(queries), q))
			jobs <- resolveJob{pos: i, query: q}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := &BatchResult{Resolutions: make([]models.Resolution, len(queries))}
	for i := range out.Resolutions {
		out.Resolutions[i] = models.Resolution{Query: queries[i], Status: models.StatusNotFound}
	}

	step := 0
	for outcome := range results {
		step++
		out.Resolutions[outcome.pos] = outcome.resolution

		switch {
		case outcome.err != nil:
			out.Failed++
			out.Errors = append(out.Errors, fmt.Errorf("query %d (%s): %w", outcome.pos, outcome.resolution.Query.Display(), outcome.err))
			r.sendProgress(notFoundUpdate(step, len(queries), outcome.resolution.Query))
		case outcome.resolution.Status == models.StatusCacheHit:
			out.CacheHits++
			r.sendProgress(cacheHitUpdate(step, len(queries), outcome.resolution.Query))
		case outcome.resolution.Status == models.StatusResolved:
			out.Resolved++
			r.sendProgress(resolvedUpdate(step, len(queries), outcome.resolution.Query, outcome.resolution.Candidate))
		case outcome.pending != nil:
			outcome.pending.Positions = []int{outcome.pos}
			out.Pending = append(out.Pending, *outcome.pending)
			r.sendProgress(manualReviewUpdate(step, len(queries), outcome.resolution.Query, len(outcome.pending.Candidates)))
		default:
			out.NotFound++
			r.sendProgress(notFoundUpdate(step, len(queries), outcome.resolution.Query))
		}
	}

	r.logger.Info("batch resolution finished",
		"total", len(queries),
		"resolved", out.Resolved,
		"cached", out.CacheHits,
		"pending", len(out.Pending),
		"not_found", out.NotFound,
		"failed", out.Failed)

	return out, nil
}

func (r *Resolver) resolveWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan resolveJob, results chan<- resolveOutcome) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- resolveOutcome{
				pos:        job.pos,
				resolution: models.Resolution{Query: job.query, Status: models.StatusAborted, ResolvedAt: time.Now()},
				err:        ctx.Err(),
			}
			continue
		default:
		}

		res, pending, err := r.Resolve(ctx, job.query)
		results <- resolveOutcome{pos: job.pos, resolution: res, pending: pending, err: err}
	}
}
