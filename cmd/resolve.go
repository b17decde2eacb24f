package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/trackmatch/internal/cache"
	"github.com/desertthunder/trackmatch/internal/confirm"
	"github.com/desertthunder/trackmatch/internal/formatter"
	"github.com/desertthunder/trackmatch/internal/index"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/desertthunder/trackmatch/internal/shared"
	"github.com/desertthunder/trackmatch/internal/tasks"
	"github.com/desertthunder/trackmatch/internal/ui"
	"github.com/urfave/cli/v3"
)

// readQueries loads a JSON array of track queries from path.
func readQueries(path string) ([]models.TrackQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var queries []models.TrackQuery
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: input file holds no queries", shared.ErrInvalidInput)
	}

	return queries, nil
}

// ResolveRun resolves a batch of queries from a JSON input file,
// optionally walking pending matches through interactive review.
func (r *Runner) ResolveRun(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	queries, err := readQueries(cmd.String("input"))
	if err != nil {
		return err
	}

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	resolver := r.buildResolver(store)
	if cmd.Bool("review") {
		resolver.SetManualFallback(true)
	}

	if path := cmd.String("catalog"); path != "" {
		idx, err := index.New(r.logger)
		if err != nil {
			return fmt.Errorf("failed to create local index: %w", err)
		}
		defer idx.Close()

		n, err := idx.BuildFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to build local index: %w", err)
		}
		r.logger.Info("local index ready", "tracks", n)
		resolver.SetLocalIndex(idx)
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	resolver.SetProgressChannel(progress)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := resolver.ResolveBatch(ctx, queries)
	close(progress)
	<-drained
	if err != nil {
		return err
	}

	if cmd.Bool("review") && len(result.Pending) > 0 {
		if err := r.reviewPending(ctx, store, resolver, result); err != nil {
			return err
		}
	}

	return r.writeResult(cmd, result)
}

// reviewPending drains the confirmation queue through the terminal
// operator and folds the outcomes back into the batch result. An
// operator abort keeps the outcomes settled so far.
func (r *Runner) reviewPending(ctx context.Context, store *cache.Store, resolver *tasks.Resolver, result *tasks.BatchResult) error {
	queue := confirm.NewQueue(store, r.logger)
	for _, req := range result.Pending {
		queue.Enqueue(req)
	}

	outcomes, err := queue.Drain(ctx, ui.NewTerminalOperator(), resolver.SearchText)
	applyOutcomes(result, outcomes)

	if errors.Is(err, shared.ErrOperatorAbort) {
		r.logger.Warn("review aborted", "remaining", queue.Len())
		return nil
	}
	return err
}

func applyOutcomes(result *tasks.BatchResult, outcomes []confirm.Outcome) {
	for _, o := range outcomes {
		for _, pos := range o.Request.Positions {
			if pos < 0 || pos >= len(result.Resolutions) {
				continue
			}
			result.Resolutions[pos] = o.Resolution
			if o.Resolution.Status == models.StatusResolved {
				result.Resolved++
			}
		}
	}
}

// writeResult renders the batch result per the output flags.
func (r *Runner) writeResult(cmd *cli.Command, result *tasks.BatchResult) error {
	output := cmd.String("output")

	switch cmd.String("format") {
	case "json":
		return r.writeJSON(result, cmd.Bool("pretty"))

	case "csv":
		files, err := formatter.WriteCSVExport(result, output)
		if err != nil {
			return err
		}
		return r.writePlainln("✓ wrote %s and %s", files.ResolutionsFile, files.SummaryFile)

	case "markdown":
		path, err := formatter.WriteMarkdownExport(result, output, "")
		if err != nil {
			return err
		}
		return r.writePlainln("✓ wrote %s", path)

	default:
		data, err := formatter.ExportToText(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}
}

// ResolveOne resolves a single ad-hoc query from flags.
func (r *Runner) ResolveOne(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	q := models.TrackQuery{
		Title:        cmd.String("title"),
		Artist:       cmd.String("artist"),
		Album:        cmd.String("album"),
		DurationSecs: float64(cmd.Int("duration")),
	}

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	resolver := r.buildResolver(store)
	if cmd.Bool("review") {
		resolver.SetManualFallback(true)
	}

	res, pending, err := resolver.Resolve(ctx, q)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if pending != nil {
			return r.writeJSON(pending, true)
		}
		return r.writeJSON(res, true)
	}

	switch {
	case res.Candidate != nil:
		c := res.Candidate
		r.writePlainln("✓ %s → %s - %s [%s]", q.Display(), c.Title, c.Artist, c.BackendID)
		r.writePlain("  score %.2f • %s • %s\n", c.Score, c.Provenance, res.Status)

	case pending != nil:
		r.writePlainln("? %s needs review (%d candidates)", q.Display(), len(pending.Candidates))
		for i, c := range pending.Candidates {
			r.writePlain("  %d. %s - %s (%.2f)\n", i+1, c.Title, c.Artist, c.Score)
		}
		r.writePlain("rerun with --review to decide interactively\n")

	default:
		r.writePlainln("✗ %s: %s", q.Display(), res.Status)
	}

	if pending != nil && cmd.Bool("review") {
		result := &tasks.BatchResult{Resolutions: []models.Resolution{res}}
		pending.Positions = []int{0}
		result.Pending = []models.ConfirmationRequest{*pending}
		if err := r.reviewPending(ctx, store, resolver, result); err != nil {
			return err
		}
		final := result.Resolutions[0]
		if final.Candidate != nil {
			r.writePlainln("✓ resolved to %s - %s [%s]", final.Candidate.Title, final.Candidate.Artist, final.Candidate.BackendID)
		}
	}

	return nil
}
