package main

import (
	"context"

	"github.com/desertthunder/trackmatch/internal/index"
	"github.com/desertthunder/trackmatch/internal/models"
	"github.com/urfave/cli/v3"
)

// IndexBuild loads a catalog dump into the local index and reports what
// it holds. The index lives in memory, so this is a validation pass for
// dumps fed to `resolve run --catalog`.
func (r *Runner) IndexBuild(ctx context.Context, cmd *cli.Command) error {
	idx, err := index.New(r.logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	path := cmd.String("input")
	n, err := idx.BuildFromFile(path)
	if err != nil {
		return err
	}

	if err := r.writePlainln("✓ indexed %d tracks from %s", n, path); err != nil {
		return err
	}

	if probe := cmd.String("probe"); probe != "" {
		hits, err := idx.Nearest(ctx, models.TrackQuery{Title: probe}, 5)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			return r.writePlain("no tracks near %q\n", probe)
		}
		for i, c := range hits {
			if err := r.writePlain("  %d. %s - %s [%s]\n", i+1, c.Title, c.Artist, c.BackendID); err != nil {
				return err
			}
		}
	}

	return nil
}
