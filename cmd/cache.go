package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackmatch/internal/cache"
	"github.com/desertthunder/trackmatch/internal/shared"
	"github.com/urfave/cli/v3"
)

// fingerprintFromFlags derives the cache key from --fingerprint or the
// metadata flags.
func fingerprintFromFlags(cmd *cli.Command) (string, error) {
	if fp := cmd.String("fingerprint"); fp != "" {
		return fp, nil
	}
	title := cmd.String("title")
	if title == "" {
		return "", fmt.Errorf("%w: either --fingerprint or --title is required", shared.ErrMissingArgument)
	}
	return cache.Fingerprint(title, cmd.String("artist"), cmd.String("album")), nil
}

// CacheStats reports entry counts and the oldest entry timestamp.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainln("Resolution cache")
	r.writePlain("  entries:  %d\n", stats.Total)
	r.writePlain("  positive: %d\n", stats.Positive)
	r.writePlain("  negative: %d\n", stats.Negative)
	if !stats.Oldest.IsZero() {
		r.writePlain("  oldest:   %s\n", stats.Oldest.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// CacheInvalidate removes one entry so the next resolution searches again.
func (r *Runner) CacheInvalidate(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	fingerprint, err := fingerprintFromFlags(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Invalidate(fingerprint); err != nil {
		return err
	}

	return r.writePlainln("✓ invalidated %s", fingerprint)
}

// CacheClearNegatives drops negative entries, optionally only those
// whose fingerprint matches a LIKE pattern.
func (r *Runner) CacheClearNegatives(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.ClearNegatives(cmd.String("pattern"))
	if err != nil {
		return err
	}

	return r.writePlainln("✓ cleared %d negative entries", n)
}

// CacheClear empties the resolution cache. Requires --force.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	if !cmd.Bool("force") {
		return fmt.Errorf("%w: pass --force to clear the whole cache", shared.ErrMissingArgument)
	}

	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.Clear()
	if err != nil {
		return err
	}

	return r.writePlainln("✓ cleared %d entries", n)
}
