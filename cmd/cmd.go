// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// resolveCommand handles track resolution operations
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "resolve",
		Aliases: []string{"res"},
		Usage:   "Resolve track metadata against the catalog",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Resolve a batch of queries from a JSON file",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "JSON file holding an array of track queries",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "catalog",
						Usage: "Optional catalog dump to serve candidates offline",
					},
					&cli.BoolFlag{
						Name:  "review",
						Usage: "Review ambiguous matches interactively",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: text, json, csv or markdown",
						Value: "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (csv and markdown formats)",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.ResolveRun,
			},
			{
				Name:  "one",
				Usage: "Resolve a single query from flags",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "title",
						Aliases:  []string{"t"},
						Usage:    "Track title",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "artist",
						Aliases: []string{"a"},
						Usage:   "Artist credit",
					},
					&cli.StringFlag{
						Name:  "album",
						Usage: "Album name",
					},
					&cli.IntFlag{
						Name:  "duration",
						Usage: "Track duration in seconds",
					},
					&cli.BoolFlag{
						Name:  "review",
						Usage: "Review ambiguous matches interactively",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ResolveOne,
			},
		},
	}
}

// cacheCommand handles resolution cache administration
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the resolution cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show entry counts by kind",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:  "invalidate",
				Usage: "Drop one entry so the next resolution searches again",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "fingerprint",
						Usage: "Exact cache fingerprint to drop",
					},
					&cli.StringFlag{
						Name:    "title",
						Aliases: []string{"t"},
						Usage:   "Track title (used with --artist/--album to derive the fingerprint)",
					},
					&cli.StringFlag{
						Name:    "artist",
						Aliases: []string{"a"},
						Usage:   "Artist credit",
					},
					&cli.StringFlag{
						Name:  "album",
						Usage: "Album name",
					},
				},
				Action: r.CacheInvalidate,
			},
			{
				Name:  "clear-negatives",
				Usage: "Drop negative entries so failed lookups retry",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Only drop fingerprints matching this LIKE pattern",
					},
				},
				Action: r.CacheClearNegatives,
			},
			{
				Name:  "clear",
				Usage: "Empty the resolution cache",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Confirm clearing every entry",
					},
				},
				Action: r.CacheClear,
			},
		},
	}
}

// indexCommand handles local index operations
func indexCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Work with the local candidate index",
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Load a catalog dump and report what it holds",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "JSON catalog dump (array of tracks)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "probe",
						Usage: "Optional title to probe the built index with",
					},
				},
				Action: r.IndexBuild,
			},
		},
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}
