package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmatch/internal/cache"
	"github.com/desertthunder/trackmatch/internal/services"
	"github.com/desertthunder/trackmatch/internal/shared"
	"github.com/desertthunder/trackmatch/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	backend services.Backend
	cleaner services.QueryCleaner
	store   *cache.Store
	logger  *log.Logger
	output  io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
// Backend, Cleaner and Store are optional; when unset they are built
// from config at command time.
type RunnerOpts struct {
	Config  *shared.Config
	Backend services.Backend
	Cleaner services.QueryCleaner
	Store   *cache.Store
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		backend: opts.Backend,
		cleaner: opts.Cleaner,
		store:   opts.Store,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, resolveCommand, cacheCommand, indexCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig refreshes r.config from the --config flag when the file exists.
func (r *Runner) loadConfig(cmd *cli.Command) {
	path := cmd.String("config")
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, keeping current settings", "path", path, "error", err)
		return
	}
	r.config = config
}

// openStore returns the resolution cache, opening the configured
// database when one was not injected. The returned closer is a no-op
// for injected stores.
func (r *Runner) openStore() (*cache.Store, func(), error) {
	if r.store != nil {
		return r.store, func() {}, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	ttl := time.Duration(r.config.Cache.NegativeTTLDays) * 24 * time.Hour
	return cache.NewStore(db, r.logger, ttl), func() { db.Close() }, nil
}

// buildResolver assembles the pipeline from config, preferring any
// injected backend and cleaner.
func (r *Runner) buildResolver(store *cache.Store) *tasks.Resolver {
	backend := r.backend
	if backend == nil {
		backend = services.NewCatalogService(services.CatalogOpts{
			BaseURL:      r.config.Backend.BaseURL,
			AuthToken:    r.config.Backend.AuthToken,
			ClientID:     r.config.Backend.ClientID,
			ClientSecret: r.config.Backend.ClientSecret,
			TokenURL:     r.config.Backend.TokenURL,
			Timeout:      time.Duration(r.config.Backend.TimeoutSecs) * time.Second,
		})
	}

	resolver := tasks.NewResolver(backend, store, r.config.Resolver, r.logger)

	cleaner := r.cleaner
	if cleaner == nil && r.config.LLM.Enabled {
		cleaner = services.NewLLMService(services.LLMOpts{
			BaseURL: r.config.LLM.BaseURL,
			APIKey:  r.config.LLM.APIKey,
			Model:   r.config.LLM.Model,
			Timeout: time.Duration(r.config.LLM.TimeoutSecs) * time.Second,
		})
	}
	if cleaner != nil {
		resolver.SetQueryCleaner(cleaner)
	}

	return resolver
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
