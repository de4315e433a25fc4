package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/kvs"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	store  kvs.Store
	lookup func(string) (string, bool)
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Config and Store are normally left nil and resolved per command from the --config flag.
type RunnerOpts struct {
	Config *shared.Config
	Store  kvs.Store
	Lookup func(string) (string, bool)
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}

	return &Runner{
		config: opts.Config,
		store:  opts.Store,
		lookup: opts.Lookup,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration for a command: the injected config if any, else the file at path
// (defaults when it does not exist), with environment overrides applied on top.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	config, err := shared.LoadConfig(path)
	switch {
	case err == nil:
		r.logger.Debug("loaded config", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Debug("config file not found, using defaults", "path", path)
		config = shared.DefaultConfig()
	default:
		return nil, err
	}

	if err := config.ApplyEnv(r.lookup); err != nil {
		return nil, err
	}
	r.config = config
	return config, nil
}

// openStore returns the injected store or connects the configured backend.
//
// The returned close function is a no-op for an injected store, which belongs to the caller.
func (r *Runner) openStore(config *shared.Config, logger *log.Logger) (kvs.Store, func(), error) {
	if r.store != nil {
		return r.store, func() {}, nil
	}

	store, err := kvs.New(config.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", config.Store.Type, err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}, nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
