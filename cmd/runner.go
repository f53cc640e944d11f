package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/linking"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/repositories"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
	"github.com/desertthunder/musiclink/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	store       repositories.CredentialStore
	gateways    map[models.Provider]services.Gateway
	coordinator *linking.Coordinator
	engine      tasks.Migrator
	metrics     *metrics.Prometheus
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// When Store and Gateways are nil they are built from the config file on the first command that needs them.
type RunnerOpts struct {
	Config      *shared.Config
	Store       repositories.CredentialStore
	Gateways    map[models.Provider]services.Gateway
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	r := &Runner{
		config:      opts.Config,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
		metrics:     metrics.NewPrometheus(),
	}

	if opts.Store != nil && opts.Gateways != nil {
		if r.config == nil {
			r.config = shared.DefaultConfig()
		}
		if err := r.wire(opts.Store, opts.Gateways); err != nil {
			r.logger.Error("failed to wire runner", "error", err)
		}
	}

	return r
}

// wire builds the coordinator and engine over store and gateways.
func (r *Runner) wire(store repositories.CredentialStore, gateways map[models.Provider]services.Gateway) error {
	coordinator, err := linking.New(linking.Options{
		Store:        store,
		Gateways:     gateways,
		StateTTL:     r.config.OAuth.StateTTL,
		ExpiryMargin: r.config.OAuth.ExpiryMargin,
		Logger:       r.logger,
		Metrics:      r.metrics,
	})
	if err != nil {
		return err
	}

	r.store = store
	r.gateways = gateways
	r.coordinator = coordinator
	r.engine = tasks.NewPlaylistEngine(tasks.Options{
		Gateways:    gateways,
		MinScore:    r.config.Migration.MinScore,
		Concurrency: r.config.Migration.Concurrency,
		Logger:      r.logger,
		Metrics:     r.metrics,
	})
	return nil
}

// loadConfig reads the --config file when it exists and falls back to the embedded defaults otherwise.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	if r.config != nil {
		return nil
	}

	path := cmd.String("config")
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	if err := shared.ConfigureLogLevel(r.logger, config.Log.Level); err != nil {
		return err
	}
	r.config = config
	return nil
}

// prepare opens the credential store and builds the provider gateways, once.
func (r *Runner) prepare(_ context.Context, cmd *cli.Command) error {
	if r.coordinator != nil {
		return nil
	}
	if err := r.loadConfig(cmd); err != nil {
		return err
	}

	store, err := repositories.Open(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	gateways, err := services.NewFromConfig(r.config, store, r.logger, r.metrics)
	if err != nil {
		store.Close()
		return err
	}
	if len(gateways) == 0 {
		store.Close()
		return fmt.Errorf("%w: no provider credentials configured", shared.ErrMissingCredentials)
	}

	return r.wire(store, gateways)
}

// Close releases the credential store.
func (r *Runner) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *Runner) gateway(p models.Provider) (services.Gateway, error) {
	gw, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownProvider, p)
	}
	return gw, nil
}

func parseProvider(name string) (models.Provider, error) {
	if name == "" {
		return "", fmt.Errorf("%w: provider is required (spotify or youtube)", shared.ErrMissingArgument)
	}
	p, err := models.ParseProvider(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q (must be spotify or youtube)", shared.ErrUnknownProvider, name)
	}
	return p, nil
}

func requireUser(cmd *cli.Command) (string, error) {
	user := cmd.String("user")
	if user == "" {
		return "", fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}
	return user, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, linkCommand, statusCommand, playlistsCommand, searchCommand, migrateCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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

func (r *Runner) writeBytes(b []byte) error {
	if _, err := r.output.Write(b); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
