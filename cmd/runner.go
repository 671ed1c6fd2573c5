package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
	"github.com/desertthunder/rpansync/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Backend bundles the opened stores and the engine over them.
type Backend struct {
	Engine *tasks.SubscriptionEngine
	Local  *repositories.LocalStore
	Runs   *repositories.ImportRunRepository
	// Reddit is nil when no client_id is configured.
	Reddit *services.RedditService

	closers []io.Closer
}

// Close releases the stores in reverse open order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// BackendFactory opens a [Backend] for a loaded configuration.
type BackendFactory func(ctx context.Context, config *shared.Config, logger *log.Logger) (*Backend, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	openBackend BackendFactory
	backend     *Backend
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(ctx context.Context, url string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	// Backend is used as-is; OpenBackend is only called when Backend is nil.
	Backend     *Backend
	OpenBackend BackendFactory
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(ctx context.Context, url string) error
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		openBackend: opts.OpenBackend,
		backend:     opts.Backend,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, importCommand, listCommand, favoriteCommand, unfavoriteCommand, settingsCommand,
		notificationsCommand, restoreCommand, resetCommand, historyCommand, subredditsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig replaces the runner's configuration with the file named by the --config flag.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		if errors.Is(err, shared.ErrMissingConfig) {
			return fmt.Errorf("%w (run `rpansync setup` first)", err)
		}
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	return nil
}

// backendFor returns the open backend, loading config and opening stores on first use.
func (r *Runner) backendFor(ctx context.Context, cmd *cli.Command) (*Backend, error) {
	if r.backend != nil {
		return r.backend, nil
	}
	if r.openBackend == nil {
		return nil, fmt.Errorf("%w: no backend configured", shared.ErrServiceUnavailable)
	}
	if err := r.loadConfig(cmd); err != nil {
		return nil, err
	}

	backend, err := r.openBackend(ctx, r.config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	r.backend = backend
	return backend, nil
}

// redditFor is [Runner.backendFor] for commands that talk to Reddit.
func (r *Runner) redditFor(ctx context.Context, cmd *cli.Command) (*Backend, error) {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if backend.Reddit == nil {
		return nil, fmt.Errorf("%w: reddit.client_id must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}
	return backend, nil
}

// Close releases the backend, if one was opened.
func (r *Runner) Close() error {
	if r.backend == nil {
		return nil
	}
	err := r.backend.Close()
	r.backend = nil
	return err
}

// saveTokens stores token in the config and writes the config file when one was loaded.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("config is nil")
	}

	if err := r.config.Reddit.Update(token); err != nil {
		return fmt.Errorf("failed to update reddit configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// persistRefreshedToken saves the service's current token if the OAuth client refreshed it during a command.
func (r *Runner) persistRefreshedToken(reddit *services.RedditService) {
	token, err := reddit.Token()
	if err != nil || token.AccessToken == r.config.Reddit.AccessToken {
		return
	}
	if err := r.saveTokens(token); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
		return
	}
	r.logger.Debug("saved refreshed token")
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

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
