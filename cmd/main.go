package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rpansync/internal/docstore"
	"github.com/desertthunder/rpansync/internal/identity"
	"github.com/desertthunder/rpansync/internal/remote"
	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
	"github.com/desertthunder/rpansync/internal/tasks"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		Logger:      logger,
		OpenBackend: openBackend,
	})

	app := &cli.Command{
		Name:     "rpansync",
		Usage:    "Import and manage favorite RPAN broadcasters",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()

	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close stores", "error", cerr)
	}

	if err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

// openBackend opens the local database and the remote document store and wires the engine over them.
//
// The Reddit service is optional: without a client_id, commands that only touch the stores still work.
func openBackend(ctx context.Context, config *shared.Config, logger *log.Logger) (*Backend, error) {
	db, err := shared.OpenAndMigrate(config.Database)
	if err != nil {
		return nil, err
	}

	store, err := docstore.Open(ctx, config.Remote, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	repo := remote.NewRepository(store, logger)
	local := repositories.NewLocalStore(db)
	runs := repositories.NewImportRunRepository(db)

	backend := &Backend{
		Local:   local,
		Runs:    runs,
		closers: []io.Closer{db, store},
	}

	opts := tasks.EngineOpts{
		Local:       local,
		Remote:      repo,
		Identity:    identity.NewAnonymousProvider(local, repo, logger),
		Runs:        runs,
		Logger:      logger,
		MaxPages:    config.Import.MaxPages,
		IconWorkers: config.Import.IconWorkers,
	}

	reddit, err := services.NewRedditService(services.RedditOptions{
		ClientID:     config.Reddit.ClientID,
		ClientSecret: config.Reddit.ClientSecret,
		RedirectURI:  config.Reddit.RedirectURI,
		UserAgent:    config.Reddit.UserAgent,
		BaseURL:      config.Reddit.BaseURL,
		PageSize:     config.Import.PageSize,
		RateLimit:    config.Import.RateLimit,
	}, logger)
	if err != nil {
		logger.Debug("reddit service disabled", "error", err)
	} else {
		if token := config.Reddit.Token(); token != nil {
			reddit.Authenticate(ctx, token)
		}
		backend.Reddit = reddit
		opts.Follows = reddit
		opts.Profiles = reddit
	}

	backend.Engine = tasks.NewSubscriptionEngine(opts)
	return backend, nil
}
