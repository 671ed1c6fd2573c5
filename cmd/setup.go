package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/rpansync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when missing, then initializes the database and runs
// migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	created := false
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		created = true
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	r.config, r.configPath = config, configPath

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenAndMigrate(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	if created {
		r.writePlain("✓ Config created at %s\n", configPath)
	}
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)

	if config.Reddit.ClientID == "" || config.Reddit.ClientID == "your_reddit_client_id" {
		r.writePlainln("Next steps:")
		r.writePlain("1. Create an app at https://www.reddit.com/prefs/apps with redirect URI %s\n", config.Reddit.RedirectURI)
		r.writePlain("2. Set reddit.client_id (and client_secret) in %s\n", configPath)
		r.writePlain("3. Run 'rpansync auth login'\n")
	}
	return nil
}
