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

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand creates the configuration file and local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the local database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles Reddit authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Reddit session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Reddit using OAuth2 and link the account",
				Flags: []cli.Flag{
					configFlag(),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultAuthTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored session and device identity",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored Reddit tokens",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogout,
			},
		},
	}
}

// importCommand imports favorites from the Reddit follow list.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "import",
		Usage:  "Import the broadcasters you follow on Reddit as favorites",
		Flags:  append([]cli.Flag{configFlag()}, jsonFlags()...),
		Action: r.Import,
	}
}

// listCommand prints or exports the favorites.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List favorite broadcasters",
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, csv, markdown or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the export to this file instead of stdout",
			},
		}, jsonFlags()...),
		Action: r.List,
	}
}

func favoriteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Aliases:   []string{"fav"},
		Usage:     "Favorite a broadcaster by username",
		Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Favorite,
	}
}

func unfavoriteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "unfavorite",
		Aliases:   []string{"unfav"},
		Usage:     "Remove a favorite; later imports skip it",
		Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Unfavorite,
	}
}

// settingsCommand edits per-favorite notification settings.
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "settings",
		Usage:     "Change notification settings of a favorite",
		Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "notify",
				Usage: "Send go-live notifications",
			},
			&cli.BoolFlag{
				Name:  "cooldown",
				Usage: "Suppress repeat notifications for a few hours",
			},
			&cli.StringFlag{
				Name:  "sound",
				Usage: "Notification sound name",
			},
			&cli.StringSliceFlag{
				Name:  "blacklist",
				Usage: "Subreddits to ignore broadcasts from (repeatable, replaces the list)",
			},
			&cli.BoolFlag{
				Name:  "clear-blacklist",
				Usage: "Remove every blacklisted subreddit",
			},
		},
		Action: r.Settings,
	}
}

func notificationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "notifications",
		Usage:     "Turn all notifications on or off",
		Arguments: []cli.Argument{&cli.StringArg{Name: "state"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Notifications,
	}
}

func restoreCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "restore",
		Usage:  "Restore favorites from the remote store into an empty local cache",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Restore,
	}
}

func resetCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Delete every favorite, locally and remotely",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm deletion",
			},
		},
		Action: r.Reset,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent imports",
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of imports to show",
				Value: 10,
			},
		}, jsonFlags()...),
		Action: r.History,
	}
}

func subredditsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "subreddits",
		Usage:  "List the subreddits a blacklist can name",
		Flags:  append([]cli.Flag{configFlag()}, jsonFlags()...),
		Action: r.Subreddits,
	}
}
