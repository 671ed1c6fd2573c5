package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/rpansync/internal/formatter"
	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
	"github.com/desertthunder/rpansync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// importSummary is the JSON shape of a finished import.
type importSummary struct {
	RunID     string                    `json:"runId,omitempty"`
	State     string                    `json:"state"`
	Pages     int                       `json:"pages"`
	Fetched   int                       `json:"fetched"`
	Added     []models.UserSubscription `json:"added"`
	Favorites int                       `json:"favorites"`
}

// Import drains the Reddit follow list and merges it into the favorites, printing progress as it goes.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.redditFor(ctx, cmd)
	if err != nil {
		return err
	}
	if !r.config.Reddit.HasToken() {
		return fmt.Errorf("%w: run 'rpansync auth login' first", shared.ErrNotAuthenticated)
	}

	useJSON := cmd.Bool("json")

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug("import progress", "phase", update.Phase, "state", update.State, "step", update.Step, "total", update.Total)
			if useJSON || update.Message == "" {
				continue
			}
			r.writePlain("→ %s\n", update.Message)
		}
	}()

	result, err := backend.Engine.Import(ctx, progress)
	close(progress)
	<-done

	r.persistRefreshedToken(backend.Reddit)

	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if useJSON {
		return r.writeJSON(importSummary{
			RunID:     result.RunID,
			State:     result.State.String(),
			Pages:     result.Pages,
			Fetched:   result.Fetched,
			Added:     result.New,
			Favorites: len(result.All),
		}, cmd.Bool("pretty"))
	}

	r.writePlainln("✓ Import complete: %d new of %d favorites (%d followed accounts across %d pages)",
		len(result.New), len(result.All), result.Fetched, result.Pages)
	for _, sub := range result.New {
		r.writePlain("  + u/%s\n", sub.Username)
	}
	return nil
}

// List prints the favorites, or writes them to a file with --output.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	subs, err := backend.Engine.List(ctx)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if cmd.Bool("json") {
		format = formatter.FormatJSON
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(subs, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d favorites to %s\n", len(subs), written)
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(subs, cmd.Bool("pretty"))
	}

	data, err := formatter.Export(subs, format)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
	}
	return r.writePlain("%s", data)
}

// Favorite adds a broadcaster by username.
func (r *Runner) Favorite(ctx context.Context, cmd *cli.Command) error {
	username := normalizeUsername(cmd.StringArg("username"))
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	sub, err := backend.Engine.Favorite(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to favorite u/%s: %w", username, err)
	}
	if backend.Reddit != nil {
		r.persistRefreshedToken(backend.Reddit)
	}

	return r.writePlain("✓ Favorited u/%s\n", sub.Username)
}

// Unfavorite removes a broadcaster. Later imports skip it until it is favorited again.
func (r *Runner) Unfavorite(ctx context.Context, cmd *cli.Command) error {
	username := normalizeUsername(cmd.StringArg("username"))
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	if err := backend.Engine.Unfavorite(ctx, username); err != nil {
		return fmt.Errorf("failed to unfavorite u/%s: %w", username, err)
	}

	return r.writePlain("✓ Removed u/%s\n", username)
}

// Settings applies the flags that were given to one favorite.
func (r *Runner) Settings(ctx context.Context, cmd *cli.Command) error {
	username := normalizeUsername(cmd.StringArg("username"))
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	update := tasks.SettingsUpdate{}
	if cmd.IsSet("notify") {
		v := cmd.Bool("notify")
		update.Notify = &v
	}
	if cmd.IsSet("cooldown") {
		v := cmd.Bool("cooldown")
		update.Cooldown = &v
	}
	if cmd.IsSet("sound") {
		v := cmd.String("sound")
		update.Sound = &v
	}
	if cmd.Bool("clear-blacklist") {
		update.Blacklist = []string{}
	} else if cmd.IsSet("blacklist") {
		update.Blacklist = cmd.StringSlice("blacklist")
	}

	if update.IsEmpty() {
		return fmt.Errorf("%w: pass at least one of --notify, --cooldown, --sound, --blacklist", shared.ErrMissingArgument)
	}

	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	sub, err := backend.Engine.UpdateSettings(ctx, username, update)
	if err != nil {
		return fmt.Errorf("failed to update u/%s: %w", username, err)
	}

	r.writePlain("✓ Updated u/%s\n", sub.Username)
	r.writePlain("  Notify: %s\n  Cooldown: %s\n  Sound: %s\n", onOff(sub.Notify), onOff(sub.Cooldown), sub.SoundDisplayName())
	if len(sub.SubredditBlacklist) > 0 {
		r.writePlain("  Blacklist: %s\n", strings.Join(sub.SubredditBlacklist, ", "))
	}
	return nil
}

// Notifications switches all notifications for this device on or off.
func (r *Runner) Notifications(ctx context.Context, cmd *cli.Command) error {
	var on bool
	switch strings.ToLower(cmd.StringArg("state")) {
	case "on", "true", "enable":
		on = true
	case "off", "false", "disable":
		on = false
	case "":
		return fmt.Errorf("%w: state (on or off)", shared.ErrMissingArgument)
	default:
		return fmt.Errorf("%w: state must be on or off", shared.ErrInvalidArgument)
	}

	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	if err := backend.Engine.SetGlobalNotifications(ctx, on); err != nil {
		return err
	}
	return r.writePlain("✓ Notifications %s\n", onOff(on))
}

// Restore fills an empty local cache from the remote store.
func (r *Runner) Restore(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	subs, err := backend.Engine.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return r.writePlain("✓ %d favorites in local cache\n", len(subs))
}

// Reset removes every favorite.
func (r *Runner) Reset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to delete every favorite", shared.ErrMissingArgument)
	}

	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	n, err := backend.Engine.RemoveAll(ctx)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	return r.writePlain("✓ Removed %d favorites\n", n)
}

// History lists recent imports.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	runs, err := backend.Runs.Recent(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, cmd.Bool("pretty"))
	}

	data, err := formatter.RunsToText(runs)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// Subreddits prints the subreddit catalog.
func (r *Runner) Subreddits(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	subreddits, err := backend.Engine.Subreddits(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(subreddits, cmd.Bool("pretty"))
	}
	if len(subreddits) == 0 {
		return r.writePlain("No subreddit catalog published, any name is accepted\n")
	}
	for _, sr := range subreddits {
		r.writePlain("r/%s\n", sr.Name)
	}
	return nil
}

// normalizeUsername accepts "u/name" and "/u/name" as typed on Reddit.
func normalizeUsername(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "u/")
	return strings.TrimSpace(name)
}
