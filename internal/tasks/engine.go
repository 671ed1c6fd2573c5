package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rpansync/internal/identity"
	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/remote"
	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
)

// RemoteRepository is the server-side subscription store used by [SubscriptionEngine].
type RemoteRepository interface {
	SubscriptionWriter
	FetchAll(ctx context.Context, userID string) ([]models.UserSubscription, error)
	Get(ctx context.Context, username, userID string) (models.UserSubscription, error)
	Update(ctx context.Context, sub models.UserSubscription, which remote.Field, userID string) error
	Delete(ctx context.Context, sub models.UserSubscription, userID string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
	AssociateUsername(ctx context.Context, userID, username string) error
	SetGlobalNotifications(ctx context.Context, userID string, on bool) error
	GetUser(ctx context.Context, userID string) (models.AppUser, error)
	ListSubreddits(ctx context.Context) ([]models.RpanSubreddit, error)
}

// RunRecorder keeps the audit trail of imports.
type RunRecorder interface {
	Create(ctx context.Context, run *models.ImportRun) error
	Update(ctx context.Context, run *models.ImportRun) error
}

// ImportResult is the merged favorites list after an import, and the entries the import added.
type ImportResult struct {
	RunID   string
	All     []models.UserSubscription
	New     []models.UserSubscription
	State   State
	Pages   int
	Fetched int
}

// SettingsUpdate selects the settings to change on one subscription. Nil fields are left alone.
type SettingsUpdate struct {
	Notify    *bool
	Cooldown  *bool
	Sound     *string
	Blacklist []string // nil keeps the current blacklist; an empty non-nil slice clears it
}

// IsEmpty reports whether the update changes nothing.
func (u SettingsUpdate) IsEmpty() bool {
	return u.Notify == nil && u.Cooldown == nil && u.Sound == nil && u.Blacklist == nil
}

func (u SettingsUpdate) apply(sub models.UserSubscription) (models.UserSubscription, remote.Field) {
	var which remote.Field
	if u.Notify != nil {
		sub = sub.WithNotifications(*u.Notify)
		which |= remote.FieldNotify
	}
	if u.Cooldown != nil {
		sub = sub.WithCooldown(*u.Cooldown)
		which |= remote.FieldCooldown
	}
	if u.Sound != nil {
		sub = sub.WithSound(*u.Sound)
		which |= remote.FieldSound
	}
	if u.Blacklist != nil {
		sub = sub.WithSubredditBlacklist(u.Blacklist)
		which |= remote.FieldSubredditBlacklist
	}
	return sub, which
}

// EngineOpts holds the collaborators of a [SubscriptionEngine].
type EngineOpts struct {
	Follows  services.FollowLister
	Profiles services.ProfileLookup
	Local    LocalCache
	Remote   RemoteRepository
	Identity identity.Provider
	Runs     RunRecorder // optional
	Logger   *log.Logger

	MaxPages    int
	IconWorkers int
}

// SubscriptionEngine runs the import pipeline and the single-subscription operations around it.
//
// Operations are serialized: at most one runs at a time, which keeps every local write behind a successful remote one.
type SubscriptionEngine struct {
	importer   *Importer
	reconciler *Reconciler
	profiles   services.ProfileLookup
	local      LocalCache
	remote     RemoteRepository
	identity   identity.Provider
	runs       RunRecorder
	log        *log.Logger

	mu    sync.Mutex
	state State
}

// NewSubscriptionEngine wires an engine from opts.
func NewSubscriptionEngine(opts EngineOpts) *SubscriptionEngine {
	logger := opts.Logger
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &SubscriptionEngine{
		importer:   NewImporter(opts.Follows, opts.MaxPages, logger),
		reconciler: NewReconciler(opts.Local, opts.Remote, opts.Profiles, opts.IconWorkers, logger),
		profiles:   opts.Profiles,
		local:      opts.Local,
		remote:     opts.Remote,
		identity:   opts.Identity,
		runs:       opts.Runs,
		log:        shared.WithLogger(logger, "component", "engine"),
		state:      Idle,
	}
}

// State is the state of the current or most recent import.
func (e *SubscriptionEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *SubscriptionEngine) transition(to State) {
	e.log.Debug("import state", "from", e.state, "to", to)
	e.state = to
}

// Import drains the Reddit follow list and reconciles it into the favorites.
//
// On failure the local cache is untouched and the call can be repeated: reconciliation is idempotent.
// Without a follow lister the error wraps [shared.ErrServiceUnavailable].
func (e *SubscriptionEngine) Import(ctx context.Context, progress chan<- ProgressUpdate) (*ImportResult, error) {
	if e.importer.follows == nil {
		return nil, fmt.Errorf("%w: no follow list source configured", shared.ErrServiceUnavailable)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Idle
	e.transition(Importing)
	sendProgress(progress, authenticateUpdate())
	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		e.transition(Failed)
		sendProgress(progress, failedUpdate(Authenticate, err))
		return nil, err
	}

	run := e.startRun(ctx)
	result, phase, err := e.runImport(ctx, userID, run, progress)
	if err != nil {
		e.transition(Failed)
		sendProgress(progress, failedUpdate(phase, err))
		e.finishRun(ctx, run, err)
		return nil, err
	}

	e.transition(Done)
	result.State = Done
	e.finishRun(ctx, run, nil)

	for _, sub := range result.New {
		sendProgress(progress, newSubscriptionUpdate(sub))
	}
	sendProgress(progress, completeUpdate(result))
	e.log.Info("import complete", "favorites", len(result.All), "new", len(result.New), "pages", result.Pages)
	return result, nil
}

func (e *SubscriptionEngine) runImport(ctx context.Context, userID string, run *models.ImportRun, progress chan<- ProgressUpdate) (*ImportResult, Phase, error) {
	session, err := e.importer.Run(ctx, progress)
	if err != nil {
		return nil, FetchFollows, err
	}
	if run != nil {
		run.Pages, run.Fetched = session.Pages(), session.Fetched
	}

	e.transition(Reconciling)
	plan, err := e.reconciler.Plan(ctx, session.Subscriptions, progress)
	if err != nil {
		return nil, FilterImport, err
	}

	e.transition(Persisting)
	follower, _, err := e.local.String(ctx, repositories.KeyUsername)
	if err != nil {
		return nil, PersistRemote, err
	}
	if err := e.reconciler.Persist(ctx, plan, userID, follower, progress); err != nil {
		return nil, PersistRemote, err
	}

	added := models.NewlyAdded(plan.Existing, plan.Merged)
	if run != nil {
		run.Added = len(added)
	}

	result := &ImportResult{
		All:     plan.Merged,
		New:     added,
		Pages:   session.Pages(),
		Fetched: session.Fetched,
	}
	if run != nil {
		result.RunID = run.ID
	}
	return result, Complete, nil
}

// startRun records the run; the audit trail never fails an import.
func (e *SubscriptionEngine) startRun(ctx context.Context) *models.ImportRun {
	if e.runs == nil {
		return nil
	}
	run := models.NewImportRun("", Importing.String())
	if err := e.runs.Create(ctx, run); err != nil {
		e.log.Warn("failed to record import run", "error", err)
		return nil
	}
	return run
}

func (e *SubscriptionEngine) finishRun(ctx context.Context, run *models.ImportRun, err error) {
	if run == nil {
		return
	}
	state := Done
	if err != nil {
		state = Failed
	}
	run.Finish(state.String(), err)
	if uerr := e.runs.Update(ctx, run); uerr != nil {
		e.log.Warn("failed to update import run", "id", run.ID, "error", uerr)
	}
}

// List returns the locally cached favorites.
func (e *SubscriptionEngine) List(ctx context.Context) ([]models.UserSubscription, error) {
	return e.local.Get(ctx)
}

// Favorite adds username with default settings. Favoriting an existing entry returns it unchanged.
//
// When the local cache lacks the entry but the remote store has it, the stored record and its settings are adopted
// locally instead of being rewritten. A manual favorite overrides an earlier unfavorite, so the name leaves the
// unsubscribed list.
func (e *SubscriptionEngine) Favorite(ctx context.Context, username string) (models.UserSubscription, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.UserSubscription{}, fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return models.UserSubscription{}, err
	}
	existing, err := e.local.Get(ctx)
	if err != nil {
		return models.UserSubscription{}, err
	}
	if i := models.IndexOf(username, existing); i >= 0 {
		return existing[i], nil
	}

	stored, err := e.remote.Get(ctx, username, userID)
	switch {
	case err == nil:
		if err := e.local.Set(ctx, append(slices.Clone(existing), stored)); err != nil {
			return models.UserSubscription{}, err
		}
		if err := e.local.RemoveUnsubscribed(ctx, username); err != nil {
			return models.UserSubscription{}, err
		}
		e.log.Info("favorite restored from remote", "username", username)
		return stored, nil
	case !errors.Is(err, shared.ErrNotFound):
		return models.UserSubscription{}, err
	}

	sub := models.NewUserSubscription(username, "")
	plan := &Plan{Existing: existing, New: []models.UserSubscription{sub}}
	plan.Merged = slices.Concat(existing, plan.New)
	if e.profiles != nil {
		filled := e.reconciler.backfillIcons(ctx, plan.Merged[len(existing):], nil)
		if !filled[0] {
			plan.Merged[len(existing)] = sub.WithIconURL(models.RandomIcon())
		}
		plan.New = plan.Merged[len(existing):]
	}

	follower, _, err := e.local.String(ctx, repositories.KeyUsername)
	if err != nil {
		return models.UserSubscription{}, err
	}
	if err := e.reconciler.Persist(ctx, plan, userID, follower, nil); err != nil {
		return models.UserSubscription{}, err
	}
	if err := e.local.RemoveUnsubscribed(ctx, username); err != nil {
		return models.UserSubscription{}, err
	}

	e.log.Info("favorited", "username", username)
	return plan.New[0], nil
}

// Unfavorite removes username remotely and locally and adds it to the unsubscribed list so imports skip it.
//
// A record already missing remotely is not an error: local and remote may have drifted.
func (e *SubscriptionEngine) Unfavorite(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return err
	}
	existing, err := e.local.Get(ctx)
	if err != nil {
		return err
	}

	sub := models.NewUserSubscription(username, "")
	if i := models.IndexOf(username, existing); i >= 0 {
		sub = existing[i]
	}

	if err := e.remote.Delete(ctx, sub, userID); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		e.log.Warn("subscription already absent remotely", "username", username)
	}

	remaining := slices.DeleteFunc(slices.Clone(existing), func(s models.UserSubscription) bool {
		return s.Username == username
	})
	if len(remaining) != len(existing) {
		if err := e.local.Set(ctx, remaining); err != nil {
			return err
		}
	}
	if err := e.local.AddUnsubscribed(ctx, username); err != nil {
		return err
	}

	e.log.Info("unfavorited", "username", username)
	return nil
}

// UpdateSettings applies update locally, then remotely. If the remote update fails the local change is reverted.
func (e *SubscriptionEngine) UpdateSettings(ctx context.Context, username string, update SettingsUpdate) (models.UserSubscription, error) {
	if update.IsEmpty() {
		return models.UserSubscription{}, fmt.Errorf("%w: no settings to change", shared.ErrInvalidInput)
	}

	if len(update.Blacklist) > 0 {
		names, err := e.checkBlacklist(ctx, update.Blacklist)
		if err != nil {
			return models.UserSubscription{}, err
		}
		update.Blacklist = names
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return models.UserSubscription{}, err
	}
	existing, err := e.local.Get(ctx)
	if err != nil {
		return models.UserSubscription{}, err
	}
	i := models.IndexOf(username, existing)
	if i < 0 {
		return models.UserSubscription{}, fmt.Errorf("%w: %s is not a favorite", shared.ErrNotFound, username)
	}

	changed, which := update.apply(existing[i])
	next := slices.Clone(existing)
	next[i] = changed

	if err := e.local.Set(ctx, next); err != nil {
		return models.UserSubscription{}, err
	}
	if err := e.remote.Update(ctx, changed, which, userID); err != nil {
		if rerr := e.local.Set(ctx, existing); rerr != nil {
			return models.UserSubscription{}, errors.Join(err, rerr)
		}
		return models.UserSubscription{}, err
	}
	return changed, nil
}

// Subreddits returns the catalog of broadcast subreddits a blacklist may name.
func (e *SubscriptionEngine) Subreddits(ctx context.Context) ([]models.RpanSubreddit, error) {
	return e.remote.ListSubreddits(ctx)
}

// checkBlacklist matches names against the subreddit catalog, ignoring case and an "r/" prefix, and returns them
// spelled as in the catalog. An empty catalog accepts any name.
func (e *SubscriptionEngine) checkBlacklist(ctx context.Context, names []string) ([]string, error) {
	catalog, err := e.remote.ListSubreddits(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		e.log.Debug("no subreddit catalog, blacklist not checked")
		return names, nil
	}

	known := make(map[string]string, len(catalog))
	for _, sr := range catalog {
		known[strings.ToLower(sr.Name)] = sr.Name
	}

	out := make([]string, 0, len(names))
	var unknown []string
	for _, name := range names {
		key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "r/"))
		if key == "" {
			continue
		}
		canonical, ok := known[key]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, canonical)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown subreddits %s", shared.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return out, nil
}

// Restore fills an empty local cache from the remote store. A non-empty cache is returned as is.
func (e *SubscriptionEngine) Restore(ctx context.Context) ([]models.UserSubscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.local.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := e.remote.FetchAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return subs, nil
	}
	if err := e.local.Set(ctx, subs); err != nil {
		return nil, err
	}

	e.log.Info("restored favorites", "count", len(subs))
	return subs, nil
}

// RemoveAll deletes every remote subscription of the device and clears the local list.
func (e *SubscriptionEngine) RemoveAll(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return 0, err
	}
	n, err := e.remote.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := e.local.Set(ctx, nil); err != nil {
		return n, err
	}
	return n, nil
}

// SetGlobalNotifications toggles every notification for the device.
func (e *SubscriptionEngine) SetGlobalNotifications(ctx context.Context, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return err
	}
	if err := e.remote.SetGlobalNotifications(ctx, userID, on); err != nil {
		return err
	}
	return e.local.SetBool(ctx, repositories.KeyNotificationsOn, on)
}

// LinkAccount records the Reddit account name locally and on the device's user document.
func (e *SubscriptionEngine) LinkAccount(ctx context.Context, username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	userID, err := e.identity.EnsureIdentity(ctx)
	if err != nil {
		return err
	}
	if err := e.remote.AssociateUsername(ctx, userID, username); err != nil {
		return err
	}
	return e.local.SetString(ctx, repositories.KeyUsername, username)
}

// Account reads the remote record of this device's identity. It never creates one: without a stored identity the
// error wraps [shared.ErrNotFound].
func (e *SubscriptionEngine) Account(ctx context.Context) (models.AppUser, error) {
	userID, ok, err := e.local.String(ctx, repositories.KeyUserID)
	if err != nil {
		return models.AppUser{}, err
	}
	if !ok || userID == "" {
		return models.AppUser{}, fmt.Errorf("%w: no device identity", shared.ErrNotFound)
	}
	return e.remote.GetUser(ctx, userID)
}
