package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
)

// DefaultIconWorkers bounds concurrent profile lookups during icon backfill.
const DefaultIconWorkers = 4

// LocalCache is the device-side subscription store.
type LocalCache interface {
	Get(ctx context.Context) ([]models.UserSubscription, error)
	Set(ctx context.Context, subs []models.UserSubscription) error
	Unsubscribed(ctx context.Context) ([]string, error)
	AddUnsubscribed(ctx context.Context, username string) error
	RemoveUnsubscribed(ctx context.Context, username string) error
	String(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	SetBool(ctx context.Context, key string, value bool) error
}

// SubscriptionWriter is the part of the remote repository the reconciler writes through.
type SubscriptionWriter interface {
	BatchUpsert(ctx context.Context, subs []models.UserSubscription, userID, follower string) error
	PersistIcons(ctx context.Context, subs []models.UserSubscription, userID string) error
}

// Plan is the outcome of reconciling an import against local state, before anything is written.
type Plan struct {
	Existing   []models.UserSubscription // local state before the call
	New        []models.UserSubscription // net-new entries, to be batch written
	Merged     []models.UserSubscription // Existing followed by New, icons backfilled
	Backfilled []models.UserSubscription // existing entries that received an icon
	Excluded   int                       // imported entries dropped by the unsubscribed list
	Duplicates int                       // imported entries already present
}

// Changed reports whether persisting the plan writes anything.
func (p *Plan) Changed() bool {
	return len(p.New) > 0 || len(p.Backfilled) > 0
}

// ReconcileResult is the merged list and the subset that was actually added.
type ReconcileResult struct {
	All []models.UserSubscription
	New []models.UserSubscription
}

// Reconciler merges imported subscriptions into the stored set.
//
// Existing entries are never overwritten by imported ones, usernames on the unsubscribed list are never imported, and
// the local cache changes only after the remote batch has been accepted.
type Reconciler struct {
	local    LocalCache
	remote   SubscriptionWriter
	profiles services.ProfileLookup
	workers  int
	log      *log.Logger
}

// NewReconciler creates a reconciler. profiles may be nil to skip icon backfill.
func NewReconciler(local LocalCache, remote SubscriptionWriter, profiles services.ProfileLookup, workers int, logger *log.Logger) *Reconciler {
	if workers < 1 {
		workers = DefaultIconWorkers
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Reconciler{
		local:    local,
		remote:   remote,
		profiles: profiles,
		workers:  workers,
		log:      shared.WithLogger(logger, "component", "reconciler"),
	}
}

// Plan filters imported against the unsubscribed list and the local cache, then backfills missing icons.
func (r *Reconciler) Plan(ctx context.Context, imported []models.UserSubscription, progress chan<- ProgressUpdate) (*Plan, error) {
	existing, err := r.local.Get(ctx)
	if err != nil {
		return nil, err
	}
	unsubscribed, err := r.local.Unsubscribed(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Existing: existing, New: []models.UserSubscription{}}
	for _, sub := range models.Dedupe(imported) {
		switch {
		case slices.Contains(unsubscribed, sub.Username):
			plan.Excluded++
		case models.IsSubscribedTo(sub.Username, existing):
			plan.Duplicates++
		default:
			plan.New = append(plan.New, sub)
		}
	}
	sendProgress(progress, filterUpdate(plan))

	merged := slices.Concat(existing, plan.New)
	filled := r.backfillIcons(ctx, merged, progress)

	for i := range existing {
		if filled[i] {
			plan.Backfilled = append(plan.Backfilled, merged[i])
		}
	}
	plan.New = merged[len(existing):]
	plan.Merged = merged

	r.log.Debug("reconciliation planned",
		"new", len(plan.New), "duplicates", plan.Duplicates, "excluded", plan.Excluded, "backfilled", len(plan.Backfilled))
	return plan, nil
}

// backfillIcons resolves icons for entries without one, in place, and reports which indexes were filled.
// Lookup failures leave the entry unchanged.
func (r *Reconciler) backfillIcons(ctx context.Context, subs []models.UserSubscription, progress chan<- ProgressUpdate) []bool {
	filled := make([]bool, len(subs))
	if r.profiles == nil {
		return filled
	}

	missing := make([]int, 0)
	for i, sub := range subs {
		if !sub.HasIcon() {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return filled
	}

	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, i := range missing {
		g.Go(func() error {
			username := subs[i].Username
			profile, err := r.profiles.UserProfile(ctx, username)
			sendProgress(progress, backfillUpdate(int(done.Add(1)), len(missing), username))
			if err != nil {
				r.log.Warn("icon lookup failed", "username", username, "error", err)
				return nil
			}
			if icon, ok := models.ParseIconURL(profile.IconURL); ok {
				subs[i] = subs[i].WithIconURL(icon)
				filled[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()
	return filled
}

// Persist writes a plan: the new entries go to the remote store in one atomic batch, and only when that succeeds
// does the local cache become the merged list. A plan without changes writes nothing.
//
// Backfilled icons of existing entries are saved remotely on a best-effort basis.
func (r *Reconciler) Persist(ctx context.Context, plan *Plan, userID, follower string, progress chan<- ProgressUpdate) error {
	if !plan.Changed() {
		return nil
	}

	if len(plan.New) > 0 {
		sendProgress(progress, persistRemoteUpdate(len(plan.New)))
		if err := r.remote.BatchUpsert(ctx, plan.New, userID, follower); err != nil {
			if errors.Is(err, shared.ErrWrite) || errors.Is(err, shared.ErrAuth) {
				return err
			}
			return fmt.Errorf("%w: %w", shared.ErrWrite, err)
		}
	}

	if len(plan.Backfilled) > 0 {
		if err := r.remote.PersistIcons(ctx, plan.Backfilled, userID); err != nil {
			r.log.Warn("failed to save backfilled icons", "count", len(plan.Backfilled), "error", err)
		}
	}

	sendProgress(progress, persistLocalUpdate(len(plan.Merged)))
	if err := r.local.Set(ctx, plan.Merged); err != nil {
		return err
	}
	return nil
}

// Reconcile plans and persists imported in one call.
func (r *Reconciler) Reconcile(ctx context.Context, imported []models.UserSubscription, userID, follower string) (*ReconcileResult, error) {
	plan, err := r.Plan(ctx, imported, nil)
	if err != nil {
		return nil, err
	}
	if err := r.Persist(ctx, plan, userID, follower, nil); err != nil {
		return nil, err
	}
	return &ReconcileResult{All: plan.Merged, New: models.NewlyAdded(plan.Existing, plan.Merged)}, nil
}
