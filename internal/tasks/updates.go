package tasks

import (
	"fmt"

	"github.com/desertthunder/rpansync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	State   State  // Import state at the time of the update
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Authenticate Phase = iota
	FetchFollows
	FilterImport
	BackfillIcons
	PersistRemote
	PersistLocal
	Complete
)

func (p Phase) String() string {
	switch p {
	case Authenticate:
		return "authenticate"
	case FetchFollows:
		return "fetch_follows"
	case FilterImport:
		return "filter_import"
	case BackfillIcons:
		return "backfill_icons"
	case PersistRemote:
		return "persist_remote"
	case PersistLocal:
		return "persist_local"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// State is the lifecycle of one import.
//
//	Idle → Importing → Reconciling → Persisting → Done
//
// Failed is reachable from Importing and Persisting only; icon backfill failures never fail a reconciliation.
type State int

const (
	Idle State = iota
	Importing
	Reconciling
	Persisting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Importing:
		return "importing"
	case Reconciling:
		return "reconciling"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}

func authenticateUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Authenticate,
		State:   Importing,
		Step:    1,
		Total:   1,
		Message: "Establishing identity...",
	}
}

func fetchPageUpdate(iteration, maxPages int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFollows,
		State:   Importing,
		Step:    iteration,
		Total:   maxPages,
		Message: fmt.Sprintf("Fetching followed accounts (page %d)...", iteration),
	}
}

func fetchedPageUpdate(iteration, maxPages, found int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFollows,
		State:   Importing,
		Step:    iteration,
		Total:   maxPages,
		Message: fmt.Sprintf("Page %d: %d importable accounts", iteration, found),
	}
}

func filterUpdate(plan *Plan) ProgressUpdate {
	return ProgressUpdate{
		Phase: FilterImport,
		State: Reconciling,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("%d new, %d already favorited, %d previously unsubscribed",
			len(plan.New), plan.Duplicates, plan.Excluded),
	}
}

func backfillUpdate(step, total int, username string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackfillIcons,
		State:   Reconciling,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving icon for %s", step, total, username),
	}
}

func persistRemoteUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistRemote,
		State:   Persisting,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Saving %d subscriptions...", count),
	}
}

func persistLocalUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistLocal,
		State:   Persisting,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Updating local cache (%d favorites)...", count),
	}
}

func completeUpdate(result *ImportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		State:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ %d favorites, %d new", len(result.All), len(result.New)),
		Data:    result,
	}
}

func failedUpdate(phase Phase, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		State:   Failed,
		Message: fmt.Sprintf("✗ %v", err),
	}
}

func newSubscriptionUpdate(sub models.UserSubscription) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		State:   Done,
		Message: fmt.Sprintf("New favorite: %s", sub.Username),
		Data:    sub,
	}
}
