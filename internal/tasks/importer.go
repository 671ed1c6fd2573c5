package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
)

// DefaultMaxPages bounds a single import against cyclic or endless pagination.
const DefaultMaxPages = 10

// ImportSession is the aggregation state of one import call. It is never persisted.
type ImportSession struct {
	Subscriptions []models.UserSubscription
	Cursor        models.Cursor
	Iteration     int
	Fetched       int // upstream items seen, importable or not
}

// Pages is the number of pages fetched so far.
func (s *ImportSession) Pages() int {
	return s.Iteration - 1
}

// Importer drains the follow list of the authenticated Reddit account.
type Importer struct {
	follows  services.FollowLister
	maxPages int
	log      *log.Logger
}

// NewImporter creates an importer. maxPages below 1 selects [DefaultMaxPages].
func NewImporter(follows services.FollowLister, maxPages int, logger *log.Logger) *Importer {
	if maxPages < 1 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Importer{follows: follows, maxPages: maxPages, log: shared.WithLogger(logger, "component", "importer")}
}

// MaxPages is the configured page cap.
func (im *Importer) MaxPages() int {
	return im.maxPages
}

// Run fetches pages sequentially, each request using the cursor of the previous response, until the cursor is
// vacant or the page cap is reached. Hitting the cap is not an error: the accumulated entries are returned.
//
// Each page is prepended to the accumulator, so later pages come first. Callers must not depend on the order.
//
// Any page failure aborts the import and nothing accumulated is returned.
func (im *Importer) Run(ctx context.Context, progress chan<- ProgressUpdate) (*ImportSession, error) {
	session := &ImportSession{Iteration: 1}

	for {
		sendProgress(progress, fetchPageUpdate(session.Iteration, im.maxPages))

		page, err := im.follows.FollowedPage(ctx, session.Cursor)
		if err != nil {
			im.log.Error("page fetch failed", "iteration", session.Iteration, "error", err)
			return nil, fmt.Errorf("failed to fetch follow list page %d: %w", session.Iteration, err)
		}

		subs := models.SubscriptionsFromPage(page)
		session.Subscriptions = slices.Concat(subs, session.Subscriptions)
		session.Fetched += len(page.Items)
		sendProgress(progress, fetchedPageUpdate(session.Iteration, im.maxPages, len(subs)))

		session.Cursor = page.Next
		session.Iteration++

		if session.Cursor.IsVacant() {
			break
		}
		if session.Iteration > im.maxPages {
			im.log.Warn("page cap reached, stopping import", "max_pages", im.maxPages, "cursor", session.Cursor)
			break
		}
	}

	im.log.Debug("follow list drained",
		"pages", session.Pages(), "fetched", session.Fetched, "importable", len(session.Subscriptions))
	return session, nil
}
