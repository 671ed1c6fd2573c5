// Package tasks runs the favorites import pipeline with real-time progress reporting.
//
// # Core Operations
//
//  1. [Importer.Run] : drain the Reddit follow list
//     - Pages are fetched one at a time, each request carrying the previous page's cursor
//     - Stops on a vacant cursor or after [DefaultMaxPages] pages, whichever comes first
//     - Only user profiles with a usable icon are kept
//     - Any page failure aborts the import with no partial result
//
//  2. [Reconciler.Plan] and [Reconciler.Persist] : merge an import into the stored favorites
//     - Usernames on the unsubscribed list are dropped
//     - Entries already favorited are left untouched
//     - Missing icons are resolved concurrently; lookup failures are ignored
//     - New entries are batch written remotely before the local cache changes
//
//  3. [SubscriptionEngine] : the import plus favorite, unfavorite, settings, restore and reset operations
//
// # Import States
//
// An import moves through [Idle], [Importing], [Reconciling], [Persisting] and ends in [Done] or [Failed].
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, state, step counters, messages, and optional data.
// Updates use select with default to prevent blocking.
//
// # Import Runs
//
// The optional [RunRecorder] interface keeps an audit row per import (repositories.ImportRunRepository).
// Recording failures are logged and never fail an import.
package tasks
