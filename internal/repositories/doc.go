// Package repositories implements SQLite persistence for the device-side state.
//
// Key Implementations:
//   - [LocalStore] : the cached subscription list, the unsubscribed exclusion list, and identity settings,
//     stored as JSON documents in a key/value settings table
//   - [ImportRunRepository] : audit history of follow-list imports
//
// The local cache is only ever a mirror of the remote store: callers write it after the remote side has accepted
// a change, so a failed remote write leaves it untouched.
package repositories
