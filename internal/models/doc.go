// Package models defines the domain entities shared by the RPAN favorites sync pipeline.
//
// The package contains two categories of types:
//
// 1. Subscription state owned by this device and mirrored to the remote store
//   - [UserSubscription] : a user's opt-in to be notified when one broadcaster goes live
//   - [AppUser] : the per-device identity record kept in the remote users collection
//
// 2. Upstream data transfer objects read from Reddit
//   - [Page] : one page of the followed-accounts listing, with its [Cursor]
//   - [FollowedAccount] : a single followed subreddit or user profile
//   - [RedditProfile] : the display icon resolved for a username
//
// Identity for a [UserSubscription] is its username alone; every other field is mutable state of that identity
// and is only changed through the With* mutators, each of which returns a new value.
package models
