// Package services implements the upstream Reddit API used to discover followed broadcasters.
//
// # Interfaces
//
// The import pipeline depends on narrow interfaces so it can be exercised with fakes:
//   - [FollowLister] : one page of followed accounts per call, walked with a [models.Cursor]
//   - [ProfileLookup] : icon lookup for a single username
//   - [AccountLookup] : the name of the authenticated account
//
// [Upstream] combines all three.
//
// # Reddit Implementation
//
// [RedditService] uses OAuth2 for authentication with automatic token refresh. Login goes through the
// [OAuthService] authorization code flow; the CLI persists the resulting token in the config file and hands it
// back to [RedditService.Authenticate] on the next run.
//
// Requests are paced with a [rate.Limiter] and always carry the configured User-Agent, which Reddit requires.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : 401 or a failed refresh, reauthorization needed
//   - [shared.ErrNotFound] : 404, usually a deleted or suspended account
//   - [shared.ErrAPIRequest] : other non-2xx statuses or undecodable bodies
//   - [shared.ErrNetwork] : transport failures
package services
