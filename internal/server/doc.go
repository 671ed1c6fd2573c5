// Package server provides the HTTP routing, middleware, and OAuth callback handling used by `auth login`.
//
// # Router Infrastructure
//
// [CallbackRouter] mounts each [Handler] on the paths it reports and rejects anything but GET and HEAD.
//
// [Middleware] runs in the order it was added, the first outermost. [RequestLogger] is the only middleware shipped.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the Reddit authorization code callback.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code through an
// [Exchanger], and sends the result through a channel. It only processes one callback.
//
// # Current Usage
//
// When the user runs `rpansync auth login`, a temporary HTTP server starts on the configured host and port
// (localhost:3000 by default), handles the callback, and shuts down after receiving the token.
package server
