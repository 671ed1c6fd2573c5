package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/server"
	"github.com/desertthunder/rpansync/internal/services"
	"github.com/desertthunder/rpansync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow against Reddit.
//
// Starts a local HTTP server, opens the browser for user authorization, and exchanges the code for tokens. The
// tokens are saved to the config file and the Reddit username is linked to the device identity.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.redditFor(ctx, cmd)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, backend.Reddit, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n", r.configPath)
	}

	username, err := backend.Reddit.Me(ctx)
	if err != nil {
		r.logger.Warn("failed to look up reddit account", "error", err)
		r.writePlain("⚠ Could not look up your Reddit username, imports will not record a follower\n")
		return nil
	}

	if err := backend.Engine.LinkAccount(ctx, username); err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}

	r.writePlain("✓ Linked u/%s\n\n", username)
	r.writePlain("You can now use: rpansync import\n")
	return nil
}

// doOAuth runs the browser round trip and returns the exchanged token.
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, timeout time.Duration) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	oauthHandler := server.NewOAuthHandler(oauthSrv, state)
	router := server.NewCallbackRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Mount(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	listener, err := net.Listen("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", serverAddr, err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", serverAddr)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := oauthSrv.AuthURL(state)
	r.writePlain("→ Opening browser for Reddit authorization...\n")
	if err := r.openBrowser(ctx, authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// AuthStatus reports the stored Reddit session and the device identity.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.backendFor(ctx, cmd)
	if err != nil {
		return err
	}

	reddit := r.config.Reddit
	switch {
	case !reddit.HasToken():
		r.writePlain("Reddit: ✗ Not authenticated (run 'rpansync auth login')\n")
	case reddit.RefreshToken != "":
		r.writePlain("Reddit: ✓ Authenticated (refreshable)\n")
	case reddit.TokenExpiry.IsZero() || reddit.TokenExpiry.After(time.Now()):
		r.writePlain("Reddit: ✓ Authenticated\n")
	default:
		r.writePlain("Reddit: ✗ Token expired at %s\n", reddit.TokenExpiry.Local().Format(time.DateTime))
	}

	username, ok, err := backend.Local.String(ctx, repositories.KeyUsername)
	if err != nil {
		return err
	}
	if ok && username != "" {
		r.writePlain("Account: u/%s\n", username)
	} else {
		r.writePlain("Account: not linked\n")
	}

	userID, ok, err := backend.Local.String(ctx, repositories.KeyUserID)
	if err != nil {
		return err
	}
	if ok && userID != "" {
		r.writePlain("Device identity: %s\n", userID)
		if user, err := backend.Engine.Account(ctx); err != nil {
			r.logger.Warn("failed to read remote account", "error", err)
			r.writePlain("Remote record: unavailable\n")
		} else {
			r.writePlain("Remote record: u/%s, notifications %s\n", orNone(user.Username), onOff(user.NotificationsOn))
		}
	} else {
		r.writePlain("Device identity: not created yet\n")
	}

	notify, err := backend.Local.Bool(ctx, repositories.KeyNotificationsOn, true)
	if err != nil {
		return err
	}
	r.writePlain("Notifications: %s\n", onOff(notify))
	return nil
}

// AuthLogout forgets the stored tokens. The device identity and favorites are kept.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd); err != nil {
		return err
	}

	if !r.config.Reddit.HasToken() {
		return r.writePlain("Not logged in\n")
	}

	r.config.Reddit.ClearToken()
	if r.configPath != "" {
		if err := shared.SaveConfig(r.configPath, r.config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	return r.writePlain("✓ Logged out of Reddit\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
