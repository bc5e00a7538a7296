package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/spotlake/internal/server"
	"github.com/desertthunder/spotlake/internal/shared"
	"github.com/desertthunder/spotlake/internal/spotify"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthLogin runs the interactive OAuth2 authorization flow and persists the
// resulting token triple.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	tokens, err := r.tokenManager(config)
	if err != nil {
		return err
	}

	creds := config.Credentials.Spotify
	conf := spotify.OAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI)

	token, err := r.doOAuth(conf)
	if err != nil {
		return err
	}

	if err := tokens.Seed(&spotify.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	r.logger.Info("authenticated with Spotify", "expires_at", token.Expiry)
	r.writePlain("✓ Authenticated with Spotify\n")
	return nil
}

// AuthStatus reports whether a usable token exists, refreshing it if needed.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	tokens, err := r.tokenManager(config)
	if err != nil {
		return err
	}

	if _, err := tokens.Valid(ctx); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlain("✗ Not authenticated. Run: spotlake auth login\n")
			return nil
		}
		return err
	}

	r.writePlain("✓ Authenticated\n")
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(conf *oauth2.Config) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := conf.AuthCodeURL(state)
	oauthHandler := server.NewOAuthHandler(conf, state)
	router := server.NewBasicRouter()
	router.Use(server.LogRequests(r.logger))
	router.Handler(oauthHandler)

	serverAddr, err := callbackAddr(conf.RedirectURL)
	if err != nil {
		return nil, err
	}
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}

// callbackAddr derives the listen address from the configured redirect URI.
func callbackAddr(redirectURI string) (string, error) {
	if redirectURI == "" {
		return "localhost:8080", nil
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "8080"
	}
	return host + ":" + port, nil
}
