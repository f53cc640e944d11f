package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/desertthunder/musiclink/internal/formatter"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/server"
	"github.com/desertthunder/musiclink/internal/shared"
	"github.com/urfave/cli/v3"
)

// Link runs the authorization code flow for one provider with a temporary local callback server.
func (r *Runner) Link(ctx context.Context, cmd *cli.Command) error {
	provider, err := parseProvider(cmd.StringArg("provider"))
	if err != nil {
		return err
	}
	user, err := requireUser(cmd)
	if err != nil {
		return err
	}
	if err := r.prepare(ctx, cmd); err != nil {
		return err
	}
	if _, err := r.gateway(provider); err != nil {
		return err
	}

	addr := r.callbackAddr(provider)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	handler := server.NewCallbackHandler(r.coordinator, r.logger)
	router := server.NewBasicRouter()
	router.Handler(handler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(srvCtx, ln, router, r.logger) }()

	link, err := r.coordinator.BeginLink(ctx, user, provider)
	if err != nil {
		stop()
		<-serveErr
		return err
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Linking %s for %s\n", provider.DisplayName(), user)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", link.AuthorizationURL)
	} else if err := r.openBrowser(link.AuthorizationURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlain("⚠ Could not open browser automatically.\n")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", link.AuthorizationURL)
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.LinkResult
	select {
	case result = <-handler.Results():
	case err := <-serveErr:
		return fmt.Errorf("callback server stopped: %w", err)
	case <-timer.C:
		result.Err = fmt.Errorf("%w: no callback within %s", context.DeadlineExceeded, timeout)
	case <-ctx.Done():
		result.Err = ctx.Err()
	}

	stop()
	if err := <-serveErr; err != nil {
		r.logger.Warn("error shutting down callback server", "error", err)
	}

	if result.Err != nil {
		return fmt.Errorf("authorization failed: %w", result.Err)
	}

	r.logger.Info("account linked", "provider", provider, "user", result.UserID)
	return r.writePlain("✓ %s linked for %s\n", provider.DisplayName(), result.UserID)
}

// callbackAddr is the listen address implied by the provider's redirect URI, or the server address.
func (r *Runner) callbackAddr(provider models.Provider) string {
	var redirect string
	switch provider {
	case models.Spotify:
		redirect = r.config.Credentials.Spotify.RedirectURI
	case models.YouTube:
		redirect = r.config.Credentials.YouTube.RedirectURI
	}

	u, err := url.Parse(redirect)
	if err != nil || u.Port() == "" {
		return r.config.Server.Addr()
	}
	if want := "/auth/" + string(provider) + "/callback"; u.Path != want {
		r.logger.Warn("redirect uri path does not match the callback route", "redirect_uri", redirect, "route", want)
	}
	return u.Host
}

// linkStatusView is a link status with the provider's view of the account.
type linkStatusView struct {
	models.LinkStatus
	Profile *models.Profile `json:"profile,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Status shows which providers are linked for a user and the account each one is linked to.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	user, err := requireUser(cmd)
	if err != nil {
		return err
	}
	if err := r.prepare(ctx, cmd); err != nil {
		return err
	}

	statuses, err := r.coordinator.Status(ctx, user)
	if err != nil {
		return err
	}

	views := make([]linkStatusView, 0, len(statuses))
	for _, s := range statuses {
		view := linkStatusView{LinkStatus: s}
		if gw, ok := r.gateways[s.Provider]; ok && s.Linked {
			profile, err := gw.Profile(ctx, user)
			switch {
			case err == nil:
				view.Profile = profile
			case shared.IsAuthError(err), errors.Is(err, shared.ErrProviderRejected), errors.Is(err, shared.ErrProviderTransient):
				view.Error = err.Error()
			default:
				return err
			}
		}
		views = append(views, view)
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if err := r.writeBytes(formatter.LinkStatusToText(statuses)); err != nil {
		return err
	}
	for _, v := range views {
		switch {
		case v.Profile != nil:
			r.writePlain("  %s account: %s (%s)\n", v.Provider.DisplayName(), v.Profile.DisplayName, v.Profile.ID)
		case v.Error != "":
			r.writePlain("  %s account: unavailable: %s\n", v.Provider.DisplayName(), v.Error)
		}
	}
	return nil
}
