package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/musiclink/internal/formatter"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
	"github.com/urfave/cli/v3"
)

// Playlists lists a provider's playlists, the tracks of the playlist named by --id, or the saved tracks with --saved.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
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
	gw, err := r.gateway(provider)
	if err != nil {
		return err
	}

	if cmd.Bool("saved") {
		lib, ok := gw.(services.Library)
		if !ok {
			return fmt.Errorf("%w: %s has no saved tracks", shared.ErrNotImplemented, provider.DisplayName())
		}
		tracks, err := lib.SavedTracks(ctx, user)
		if err != nil {
			return err
		}
		r.logger.Debug("fetched saved tracks", "provider", provider, "count", len(tracks))

		if cmd.Bool("json") {
			return r.writeJSON(tracks, cmd.Bool("pretty"))
		}
		return r.writeBytes(formatter.TracksToText(provider, tracks, nil))
	}

	if id := cmd.String("id"); id != "" {
		tracks, err := gw.PlaylistTracks(ctx, user, id)
		if err != nil {
			return err
		}
		r.logger.Debug("fetched playlist tracks", "provider", provider, "playlist", id, "count", len(tracks))

		if cmd.Bool("json") {
			return r.writeJSON(tracks, cmd.Bool("pretty"))
		}
		return r.writeBytes(formatter.TracksToText(provider, tracks, nil))
	}

	playlists, err := gw.Playlists(ctx, user)
	if err != nil {
		return err
	}
	r.logger.Debug("fetched playlists", "provider", provider, "count", len(playlists))

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}
	return r.writeBytes(formatter.PlaylistsToText(provider, playlists))
}

// Search queries the linked providers concurrently and prints each provider's results.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	user, err := requireUser(cmd)
	if err != nil {
		return err
	}
	if err := r.prepare(ctx, cmd); err != nil {
		return err
	}

	var providers []models.Provider
	for _, name := range cmd.StringSlice("provider") {
		p, err := parseProvider(name)
		if err != nil {
			return err
		}
		providers = append(providers, p)
	}

	results, err := r.engine.Search(ctx, user, query, providers...)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	r.writePlain("Results for %q\n\n", query)
	for i, res := range results {
		if i > 0 {
			r.writePlain("\n")
		}
		if err := r.writeBytes(formatter.TracksToText(res.Provider, res.Tracks, res.Err)); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	return nil
}
