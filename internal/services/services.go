// package services defines the [Gateway] interface for provider REST APIs
//
// Spotify Web API, YouTube Data API v3
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/repositories"
	"github.com/desertthunder/musiclink/internal/shared"
)

// defaultTokenLifetime applies when a token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// Gateway is an authenticated client for one provider's REST API.
//
// Every user-scoped call resolves credentials through [Gateway.EnsureAccessToken], so callers never see an
// expired access token.
type Gateway interface {
	// Provider identifies the platform this gateway talks to.
	Provider() models.Provider

	// AuthCodeURL builds the provider consent URL embedding state, requesting offline access.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for tokens at the provider's token endpoint.
	Exchange(ctx context.Context, code string) (*Grant, error)

	// EnsureAccessToken returns a usable access token for the user, refreshing it first when expired.
	EnsureAccessToken(ctx context.Context, userID string) (models.AccessToken, error)

	// Profile returns the linked account.
	Profile(ctx context.Context, userID string) (*models.Profile, error)

	// Playlists lists every playlist owned by the linked account.
	Playlists(ctx context.Context, userID string) ([]models.Playlist, error)

	// Playlist returns metadata for a single playlist.
	Playlist(ctx context.Context, userID, playlistID string) (*models.Playlist, error)

	// PlaylistTracks follows the provider's pagination until exhausted.
	PlaylistTracks(ctx context.Context, userID, playlistID string) ([]models.Track, error)

	// SearchTracks runs a single-page catalog search. No results is an empty slice, not an error.
	SearchTracks(ctx context.Context, userID, query string) ([]models.Track, error)

	// CreatePlaylist creates a playlist and returns its id.
	CreatePlaylist(ctx context.Context, userID, name, description string, visibility models.Visibility) (string, error)

	// AddTrack appends a track (or video) to a playlist.
	AddTrack(ctx context.Context, userID, playlistID, trackID string) error

	// RemoveTrack removes every occurrence of a track (or video) from a playlist.
	RemoveTrack(ctx context.Context, userID, playlistID, trackID string) error
}

// Library is implemented by gateways whose provider keeps a saved-tracks collection outside playlists.
type Library interface {
	// SavedTracks returns every track the linked account has saved, newest first.
	SavedTracks(ctx context.Context, userID string) ([]models.Track, error)
}

// Grant is what a token endpoint reported for a code exchange or refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Scope        string
}

// NewTokenRecord turns a grant received at now into a stored record.
//
// ExpiresAt is the provider expiry minus margin. The margin is capped at half the token lifetime, so a fresh
// record is never born expired.
func NewTokenRecord(g *Grant, now time.Time, margin time.Duration) models.TokenRecord {
	lifetime := g.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	margin = max(0, min(margin, lifetime/2))

	return models.TokenRecord{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		ExpiresAt:    now.Add(lifetime - margin),
		Scope:        g.Scope,
	}
}

// Options configures a [Gateway].
//
// Zero values fall back to [http.DefaultClient], [DefaultRetryPolicy], a discarding logger, [metrics.Noop] and
// [time.Now].
type Options struct {
	Config            shared.ProviderConfig
	Store             repositories.CredentialStore
	Retry             RetryPolicy
	ExpiryMargin      time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *log.Logger
	Metrics           metrics.Recorder
	Now               func() time.Time
}

// New creates the [Gateway] implementation for provider.
func New(provider models.Provider, opts Options) (Gateway, error) {
	switch provider {
	case models.Spotify:
		return NewSpotifyService(opts)
	case models.YouTube:
		return NewYouTubeService(opts)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownProvider, provider)
	}
}

// NewFromConfig creates a gateway for every provider with client credentials in cfg.
func NewFromConfig(cfg *shared.Config, store repositories.CredentialStore, logger *log.Logger, recorder metrics.Recorder) (map[models.Provider]Gateway, error) {
	providers := map[models.Provider]shared.ProviderConfig{
		models.Spotify: cfg.Credentials.Spotify,
		models.YouTube: cfg.Credentials.YouTube,
	}

	gateways := make(map[models.Provider]Gateway, len(providers))
	for _, p := range models.Providers() {
		pc := providers[p]
		if !pc.Configured() {
			continue
		}

		gw, err := New(p, Options{
			Config:            pc,
			Store:             store,
			Retry:             RetryPolicyFromConfig(cfg.Retry),
			ExpiryMargin:      cfg.OAuth.ExpiryMargin,
			RequestsPerSecond: cfg.Retry.RequestsPerSecond,
			Logger:            logger,
			Metrics:           recorder,
		})
		if err != nil {
			return nil, err
		}
		gateways[p] = gw
	}
	return gateways, nil
}
