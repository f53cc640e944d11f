package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an external music platform.
type Provider string

const (
	Spotify Provider = "spotify"
	YouTube Provider = "youtube"
)

// Providers lists every supported provider in a stable order.
func Providers() []Provider {
	return []Provider{Spotify, YouTube}
}

// ParseProvider resolves a provider name, case-insensitively.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spotify":
		return Spotify, nil
	case "youtube", "yt", "ytmusic":
		return YouTube, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// DisplayName returns a human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case Spotify:
		return "Spotify"
	case YouTube:
		return "YouTube"
	default:
		return string(p)
	}
}

// Visibility of a playlist created on a provider.
type Visibility string

const (
	Private  Visibility = "private"
	Public   Visibility = "public"
	Unlisted Visibility = "unlisted"
)

// Track is the provider-agnostic normalized track shape returned by extraction and search.
type Track struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`      // artist, or channel for video platforms
	ExternalID string `json:"external_id"` // provider track or video id
}

// Playlist represents playlist metadata from any provider.
type Playlist struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	TrackCount  int        `json:"track_count"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// Profile is the linked account as the provider sees it.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// TokenRecord holds one user's credentials for one provider.
//
// ExpiresAt is the provider-reported expiry minus a safety margin, so a token is
// usable while time.Now() is before it.
type TokenRecord struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// Expired reports whether the record can no longer be used at now.
func (t TokenRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CanRefresh reports whether a refresh token is on file.
func (t TokenRecord) CanRefresh() bool {
	return t.RefreshToken != ""
}

// AccessToken is a usable bearer token and the time it stops being usable.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// CorrelationState ties an OAuth state parameter back to the user who started linking.
type CorrelationState struct {
	Token     string
	UserID    string
	Provider  Provider
	CreatedAt time.Time
}

// ExpiredAt reports whether the state is older than ttl at now.
func (s CorrelationState) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !now.Before(s.CreatedAt.Add(ttl))
}

// MatchResult is the outcome of one source track in a migration run.
type MatchResult struct {
	Source  Track   `json:"source"`
	Matched *Track  `json:"matched"`
	Score   float64 `json:"score"`
	Added   bool    `json:"added"`
}

// Migration report statuses
const (
	StatusOK       = "ok"
	StatusNoTracks = "no_tracks"
)

// MigrationReport aggregates a migration run.
type MigrationReport struct {
	ID                 string        `json:"id"`
	Status             string        `json:"status"`
	SourceProvider     Provider      `json:"source_provider"`
	TargetProvider     Provider      `json:"target_provider"`
	SourcePlaylistID   string        `json:"source_playlist_id"`
	SourcePlaylistName string        `json:"source_playlist_name,omitempty"`
	TargetPlaylistID   string        `json:"target_playlist_id,omitempty"`
	CreatedNewPlaylist bool          `json:"created_new_playlist"`
	DryRun             bool          `json:"dry_run,omitempty"`
	MinScore           float64       `json:"min_score"`
	Total              int           `json:"total"`
	Added              int           `json:"added"`
	Failed             int           `json:"failed"`
	Matches            []MatchResult `json:"matches"`
}

// Tally recomputes Total, Added and Failed from Matches.
func (r *MigrationReport) Tally() {
	r.Total = len(r.Matches)
	r.Added = 0
	for _, m := range r.Matches {
		if m.Added {
			r.Added++
		}
	}
	r.Failed = r.Total - r.Added
}

// LinkStatus describes whether a user has credentials on file for a provider.
type LinkStatus struct {
	Provider    Provider  `json:"provider"`
	Linked      bool      `json:"linked"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Refreshable bool      `json:"refreshable"`
}
