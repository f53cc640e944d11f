// Spotify Web API implementation of [Gateway]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

const (
	spotifySearchLimit   = 10
	spotifyTracksLimit   = 100
	spotifyPlaylistLimit = 50
	spotifySavedLimit    = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
	Type    string          `json:"type"`
}

func (t SpotifyTrack) toModel() models.Track {
	track := models.Track{Title: t.Name, ExternalID: t.ID}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}

type playlistTrackTotal struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a playlist object, simplified or full.
type SpotifyPlaylist struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Public      *bool              `json:"public"`
	Tracks      playlistTrackTotal `json:"tracks"`
}

func (p SpotifyPlaylist) toModel() models.Playlist {
	visibility := models.Private
	if p.Public != nil && *p.Public {
		visibility = models.Public
	}
	return models.Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		TrackCount:  p.Tracks.Total,
		Visibility:  visibility,
	}
}

// SpotifyPlaylistTrack represents a track within a playlist or the saved-tracks library.
//
// Track is nil for items Spotify can no longer resolve.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPage is one page of a paginated Spotify response.
type SpotifyPage[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

func (p SpotifyPage[T]) nextURL() string {
	if p.Next == nil || len(p.Items) == 0 {
		return ""
	}
	return *p.Next
}

type spotifySearchResponse struct {
	Tracks SpotifyPage[SpotifyTrack] `json:"tracks"`
}

type spotifyCreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

type spotifyAddTracksRequest struct {
	URIs []string `json:"uris"`
}

type spotifyTrackRef struct {
	URI string `json:"uri"`
}

type spotifyRemoveTracksRequest struct {
	Tracks []spotifyTrackRef `json:"tracks"`
}

// spotifyURI accepts a bare track id or a spotify: URI.
func spotifyURI(trackID string) string {
	if strings.HasPrefix(trackID, "spotify:") {
		return trackID
	}
	return "spotify:track:" + trackID
}

// SpotifyService implements [Gateway] for the Spotify Web API.
type SpotifyService struct {
	*client
}

// NewSpotifyService creates a new Spotify gateway with the given options.
func NewSpotifyService(opts Options) (*SpotifyService, error) {
	c, err := newClient(models.Spotify, opts)
	if err != nil {
		return nil, err
	}
	return &SpotifyService{client: c}, nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, userID string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.do(ctx, userID, http.MethodGet, "me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SpotifyService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.UserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.Profile{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

// Playlists retrieves all playlists for the authenticated user.
func (s *SpotifyService) Playlists(ctx context.Context, userID string) ([]models.Playlist, error) {
	var playlists []models.Playlist

	path := "me/playlists"
	query := url.Values{"limit": {strconv.Itoa(spotifyPlaylistLimit)}}
	for path != "" {
		var page SpotifyPage[SpotifyPlaylist]
		if err := s.do(ctx, userID, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		for _, p := range page.Items {
			playlists = append(playlists, p.toModel())
		}

		path, query = page.nextURL(), nil
	}

	return playlists, nil
}

func (s *SpotifyService) Playlist(ctx context.Context, userID, playlistID string) (*models.Playlist, error) {
	var sp SpotifyPlaylist
	query := url.Values{"fields": {"id,name,description,public,tracks.total"}}
	if err := s.do(ctx, userID, http.MethodGet, "playlists/"+url.PathEscape(playlistID), query, nil, &sp); err != nil {
		if shared.StatusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}

	playlist := sp.toModel()
	return &playlist, nil
}

// PlaylistTracks follows the next cursor until exhausted. Unresolvable items are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, userID, playlistID string) ([]models.Track, error) {
	tracks := []models.Track{}

	path := "playlists/" + url.PathEscape(playlistID) + "/tracks"
	query := url.Values{"limit": {strconv.Itoa(spotifyTracksLimit)}}
	for path != "" {
		var page SpotifyPage[SpotifyPlaylistTrack]
		if err := s.do(ctx, userID, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, item.Track.toModel())
		}

		path, query = page.nextURL(), nil
	}

	return tracks, nil
}

func (s *SpotifyService) SearchTracks(ctx context.Context, userID, q string) ([]models.Track, error) {
	query := url.Values{
		"q":     {q},
		"type":  {"track"},
		"limit": {strconv.Itoa(spotifySearchLimit)},
	}

	var response spotifySearchResponse
	if err := s.do(ctx, userID, http.MethodGet, "search", query, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		tracks = append(tracks, t.toModel())
	}
	return tracks, nil
}

// CreatePlaylist creates a playlist owned by the linked account. Spotify has no unlisted playlists, so anything
// other than [models.Public] is created private.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string, visibility models.Visibility) (string, error) {
	user, err := s.UserProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve spotify account: %w", err)
	}

	body := spotifyCreatePlaylistRequest{Name: name, Description: description, Public: visibility == models.Public}

	var created SpotifyPlaylist
	path := "users/" + url.PathEscape(user.ID) + "/playlists"
	if err := s.do(ctx, userID, http.MethodPost, path, nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddTrack accepts a bare track id or a spotify:track: URI.
func (s *SpotifyService) AddTrack(ctx context.Context, userID, playlistID, trackID string) error {
	body := spotifyAddTracksRequest{URIs: []string{spotifyURI(trackID)}}
	return s.do(ctx, userID, http.MethodPost, "playlists/"+url.PathEscape(playlistID)+"/tracks", nil, body, nil)
}

// RemoveTrack removes every occurrence of the track from the playlist.
func (s *SpotifyService) RemoveTrack(ctx context.Context, userID, playlistID, trackID string) error {
	body := spotifyRemoveTracksRequest{Tracks: []spotifyTrackRef{{URI: spotifyURI(trackID)}}}
	err := s.do(ctx, userID, http.MethodDelete, "playlists/"+url.PathEscape(playlistID)+"/tracks", nil, body, nil)
	if shared.StatusOf(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return err
}

// SavedTracks retrieves the account's Liked Songs. Unresolvable items are skipped.
func (s *SpotifyService) SavedTracks(ctx context.Context, userID string) ([]models.Track, error) {
	tracks := []models.Track{}

	path := "me/tracks"
	query := url.Values{"limit": {strconv.Itoa(spotifySavedLimit)}}
	for path != "" {
		var page SpotifyPage[SpotifyPlaylistTrack]
		if err := s.do(ctx, userID, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, item.Track.toModel())
		}

		path, query = page.nextURL(), nil
	}

	return tracks, nil
}
