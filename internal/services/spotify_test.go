package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

func newSpotifyTestService(t *testing.T, api http.HandlerFunc) *SpotifyService {
	t.Helper()

	srv := newProviderServer(t, api, nil)
	s, err := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), &sleepRecorder{}))
	if err != nil {
		t.Fatalf("failed to create spotify service: %v", err)
	}
	return s
}

func TestSpotifyService(t *testing.T) {
	ctx := context.Background()

	t.Run("Profile", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/me" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			writeJSON(w, http.StatusOK, SpotifyUser{ID: "user-123", DisplayName: "Test User", Email: "test@example.com"})
		})

		profile, err := s.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.ID != "user-123" || profile.DisplayName != "Test User" || profile.Email != "test@example.com" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})

	t.Run("Playlists follows next", func(t *testing.T) {
		var base string
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			public := true
			if r.URL.Query().Get("offset") == "" {
				if r.URL.Query().Get("limit") != "50" {
					t.Errorf("expected limit=50, got %s", r.URL.RawQuery)
				}
				next := base + "/v1/me/playlists?offset=1&limit=1"
				writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylist]{
					Items: []SpotifyPlaylist{{ID: "p1", Name: "One", Public: &public, Tracks: playlistTrackTotal{Total: 3}}},
					Next:  &next,
				})
				return
			}
			writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylist]{Items: []SpotifyPlaylist{{ID: "p2", Name: "Two"}}})
		})
		base = s.baseURL[:len(s.baseURL)-len("/v1")]

		playlists, err := s.Playlists(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0].Visibility != models.Public || playlists[0].TrackCount != 3 {
			t.Errorf("unexpected first playlist %+v", playlists[0])
		}
		if playlists[1].Visibility != models.Private {
			t.Errorf("playlist without public flag should be private, got %q", playlists[1].Visibility)
		}
	})

	t.Run("PlaylistTracks flattens pages and skips unavailable items", func(t *testing.T) {
		var base string
		var calls int
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			if r.URL.Path != "/v1/playlists/pl-1/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}

			switch r.URL.Query().Get("offset") {
			case "":
				next := base + "/v1/playlists/pl-1/tracks?offset=2&limit=2"
				writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylistTrack]{
					Items: []SpotifyPlaylistTrack{
						{Track: &SpotifyTrack{ID: "t1", Name: "Song A", Artists: []SpotifyArtist{{Name: "Artist A"}, {Name: "Feature"}}}},
						{Track: nil},
					},
					Next: &next,
				})
			default:
				writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylistTrack]{
					Items: []SpotifyPlaylistTrack{
						{Track: &SpotifyTrack{ID: "t2", Name: "Song B"}},
						{Track: &SpotifyTrack{ID: "t3", Name: ""}},
					},
				})
			}
		})
		base = s.baseURL[:len(s.baseURL)-len("/v1")]

		tracks, err := s.PlaylistTracks(ctx, "user-1", "pl-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 page requests, got %d", calls)
		}

		expected := []models.Track{
			{Title: "Song A", Artist: "Artist A", ExternalID: "t1"},
			{Title: "Song B", Artist: "", ExternalID: "t2"},
		}
		if len(tracks) != len(expected) {
			t.Fatalf("expected %d tracks, got %+v", len(expected), tracks)
		}
		for i := range expected {
			if tracks[i] != expected[i] {
				t.Errorf("track %d: expected %+v, got %+v", i, expected[i], tracks[i])
			}
		}
	})

	t.Run("PlaylistTracks stops on an empty page", func(t *testing.T) {
		var base string
		var calls int
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			next := base + "/v1/playlists/pl-1/tracks?offset=100"
			writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylistTrack]{Items: []SpotifyPlaylistTrack{}, Next: &next})
		})
		base = s.baseURL[:len(s.baseURL)-len("/v1")]

		tracks, err := s.PlaylistTracks(ctx, "user-1", "pl-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tracks == nil || len(tracks) != 0 {
			t.Errorf("expected an empty non-nil slice, got %#v", tracks)
		}
		if calls != 1 {
			t.Errorf("expected a single request, got %d", calls)
		}
	})

	t.Run("Playlist not found", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
		})

		_, err := s.Playlist(ctx, "user-1", "missing")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("SearchTracks", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if r.URL.Path != "/v1/search" || q.Get("q") != "Song Artist" || q.Get("type") != "track" || q.Get("limit") != "10" {
				t.Errorf("unexpected search request %s", r.URL)
			}
			writeJSON(w, http.StatusOK, spotifySearchResponse{Tracks: SpotifyPage[SpotifyTrack]{
				Items: []SpotifyTrack{{ID: "t1", Name: "Song", Artists: []SpotifyArtist{{Name: "Artist"}}}},
			}})
		})

		tracks, err := s.SearchTracks(ctx, "user-1", "Song Artist")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 1 || tracks[0] != (models.Track{Title: "Song", Artist: "Artist", ExternalID: "t1"}) {
			t.Errorf("unexpected tracks %+v", tracks)
		}
	})

	t.Run("SearchTracks with no results", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"tracks": map[string]any{"items": []any{}}})
		})

		tracks, err := s.SearchTracks(ctx, "user-1", "nothing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tracks == nil || len(tracks) != 0 {
			t.Errorf("expected an empty non-nil slice, got %#v", tracks)
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/me":
				writeJSON(w, http.StatusOK, SpotifyUser{ID: "user-123"})
			case "/v1/users/user-123/playlists":
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				var body spotifyCreatePlaylistRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode body: %v", err)
				}
				if body.Name != "Mix" || body.Description != "Migrated" || body.Public {
					t.Errorf("unexpected create body %+v", body)
				}
				writeJSON(w, http.StatusCreated, SpotifyPlaylist{ID: "new-pl", Name: body.Name})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		})

		id, err := s.CreatePlaylist(ctx, "user-1", "Mix", "Migrated", models.Private)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "new-pl" {
			t.Errorf("expected new-pl, got %s", id)
		}
	})

	t.Run("AddTrack", func(t *testing.T) {
		tc := []struct {
			name    string
			trackID string
			uri     string
		}{
			{name: "bare id", trackID: "abc", uri: "spotify:track:abc"},
			{name: "uri", trackID: "spotify:track:xyz", uri: "spotify:track:xyz"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodPost || r.URL.Path != "/v1/playlists/pl-1/tracks" {
						t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
					}
					if r.Header.Get("Content-Type") != "application/json" {
						t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
					}

					var body spotifyAddTracksRequest
					json.NewDecoder(r.Body).Decode(&body)
					if len(body.URIs) != 1 || body.URIs[0] != tt.uri {
						t.Errorf("expected uris [%s], got %v", tt.uri, body.URIs)
					}
					writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "snap"})
				})

				if err := s.AddTrack(ctx, "user-1", "pl-1", tt.trackID); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			})
		}
	})

	t.Run("RemoveTrack", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/v1/playlists/pl-1/tracks" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}

			var body spotifyRemoveTracksRequest
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Tracks) != 1 || body.Tracks[0].URI != "spotify:track:abc" {
				t.Errorf("unexpected remove body %+v", body)
			}
			writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": "snap"})
		})

		if err := s.RemoveTrack(ctx, "user-1", "pl-1", "abc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("RemoveTrack from a missing playlist", func(t *testing.T) {
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
		})

		if err := s.RemoveTrack(ctx, "user-1", "missing", "abc"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("SavedTracks follows next", func(t *testing.T) {
		var base string
		s := newSpotifyTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/me/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("offset") == "" {
				next := base + "/v1/me/tracks?offset=50&limit=50"
				writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylistTrack]{
					Items: []SpotifyPlaylistTrack{
						{Track: &SpotifyTrack{ID: "t1", Name: "Liked", Artists: []SpotifyArtist{{Name: "Artist"}}}},
						{Track: nil},
					},
					Next: &next,
				})
				return
			}
			writeJSON(w, http.StatusOK, SpotifyPage[SpotifyPlaylistTrack]{
				Items: []SpotifyPlaylistTrack{{Track: &SpotifyTrack{ID: "t2", Name: "Also Liked"}}},
			})
		})
		base = s.baseURL[:len(s.baseURL)-len("/v1")]

		var lib Library = s
		tracks, err := lib.SavedTracks(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 2 || tracks[0].ExternalID != "t1" || tracks[0].Artist != "Artist" || tracks[1].ExternalID != "t2" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
	})
}
