package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/linking"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
	"github.com/desertthunder/musiclink/internal/tasks"
)

// API serves the JSON endpoints of the service.
type API struct {
	coordinator *linking.Coordinator
	migrator    tasks.Migrator
	gateways    map[models.Provider]services.Gateway
	logger      *log.Logger
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query   string              `json:"query"`
	Results []tasks.SearchResult `json:"results"`
}

// PlaylistsResponse is the body of GET /{provider}/playlists.
type PlaylistsResponse struct {
	Provider  models.Provider   `json:"provider"`
	Playlists []models.Playlist `json:"playlists"`
}

// TracksResponse is the body of GET /{provider}/playlists/{id}/tracks and GET /{provider}/saved.
type TracksResponse struct {
	Provider   models.Provider `json:"provider"`
	PlaylistID string          `json:"playlist_id,omitempty"`
	Tracks     []models.Track  `json:"tracks"`
}

// PartialReportBody is the error body of POST /migrate when a run stopped partway; Report holds the tracks
// processed before it stopped.
type PartialReportBody struct {
	ErrorBody
	Report *models.MigrationReport `json:"report"`
}

// CreatePlaylistRequest is the body of POST /{provider}/playlists.
type CreatePlaylistRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Visibility  models.Visibility `json:"visibility,omitempty"`
}

// CreatePlaylistResponse is the body returned by POST /{provider}/playlists.
type CreatePlaylistResponse struct {
	Provider models.Provider `json:"provider"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
}

// AddTrackRequest is the body of POST /{provider}/playlists/{id}/tracks.
type AddTrackRequest struct {
	TrackID string `json:"track_id"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	UserID    string              `json:"user_id"`
	Providers []models.LinkStatus `json:"providers"`
}

func (a *API) gateway(p models.Provider) (services.Gateway, error) {
	gw, ok := a.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownProvider, p)
	}
	return gw, nil
}

func requireUser(r *http.Request) (string, error) {
	id := userID(r)
	if id == "" {
		return "", fmt.Errorf("%w: user id is required (X-User-ID header or user_id query)", shared.ErrMissingArgument)
	}
	return id, nil
}

// Login starts linking {provider} for the calling user.
//
// Returns the consent URL as JSON, or redirects to it when redirect=true.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	provider, err := pathProvider(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	user, err := requireUser(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	link, err := a.coordinator.BeginLink(r.Context(), user, provider)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		noCache(w)
		http.Redirect(w, r, link.AuthorizationURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// Migrate runs a migration synchronously and responds with its report.
//
// The user id in the body wins over the X-User-ID header. A run that stops partway, for example on a deadline,
// responds with the error and the partial report.
func (a *API) Migrate(w http.ResponseWriter, r *http.Request) {
	var req tasks.MigrateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if req.UserID == "" {
		req.UserID = userID(r)
	}

	report, err := a.migrator.Migrate(r.Context(), req, nil)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case report != nil:
		code, body := errorBody(r, a.logger, err)
		writeJSON(w, code, PartialReportBody{ErrorBody: body, Report: report})
	default:
		writeError(w, r, a.logger, err)
	}
}

// Search queries every configured provider, or the ones named by repeated provider parameters.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	q := r.URL.Query()
	var providers []models.Provider
	for _, name := range q["provider"] {
		p, err := models.ParseProvider(name)
		if err != nil {
			writeError(w, r, a.logger, fmt.Errorf("%w: %q", shared.ErrUnknownProvider, name))
			return
		}
		providers = append(providers, p)
	}

	results, err := a.migrator.Search(r.Context(), user, q.Get("q"), providers...)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q.Get("q"), Results: results})
}

// Playlists lists the calling user's playlists on {provider}.
func (a *API) Playlists(w http.ResponseWriter, r *http.Request) {
	provider, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	playlists, err := gw.Playlists(r.Context(), user)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	writeJSON(w, http.StatusOK, PlaylistsResponse{Provider: provider, Playlists: playlists})
}

// PlaylistTracks lists every track of playlist {id} on {provider}.
func (a *API) PlaylistTracks(w http.ResponseWriter, r *http.Request) {
	provider, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	tracks, err := gw.PlaylistTracks(r.Context(), user, id)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, TracksResponse{Provider: provider, PlaylistID: id, Tracks: tracks})
}

// CreatePlaylist creates an empty playlist for the caller on {provider}.
func (a *API) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	provider, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	var req CreatePlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, a.logger, fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument))
		return
	}
	switch req.Visibility {
	case "":
		req.Visibility = models.Private
	case models.Public, models.Private, models.Unlisted:
	default:
		writeError(w, r, a.logger, fmt.Errorf("%w: unknown visibility %q", shared.ErrInvalidArgument, req.Visibility))
		return
	}

	id, err := gw.CreatePlaylist(r.Context(), user, req.Name, req.Description, req.Visibility)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatePlaylistResponse{Provider: provider, ID: id, Name: req.Name})
}

// AddTrack appends a track to playlist {id} on {provider}.
func (a *API) AddTrack(w http.ResponseWriter, r *http.Request) {
	_, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	var req AddTrackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if req.TrackID == "" {
		writeError(w, r, a.logger, fmt.Errorf("%w: track_id is required", shared.ErrMissingArgument))
		return
	}

	if err := gw.AddTrack(r.Context(), user, r.PathValue("id"), req.TrackID); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveTrack removes track {track} from playlist {id} on {provider}.
func (a *API) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	_, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	if err := gw.RemoveTrack(r.Context(), user, r.PathValue("id"), r.PathValue("track")); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SavedTracks lists the caller's saved tracks on providers that keep a library.
func (a *API) SavedTracks(w http.ResponseWriter, r *http.Request) {
	provider, gw, user, ok := a.providerRequest(w, r)
	if !ok {
		return
	}

	lib, ok := gw.(services.Library)
	if !ok {
		writeError(w, r, a.logger, fmt.Errorf("%w: %s has no saved tracks", shared.ErrNotImplemented, provider.DisplayName()))
		return
	}

	tracks, err := lib.SavedTracks(r.Context(), user)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, TracksResponse{Provider: provider, Tracks: tracks})
}

// providerRequest resolves the provider, its gateway and the caller, writing the error response on failure.
func (a *API) providerRequest(w http.ResponseWriter, r *http.Request) (models.Provider, services.Gateway, string, bool) {
	fail := func(err error) (models.Provider, services.Gateway, string, bool) {
		writeError(w, r, a.logger, err)
		return "", nil, "", false
	}

	provider, err := pathProvider(r)
	if err != nil {
		return fail(err)
	}
	gw, err := a.gateway(provider)
	if err != nil {
		return fail(err)
	}
	user, err := requireUser(r)
	if err != nil {
		return fail(err)
	}
	return provider, gw, user, true
}

// Status reports which providers the calling user has linked.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	statuses, err := a.coordinator.Status(r.Context(), user)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{UserID: user, Providers: statuses})
}

// Health reports liveness and the configured providers.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	providers := make([]models.Provider, 0, len(a.gateways))
	for _, p := range models.Providers() {
		if _, ok := a.gateways[p]; ok {
			providers = append(providers, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "providers": providers})
}
