// YouTube Data API v3 implementation of [Gateway]
//
// Response types based on https://developers.google.com/youtube/v3/docs
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

const (
	youtubeSearchLimit = 25
	youtubePageLimit   = 50
)

type youtubeResourceID struct {
	Kind    string `json:"kind,omitempty"`
	VideoID string `json:"videoId,omitempty"`
}

// YouTubeSnippet is the snippet part shared by channels, playlists, playlist items and search results.
type YouTubeSnippet struct {
	Title                  string            `json:"title,omitempty"`
	Description            string            `json:"description,omitempty"`
	ChannelTitle           string            `json:"channelTitle,omitempty"`
	VideoOwnerChannelTitle string            `json:"videoOwnerChannelTitle,omitempty"`
	PlaylistID             string            `json:"playlistId,omitempty"`
	ResourceID             youtubeResourceID `json:"resourceId,omitzero"`
}

// channel returns the uploader of a video, preferring the owner over the playlist's channel.
func (s YouTubeSnippet) channel() string {
	if s.VideoOwnerChannelTitle != "" {
		return s.VideoOwnerChannelTitle
	}
	return s.ChannelTitle
}

type youtubeContentDetails struct {
	VideoID   string `json:"videoId,omitempty"`
	ItemCount int    `json:"itemCount,omitempty"`
}

type youtubeStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

// YouTubeChannel represents a channel resource.
type YouTubeChannel struct {
	ID      string         `json:"id"`
	Snippet YouTubeSnippet `json:"snippet"`
}

// YouTubePlaylist represents a playlist resource.
type YouTubePlaylist struct {
	ID             string                `json:"id,omitempty"`
	Snippet        YouTubeSnippet        `json:"snippet"`
	ContentDetails youtubeContentDetails `json:"contentDetails,omitzero"`
	Status         youtubeStatus         `json:"status,omitzero"`
}

func (p YouTubePlaylist) toModel() models.Playlist {
	visibility := models.Visibility(p.Status.PrivacyStatus)
	switch visibility {
	case models.Public, models.Private, models.Unlisted:
	default:
		visibility = ""
	}
	return models.Playlist{
		ID:          p.ID,
		Name:        p.Snippet.Title,
		Description: p.Snippet.Description,
		TrackCount:  p.ContentDetails.ItemCount,
		Visibility:  visibility,
	}
}

// YouTubePlaylistItem represents a video within a playlist.
type YouTubePlaylistItem struct {
	ID             string                `json:"id,omitempty"`
	Snippet        YouTubeSnippet        `json:"snippet"`
	ContentDetails youtubeContentDetails `json:"contentDetails,omitzero"`
}

func (i YouTubePlaylistItem) toModel() models.Track {
	videoID := i.ContentDetails.VideoID
	if videoID == "" {
		videoID = i.Snippet.ResourceID.VideoID
	}
	return models.Track{Title: i.Snippet.Title, Artist: i.Snippet.channel(), ExternalID: videoID}
}

// YouTubeSearchResult represents one search hit.
type YouTubeSearchResult struct {
	ID      youtubeResourceID `json:"id"`
	Snippet YouTubeSnippet    `json:"snippet"`
}

// YouTubeList is one page of a YouTube list response.
type YouTubeList[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

// YouTubeService implements [Gateway] for the YouTube Data API v3.
type YouTubeService struct {
	*client
}

// NewYouTubeService creates a new YouTube gateway with the given options.
func NewYouTubeService(opts Options) (*YouTubeService, error) {
	c, err := newClient(models.YouTube, opts)
	if err != nil {
		return nil, err
	}
	return &YouTubeService{client: c}, nil
}

// Profile returns the channel of the linked account.
func (y *YouTubeService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	query := url.Values{"part": {"snippet"}, "mine": {"true"}}

	var response YouTubeList[YouTubeChannel]
	if err := y.do(ctx, userID, http.MethodGet, "channels", query, nil, &response); err != nil {
		return nil, err
	}
	if len(response.Items) == 0 {
		return nil, fmt.Errorf("%w: youtube account has no channel", shared.ErrProviderRejected)
	}

	ch := response.Items[0]
	return &models.Profile{ID: ch.ID, DisplayName: ch.Snippet.Title}, nil
}

func (y *YouTubeService) Playlists(ctx context.Context, userID string) ([]models.Playlist, error) {
	var playlists []models.Playlist

	err := paginate(ctx, y.client, userID, "playlists", url.Values{
		"part":       {"snippet,contentDetails,status"},
		"mine":       {"true"},
		"maxResults": {strconv.Itoa(youtubePageLimit)},
	}, func(p YouTubePlaylist) {
		playlists = append(playlists, p.toModel())
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

func (y *YouTubeService) Playlist(ctx context.Context, userID, playlistID string) (*models.Playlist, error) {
	query := url.Values{"part": {"snippet,contentDetails,status"}, "id": {playlistID}}

	var response YouTubeList[YouTubePlaylist]
	if err := y.do(ctx, userID, http.MethodGet, "playlists", query, nil, &response); err != nil {
		return nil, err
	}
	if len(response.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	playlist := response.Items[0].toModel()
	return &playlist, nil
}

// PlaylistTracks follows nextPageToken until exhausted.
func (y *YouTubeService) PlaylistTracks(ctx context.Context, userID, playlistID string) ([]models.Track, error) {
	tracks := []models.Track{}

	err := paginate(ctx, y.client, userID, "playlistItems", url.Values{
		"part":       {"snippet,contentDetails"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(youtubePageLimit)},
	}, func(item YouTubePlaylistItem) {
		if item.Snippet.Title == "" {
			return
		}
		tracks = append(tracks, item.toModel())
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (y *YouTubeService) SearchTracks(ctx context.Context, userID, q string) ([]models.Track, error) {
	query := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"maxResults": {strconv.Itoa(youtubeSearchLimit)},
		"q":          {q},
	}

	var response YouTubeList[YouTubeSearchResult]
	if err := y.do(ctx, userID, http.MethodGet, "search", query, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, r := range response.Items {
		tracks = append(tracks, models.Track{Title: r.Snippet.Title, Artist: r.Snippet.channel(), ExternalID: r.ID.VideoID})
	}
	return tracks, nil
}

func (y *YouTubeService) CreatePlaylist(ctx context.Context, userID, name, description string, visibility models.Visibility) (string, error) {
	if visibility == "" {
		visibility = models.Private
	}

	body := YouTubePlaylist{
		Snippet: YouTubeSnippet{Title: name, Description: description},
		Status:  youtubeStatus{PrivacyStatus: string(visibility)},
	}
	query := url.Values{"part": {"snippet,status"}}

	var created YouTubePlaylist
	if err := y.do(ctx, userID, http.MethodPost, "playlists", query, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (y *YouTubeService) AddTrack(ctx context.Context, userID, playlistID, videoID string) error {
	body := YouTubePlaylistItem{
		Snippet: YouTubeSnippet{
			PlaylistID: playlistID,
			ResourceID: youtubeResourceID{Kind: "youtube#video", VideoID: videoID},
		},
	}
	query := url.Values{"part": {"snippet"}}

	return y.do(ctx, userID, http.MethodPost, "playlistItems", query, body, nil)
}

// RemoveTrack looks up the playlist items holding videoID and deletes each of them.
func (y *YouTubeService) RemoveTrack(ctx context.Context, userID, playlistID, videoID string) error {
	var itemIDs []string
	err := paginate(ctx, y.client, userID, "playlistItems", url.Values{
		"part":       {"id"},
		"playlistId": {playlistID},
		"videoId":    {videoID},
		"maxResults": {strconv.Itoa(youtubePageLimit)},
	}, func(item YouTubePlaylistItem) {
		if item.ID != "" {
			itemIDs = append(itemIDs, item.ID)
		}
	})
	if err != nil {
		if shared.StatusOf(err) == http.StatusNotFound {
			return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return err
	}
	if len(itemIDs) == 0 {
		return fmt.Errorf("%w: %s in %s", shared.ErrTrackNotFound, videoID, playlistID)
	}

	for _, id := range itemIDs {
		if err := y.do(ctx, userID, http.MethodDelete, "playlistItems", url.Values{"id": {id}}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// paginate walks a YouTube list endpoint, calling fn for every item.
func paginate[T any](ctx context.Context, c *client, userID, path string, query url.Values, fn func(T)) error {
	pageToken := ""
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page YouTubeList[T]
		if err := c.do(ctx, userID, http.MethodGet, path, q, nil, &page); err != nil {
			return err
		}

		for _, item := range page.Items {
			fn(item)
		}

		if page.NextPageToken == "" || len(page.Items) == 0 {
			return nil
		}
		pageToken = page.NextPageToken
	}
}
