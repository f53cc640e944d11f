// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
)

// CreatedPlaylist records a [FakeGateway.CreatePlaylist] call.
type CreatedPlaylist struct {
	ID          string
	Name        string
	Description string
	Visibility  models.Visibility
}

// AddedTrack records a [FakeGateway.AddTrack] or [FakeGateway.RemoveTrack] call.
type AddedTrack struct {
	PlaylistID string
	TrackID    string
}

// FakeGateway is an in-memory [services.Gateway] with canned responses. Calls are recorded for assertions.
//
// UserErr, when set, is returned by every user-scoped call (use it for [shared.ErrNotAuthenticated] and friends).
type FakeGateway struct {
	Name models.Provider

	Grant       *services.Grant
	ExchangeErr error
	UserErr     error

	ProfileResult   models.Profile
	PlaylistsResult []models.Playlist
	PlaylistMeta    map[string]models.Playlist
	Tracks          map[string][]models.Track
	TracksErr       error

	// SearchResults is keyed by the exact query string; unknown queries return no results.
	SearchResults map[string][]models.Track
	SearchErrs    map[string]error

	CreateErr  error
	AddErrs    map[string]error
	RemoveErrs map[string]error

	// Saved backs SavedTracks; a nil Saved makes SavedTracks fail with [shared.ErrNotImplemented].
	Saved []models.Track

	mu        sync.Mutex
	codes     []string
	searches  []string
	created   []CreatedPlaylist
	added     []AddedTrack
	removed   []AddedTrack
	tokenHits int
}

// NewFakeGateway creates an empty [FakeGateway] for provider.
func NewFakeGateway(provider models.Provider) *FakeGateway {
	return &FakeGateway{
		Name:          provider,
		PlaylistMeta:  map[string]models.Playlist{},
		Tracks:        map[string][]models.Track{},
		SearchResults: map[string][]models.Track{},
		SearchErrs:    map[string]error{},
		AddErrs:       map[string]error{},
		RemoveErrs:    map[string]error{},
	}
}

func (f *FakeGateway) Provider() models.Provider { return f.Name }

func (f *FakeGateway) AuthCodeURL(state string) string {
	return fmt.Sprintf("https://%s.example.com/authorize?state=%s", f.Name, state)
}

func (f *FakeGateway) Exchange(ctx context.Context, code string) (*services.Grant, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()

	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	if f.Grant != nil {
		g := *f.Grant
		return &g, nil
	}
	return &services.Grant{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresIn: time.Hour}, nil
}

func (f *FakeGateway) EnsureAccessToken(ctx context.Context, userID string) (models.AccessToken, error) {
	f.mu.Lock()
	f.tokenHits++
	f.mu.Unlock()

	if f.UserErr != nil {
		return models.AccessToken{}, f.UserErr
	}
	return models.AccessToken{Value: "fake-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *FakeGateway) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	p := f.ProfileResult
	return &p, nil
}

func (f *FakeGateway) Playlists(ctx context.Context, userID string) ([]models.Playlist, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	return append([]models.Playlist(nil), f.PlaylistsResult...), nil
}

func (f *FakeGateway) Playlist(ctx context.Context, userID, playlistID string) (*models.Playlist, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	p, ok := f.PlaylistMeta[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return &p, nil
}

func (f *FakeGateway) PlaylistTracks(ctx context.Context, userID, playlistID string) ([]models.Track, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	if f.TracksErr != nil {
		return nil, f.TracksErr
	}
	return append([]models.Track{}, f.Tracks[playlistID]...), nil
}

func (f *FakeGateway) SearchTracks(ctx context.Context, userID, query string) ([]models.Track, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	if f.UserErr != nil {
		return nil, f.UserErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.SearchErrs[query]; ok {
		return nil, err
	}
	return append([]models.Track{}, f.SearchResults[query]...), nil
}

func (f *FakeGateway) CreatePlaylist(ctx context.Context, userID, name, description string, visibility models.Visibility) (string, error) {
	if f.UserErr != nil {
		return "", f.UserErr
	}
	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("created-%d", len(f.created)+1)
	f.created = append(f.created, CreatedPlaylist{ID: id, Name: name, Description: description, Visibility: visibility})
	return id, nil
}

func (f *FakeGateway) AddTrack(ctx context.Context, userID, playlistID, trackID string) error {
	if f.UserErr != nil {
		return f.UserErr
	}
	if err, ok := f.AddErrs[trackID]; ok {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, AddedTrack{PlaylistID: playlistID, TrackID: trackID})
	return nil
}

func (f *FakeGateway) RemoveTrack(ctx context.Context, userID, playlistID, trackID string) error {
	if f.UserErr != nil {
		return f.UserErr
	}
	if err, ok := f.RemoveErrs[trackID]; ok {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, AddedTrack{PlaylistID: playlistID, TrackID: trackID})
	return nil
}

func (f *FakeGateway) SavedTracks(ctx context.Context, userID string) ([]models.Track, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	if f.Saved == nil {
		return nil, fmt.Errorf("%w: %s saved tracks", shared.ErrNotImplemented, f.Name)
	}
	return append([]models.Track{}, f.Saved...), nil
}

// Removed returns every track removed so far, in call order.
func (f *FakeGateway) Removed() []AddedTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AddedTrack(nil), f.removed...)
}

// Codes returns the authorization codes passed to Exchange.
func (f *FakeGateway) Codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

// Searches returns every query passed to SearchTracks, in call order.
func (f *FakeGateway) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

// Created returns every playlist created so far.
func (f *FakeGateway) Created() []CreatedPlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreatedPlaylist(nil), f.created...)
}

// Added returns every track added so far, in call order.
func (f *FakeGateway) Added() []AddedTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AddedTrack(nil), f.added...)
}

// Clock is a settable time source for code that takes a now func.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a [Clock] stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
