package tasks

import (
	"fmt"

	"github.com/desertthunder/musiclink/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or HTTP layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	CreatePlaylist
	MatchTracks
	AddTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case CreatePlaylist:
		return "create_playlist"
	case MatchTracks:
		return "match_tracks"
	case AddTracks:
		return "add_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchingSourceUpdate(provider models.Provider, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching source playlist %s from %s...", playlistID, provider.DisplayName()),
	}
}

func foundPlaylistUpdate(pl *models.Playlist, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", pl.Name, total),
		Data:    pl,
	}
}

func createPlaylistUpdate(provider models.Provider, name, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created on %s: %s (ID: %s)", provider.DisplayName(), name, id),
	}
}

func matchTrackUpdate(step, total int, result models.MatchResult) ProgressUpdate {
	mark := "✗"
	if result.Matched != nil {
		mark = "✓"
	}
	return ProgressUpdate{
		Phase:   MatchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s - %s (%.1f)", step, total, mark, result.Source.Artist, result.Source.Title, result.Score),
		Data:    result,
	}
}

func addTrackUpdate(step, total int, track models.Track, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   AddTracks,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, track.Title, err),
		}
	}
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, track.Title),
	}
}

func completeUpdate(report *models.MigrationReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Migration finished: %d/%d tracks added", report.Added, report.Total),
		Data:    report,
	}
}
