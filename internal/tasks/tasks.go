package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/matcher"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
)

const (
	DefaultMinScore    = 70.0
	defaultConcurrency = 4
	defaultPlaylist    = "Migrated Playlist"
)

// MigrateRequest describes one migration run.
type MigrateRequest struct {
	UserID           string          `json:"user_id"`
	Source           models.Provider `json:"source"`
	Target           models.Provider `json:"target"`
	SourcePlaylistID string          `json:"source_playlist_id"`
	TargetPlaylistID string          `json:"target_playlist_id,omitempty"`

	// MinScore overrides the engine default when set.
	MinScore *float64 `json:"min_score,omitempty"`

	// DryRun searches and scores without creating a playlist or adding tracks.
	DryRun bool `json:"dry_run,omitempty"`

	// Name and Visibility apply to a newly created target playlist. Name defaults to the source playlist's name.
	Name       string            `json:"name,omitempty"`
	Visibility models.Visibility `json:"visibility,omitempty"`
}

// Migrator defines the operations the CLI and HTTP layers drive.
type Migrator interface {
	// Migrate copies a playlist from one provider to another by search-and-match.
	Migrate(ctx context.Context, req MigrateRequest, progress chan<- ProgressUpdate) (*models.MigrationReport, error)

	// Search queries the given providers (every configured one when empty) concurrently.
	Search(ctx context.Context, userID, query string, providers ...models.Provider) ([]SearchResult, error)
}

// Options configures a [PlaylistEngine].
type Options struct {
	Gateways    map[models.Provider]services.Gateway
	MinScore    float64
	Concurrency int
	Logger      *log.Logger
	Metrics     metrics.Recorder
}

// PlaylistEngine implements [Migrator] over a set of provider gateways.
type PlaylistEngine struct {
	gateways    map[models.Provider]services.Gateway
	minScore    float64
	concurrency int
	logger      *log.Logger
	metrics     metrics.Recorder
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided gateways.
//
// A zero MinScore means [DefaultMinScore]; pass a per-request MinScore to accept everything.
func NewPlaylistEngine(opts Options) *PlaylistEngine {
	e := &PlaylistEngine{
		gateways:    opts.Gateways,
		minScore:    opts.MinScore,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}

	if e.minScore <= 0 {
		e.minScore = DefaultMinScore
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	e.logger = shared.WithLogger(e.logger, "component", "migration")
	if e.metrics == nil {
		e.metrics = metrics.Noop{}
	}
	return e
}

func (e *PlaylistEngine) gateway(p models.Provider) (services.Gateway, error) {
	gw, ok := e.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownProvider, p)
	}
	return gw, nil
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *PlaylistEngine) validate(req MigrateRequest) (float64, error) {
	switch {
	case req.UserID == "":
		return 0, fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	case req.SourcePlaylistID == "":
		return 0, fmt.Errorf("%w: source playlist id is required", shared.ErrMissingArgument)
	case req.Source == "" || req.Target == "":
		return 0, fmt.Errorf("%w: source and target providers are required", shared.ErrMissingArgument)
	}

	minScore := e.minScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if minScore < 0 || minScore > 100 {
		return 0, fmt.Errorf("%w: min score must be within [0, 100], got %v", shared.ErrInvalidArgument, minScore)
	}

	switch req.Visibility {
	case "", models.Private, models.Public, models.Unlisted:
	default:
		return 0, fmt.Errorf("%w: unknown visibility %q", shared.ErrInvalidArgument, req.Visibility)
	}
	return minScore, nil
}

// Migrate copies a playlist from req.Source to req.Target.
//
// Only failing to read the source playlist, to authorize with the target or to create the target playlist fails the
// call. When ctx ends mid-run the
// partial report is returned along with the context error.
func (e *PlaylistEngine) Migrate(ctx context.Context, req MigrateRequest, progress chan<- ProgressUpdate) (*models.MigrationReport, error) {
	minScore, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	src, err := e.gateway(req.Source)
	if err != nil {
		return nil, err
	}
	dst, err := e.gateway(req.Target)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("user", req.UserID, "source", req.Source, "target", req.Target)

	e.sendProgress(progress, fetchingSourceUpdate(req.Source, req.SourcePlaylistID))

	meta, err := src.Playlist(ctx, req.UserID, req.SourcePlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to read source playlist: %w", err)
	}
	tracks, err := src.PlaylistTracks(ctx, req.UserID, req.SourcePlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to read source tracks: %w", err)
	}

	e.sendProgress(progress, foundPlaylistUpdate(meta, len(tracks)))

	report := &models.MigrationReport{
		ID:                 shared.GenerateID(),
		Status:             models.StatusOK,
		SourceProvider:     req.Source,
		TargetProvider:     req.Target,
		SourcePlaylistID:   req.SourcePlaylistID,
		SourcePlaylistName: meta.Name,
		TargetPlaylistID:   req.TargetPlaylistID,
		DryRun:             req.DryRun,
		MinScore:           minScore,
		Matches:            []models.MatchResult{},
	}

	if len(tracks) == 0 {
		report.Status = models.StatusNoTracks
		logger.Info("source playlist has no tracks", "playlist", req.SourcePlaylistID)
		e.sendProgress(progress, completeUpdate(report))
		return report, nil
	}

	if _, err := dst.EnsureAccessToken(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to authorize with %s: %w", req.Target.DisplayName(), err)
	}

	if report.TargetPlaylistID == "" && !req.DryRun {
		id, name, err := e.createTarget(ctx, dst, req, meta)
		if err != nil {
			return nil, err
		}
		report.TargetPlaylistID = id
		report.CreatedNewPlaylist = true
		e.sendProgress(progress, createPlaylistUpdate(req.Target, name, id))
	}

	results, matched := e.matchAll(ctx, dst, req.UserID, tracks, minScore, progress)
	report.Matches = results
	if err := ctx.Err(); err != nil {
		report.Matches = partial(results, matched)
		report.Tally()
		logger.Warn("migration interrupted", "error", err, "processed", len(report.Matches), "total", len(tracks))
		return report, fmt.Errorf("migration interrupted: %w", err)
	}

	if req.DryRun {
		for range report.Matches {
			e.metrics.IncMigrationTrack(metrics.TrackDryRun)
		}
	} else if err := e.addAll(ctx, dst, req.UserID, report, progress, logger); err != nil {
		report.Tally()
		return report, err
	}

	report.Tally()
	logger.Info("migration finished",
		"report", report.ID, "target_playlist", report.TargetPlaylistID, "total", report.Total, "added", report.Added, "failed", report.Failed)
	e.sendProgress(progress, completeUpdate(report))
	return report, nil
}

func (e *PlaylistEngine) createTarget(ctx context.Context, dst services.Gateway, req MigrateRequest, meta *models.Playlist) (string, string, error) {
	name := req.Name
	if name == "" {
		name = meta.Name
	}
	if strings.TrimSpace(name) == "" {
		name = defaultPlaylist
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.Private
	}

	description := fmt.Sprintf("Migrated from %s playlist: %s", req.Source.DisplayName(), meta.Name)
	id, err := dst.CreatePlaylist(ctx, req.UserID, name, description, visibility)
	if err != nil {
		return "", "", fmt.Errorf("failed to create target playlist: %w", err)
	}
	return id, name, nil
}

// matchAll scores every track on a bounded worker pool. Results keep source order; matched[i] reports whether
// track i finished before ctx ended.
func (e *PlaylistEngine) matchAll(ctx context.Context, dst services.Gateway, userID string, tracks []models.Track, minScore float64, progress chan<- ProgressUpdate) ([]models.MatchResult, []bool) {
	results := make([]models.MatchResult, len(tracks))
	matched := make([]bool, len(tracks))

	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for range min(e.concurrency, len(tracks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := e.matchTrack(ctx, dst, userID, tracks[i], minScore)
				if ctx.Err() != nil {
					continue
				}
				results[i] = res

				mu.Lock()
				matched[i] = true
				done++
				step := done
				mu.Unlock()

				e.sendProgress(progress, matchTrackUpdate(step, len(tracks), res))
			}
		}()
	}

feed:
	for i := range tracks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return results, matched
}

// matchTrack searches the target for one source track and keeps the best candidate at or above minScore.
func (e *PlaylistEngine) matchTrack(ctx context.Context, dst services.Gateway, userID string, track models.Track, minScore float64) models.MatchResult {
	result := models.MatchResult{Source: track}

	if strings.TrimSpace(track.Title) == "" {
		e.metrics.IncMigrationTrack(metrics.TrackUnmatched)
		return result
	}

	query := strings.TrimSpace(track.Title + " " + track.Artist)
	candidates, err := dst.SearchTracks(ctx, userID, query)
	if err != nil {
		if ctx.Err() == nil {
			e.metrics.IncMigrationTrack(metrics.TrackSearchFailed)
			e.logger.Warn("search failed", "provider", dst.Provider(), "query", query, "error", err)
		}
		return result
	}

	best, score := Best(track, candidates)
	result.Score = score
	if best == nil || score < minScore {
		e.metrics.IncMigrationTrack(metrics.TrackUnmatched)
		return result
	}

	result.Matched = best
	return result
}

// Best returns the highest scoring candidate for source and its score. Ties keep the earliest candidate.
func Best(source models.Track, candidates []models.Track) (*models.Track, float64) {
	var (
		best  *models.Track
		score float64
	)
	for i := range candidates {
		s := matcher.Score(source.Title, source.Artist, candidates[i].Title, candidates[i].Artist)
		if best == nil || s > score {
			c := candidates[i]
			best, score = &c, s
		}
	}
	return best, score
}

// addAll appends matched tracks to the target playlist one at a time so the target keeps source order.
func (e *PlaylistEngine) addAll(ctx context.Context, dst services.Gateway, userID string, report *models.MigrationReport, progress chan<- ProgressUpdate, logger *log.Logger) error {
	total := 0
	for _, m := range report.Matches {
		if m.Matched != nil {
			total++
		}
	}

	step := 0
	for i := range report.Matches {
		m := &report.Matches[i]
		if m.Matched == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("migration interrupted", "error", err, "added", step, "to_add", total)
			return fmt.Errorf("migration interrupted: %w", err)
		}
		step++

		if m.Matched.ExternalID == "" {
			err := fmt.Errorf("%w: matched track has no id", shared.ErrInvalidInput)
			e.metrics.IncMigrationTrack(metrics.TrackAddFailed)
			e.sendProgress(progress, addTrackUpdate(step, total, *m.Matched, err))
			continue
		}

		if err := dst.AddTrack(ctx, userID, report.TargetPlaylistID, m.Matched.ExternalID); err != nil {
			e.metrics.IncMigrationTrack(metrics.TrackAddFailed)
			logger.Warn("add failed", "track", m.Matched.ExternalID, "playlist", report.TargetPlaylistID, "error", err)
			e.sendProgress(progress, addTrackUpdate(step, total, *m.Matched, err))
			continue
		}

		m.Added = true
		e.metrics.IncMigrationTrack(metrics.TrackAdded)
		e.sendProgress(progress, addTrackUpdate(step, total, *m.Matched, nil))
	}
	return nil
}

func partial(results []models.MatchResult, matched []bool) []models.MatchResult {
	out := make([]models.MatchResult, 0, len(results))
	for i, ok := range matched {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}
