// Package tasks moves playlists between providers with real-time progress reporting.
//
// # Migration
//
// [PlaylistEngine.Migrate] copies one playlist by search-and-match:
//
//  1. Reads the source playlist's metadata and full track list. An empty playlist ends the run with a
//     [models.StatusNoTracks] report and no target-side effects.
//  2. Creates the target playlist when no target id is supplied.
//  3. Searches the target provider for every source track and scores each candidate with [matcher.Score]. The
//     best candidate wins, ties going to the first one returned. Searches run on a bounded worker pool; a failed
//     search only zeroes that track's result.
//  4. Adds every candidate scoring at least the minimum score, one at a time and in source order. A failed add
//     leaves the track matched but not added.
//
// Per-track failures are recorded in the [models.MigrationReport] and never fail the run. Only failing to read the
// source or to create the target playlist does. Cancelling the context stops the run and returns the partial
// report together with the context error.
//
// # Search
//
// [PlaylistEngine.Search] queries several providers concurrently and reports each provider's outcome separately.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Sends use select with default, so a slow reader drops
// updates instead of stalling the run.
package tasks
