package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

// SearchResult is one provider's answer to a unified search.
//
// Err is set when that provider failed, including when the user has not linked it.
type SearchResult struct {
	Provider models.Provider `json:"provider"`
	Tracks   []models.Track  `json:"tracks"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
}

// Search runs query against every requested provider concurrently. Results follow the order of providers, or the
// order of [models.Providers] when none are given, skipping providers without a gateway.
//
// A failing provider never fails the call; its error is carried in its [SearchResult].
func (e *PlaylistEngine) Search(ctx context.Context, userID, query string, providers ...models.Provider) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", shared.ErrMissingArgument)
	}

	if len(providers) == 0 {
		for _, p := range models.Providers() {
			if _, ok := e.gateways[p]; ok {
				providers = append(providers, p)
			}
		}
	}
	for _, p := range providers {
		if _, err := e.gateway(p); err != nil {
			return nil, err
		}
	}

	results := make([]SearchResult, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res := SearchResult{Provider: p, Tracks: []models.Track{}}
			tracks, err := e.gateways[p].SearchTracks(ctx, userID, query)
			if err != nil {
				res.Err, res.Error = err, err.Error()
				e.logger.Warn("search failed", "provider", p, "query", query, "error", err)
			} else {
				res.Tracks = tracks
			}
			results[i] = res
		}()
	}
	wg.Wait()

	return results, nil
}
