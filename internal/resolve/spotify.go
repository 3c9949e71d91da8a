package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
)

// spotifySearcher is the slice of the metadata extractor client the
// adapter needs.
type spotifySearcher interface {
	SearchByISRC(ctx context.Context, isrc string) ([]core.Meta, error)
	SearchByText(ctx context.Context, query string) ([]core.Meta, error)
}

// SpotifyAdapter discovers Spotify links through the same authoritative
// client the extractor uses. The resolver skips it entirely when the
// canonical metadata already came from Spotify, synthesizing that hit
// directly instead.
type SpotifyAdapter struct {
	logger *zap.Logger
	client spotifySearcher
}

func NewSpotifyAdapter(client spotifySearcher, logger *zap.Logger) *SpotifyAdapter {
	return &SpotifyAdapter{logger: logger, client: client}
}

func (a *SpotifyAdapter) Platform() core.Platform {
	return core.PlatformSpotify
}

func (a *SpotifyAdapter) Search(ctx context.Context, query core.Meta) ([]core.Hit, error) {
	var (
		results []core.Meta
		err     error
	)
	if query.ISRC != "" {
		results, err = a.client.SearchByISRC(ctx, query.ISRC)
	} else {
		results, err = a.client.SearchByText(ctx, textQuery(query))
	}
	if err != nil {
		return nil, fmt.Errorf("spotify search failed: %w", err)
	}

	qc := queryCandidate(query)
	var hits []core.Hit
	for i := range results {
		result := &results[i]

		confidence := fuzzy.ScoreMatch(qc, fuzzy.Candidate{
			Title:      result.Title,
			Artist:     result.Artist,
			ISRC:       result.ISRC,
			DurationMS: result.DurationMS,
		})
		if confidence < fuzzy.AcceptThreshold {
			continue
		}

		hits = append(hits, core.Hit{
			Platform:   core.PlatformSpotify,
			PlatformID: result.SourceID,
			URLWeb:     result.SourceURL,
			URLApp:     "spotify:track:" + result.SourceID,
			Confidence: confidence,
		})
	}

	return hits, nil
}
