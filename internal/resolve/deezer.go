package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
)

const deezerAPIURL = "https://api.deezer.com"

// deezerTrack is a track object as returned by the Deezer API. Search
// results omit the ISRC; the direct ISRC lookup echoes it.
type deezerTrack struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Duration int    `json:"duration"` // seconds
	ISRC     string `json:"isrc"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
	Error *struct {
		Code int `json:"code"`
	} `json:"error"`
}

type deezerSearchResponse struct {
	Data []deezerTrack `json:"data"`
}

// DeezerAdapter discovers Deezer links via the public track API.
type DeezerAdapter struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

func NewDeezerAdapter(logger *zap.Logger) *DeezerAdapter {
	return &DeezerAdapter{
		logger:  logger,
		client:  newHTTPClient(),
		baseURL: deezerAPIURL,
	}
}

func (a *DeezerAdapter) Platform() core.Platform {
	return core.PlatformDeezer
}

// Search looks the track up by ISRC when available, else by text, scores
// each candidate and keeps those at or above the acceptance threshold.
func (a *DeezerAdapter) Search(ctx context.Context, query core.Meta) ([]core.Hit, error) {
	var candidates []deezerTrack

	if query.ISRC != "" {
		var track deezerTrack
		reqURL := fmt.Sprintf("%s/2.0/track/isrc:%s", a.baseURL, url.PathEscape(query.ISRC))
		if err := fetchJSON(ctx, a.client, reqURL, &track); err != nil {
			return nil, fmt.Errorf("deezer isrc lookup failed: %w", err)
		}
		// The API answers 200 with an error object when the code is
		// unknown; that is a no-result, not a fault.
		if track.Error == nil && track.ID != 0 {
			candidates = append(candidates, track)
		} else {
			a.logger.Debug("Deezer has no track for ISRC", zap.String("isrc", query.ISRC))
		}
	} else {
		var searchResp deezerSearchResponse
		reqURL := fmt.Sprintf("%s/search?q=%s", a.baseURL, url.QueryEscape(textQuery(query)))
		if err := fetchJSON(ctx, a.client, reqURL, &searchResp); err != nil {
			return nil, fmt.Errorf("deezer search failed: %w", err)
		}
		candidates = searchResp.Data
	}

	qc := queryCandidate(query)
	var hits []core.Hit
	for _, track := range candidates {
		confidence := fuzzy.ScoreMatch(qc, fuzzy.Candidate{
			Title:      track.Title,
			Artist:     track.Artist.Name,
			ISRC:       track.ISRC,
			DurationMS: track.Duration * 1000,
		})
		if confidence < fuzzy.AcceptThreshold {
			continue
		}

		id := strconv.FormatInt(track.ID, 10)
		webURL := track.Link
		if webURL == "" {
			webURL = "https://www.deezer.com/track/" + id
		}

		hits = append(hits, core.Hit{
			Platform:   core.PlatformDeezer,
			PlatformID: id,
			URLWeb:     webURL,
			URLApp:     "deezer://www.deezer.com/track/" + id,
			Confidence: confidence,
		})
	}

	return hits, nil
}
