package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
)

const (
	itunesAPIURL = "https://itunes.apple.com"

	// The iTunes lookup API tolerates roughly 20 requests per minute per
	// address; stay under that.
	itunesRequestInterval = 3 // seconds
	itunesBurst           = 2
)

// itunesResponse is the lookup/search response shape.
type itunesResponse struct {
	ResultCount int                 `json:"resultCount"`
	Results     []itunesTrackResult `json:"results"`
}

type itunesTrackResult struct {
	TrackID        int64  `json:"trackId"`
	TrackName      string `json:"trackName"`
	ArtistName     string `json:"artistName"`
	CollectionName string `json:"collectionName"`
	TrackTimeMS    int    `json:"trackTimeMillis"`
	TrackViewURL   string `json:"trackViewUrl"`
	Country        string `json:"country"`
}

// ITunesAdapter discovers Apple Music links via the iTunes lookup/search
// API. Apple Music is storefront-scoped: every hit carries the regional
// store code the lookup ran against.
type ITunesAdapter struct {
	logger     *zap.Logger
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	storefront string
}

func NewITunesAdapter(storefront string, logger *zap.Logger) *ITunesAdapter {
	if storefront == "" {
		storefront = "us"
	}

	return &ITunesAdapter{
		logger:     logger,
		client:     newHTTPClient(),
		limiter:    rate.NewLimiter(rate.Limit(1.0/itunesRequestInterval), itunesBurst),
		baseURL:    itunesAPIURL,
		storefront: storefront,
	}
}

func (a *ITunesAdapter) Platform() core.Platform {
	return core.PlatformAppleMusic
}

// WithStorefront returns a copy of the adapter scoped to another regional
// store, sharing the underlying client and limiter.
func (a *ITunesAdapter) WithStorefront(storefront string) Adapter {
	if storefront == "" || strings.EqualFold(storefront, a.storefront) {
		return a
	}
	clone := *a
	clone.storefront = strings.ToLower(storefront)
	return &clone
}

func (a *ITunesAdapter) Search(ctx context.Context, query core.Meta) ([]core.Hit, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqURL string
	byISRC := query.ISRC != ""
	if byISRC {
		reqURL = fmt.Sprintf("%s/lookup?isrc=%s&entity=song&country=%s",
			a.baseURL, url.QueryEscape(query.ISRC), a.storefront)
	} else {
		reqURL = fmt.Sprintf("%s/search?term=%s&entity=song&limit=5&country=%s",
			a.baseURL, url.QueryEscape(textQuery(query)), a.storefront)
	}

	var resp itunesResponse
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("itunes lookup failed: %w", err)
	}

	qc := queryCandidate(query)
	var hits []core.Hit
	for i := range resp.Results {
		result := &resp.Results[i]

		candidate := fuzzy.Candidate{
			Title:      result.TrackName,
			Artist:     result.ArtistName,
			DurationMS: result.TrackTimeMS,
		}
		// The lookup endpoint matches on the recording code itself, so a
		// returned row carries the queried ISRC even though the response
		// body does not echo it.
		if byISRC {
			candidate.ISRC = query.ISRC
		}

		confidence := fuzzy.ScoreMatch(qc, candidate)
		if confidence < fuzzy.AcceptThreshold {
			continue
		}

		id := strconv.FormatInt(result.TrackID, 10)
		hits = append(hits, core.Hit{
			Platform:   core.PlatformAppleMusic,
			PlatformID: id,
			URLWeb:     result.TrackViewURL,
			URLApp:     deepLink(result.TrackViewURL),
			Storefront: a.storefront,
			Confidence: confidence,
		})
	}

	if len(hits) == 0 {
		a.logger.Debug("iTunes produced no qualifying hits",
			zap.Bool("by_isrc", byISRC),
			zap.Int("raw_results", resp.ResultCount))
	}

	return hits, nil
}

// deepLink rewrites a web store URL into the app-scheme form.
func deepLink(webURL string) string {
	if strings.HasPrefix(webURL, "https://") {
		return "music://" + strings.TrimPrefix(webURL, "https://")
	}
	return ""
}
