// Package spotify provides the authoritative-source metadata extractor
// backed by the Spotify Web API with client-credentials auth.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
)

const (
	// tokenExpiryMargin is subtracted from the token lifetime so we never
	// send a request with a token that expires mid-flight.
	tokenExpiryMargin = 5 * time.Minute

	// maxSearchResults bounds how many candidates a search considers.
	maxSearchResults = 10
)

// tokenCache is a single-slot cache for the client-credentials bearer
// token. One cache per process; multi-worker deployments get one each.
// The now func is injectable for tests.
type tokenCache struct {
	mu        sync.Mutex
	token     *oauth2.Token
	expiresAt time.Time
	now       func() time.Time
}

// get returns the cached token, or invokes exchange for a fresh one when
// the slot is empty or past the adjusted expiry.
func (tc *tokenCache) get(ctx context.Context, exchange func(context.Context) (*oauth2.Token, error)) (*oauth2.Token, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != nil && tc.now().Before(tc.expiresAt) {
		return tc.token, nil
	}

	token, err := exchange(ctx)
	if err != nil {
		return nil, err
	}

	tc.token = token
	tc.expiresAt = token.Expiry.Add(-tokenExpiryMargin)
	return token, nil
}

// Client resolves Spotify track IDs and search queries to track metadata.
type Client struct {
	logger *zap.Logger
	creds  *clientcredentials.Config
	cache  *tokenCache
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	return &Client{
		logger: logger,
		creds: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     tokenURL,
		},
		cache: &tokenCache{now: time.Now},
	}
}

// api builds an API client around the cached bearer token.
func (c *Client) api(ctx context.Context) (*spotify.Client, error) {
	token, err := c.cache.get(ctx, c.creds.Token)
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange failed: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return spotify.New(httpClient), nil
}

// FromTrackID fetches authoritative metadata for a Spotify track ID.
func (c *Client) FromTrackID(ctx context.Context, trackID string) (*core.Meta, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	track, err := api.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", trackID, err)
	}

	return c.convertTrack(track), nil
}

// FromQuery searches Spotify for a free-text query and returns the best
// matching track's metadata, or core.ErrNoMatch.
func (c *Client) FromQuery(ctx context.Context, query string) (*core.Meta, error) {
	tracks, err := c.searchTracks(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, core.ErrNoMatch
	}

	best := c.pickBest(tracks, fuzzy.Candidate{Title: query})
	return c.convertTrack(best), nil
}

// EnrichISRC attempts one opportunistic search to attach an authoritative
// ISRC to metadata that lacks one. The input is returned unchanged when no
// sufficiently similar track is found; this path never fails the caller.
func (c *Client) EnrichISRC(ctx context.Context, meta *core.Meta) *core.Meta {
	if meta.ISRC != "" || !meta.Usable() {
		return meta
	}

	tracks, err := c.searchTracks(ctx, fmt.Sprintf("track:%s artist:%s", meta.Title, meta.Artist))
	if err != nil || len(tracks) == 0 {
		c.logger.Debug("ISRC enrichment search yielded nothing",
			zap.String("title", meta.Title),
			zap.String("artist", meta.Artist),
			zap.Error(err))
		return meta
	}

	for i := range tracks {
		candidate := c.convertTrack(&tracks[i])
		if candidate.ISRC == "" {
			continue
		}

		// Text-only agreement; the ISRC weight does not apply to the
		// enrichment decision itself.
		titleSim := fuzzy.Similarity(meta.Title, candidate.Title)
		artistSim := fuzzy.Similarity(meta.Artist, candidate.Artist)
		if titleSim >= 0.5 && artistSim >= 0.5 {
			enriched := *meta
			enriched.ISRC = candidate.ISRC
			if enriched.DurationMS == 0 {
				enriched.DurationMS = candidate.DurationMS
			}
			if enriched.Album == "" {
				enriched.Album = candidate.Album
			}
			c.logger.Debug("Enriched metadata with authoritative ISRC",
				zap.String("isrc", candidate.ISRC),
				zap.String("title", meta.Title))
			return &enriched
		}
	}

	return meta
}

// SearchByISRC returns tracks whose recording code matches exactly.
func (c *Client) SearchByISRC(ctx context.Context, isrc string) ([]core.Meta, error) {
	tracks, err := c.searchTracks(ctx, "isrc:"+isrc)
	if err != nil {
		return nil, err
	}

	metas := make([]core.Meta, 0, len(tracks))
	for i := range tracks {
		metas = append(metas, *c.convertTrack(&tracks[i]))
	}
	return metas, nil
}

// SearchByText returns tracks matching a "{title} {artist}" text query.
func (c *Client) SearchByText(ctx context.Context, query string) ([]core.Meta, error) {
	tracks, err := c.searchTracks(ctx, query)
	if err != nil {
		return nil, err
	}

	metas := make([]core.Meta, 0, len(tracks))
	for i := range tracks {
		metas = append(metas, *c.convertTrack(&tracks[i]))
	}
	return metas, nil
}

func (c *Client) searchTracks(ctx context.Context, query string) ([]spotify.FullTrack, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	results, err := api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(maxSearchResults))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if results.Tracks == nil {
		return nil, nil
	}
	return results.Tracks.Tracks, nil
}

// pickBest ranks search results against the query text by combined
// title/artist similarity.
func (c *Client) pickBest(tracks []spotify.FullTrack, query fuzzy.Candidate) *spotify.FullTrack {
	best := &tracks[0]
	bestScore := -1.0

	for i := range tracks {
		combined := tracks[i].Name + " " + joinArtists(tracks[i].Artists)
		score := fuzzy.Similarity(query.Title, combined)
		if score > bestScore {
			bestScore = score
			best = &tracks[i]
		}
	}

	return best
}

func (c *Client) convertTrack(track *spotify.FullTrack) *core.Meta {
	meta := &core.Meta{
		Title:       track.Name,
		Artist:      joinArtists(track.Artists),
		Album:       track.Album.Name,
		DurationMS:  int(track.Duration),
		ReleaseDate: track.Album.ReleaseDate,
		Source:      core.PlatformSpotify,
		SourceID:    string(track.ID),
		SourceURL:   track.ExternalURLs["spotify"],
	}

	if isrc, ok := track.ExternalIDs["isrc"]; ok {
		meta.ISRC = strings.ToUpper(strings.TrimSpace(isrc))
	}
	if len(track.Album.Images) > 0 {
		meta.ArtworkURL = track.Album.Images[0].URL
	}

	return meta
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, artist := range artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}
