// Package patterns classifies streaming platform URLs against each
// platform's track-detail page shape. Search, playlist, album and artist
// pages deliberately do not match. Pure string work, no network calls.
package patterns

import (
	"regexp"
	"strings"
)

// Platform names a supported streaming platform. Values line up with the
// service-wide platform enum.
type Platform string

const (
	Spotify    Platform = "spotify"
	AppleMusic Platform = "applemusic"
	Deezer     Platform = "deezer"
	YouTube    Platform = "youtube"
	Tidal      Platform = "tidal"
)

// Match is the result of a successful track-URL classification.
type Match struct {
	Platform Platform
	// TrackID is the provider-native identifier segment of the URL.
	TrackID string
	// Storefront is the regional store code for storefront-scoped
	// platforms (Apple Music), empty elsewhere.
	Storefront string
}

type pattern struct {
	platform Platform
	re       *regexp.Regexp
	// idIndex and storefrontIndex are submatch indices; 0 means absent.
	idIndex         int
	storefrontIndex int
}

// Track-detail shapes only. Each regexp must capture the platform-native
// track identifier, otherwise the URL is not canonical.
var table = []pattern{
	{
		platform: Spotify,
		re:       regexp.MustCompile(`^(?:https?://)?open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-zA-Z]{2})?/)?track/([a-zA-Z0-9]{22})(?:[?#].*)?$`),
		idIndex:  1,
	},
	{
		platform: Spotify,
		re:       regexp.MustCompile(`^spotify:track:([a-zA-Z0-9]{22})$`),
		idIndex:  1,
	},
	{
		platform:        AppleMusic,
		re:              regexp.MustCompile(`^(?:https?://)?music\.apple\.com/([a-z]{2})/album/[^/]+/\d+\?(?:.*&)?i=(\d+)(?:&.*)?$`),
		idIndex:         2,
		storefrontIndex: 1,
	},
	{
		platform:        AppleMusic,
		re:              regexp.MustCompile(`^(?:https?://)?music\.apple\.com/([a-z]{2})/song/[^/]+/(\d+)(?:[?#].*)?$`),
		idIndex:         2,
		storefrontIndex: 1,
	},
	{
		platform: Deezer,
		re:       regexp.MustCompile(`^(?:https?://)?(?:www\.)?deezer\.com/(?:[a-z]{2}/)?track/(\d+)(?:[?#].*)?$`),
		idIndex:  1,
	},
	{
		platform: YouTube,
		re:       regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?youtube\.com/watch\?(?:.*&)?v=([a-zA-Z0-9_-]{11})(?:&.*)?$`),
		idIndex:  1,
	},
	{
		platform: YouTube,
		re:       regexp.MustCompile(`^(?:https?://)?youtu\.be/([a-zA-Z0-9_-]{11})(?:[?#].*)?$`),
		idIndex:  1,
	},
	{
		platform: Tidal,
		re:       regexp.MustCompile(`^(?:https?://)?(?:www\.|listen\.)?tidal\.com/(?:browse/)?track/(\d+)(?:[?#].*)?$`),
		idIndex:  1,
	},
}

// Detect returns the platform whose track-detail shape the URL matches.
func Detect(rawURL string) (Platform, bool) {
	m, ok := Parse(rawURL)
	if !ok {
		return "", false
	}
	return m.Platform, true
}

// Parse classifies the URL and extracts the track identifier segment.
func Parse(rawURL string) (Match, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Match{}, false
	}

	for _, p := range table {
		groups := p.re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}

		m := Match{Platform: p.platform, TrackID: groups[p.idIndex]}
		if p.storefrontIndex > 0 {
			m.Storefront = groups[p.storefrontIndex]
		}
		return m, true
	}

	return Match{}, false
}

// IsCanonical reports whether the URL is a track-detail page for a known
// platform, i.e. the trimmed URL re-validates against the same pattern
// that detected it.
func IsCanonical(rawURL string) bool {
	_, ok := Parse(rawURL)
	return ok
}
