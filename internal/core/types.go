// Package core holds the shared domain types and configuration for the
// track resolution service.
package core

// Platform identifies a supported streaming platform.
type Platform string

const (
	PlatformSpotify    Platform = "spotify"
	PlatformAppleMusic Platform = "applemusic"
	PlatformDeezer     Platform = "deezer"
	PlatformYouTube    Platform = "youtube"
	PlatformTidal      Platform = "tidal"
)

// Meta is the query-side description of one recording. It starts from
// whatever the caller gave us (a URL or free text) and is progressively
// enriched, most importantly with an authoritative ISRC.
type Meta struct {
	ISRC        string `json:"isrc,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	DurationMS  int    `json:"duration_ms,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	ArtworkURL  string `json:"artwork_url,omitempty"`

	// Source is the platform the metadata was extracted from, empty when it
	// came from free text or the recognition fallback.
	Source Platform `json:"source,omitempty"`
	// SourceURL is the canonical link on the source platform.
	SourceURL string `json:"source_url,omitempty"`
	// SourceID is the provider-native identifier on the source platform.
	SourceID string `json:"source_id,omitempty"`
}

// Usable reports whether the metadata carries enough identity to fan out.
func (m *Meta) Usable() bool {
	return m != nil && m.Title != "" && m.Artist != ""
}

// Hit is one platform's candidate link for the queried recording.
type Hit struct {
	Platform   Platform `json:"platform"`
	PlatformID string   `json:"platform_id"`
	URLWeb     string   `json:"url_web"`
	URLApp     string   `json:"url_app,omitempty"`
	Storefront string   `json:"storefront,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Resolution is the final output of one resolve call: the reconciled
// metadata plus at most one qualifying link per platform.
type Resolution struct {
	Core  Meta  `json:"core"`
	Links []Hit `json:"links"`
}
