package patterns

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		wantPlatform   Platform
		wantID         string
		wantStorefront string
		wantOK         bool
	}{
		{
			name:         "Spotify track URL",
			url:          "https://open.spotify.com/track/4cOdK2wGLETKBW3PvgPWqT",
			wantPlatform: Spotify,
			wantID:       "4cOdK2wGLETKBW3PvgPWqT",
			wantOK:       true,
		},
		{
			name:         "Spotify track URL with query params",
			url:          "https://open.spotify.com/track/4cOdK2wGLETKBW3PvgPWqT?si=abc123",
			wantPlatform: Spotify,
			wantID:       "4cOdK2wGLETKBW3PvgPWqT",
			wantOK:       true,
		},
		{
			name:         "Spotify intl track URL",
			url:          "https://open.spotify.com/intl-de/track/4cOdK2wGLETKBW3PvgPWqT",
			wantPlatform: Spotify,
			wantID:       "4cOdK2wGLETKBW3PvgPWqT",
			wantOK:       true,
		},
		{
			name:         "Spotify URI",
			url:          "spotify:track:4cOdK2wGLETKBW3PvgPWqT",
			wantPlatform: Spotify,
			wantID:       "4cOdK2wGLETKBW3PvgPWqT",
			wantOK:       true,
		},
		{
			name:   "Spotify playlist rejected",
			url:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			wantOK: false,
		},
		{
			name:   "Spotify artist rejected",
			url:    "https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF",
			wantOK: false,
		},
		{
			name:           "Apple Music album track",
			url:            "https://music.apple.com/us/album/bohemian-rhapsody/1440806041?i=1440806768",
			wantPlatform:   AppleMusic,
			wantID:         "1440806768",
			wantStorefront: "us",
			wantOK:         true,
		},
		{
			name:           "Apple Music song link",
			url:            "https://music.apple.com/de/song/bohemian-rhapsody/1440806768",
			wantPlatform:   AppleMusic,
			wantID:         "1440806768",
			wantStorefront: "de",
			wantOK:         true,
		},
		{
			name:   "Apple Music album without track selector rejected",
			url:    "https://music.apple.com/us/album/a-night-at-the-opera/1440806041",
			wantOK: false,
		},
		{
			name:         "Deezer track",
			url:          "https://www.deezer.com/track/3135556",
			wantPlatform: Deezer,
			wantID:       "3135556",
			wantOK:       true,
		},
		{
			name:         "Deezer localized track",
			url:          "https://www.deezer.com/en/track/3135556",
			wantPlatform: Deezer,
			wantID:       "3135556",
			wantOK:       true,
		},
		{
			name:   "Deezer album rejected",
			url:    "https://www.deezer.com/album/302127",
			wantOK: false,
		},
		{
			name:         "YouTube watch URL",
			url:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantPlatform: YouTube,
			wantID:       "dQw4w9WgXcQ",
			wantOK:       true,
		},
		{
			name:         "YouTube Music watch URL",
			url:          "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			wantPlatform: YouTube,
			wantID:       "dQw4w9WgXcQ",
			wantOK:       true,
		},
		{
			name:         "YouTube short URL",
			url:          "https://youtu.be/dQw4w9WgXcQ",
			wantPlatform: YouTube,
			wantID:       "dQw4w9WgXcQ",
			wantOK:       true,
		},
		{
			name:   "YouTube search rejected",
			url:    "https://www.youtube.com/results?search_query=bohemian+rhapsody",
			wantOK: false,
		},
		{
			name:         "Tidal browse track",
			url:          "https://tidal.com/browse/track/77646168",
			wantPlatform: Tidal,
			wantID:       "77646168",
			wantOK:       true,
		},
		{
			name:         "Tidal listen track",
			url:          "https://listen.tidal.com/track/77646168",
			wantPlatform: Tidal,
			wantID:       "77646168",
			wantOK:       true,
		},
		{
			name:         "Leading and trailing whitespace",
			url:          "  https://open.spotify.com/track/4cOdK2wGLETKBW3PvgPWqT  ",
			wantPlatform: Spotify,
			wantID:       "4cOdK2wGLETKBW3PvgPWqT",
			wantOK:       true,
		},
		{
			name:   "Unknown host rejected",
			url:    "https://example.com/track/123",
			wantOK: false,
		},
		{
			name:   "Empty input rejected",
			url:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Parse(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.Platform != tt.wantPlatform {
				t.Errorf("Parse(%q) platform = %q, want %q", tt.url, m.Platform, tt.wantPlatform)
			}
			if m.TrackID != tt.wantID {
				t.Errorf("Parse(%q) trackID = %q, want %q", tt.url, m.TrackID, tt.wantID)
			}
			if m.Storefront != tt.wantStorefront {
				t.Errorf("Parse(%q) storefront = %q, want %q", tt.url, m.Storefront, tt.wantStorefront)
			}
		})
	}
}

func TestIsCanonical(t *testing.T) {
	if !IsCanonical("https://open.spotify.com/track/4cOdK2wGLETKBW3PvgPWqT") {
		t.Error("IsCanonical() = false for a track-detail URL")
	}
	if IsCanonical("https://open.spotify.com/search/bohemian") {
		t.Error("IsCanonical() = true for a search URL")
	}
}
