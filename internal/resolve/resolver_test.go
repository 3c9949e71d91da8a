package resolve

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"tracklink/internal/core"
)

type fakeExtractor struct {
	byID    map[string]*core.Meta
	byQuery map[string]*core.Meta
	enrich  func(*core.Meta) *core.Meta
}

func (f *fakeExtractor) FromTrackID(_ context.Context, trackID string) (*core.Meta, error) {
	if meta, ok := f.byID[trackID]; ok {
		return meta, nil
	}
	return nil, errors.New("track not found")
}

func (f *fakeExtractor) FromQuery(_ context.Context, query string) (*core.Meta, error) {
	if meta, ok := f.byQuery[query]; ok {
		return meta, nil
	}
	return nil, core.ErrNoMatch
}

func (f *fakeExtractor) EnrichISRC(_ context.Context, meta *core.Meta) *core.Meta {
	if f.enrich != nil {
		return f.enrich(meta)
	}
	return meta
}

type fakeFallback struct {
	meta *core.Meta
	err  error
}

func (f *fakeFallback) Enabled() bool { return true }

func (f *fakeFallback) FromURL(context.Context, string) (*core.Meta, error) {
	return f.meta, f.err
}

func (f *fakeFallback) FromQuery(context.Context, string) (*core.Meta, error) {
	return f.meta, f.err
}

type fakeAdapter struct {
	platform core.Platform
	hits     []core.Hit
	err      error
	calls    int
}

func (f *fakeAdapter) Platform() core.Platform { return f.platform }

func (f *fakeAdapter) Search(context.Context, core.Meta) ([]core.Hit, error) {
	f.calls++
	return f.hits, f.err
}

var testMeta = &core.Meta{
	ISRC:      "GBUM71029604",
	Title:     "Bohemian Rhapsody",
	Artist:    "Queen",
	Source:    core.PlatformSpotify,
	SourceID:  "4u7EnebtmKWzUH433cf5Qv",
	SourceURL: "https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv",
}

func newTestResolver(extractor MetadataExtractor, fallback Fallback, adapters ...Adapter) *Resolver {
	return NewResolver(extractor, fallback, adapters, zap.NewNop())
}

func TestReconcile_DeduplicatesPerPlatform(t *testing.T) {
	hits := []core.Hit{
		{Platform: core.PlatformDeezer, PlatformID: "1", Confidence: 0.92},
		{Platform: core.PlatformDeezer, PlatformID: "2", Confidence: 0.97},
		{Platform: core.PlatformAppleMusic, PlatformID: "3", Confidence: 0.95},
	}

	links := Reconcile(hits)

	if len(links) != 2 {
		t.Fatalf("Reconcile() returned %d links, want 2", len(links))
	}

	var deezer *core.Hit
	for i := range links {
		if links[i].Platform == core.PlatformDeezer {
			deezer = &links[i]
		}
	}
	if deezer == nil {
		t.Fatal("Reconcile() dropped the deezer hit entirely")
	}
	if deezer.PlatformID != "2" || deezer.Confidence != 0.97 {
		t.Errorf("Reconcile() kept %+v, want the max-confidence hit", deezer)
	}
}

func TestReconcile_EnforcesThreshold(t *testing.T) {
	hits := []core.Hit{
		{Platform: core.PlatformDeezer, Confidence: 0.89},
		{Platform: core.PlatformAppleMusic, Confidence: 0.9},
		{Platform: core.PlatformYouTube, Confidence: 0.25},
	}

	links := Reconcile(hits)

	for _, link := range links {
		if link.Confidence < 0.9 {
			t.Errorf("Reconcile() emitted %+v below the threshold", link)
		}
	}
	if len(links) != 1 || links[0].Platform != core.PlatformAppleMusic {
		t.Errorf("Reconcile() = %+v, want only the applemusic hit", links)
	}
}

func TestResolve_CanonicalSelfInjection(t *testing.T) {
	extractor := &fakeExtractor{byID: map[string]*core.Meta{"4u7EnebtmKWzUH433cf5Qv": testMeta}}
	deezer := &fakeAdapter{platform: core.PlatformDeezer, hits: []core.Hit{
		{Platform: core.PlatformDeezer, PlatformID: "313", Confidence: 0.93},
	}}
	spotifyAd := &fakeAdapter{platform: core.PlatformSpotify}

	resolver := newTestResolver(extractor, &fakeFallback{err: core.ErrNoMatch}, deezer, spotifyAd)

	res, err := resolver.Resolve(context.Background(), Request{
		SeedURL: "https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv",
	})
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	if spotifyAd.calls != 0 {
		t.Errorf("spotify adapter invoked %d times, want 0 (self-lookup is redundant)", spotifyAd.calls)
	}

	var spotifyHit *core.Hit
	for i := range res.Links {
		if res.Links[i].Platform == core.PlatformSpotify {
			spotifyHit = &res.Links[i]
		}
	}
	if spotifyHit == nil {
		t.Fatal("Resolve() links missing the synthesized spotify hit")
	}
	if spotifyHit.Confidence != 1.0 {
		t.Errorf("synthesized spotify hit confidence = %v, want 1.0", spotifyHit.Confidence)
	}
	if spotifyHit.PlatformID != "4u7EnebtmKWzUH433cf5Qv" {
		t.Errorf("synthesized spotify hit ID = %q, want the canonical track ID", spotifyHit.PlatformID)
	}
}

func TestResolve_PartialProviderResilience(t *testing.T) {
	extractor := &fakeExtractor{byID: map[string]*core.Meta{"4u7EnebtmKWzUH433cf5Qv": testMeta}}

	failing := &fakeAdapter{platform: core.PlatformAppleMusic, err: errors.New("connection refused")}
	good := &fakeAdapter{platform: core.PlatformDeezer, hits: []core.Hit{
		{Platform: core.PlatformDeezer, PlatformID: "313", Confidence: 0.95},
	}}
	belowThreshold := &fakeAdapter{platform: core.PlatformTidal, hits: []core.Hit{
		{Platform: core.PlatformTidal, PlatformID: "776", Confidence: 0.89},
	}}

	var failures []core.Platform
	resolver := newTestResolver(extractor, &fakeFallback{err: core.ErrNoMatch}, failing, good, belowThreshold)
	resolver.SetFailureRecorder(func(p core.Platform) { failures = append(failures, p) })

	res, err := resolver.Resolve(context.Background(), Request{
		SeedURL: "https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv",
	})
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	platforms := make(map[core.Platform]bool)
	for _, link := range res.Links {
		platforms[link.Platform] = true
	}

	if !platforms[core.PlatformDeezer] {
		t.Error("Resolve() lost the healthy adapter's hit")
	}
	if platforms[core.PlatformAppleMusic] {
		t.Error("Resolve() produced a hit for the failed adapter")
	}
	if platforms[core.PlatformTidal] {
		t.Error("Resolve() kept a hit below the confidence threshold")
	}
	if len(failures) != 1 || failures[0] != core.PlatformAppleMusic {
		t.Errorf("failure recorder saw %v, want [applemusic]", failures)
	}
}

func TestResolve_UnsupportedURL(t *testing.T) {
	resolver := newTestResolver(&fakeExtractor{}, &fakeFallback{err: core.ErrNoMatch})

	_, err := resolver.Resolve(context.Background(), Request{
		SeedURL: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
	})
	if !errors.Is(err, core.ErrUnsupportedURL) {
		t.Errorf("Resolve() error = %v, want core.ErrUnsupportedURL", err)
	}
}

func TestResolve_NoConfidentLinks(t *testing.T) {
	extractor := &fakeExtractor{byID: map[string]*core.Meta{"4u7EnebtmKWzUH433cf5Qv": testMeta}}
	// No adapters at all and no canonical injection candidate would still
	// inject spotify itself, so exercise the text-query path instead.
	noISRC := &core.Meta{Title: "Obscure Song", Artist: "Nobody"}
	extractor.byQuery = map[string]*core.Meta{"obscure song": noISRC}

	empty := &fakeAdapter{platform: core.PlatformDeezer}
	resolver := newTestResolver(extractor, &fakeFallback{err: core.ErrNoMatch}, empty)

	_, err := resolver.Resolve(context.Background(), Request{Query: "obscure song"})
	if !errors.Is(err, core.ErrNoConfidentLinks) {
		t.Errorf("Resolve() error = %v, want core.ErrNoConfidentLinks", err)
	}
}

func TestResolve_MetadataFailureIsTerminal(t *testing.T) {
	resolver := newTestResolver(&fakeExtractor{}, &fakeFallback{err: core.ErrNoMatch})

	_, err := resolver.Resolve(context.Background(), Request{Query: "mumble mumble"})
	if !errors.Is(err, core.ErrMetadataExtraction) {
		t.Errorf("Resolve() error = %v, want core.ErrMetadataExtraction", err)
	}
}

func TestResolve_FallbackQueryEnrichment(t *testing.T) {
	// Free-text query unknown to the authoritative source resolves through
	// the recognition fallback, then gets an ISRC via enrichment.
	recognized := &core.Meta{Title: "Bohemian Rhapsody", Artist: "Queen"}
	extractor := &fakeExtractor{
		enrich: func(meta *core.Meta) *core.Meta {
			enriched := *meta
			enriched.ISRC = "GBUM71029604"
			return &enriched
		},
	}

	deezer := &fakeAdapter{platform: core.PlatformDeezer, hits: []core.Hit{
		{Platform: core.PlatformDeezer, PlatformID: "313", Confidence: 0.95},
	}}

	resolver := newTestResolver(extractor, &fakeFallback{meta: recognized}, deezer)

	res, err := resolver.Resolve(context.Background(), Request{Query: "that opera rock song"})
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	if res.Core.ISRC != "GBUM71029604" {
		t.Errorf("Resolve() core ISRC = %q, want enriched value", res.Core.ISRC)
	}
	if len(res.Links) != 1 || res.Links[0].Platform != core.PlatformDeezer {
		t.Errorf("Resolve() links = %+v, want the deezer hit", res.Links)
	}
}
