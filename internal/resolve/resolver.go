// Package resolve implements cross-platform track resolution: canonical
// metadata extraction, concurrent provider fan-out, confidence scoring and
// per-platform reconciliation.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
	"tracklink/pkg/patterns"
)

// MetadataExtractor is the authoritative-source side of the resolver.
type MetadataExtractor interface {
	FromTrackID(ctx context.Context, trackID string) (*core.Meta, error)
	FromQuery(ctx context.Context, query string) (*core.Meta, error)
	EnrichISRC(ctx context.Context, meta *core.Meta) *core.Meta
}

// Fallback is the non-authoritative recognition extractor used when the
// authoritative path cannot establish identity.
type Fallback interface {
	Enabled() bool
	FromURL(ctx context.Context, rawURL string) (*core.Meta, error)
	FromQuery(ctx context.Context, query string) (*core.Meta, error)
}

// StorefrontScoped is implemented by adapters whose provider partitions
// its catalog by regional store.
type StorefrontScoped interface {
	WithStorefront(storefront string) Adapter
}

// FailureRecorder counts per-platform adapter soft failures. Nil disables
// recording.
type FailureRecorder func(platform core.Platform)

// Request is one resolution input: a seed URL or a free-text query.
type Request struct {
	SeedURL    string
	Query      string
	Storefront string
}

type Resolver struct {
	extractor MetadataExtractor
	fallback  Fallback
	adapters  []Adapter
	logger    *zap.Logger
	onFailure FailureRecorder
}

func NewResolver(
	extractor MetadataExtractor,
	fallback Fallback,
	adapters []Adapter,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		extractor: extractor,
		fallback:  fallback,
		adapters:  adapters,
		logger:    logger,
	}
}

// SetFailureRecorder wires an adapter-failure counter, typically backed by
// a metrics registry.
func (r *Resolver) SetFailureRecorder(rec FailureRecorder) {
	r.onFailure = rec
}

// Resolve runs the full pipeline: metadata extraction, ISRC enrichment,
// concurrent fan-out, reconciliation and threshold filtering.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*core.Resolution, error) {
	meta, skipSpotify, err := r.extractMetadata(ctx, req)
	if err != nil {
		return nil, err
	}

	if !meta.Usable() {
		return nil, fmt.Errorf("%w: no usable title/artist", core.ErrMetadataExtraction)
	}

	// One opportunistic authoritative lookup materially improves every
	// adapter's scoring odds, since confidence is ISRC-dominated.
	if meta.ISRC == "" && !skipSpotify {
		meta = r.extractor.EnrichISRC(ctx, meta)
	}

	hits := r.fanOut(ctx, *meta, req.Storefront, skipSpotify)

	if skipSpotify {
		hits = injectCanonical(hits, meta)
	}

	links := Reconcile(hits)
	if len(links) == 0 {
		return nil, core.ErrNoConfidentLinks
	}

	return &core.Resolution{Core: *meta, Links: links}, nil
}

// extractMetadata runs the prioritized extraction strategies. The second
// return is true when the canonical metadata came straight from the
// authoritative source, making its adapter redundant.
func (r *Resolver) extractMetadata(ctx context.Context, req Request) (*core.Meta, bool, error) {
	if req.SeedURL != "" {
		return r.extractFromURL(ctx, req.SeedURL)
	}

	meta, err := r.extractor.FromQuery(ctx, req.Query)
	if err == nil && meta.Usable() {
		return meta, false, nil
	}
	r.logger.Debug("Authoritative text search failed, trying recognition fallback",
		zap.String("query", req.Query),
		zap.Error(err))

	meta, err = r.recognize(ctx, func(ctx context.Context) (*core.Meta, error) {
		return r.fallback.FromQuery(ctx, req.Query)
	})
	if err != nil {
		return nil, false, err
	}
	return meta, false, nil
}

func (r *Resolver) extractFromURL(ctx context.Context, seedURL string) (*core.Meta, bool, error) {
	match, ok := patterns.Parse(seedURL)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", core.ErrUnsupportedURL, seedURL)
	}

	if match.Platform == patterns.Spotify {
		meta, err := r.extractor.FromTrackID(ctx, match.TrackID)
		if err == nil {
			return meta, true, nil
		}
		r.logger.Warn("Authoritative lookup failed for canonical URL, trying recognition fallback",
			zap.String("track_id", match.TrackID),
			zap.Error(err))
	}

	// Canonical URL on a secondary platform (or a failed authoritative
	// lookup): the recognition service accepts the link directly.
	meta, err := r.recognize(ctx, func(ctx context.Context) (*core.Meta, error) {
		return r.fallback.FromURL(ctx, seedURL)
	})
	if err != nil {
		return nil, false, err
	}
	return meta, false, nil
}

func (r *Resolver) recognize(ctx context.Context, fn func(context.Context) (*core.Meta, error)) (*core.Meta, error) {
	if r.fallback == nil || !r.fallback.Enabled() {
		return nil, fmt.Errorf("%w: recognition fallback not configured", core.ErrMetadataExtraction)
	}

	meta, err := fn(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNoMatch) {
			return nil, fmt.Errorf("%w: %v", core.ErrMetadataExtraction, err)
		}
		return nil, fmt.Errorf("%w: recognition failed: %v", core.ErrMetadataExtraction, err)
	}
	return meta, nil
}

// fanOut queries every configured adapter concurrently and waits for all
// of them to settle. Individual adapter faults become empty result sets;
// one slow or broken provider never blocks the others' contributions.
func (r *Resolver) fanOut(ctx context.Context, query core.Meta, storefront string, skipSpotify bool) []core.Hit {
	selected := make([]Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		if skipSpotify && adapter.Platform() == core.PlatformSpotify {
			continue
		}
		if scoped, ok := adapter.(StorefrontScoped); ok && storefront != "" {
			adapter = scoped.WithStorefront(storefront)
		}
		selected = append(selected, adapter)
	}

	start := time.Now()
	results := make(chan []core.Hit, len(selected))

	var wg sync.WaitGroup
	for _, adapter := range selected {
		wg.Add(1)
		go func(adapter Adapter) {
			defer wg.Done()

			hits, err := adapter.Search(ctx, query)
			if err != nil {
				r.logger.Warn("Adapter failed, continuing without it",
					zap.String("platform", string(adapter.Platform())),
					zap.Error(err))
				if r.onFailure != nil {
					r.onFailure(adapter.Platform())
				}
				results <- nil
				return
			}
			results <- hits
		}(adapter)
	}

	wg.Wait()
	close(results)

	var all []core.Hit
	for hits := range results {
		all = append(all, hits...)
	}

	r.logger.Debug("Fan-out settled",
		zap.Int("adapters", len(selected)),
		zap.Int("raw_hits", len(all)),
		zap.Duration("elapsed", time.Since(start)))

	return all
}

// injectCanonical appends the authoritative source's own link at full
// confidence, unless an adapter already produced a hit for that platform.
func injectCanonical(hits []core.Hit, meta *core.Meta) []core.Hit {
	for _, hit := range hits {
		if hit.Platform == meta.Source {
			return hits
		}
	}

	return append(hits, core.Hit{
		Platform:   meta.Source,
		PlatformID: meta.SourceID,
		URLWeb:     meta.SourceURL,
		URLApp:     "spotify:track:" + meta.SourceID,
		Confidence: 1.0,
	})
}

// Reconcile keeps at most one hit per platform, the one with the highest
// confidence, and drops everything below the acceptance threshold. Output
// order is deterministic by platform name.
func Reconcile(hits []core.Hit) []core.Hit {
	best := make(map[core.Platform]core.Hit)
	for _, hit := range hits {
		if current, ok := best[hit.Platform]; !ok || hit.Confidence > current.Confidence {
			best[hit.Platform] = hit
		}
	}

	links := make([]core.Hit, 0, len(best))
	for _, hit := range best {
		if hit.Confidence >= fuzzy.AcceptThreshold {
			links = append(links, hit)
		}
	}

	sort.Slice(links, func(i, j int) bool {
		return links[i].Platform < links[j].Platform
	})

	return links
}
