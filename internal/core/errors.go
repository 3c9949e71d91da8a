package core

import "errors"

// Terminal error classes surfaced to the caller. Adapter-level faults are
// never in this set; they are recovered into empty result lists inside the
// resolver.
var (
	// ErrUnsupportedURL means the input URL does not match any known
	// platform's track-detail page shape.
	ErrUnsupportedURL = errors.New("not a canonical track URL for any supported platform")

	// ErrNoMatch means a provider answered but carried no usable result.
	ErrNoMatch = errors.New("no match found")

	// ErrMetadataExtraction means neither the authoritative source nor the
	// recognition fallback produced a usable title/artist pair.
	ErrMetadataExtraction = errors.New("metadata extraction failed")

	// ErrNoConfidentLinks means fan-out completed but nothing cleared the
	// acceptance threshold.
	ErrNoConfidentLinks = errors.New("no links found above confidence threshold")

	// ErrPersistence means the atomic upsert of the resolved track failed.
	ErrPersistence = errors.New("failed to persist resolved track")
)
