// Package extractor turns a source playlist/album URL into an ordered
// list of track candidates. Three variants cover the supported catalog
// shapes: a video-platform playlist with native ids (Variant A), an
// authenticated catalog with an HTML-scrape fallback (Variant B), and
// meta-tag scraping only (Variant C). Callers never
// see the variant split directly; Router.Extract picks one from the
// URL and always returns a (possibly empty) slice, never an error that
// must propagate past the orchestrator.
package extractor

import (
	"context"

	"github.com/musicgrab/engine/internal/constants"
)

// Candidate is one track as reported by a catalog extractor, before
// fingerprinting or mapping.
type Candidate struct {
	Title           string
	Artist          string
	DurationSeconds *int
	ThumbnailURL    string
	// SourceVideoID is set when the extractor already resolved a
	// directly downloadable id on the video platform (Variant A's
	// native fast path). Empty for Variant B/C candidates, which the
	// Track Mapper must resolve.
	SourceVideoID string
}

// Platform tags which variant produced (or should produce) a
// candidate list, and is stored on the Track row as source_platform.
type Platform string

// Recognized source platforms: YouTube-like, Spotify-like,
// Apple-Music-like.
const (
	PlatformVideo   Platform = "video"   // Variant A
	PlatformCatalog Platform = "catalog" // Variant B
	PlatformGeneric Platform = "generic" // Variant C
)

// Extractor produces an ordered list of track candidates from a source
// URL, bounded to MaxCandidatesPerBatch. Failure returns an empty
// slice and a nil error: extraction errors never propagate past this
// boundary.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) ([]Candidate, error)
}

func clamp(candidates []Candidate) []Candidate {
	if len(candidates) > constants.MaxCandidatesPerBatch {
		return candidates[:constants.MaxCandidatesPerBatch]
	}

	return candidates
}
