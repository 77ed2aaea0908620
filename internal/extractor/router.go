package extractor

import (
	"context"
	"strings"
)

// Router dispatches a source URL to the right variant extractor based
// on its host.
type Router struct {
	video   Extractor
	catalog Extractor
	generic Extractor
}

// NewRouter builds a Router. Any extractor may be nil; Extract returns
// the detected platform and an empty list when that platform's variant
// is unavailable.
func NewRouter(video, catalog, generic Extractor) *Router {
	return &Router{video: video, catalog: catalog, generic: generic}
}

// videoHosts and catalogHosts are the domains routed to the Variant A
// and Variant B extractors respectively; anything else falls to
// Variant C scraping.
//
//nolint:gochecknoglobals // Immutable host lists used as routing constants.
var (
	videoHosts   = []string{"youtube.com", "youtu.be", "music.youtube.com"}
	catalogHosts = []string{"open.spotify.com", "spotify.com"}
)

// Detect identifies which platform a source URL belongs to.
func Detect(rawURL string) Platform {
	lower := strings.ToLower(rawURL)

	for _, host := range videoHosts {
		if strings.Contains(lower, host) {
			return PlatformVideo
		}
	}

	for _, host := range catalogHosts {
		if strings.Contains(lower, host) {
			return PlatformCatalog
		}
	}

	return PlatformGeneric
}

// Extract routes rawURL to the matching variant extractor and returns
// its candidates, bounded to MaxCandidatesPerBatch. An unavailable
// extractor or a variant that finds nothing yields an empty slice, not
// an error: extraction failure is reported by an empty result.
func (r *Router) Extract(ctx context.Context, rawURL string) (Platform, []Candidate, error) {
	platform := Detect(rawURL)

	var target Extractor

	switch platform {
	case PlatformVideo:
		target = r.video
	case PlatformCatalog:
		target = r.catalog
	case PlatformGeneric:
		target = r.generic
	}

	if target == nil {
		return platform, nil, nil
	}

	candidates, err := target.Extract(ctx, rawURL)
	if err != nil {
		return platform, nil, nil //nolint:nilerr // see Extractor doc: errors never propagate.
	}

	return platform, clamp(candidates), nil
}
