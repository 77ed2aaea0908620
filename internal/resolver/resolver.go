// Package resolver turns a video-platform source id into a
// time-limited direct stream URL: a TTL cache, a
// pending-future map so concurrent resolutions of the same id
// deduplicate, and an ordered mirror-instance fallback on primary
// failure.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/videoclient"
)

// ErrAllMethodsFailed is returned when the primary extractor and every
// mirror instance have been exhausted without a usable stream.
var ErrAllMethodsFailed = errors.New("resolver: all extraction methods failed")

const pendingJoinTimeout = 30 * time.Second

type cacheEntry struct {
	url string
}

// Resolver resolves source ids to direct stream URLs, caching results
// for a TTL and deduplicating concurrent resolutions of the same id
// via singleflight.
type Resolver struct {
	primary    *videoclient.Client
	mirrors    []string
	httpClient *http.Client
	cache      *lru.LRU[string, cacheEntry]
	group      singleflight.Group
}

// New builds a Resolver. mirrors is an ordered list of fallback
// instance base URLs, tried in order after the primary extractor
// fails.
func New(primary *videoclient.Client, mirrors []string, httpClient *http.Client, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		primary:    primary,
		mirrors:    mirrors,
		httpClient: httpClient,
		cache:      lru.NewLRU[string, cacheEntry](4096, nil, cacheTTL),
	}
}

// IsCached reports whether sourceID currently has a live cache entry.
func (r *Resolver) IsCached(sourceID string) bool {
	_, ok := r.cache.Get(sourceID)

	return ok
}

// Resolve returns a direct stream URL for sourceID: a cache hit if
// live, otherwise a fresh extraction via the primary extractor falling
// back through the mirror list. Concurrent calls for the same id
// share one in-flight resolution.
func (r *Resolver) Resolve(ctx context.Context, sourceID string) (string, error) {
	if entry, ok := r.cache.Get(sourceID); ok {
		return entry.url, nil
	}

	resultCh := r.group.DoChan(sourceID, func() (any, error) {
		return r.resolveFresh(ctx, sourceID)
	})

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return "", result.Err
		}

		return result.Val.(string), nil //nolint:forcetypeassert // group.Do's fn always returns a string.
	case <-time.After(pendingJoinTimeout):
		return "", fmt.Errorf("resolver: %w waiting on pending resolution for %s", context.DeadlineExceeded, sourceID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prefetch issues a fire-and-forget resolution for sourceID, so the
// dispatcher can warm the cache ahead of dispatch. It is an idempotent
// upsert: a resolution already cached or in flight is not duplicated.
func (r *Resolver) Prefetch(sourceID string) {
	if r.IsCached(sourceID) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pendingJoinTimeout)
		defer cancel()

		if _, err := r.Resolve(ctx, sourceID); err != nil {
			logger.Debugf(ctx, "resolver: prefetch %s: %v", sourceID, err)
		}
	}()
}

func (r *Resolver) resolveFresh(ctx context.Context, sourceID string) (string, error) {
	url, err := r.fromPrimary(ctx, sourceID)
	if err == nil {
		r.cache.Add(sourceID, cacheEntry{url: url})

		return url, nil
	}

	logger.Warnf(ctx, "resolver: primary extraction failed for %s: %v", sourceID, err)

	for _, mirror := range r.mirrors {
		url, err = r.fromMirror(ctx, mirror, sourceID)
		if err != nil {
			logger.Warnf(ctx, "resolver: mirror %s failed for %s: %v", mirror, sourceID, err)

			continue
		}

		r.cache.Add(sourceID, cacheEntry{url: url})

		return url, nil
	}

	return "", ErrAllMethodsFailed
}

func (r *Resolver) fromPrimary(ctx context.Context, sourceID string) (string, error) {
	meta, err := r.primary.GetStreamMetadata(ctx, sourceID)
	if err != nil {
		return "", err
	}

	return bestAudioVariant(meta.Variants)
}

type mirrorStreamResponse struct {
	Variants []mirrorVariant `json:"variants"`
}

type mirrorVariant struct {
	URL         string `json:"url"`
	IsAudioOnly bool   `json:"is_audio_only"`
	BitrateKbps int    `json:"bitrate_kbps"`
}

func (r *Resolver) fromMirror(ctx context.Context, mirrorBaseURL, sourceID string) (string, error) {
	endpoint := fmt.Sprintf("%s/streams/%s", mirrorBaseURL, sourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("resolver: build mirror request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolver: mirror request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck // best effort.

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolver: mirror http %d", resp.StatusCode)
	}

	var body mirrorStreamResponse

	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("resolver: decode mirror response: %w", err)
	}

	best := ""
	bestBitrate := -1

	for _, v := range body.Variants {
		if !v.IsAudioOnly {
			continue
		}

		if v.BitrateKbps > bestBitrate {
			bestBitrate = v.BitrateKbps
			best = v.URL
		}
	}

	if best == "" {
		return "", errors.New("resolver: mirror returned no audio-only variant")
	}

	return best, nil
}

// bestAudioVariant picks the highest average-bitrate audio-only
// variant, falling back to the first video variant when no audio-only
// rendition exists.
func bestAudioVariant(variants []videoclient.StreamVariant) (string, error) {
	if len(variants) == 0 {
		return "", errors.New("resolver: no stream variants")
	}

	sorted := make([]videoclient.StreamVariant, len(variants))
	copy(sorted, variants)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BitrateKbps > sorted[j].BitrateKbps
	})

	for _, v := range sorted {
		if v.IsAudioOnly {
			return v.URL, nil
		}
	}

	return variants[0].URL, nil
}
