package extractor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/extractor"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url      string
		expected extractor.Platform
	}{
		{"https://www.youtube.com/playlist?list=PLxyz", extractor.PlatformVideo},
		{"https://youtu.be/abc", extractor.PlatformVideo},
		{"https://music.youtube.com/playlist?list=PLxyz", extractor.PlatformVideo},
		{"https://open.spotify.com/playlist/abc", extractor.PlatformCatalog},
		{"https://music.apple.example/album/xyz", extractor.PlatformGeneric},
		{"not a url at all", extractor.PlatformGeneric},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractor.Detect(tt.url), tt.url)
	}
}

// stubExtractor returns a fixed candidate list or error.
type stubExtractor struct {
	candidates []extractor.Candidate
	err        error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) ([]extractor.Candidate, error) {
	return s.candidates, s.err
}

func TestRouter_RoutesByPlatform(t *testing.T) {
	t.Parallel()

	video := &stubExtractor{candidates: []extractor.Candidate{{Title: "from video"}}}
	catalog := &stubExtractor{candidates: []extractor.Candidate{{Title: "from catalog"}}}
	generic := &stubExtractor{candidates: []extractor.Candidate{{Title: "from generic"}}}

	router := extractor.NewRouter(video, catalog, generic)

	platform, candidates, err := router.Extract(context.Background(), "https://youtu.be/playlist?list=PLa")
	require.NoError(t, err)
	assert.Equal(t, extractor.PlatformVideo, platform)
	require.Len(t, candidates, 1)
	assert.Equal(t, "from video", candidates[0].Title)

	platform, candidates, _ = router.Extract(context.Background(), "https://open.spotify.com/album/x")
	assert.Equal(t, extractor.PlatformCatalog, platform)
	assert.Equal(t, "from catalog", candidates[0].Title)

	platform, candidates, _ = router.Extract(context.Background(), "https://elsewhere.example/page")
	assert.Equal(t, extractor.PlatformGeneric, platform)
	assert.Equal(t, "from generic", candidates[0].Title)
}

func TestRouter_ErrorsBecomeEmptyResults(t *testing.T) {
	t.Parallel()

	failing := &stubExtractor{err: errors.New("boom")}
	router := extractor.NewRouter(failing, nil, nil)

	platform, candidates, err := router.Extract(context.Background(), "https://youtube.com/playlist?list=PLa")
	require.NoError(t, err, "extraction errors never propagate past the router")
	assert.Equal(t, extractor.PlatformVideo, platform)
	assert.Empty(t, candidates)

	// A nil variant behaves the same as a variant that found nothing.
	_, candidates, err = router.Extract(context.Background(), "https://open.spotify.com/playlist/x")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
