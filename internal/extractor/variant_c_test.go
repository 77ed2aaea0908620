package extractor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/extractor"
)

func TestScrapeExtractor_ReadsOpenGraphTags(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
			<meta property="og:title" content="Single Song Title">
			<meta property="og:description" content="Some Artist · 2024 · 1 song">
			<meta property="og:image" content="https://img.example/art.jpg">
		</head><body></body></html>`))
	}))
	defer server.Close()

	e := extractor.NewScrapeExtractor(server.Client())

	candidates, err := e.Extract(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, candidates, 1, "variant C emits at most one candidate")

	assert.Equal(t, "Single Song Title", candidates[0].Title)
	assert.Equal(t, "Some Artist", candidates[0].Artist)
	assert.Equal(t, "https://img.example/art.jpg", candidates[0].ThumbnailURL)
}

func TestScrapeExtractor_NoTitleNoCandidate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>plain page</title></head></html>`))
	}))
	defer server.Close()

	e := extractor.NewScrapeExtractor(server.Client())

	candidates, err := e.Extract(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScrapeExtractor_ErrorsNeverPropagate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := extractor.NewScrapeExtractor(server.Client())

	candidates, err := e.Extract(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
