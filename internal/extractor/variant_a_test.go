package extractor_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/extractor"
	"github.com/musicgrab/engine/internal/videoclient"
)

func newVideoClient(t *testing.T, handler http.HandlerFunc) *videoclient.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return videoclient.New(server.URL, server.Client(), 1, time.Millisecond)
}

func TestVideoPlaylistExtractor_PagesUntilExhausted(t *testing.T) {
	t.Parallel()

	client := newVideoClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/playlistItems", r.URL.Path)
		assert.Equal(t, "PLxyz", r.URL.Query().Get("playlistId"))

		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("pageToken") == "tok-2" {
			_, _ = w.Write([]byte(`{"items": [
				{"videoId": "v3", "snippet": {"title": "Third", "channelTitle": "C"},
				 "contentDetails": {"durationSeconds": 180}}
			]}`))

			return
		}

		_, _ = w.Write([]byte(`{
			"nextPageToken": "tok-2",
			"items": [
				{"videoId": "v1", "snippet": {"title": "First", "channelTitle": "A"},
				 "contentDetails": {"durationSeconds": 200}},
				{"videoId": "v2", "snippet": {"title": "Second", "channelTitle": "B"},
				 "contentDetails": {"durationSeconds": 0}}
			]
		}`))
	})

	e := extractor.NewVideoPlaylistExtractor(client)

	candidates, err := e.Extract(context.Background(), "https://video.example/playlist?list=PLxyz")
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "v1", candidates[0].SourceVideoID, "variant A candidates carry the fast-path id")
	require.NotNil(t, candidates[0].DurationSeconds)
	assert.Equal(t, 200, *candidates[0].DurationSeconds)
	assert.Nil(t, candidates[1].DurationSeconds, "zero duration reported as unknown")
	assert.Equal(t, "v3", candidates[2].SourceVideoID)
}

func TestVideoPlaylistExtractor_CapsAtBatchLimit(t *testing.T) {
	t.Parallel()

	client := newVideoClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// An endless playlist: every page is full and points to another.
		_, _ = fmt.Fprint(w, `{"nextPageToken": "again", "items": [`)

		for i := range 100 {
			if i > 0 {
				_, _ = fmt.Fprint(w, ",")
			}

			_, _ = fmt.Fprintf(w,
				`{"videoId": "v%d", "snippet": {"title": "T", "channelTitle": "C"},
				  "contentDetails": {"durationSeconds": 100}}`, i)
		}

		_, _ = fmt.Fprint(w, `]}`)
	})

	e := extractor.NewVideoPlaylistExtractor(client)

	candidates, err := e.Extract(context.Background(), "https://video.example/playlist?list=PLbig")
	require.NoError(t, err)
	assert.Len(t, candidates, 500, "extraction stops exactly at the batch cap")
}

func TestVideoPlaylistExtractor_NoPlaylistID(t *testing.T) {
	t.Parallel()

	e := extractor.NewVideoPlaylistExtractor(nil)

	candidates, err := e.Extract(context.Background(), "https://video.example/watch?v=abc")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
