package videoclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/videoclient"
)

func TestPagePlaylist(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/playlistItems", r.URL.Path)
		assert.Equal(t, "my-playlist", r.URL.Query().Get("playlistId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"nextPageToken": "page-2",
			"items": [
				{"videoId": "abc", "snippet": {"title": "Song A", "channelTitle": "Artist A"},
				 "contentDetails": {"durationSeconds": 210}}
			]
		}`))
	}))
	defer server.Close()

	client := videoclient.New(server.URL, server.Client(), 3, time.Millisecond)

	page, err := client.PagePlaylist(context.Background(), "my-playlist", "")
	require.NoError(t, err)
	assert.Equal(t, "page-2", page.NextPageToken)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "abc", page.Items[0].VideoID)
	assert.Equal(t, 210, page.Items[0].DurationSeconds)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "midnight city m83 song", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [
			{"videoId": "xyz", "title": "Midnight City", "url": "https://video.example/xyz",
			 "durationSeconds": 244, "isShort": false}
		]}`))
	}))
	defer server.Close()

	client := videoclient.New(server.URL, server.Client(), 3, time.Millisecond)

	results, err := client.Search(context.Background(), "midnight city m83 song")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "xyz", results[0].VideoID)
	assert.False(t, results[0].IsShortForm)
}

func TestGetStreamMetadata_RetriesOnServiceUnavailable(t *testing.T) {
	t.Parallel()

	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"variants": [
			{"url": "https://stream.example/audio", "audioOnly": true, "bitrateKbps": 160, "container": "m4a"}
		]}`))
	}))
	defer server.Close()

	client := videoclient.New(server.URL, server.Client(), 3, time.Millisecond)

	meta, err := client.GetStreamMetadata(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Len(t, meta.Variants, 1)
	assert.True(t, meta.Variants[0].IsAudioOnly)
}

func TestGetStreamMetadata_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	var attempts int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := videoclient.New(server.URL, server.Client(), 3, time.Millisecond)

	_, err := client.GetStreamMetadata(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestGetStreamMetadata_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := videoclient.New(server.URL, server.Client(), 2, time.Millisecond)

	_, err := client.GetStreamMetadata(context.Background(), "xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, videoclient.ErrExhaustedRetries)
}
