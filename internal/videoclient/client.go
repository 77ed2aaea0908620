// Package videoclient wraps the video-platform HTTP API shared by the
// Variant A catalog extractor, the Track Mapper, and the Stream
// Resolver: playlist pagination, song search, and stream metadata.
package videoclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// PlaylistItem is one entry returned while paging a playlist.
type PlaylistItem struct {
	VideoID         string
	Title           string
	Channel         string
	DurationSeconds int
}

// PlaylistPage is one page of playlist entries plus the token to fetch
// the next page, if any.
type PlaylistPage struct {
	Items         []PlaylistItem
	NextPageToken string
}

// SearchResult is one candidate returned by Search.
type SearchResult struct {
	VideoID         string
	Title           string
	URL             string
	DurationSeconds int
	IsShortForm     bool
}

// StreamVariant is one downloadable rendition of a video's audio/video.
type StreamVariant struct {
	URL          string
	IsAudioOnly  bool
	BitrateKbps  int
	ContainerExt string
}

// StreamMetadata holds every stream variant available for a video id.
type StreamMetadata struct {
	VideoID  string
	Variants []StreamVariant
}

// ErrUnexpectedStatus is returned when the API responds with a status
// code the client does not know how to interpret as domain data.
var ErrUnexpectedStatus = errors.New("videoclient: unexpected http status")

// ErrExhaustedRetries is returned when every retry attempt for a
// transient failure has been spent.
var ErrExhaustedRetries = errors.New("videoclient: exhausted retries")

const (
	defaultTimeout    = 30 * time.Second
	playlistPageSize  = 100
	searchResultLimit = 25
)

// Client talks to the video platform's playlist, search, and stream
// metadata endpoints over a shared resty client.
type Client struct {
	rc            *resty.Client
	retryAttempts int
	retryPause    time.Duration
}

// New builds a Client against baseURL (e.g. a video platform's API
// gateway), using httpClient for the underlying transport so callers
// share the engine's connection pool and RoundTripper chain.
func New(baseURL string, httpClient *http.Client, retryAttempts int, retryPause time.Duration) *Client {
	rc := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout)

	return &Client{rc: rc, retryAttempts: retryAttempts, retryPause: retryPause}
}

// PagePlaylist fetches one page of a playlist's entries, following
// pageToken when non-empty.
func (c *Client) PagePlaylist(ctx context.Context, playlistID, pageToken string) (*PlaylistPage, error) {
	var page playlistPageResponse

	req := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"playlistId": playlistID,
			"maxResults": fmt.Sprintf("%d", playlistPageSize),
		}).
		SetResult(&page)

	if pageToken != "" {
		req.SetQueryParam("pageToken", pageToken)
	}

	resp, err := req.Get("/playlistItems")
	if err != nil {
		return nil, fmt.Errorf("videoclient: page playlist: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	return page.toDomain(), nil
}

// Search issues a text query against the video platform and returns
// up to searchResultLimit candidates.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var results searchResponse

	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":          query,
			"maxResults": fmt.Sprintf("%d", searchResultLimit),
			"type":       "video",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("videoclient: search: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	return results.toDomain(), nil
}

// GetStreamMetadata fetches the set of downloadable stream variants
// for a video id, retrying transient (HTTP 503) failures up to the
// configured retry budget.
func (c *Client) GetStreamMetadata(ctx context.Context, videoID string) (*StreamMetadata, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		var streams streamMetadataResponse

		resp, err := c.rc.R().
			SetContext(ctx).
			SetQueryParam("videoId", videoID).
			SetResult(&streams).
			Get("/videos/streams")
		if err == nil && !resp.IsError() {
			return streams.toDomain(videoID), nil
		}

		if err == nil {
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
		} else {
			lastErr = err
		}

		if resp != nil && resp.StatusCode() != http.StatusServiceUnavailable {
			return nil, lastErr
		}

		if attempt < c.retryAttempts-1 {
			select {
			case <-time.After(c.retryPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrExhaustedRetries, lastErr)
	}

	return nil, ErrExhaustedRetries
}
