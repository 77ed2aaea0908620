package extractor

import (
	"context"
	"regexp"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/utils"
	"github.com/musicgrab/engine/internal/videoclient"
)

// playlistIDPattern pulls a playlist id out of either a full video-
// platform playlist URL or a bare "list=" query parameter.
//
//nolint:gochecknoglobals // Immutable, pre-compiled regex used as a constant.
var playlistIDPattern = regexp.MustCompile(`[?&]list=(?P<id>[A-Za-z0-9_-]+)`)

// VideoPlaylistExtractor is the Variant A catalog extractor: it pages
// through a video platform's own playlist API via
// videoclient.Client.PagePlaylist. Every candidate carries
// SourceVideoID, enabling the Track Mapper's fast path.
type VideoPlaylistExtractor struct {
	client *videoclient.Client
}

// NewVideoPlaylistExtractor builds a Variant A extractor over client.
func NewVideoPlaylistExtractor(client *videoclient.Client) *VideoPlaylistExtractor {
	return &VideoPlaylistExtractor{client: client}
}

// Extract pages the playlist named by rawURL until exhausted or the
// MaxCandidatesPerBatch cap is reached.
func (e *VideoPlaylistExtractor) Extract(ctx context.Context, rawURL string) ([]Candidate, error) {
	playlistID := utils.ExtractNamedGroup(playlistIDPattern, "id", rawURL)
	if playlistID == "" {
		return nil, nil
	}

	var (
		candidates []Candidate
		pageToken  string
	)

	for {
		page, err := e.client.PagePlaylist(ctx, playlistID, pageToken)
		if err != nil {
			logger.Warnf(ctx, "extractor: variant A page playlist %s: %v", playlistID, err)

			break
		}

		for _, item := range page.Items {
			candidates = append(candidates, Candidate{
				Title:           item.Title,
				Artist:          item.Channel,
				DurationSeconds: durationPtr(item.DurationSeconds),
				SourceVideoID:   item.VideoID,
			})

			if len(candidates) >= constants.MaxCandidatesPerBatch {
				return clamp(candidates), nil
			}
		}

		if page.NextPageToken == "" {
			break
		}

		pageToken = page.NextPageToken
	}

	return clamp(candidates), nil
}

func durationPtr(seconds int) *int {
	if seconds <= 0 {
		return nil
	}

	return &seconds
}
