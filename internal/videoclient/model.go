package videoclient

// These DTOs mirror the video platform's JSON shapes; toDomain methods
// convert them into the package's stable public types so callers never
// touch wire-format field names.

type playlistPageResponse struct {
	NextPageToken string                 `json:"nextPageToken"`
	Items         []playlistItemResponse `json:"items"`
}

type playlistItemResponse struct {
	ID      string `json:"videoId"`
	Snippet struct {
		Title   string `json:"title"`
		Channel string `json:"channelTitle"`
	} `json:"snippet"`
	ContentDetails struct {
		DurationSeconds int `json:"durationSeconds"`
	} `json:"contentDetails"`
}

func (p playlistPageResponse) toDomain() *PlaylistPage {
	items := make([]PlaylistItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, PlaylistItem{
			VideoID:         item.ID,
			Title:           item.Snippet.Title,
			Channel:         item.Snippet.Channel,
			DurationSeconds: item.ContentDetails.DurationSeconds,
		})
	}

	return &PlaylistPage{Items: items, NextPageToken: p.NextPageToken}
}

type searchResponse struct {
	Items []searchItemResponse `json:"items"`
}

type searchItemResponse struct {
	ID              string `json:"videoId"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
	IsShort         bool   `json:"isShort"`
}

func (s searchResponse) toDomain() []SearchResult {
	results := make([]SearchResult, 0, len(s.Items))
	for _, item := range s.Items {
		results = append(results, SearchResult{
			VideoID:         item.ID,
			Title:           item.Title,
			URL:             item.URL,
			DurationSeconds: item.DurationSeconds,
			IsShortForm:     item.IsShort,
		})
	}

	return results
}

type streamMetadataResponse struct {
	Variants []streamVariantResponse `json:"variants"`
}

type streamVariantResponse struct {
	URL         string `json:"url"`
	AudioOnly   bool   `json:"audioOnly"`
	BitrateKbps int    `json:"bitrateKbps"`
	Container   string `json:"container"`
}

func (s streamMetadataResponse) toDomain(videoID string) *StreamMetadata {
	variants := make([]StreamVariant, 0, len(s.Variants))
	for _, v := range s.Variants {
		variants = append(variants, StreamVariant{
			URL:          v.URL,
			IsAudioOnly:  v.AudioOnly,
			BitrateKbps:  v.BitrateKbps,
			ContainerExt: v.Container,
		})
	}

	return &StreamMetadata{VideoID: videoID, Variants: variants}
}
