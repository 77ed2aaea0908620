package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/utils"
)

// catalogIDPattern extracts a playlist/album id from either a catalog
// web URL (https://host/playlist/{id} or /album/{id}) or a URI-style
// identifier (catalog:playlist:{id}).
//
//nolint:gochecknoglobals // Immutable, pre-compiled regex used as a constant.
var catalogIDPattern = regexp.MustCompile(
	`(?:playlist[:/])(?P<playlist>[A-Za-z0-9]+)|(?:album[:/])(?P<album>[A-Za-z0-9]+)`)

const (
	tokenRefreshSkew = 60 * time.Second
	tracksPageSize   = 100
	albumPageSize    = 50
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// catalogTracksResponse is the shape returned by both the
// playlists/{id}/tracks and albums/{id}/tracks endpoints.
type catalogTracksResponse struct {
	Items []catalogTrackItem `json:"items"`
	Next  string             `json:"next"`
}

type catalogTrackItem struct {
	Track catalogTrackBody `json:"track"`
}

type catalogTrackBody struct {
	Name       string            `json:"name"`
	DurationMS int               `json:"duration_ms"`
	Artists    []catalogArtist   `json:"artists"`
	Album      catalogAlbumCover `json:"album"`
}

type catalogArtist struct {
	Name string `json:"name"`
}

type catalogAlbumCover struct {
	Images []catalogImage `json:"images"`
}

type catalogImage struct {
	URL string `json:"url"`
}

// CatalogExtractor is the Variant B catalog extractor: an
// authenticated, client-credentials-backed catalog API with an
// HTML-scrape fallback. Authenticates with the standard
// SetBasicAuth + grant_type=client_credentials token flow, and falls
// back to a stealth headless-browser render when the REST API can't
// resolve a URL.
type CatalogExtractor struct {
	rc           *resty.Client
	authBaseURL  string
	apiBaseURL   string
	clientID     string
	clientSecret string
	scraper      Scraper

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// Scraper renders a web page and returns its final HTML, used by the
// Variant B fallback. A headless-browser implementation
// (go-rod + go-rod/stealth) satisfies it in production; tests provide
// a fake.
type Scraper interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// NewCatalogExtractor builds a Variant B extractor. authBaseURL and
// apiBaseURL are the catalog's token and REST endpoints; scraper backs
// the HTML fallback used when the REST API can't resolve a URL.
func NewCatalogExtractor(
	httpClient *resty.Client,
	authBaseURL, apiBaseURL, clientID, clientSecret string,
	scraper Scraper,
) *CatalogExtractor {
	return &CatalogExtractor{
		rc:           httpClient,
		authBaseURL:  authBaseURL,
		apiBaseURL:   apiBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scraper:      scraper,
	}
}

// Extract resolves rawURL to a playlist or album id and pages its
// tracks. On any API failure or an empty result it falls back to
// scraping the public page.
func (e *CatalogExtractor) Extract(ctx context.Context, rawURL string) ([]Candidate, error) {
	kind, id := parseCatalogID(rawURL)
	if id != "" {
		candidates, err := e.fetchViaAPI(ctx, kind, id)
		if err == nil && len(candidates) > 0 {
			return clamp(candidates), nil
		}

		if err != nil {
			logger.Warnf(ctx, "extractor: variant B api fetch %s %s: %v", kind, id, err)
		}
	}

	candidates, err := e.scrapeFallback(ctx, rawURL)
	if err != nil {
		logger.Warnf(ctx, "extractor: variant B scrape fallback: %v", err)

		return nil, nil
	}

	return clamp(candidates), nil
}

// parseCatalogID accepts both web URLs and URI-style identifiers for
// playlists and albums.
func parseCatalogID(rawURL string) (kind, id string) {
	if id = utils.ExtractNamedGroup(catalogIDPattern, "playlist", rawURL); id != "" {
		return "playlist", id
	}

	if id = utils.ExtractNamedGroup(catalogIDPattern, "album", rawURL); id != "" {
		return "album", id
	}

	return "", ""
}

func (e *CatalogExtractor) fetchViaAPI(ctx context.Context, kind, id string) ([]Candidate, error) {
	token, err := e.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("extractor: variant B token: %w", err)
	}

	pageSize := tracksPageSize
	path := fmt.Sprintf("/playlists/%s/tracks", id)

	if kind == "album" {
		pageSize = albumPageSize
		path = fmt.Sprintf("/albums/%s/tracks", id)
	}

	var (
		candidates []Candidate
		next       = fmt.Sprintf("%s?limit=%d", path, pageSize)
	)

	for next != "" {
		var page catalogTracksResponse

		resp, err := e.rc.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&page).
			Get(e.apiBaseURL + next)
		if err != nil {
			return candidates, fmt.Errorf("extractor: variant B fetch tracks: %w", err)
		}

		if resp.IsError() {
			return candidates, fmt.Errorf("extractor: variant B fetch tracks: http %d", resp.StatusCode())
		}

		for _, item := range page.Items {
			candidates = append(candidates, trackItemToCandidate(item))

			if len(candidates) >= constants.MaxCandidatesPerBatch {
				return candidates, nil
			}
		}

		next = page.Next
	}

	return candidates, nil
}

func trackItemToCandidate(item catalogTrackItem) Candidate {
	artist := ""
	if len(item.Track.Artists) > 0 {
		artist = item.Track.Artists[0].Name
	}

	thumbnail := ""
	if len(item.Track.Album.Images) > 0 {
		thumbnail = item.Track.Album.Images[0].URL
	}

	var durationSeconds *int
	if item.Track.DurationMS > 0 {
		seconds := item.Track.DurationMS / 1000
		durationSeconds = &seconds
	}

	return Candidate{
		Title:           item.Track.Name,
		Artist:          artist,
		DurationSeconds: durationSeconds,
		ThumbnailURL:    thumbnail,
	}
}

// token returns a cached client-credentials access token, refreshing
// it when missing or within tokenRefreshSkew of expiry. Synchronized
// so concurrent extractors share one refresh.
func (e *CatalogExtractor) token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.accessToken != "" && time.Now().Add(tokenRefreshSkew).Before(e.expiresAt) {
		return e.accessToken, nil
	}

	var body tokenResponse

	resp, err := e.rc.R().
		SetContext(ctx).
		SetBasicAuth(e.clientID, e.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&body).
		Post(e.authBaseURL + "/token")
	if err != nil {
		return "", fmt.Errorf("extractor: token request: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("extractor: token request: http %d", resp.StatusCode())
	}

	e.accessToken = body.AccessToken
	e.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)

	return e.accessToken, nil
}

// scrapeFallback renders the public page and tries, in order: parsing
// a MusicPlaylist/MusicAlbum JSON-LD block, DOM track-row selectors,
// and finally a single last-ditch candidate built from the page title
// and the first segment of its description.
func (e *CatalogExtractor) scrapeFallback(ctx context.Context, rawURL string) ([]Candidate, error) {
	if e.scraper == nil {
		return nil, nil
	}

	html, err := e.scraper.Render(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("extractor: render page: %w", err)
	}

	if candidates := parseLinkedData(html); len(candidates) > 0 {
		return candidates, nil
	}

	if candidates := parseTrackRowSelectors(html); len(candidates) > 0 {
		return candidates, nil
	}

	return lastDitchCandidate(html), nil
}

type linkedDataBlock struct {
	Type  string             `json:"@type"`
	Name  string              `json:"name"`
	Track []linkedDataSummary `json:"track"`
}

type linkedDataSummary struct {
	Name     string `json:"name"`
	ByArtist struct {
		Name string `json:"name"`
	} `json:"byArtist"`
	Duration string `json:"duration"`
}

//nolint:gochecknoglobals // Immutable, pre-compiled regex used as a constant.
var jsonLDPattern = regexp.MustCompile(
	`(?s)<script[^>]*type="application/ld\+json"[^>]*>(.*?)</script>`)

// parseLinkedData scans every JSON-LD script block on the page for one
// tagged MusicPlaylist or MusicAlbum.
func parseLinkedData(html string) []Candidate {
	for _, match := range jsonLDPattern.FindAllStringSubmatch(html, -1) {
		var block linkedDataBlock

		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &block); err != nil {
			continue
		}

		if block.Type != "MusicPlaylist" && block.Type != "MusicAlbum" {
			continue
		}

		candidates := make([]Candidate, 0, len(block.Track))
		for _, track := range block.Track {
			candidates = append(candidates, Candidate{
				Title:  track.Name,
				Artist: track.ByArtist.Name,
			})
		}

		if len(candidates) > 0 {
			return candidates
		}
	}

	return nil
}

//nolint:gochecknoglobals // Immutable, pre-compiled regex used as a constant.
var trackRowPattern = regexp.MustCompile(
	`(?s)class="track-row"[^>]*>.*?class="track-title"[^>]*>([^<]+)<.*?class="track-artist"[^>]*>([^<]+)<`)

// parseTrackRowSelectors is a coarse DOM-selector fallback for pages
// that render their track list server-side without linked data.
func parseTrackRowSelectors(html string) []Candidate {
	matches := trackRowPattern.FindAllStringSubmatch(html, -1)
	candidates := make([]Candidate, 0, len(matches))

	for _, match := range matches {
		candidates = append(candidates, Candidate{
			Title:  strings.TrimSpace(match[1]),
			Artist: strings.TrimSpace(match[2]),
		})
	}

	return candidates
}

//nolint:gochecknoglobals // Immutable, pre-compiled regexes used as constants.
var (
	ogTitlePattern = regexp.MustCompile(`<meta[^>]*property="og:title"[^>]*content="([^"]*)"`)
	ogDescPattern  = regexp.MustCompile(`<meta[^>]*property="og:description"[^>]*content="([^"]*)"`)
)

// lastDitchCandidate emits a single candidate from the page's og:title
// and the first segment of its og:description, when nothing more
// structured could be found.
func lastDitchCandidate(html string) []Candidate {
	titleMatch := ogTitlePattern.FindStringSubmatch(html)
	if titleMatch == nil {
		return nil
	}

	artist := ""
	if descMatch := ogDescPattern.FindStringSubmatch(html); descMatch != nil {
		artist = firstSegment(descMatch[1])
	}

	return []Candidate{{Title: titleMatch[1], Artist: artist}}
}

func firstSegment(description string) string {
	for _, sep := range []string{" · ", " - ", "\n", "|"} {
		if idx := strings.Index(description, sep); idx > 0 {
			return strings.TrimSpace(description[:idx])
		}
	}

	return strings.TrimSpace(description)
}
