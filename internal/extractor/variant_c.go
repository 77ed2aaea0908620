package extractor

import (
	"context"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// ScrapeExtractor is the Variant C catalog extractor: it fetches the
// page and reads only its `og:title`/`og:description`/`og:image` meta
// tags, emitting at most one candidate. Uses x/net/html's tokenizer
// rather than a regex scrape.
type ScrapeExtractor struct {
	httpClient *http.Client
}

// NewScrapeExtractor builds a Variant C extractor over httpClient.
func NewScrapeExtractor(httpClient *http.Client) *ScrapeExtractor {
	return &ScrapeExtractor{httpClient: httpClient}
}

// Extract fetches rawURL and reads its Open Graph meta tags.
func (e *ScrapeExtractor) Extract(ctx context.Context, rawURL string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil //nolint:nilerr // extraction errors never propagate past this extractor.
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, nil //nolint:nilerr // see above.
	}

	defer resp.Body.Close() //nolint:errcheck // best effort.

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	meta := parseOGMeta(resp.Body)

	if meta["og:title"] == "" {
		return nil, nil
	}

	return []Candidate{{
		Title:        meta["og:title"],
		Artist:       firstSegment(meta["og:description"]),
		ThumbnailURL: meta["og:image"],
	}}, nil
}

// parseOGMeta tokenizes body and collects every `<meta property="og:*"
// content="...">` tag it finds.
func parseOGMeta(body io.Reader) map[string]string {
	meta := make(map[string]string)
	tokenizer := html.NewTokenizer(body)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			name, attrs := tokenizer.TagName()
			if string(name) != "meta" {
				continue
			}

			collectOGAttr(tokenizer, attrs, meta)
		}
	}
}

func collectOGAttr(tokenizer *html.Tokenizer, hasAttrs bool, meta map[string]string) {
	var property, content string

	for hasAttrs {
		var key, val []byte

		key, val, hasAttrs = tokenizer.TagAttr()

		switch string(key) {
		case "property", "name":
			property = string(val)
		case "content":
			content = string(val)
		}
	}

	if strings.HasPrefix(property, "og:") {
		meta[property] = content
	}
}
