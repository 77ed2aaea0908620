package extractor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/musicgrab/engine/internal/utils"
)

// Catalog pages hydrate their track lists after the load event fires;
// a short randomized settle window lets that finish without tripping
// bot heuristics with a fixed delay.
const (
	settlePauseMin = 500 * time.Millisecond
	settlePauseMax = 1500 * time.Millisecond
)

// BrowserScraper renders a page with a stealth-patched headless
// browser, so catalog pages that only populate their track list via
// client-side JavaScript still yield HTML the regex-based parsers in
// variant_b.go can read. One shared browser instance, a fresh stealth
// page per render, a panic guard around the one place in this tree
// that talks to an external process.
type BrowserScraper struct {
	browser   *rod.Browser
	connected atomic.Bool
}

// NewBrowserScraper builds a headless browser handle for on-demand
// page rendering; the browser is launched and connected on first Render.
func NewBrowserScraper() *BrowserScraper {
	return &BrowserScraper{browser: rod.New()}
}

// Close disconnects the underlying browser. It is a no-op when Render
// never connected one.
func (s *BrowserScraper) Close() error {
	if !s.connected.Load() {
		return nil
	}

	return s.browser.Close()
}

// Render opens rawURL in a stealth page and returns the fully
// rendered HTML once the page settles.
func (s *BrowserScraper) Render(ctx context.Context, rawURL string) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor: browser scraper panic: %v", r)
		}
	}()

	if connectErr := s.browser.Connect(); connectErr != nil {
		return "", fmt.Errorf("extractor: connect browser: %w", connectErr)
	}

	s.connected.Store(true)

	page, err := stealth.Page(s.browser)
	if err != nil {
		return "", fmt.Errorf("extractor: open stealth page: %w", err)
	}

	defer page.Close() //nolint:errcheck // best effort.

	page = page.Context(ctx)

	if err = page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("extractor: navigate: %w", err)
	}

	if err = page.WaitLoad(); err != nil {
		return "", fmt.Errorf("extractor: wait load: %w", err)
	}

	utils.RandomPause(settlePauseMin, settlePauseMax)

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("extractor: read html: %w", err)
	}

	return html, nil
}
