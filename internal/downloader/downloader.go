// Package downloader fetches a stream URL to a destination path,
// splitting into parallel byte-ranged segments when the server
// supports it and the file is large enough.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/musicgrab/engine/internal/constants"
)

// ErrRateLimited distinguishes a 429/403 response from a generic
// download failure, so the orchestrator can trigger the global
// cooldown.
var ErrRateLimited = errors.New("downloader: rate limited")

// ErrDownloadFailed covers any other non-2xx response.
var ErrDownloadFailed = errors.New("downloader: request failed")

const (
	segmentCount          = 4
	minSegmentSizeDefault = 256 * 1024
	readBufferBytes       = constants.DownloadReadBufferBytes
	progressIntervalMS    = constants.ProgressReportIntervalMS
)

// Progress is a throttled download progress snapshot.
type Progress struct {
	Total          int64
	Downloaded     int64
	BytesPerSecond float64
}

// ProgressFunc receives throttled progress updates, at most once every
// progressIntervalMS.
type ProgressFunc func(Progress)

// Downloader fetches a URL to a file, splitting into parallel
// byte-ranged segments when the server advertises range support and
// the content is large enough.
type Downloader struct {
	httpClient     *http.Client
	segments       int
	minSegmentSize int64
}

// New builds a Downloader. segments and minSegmentSize default to
// N=4 and a 256KiB×4 threshold when zero.
func New(httpClient *http.Client, segments int, minSegmentSize int64) *Downloader {
	if segments <= 0 {
		segments = segmentCount
	}

	if minSegmentSize <= 0 {
		minSegmentSize = minSegmentSizeDefault
	}

	return &Downloader{httpClient: httpClient, segments: segments, minSegmentSize: minSegmentSize}
}

// probeResult is what a HEAD request tells us about range support.
type probeResult struct {
	contentLength  int64
	rangesAccepted bool
}

func (d *Downloader) probe(ctx context.Context, url string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return probeResult{}, fmt.Errorf("downloader: build head request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return probeResult{}, fmt.Errorf("downloader: head request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck // best effort.

	if err = statusError(resp.StatusCode); err != nil {
		return probeResult{}, err
	}

	length, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64) //nolint:errcheck // defaults to 0.
	acceptRanges := resp.Header.Get("Accept-Ranges")

	return probeResult{
		contentLength:  length,
		rangesAccepted: acceptRanges != "" && acceptRanges != "none",
	}, nil
}

// Download fetches url to destPath, reporting throttled progress.
// Segment files and any partial destination are removed on failure.
func (d *Downloader) Download(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	probe, err := d.probe(ctx, url)
	if err != nil {
		return err
	}

	threshold := d.minSegmentSize * int64(d.segments)

	if probe.rangesAccepted && probe.contentLength > threshold {
		return d.downloadSegmented(ctx, url, destPath, probe.contentLength, onProgress)
	}

	return d.downloadSingle(ctx, url, destPath, onProgress)
}

func (d *Downloader) downloadSingle(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("downloader: build get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloader: get request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck // best effort.

	if err = statusError(resp.StatusCode); err != nil {
		return err
	}

	out, err := os.Create(destPath) //nolint:gosec // destPath is engine-constructed, not user input.
	if err != nil {
		return fmt.Errorf("downloader: create destination: %w", err)
	}

	defer out.Close() //nolint:errcheck // best effort.

	total := resp.ContentLength
	if err = copyThrottled(ctx, out, resp.Body, total, onProgress); err != nil {
		os.Remove(destPath) //nolint:errcheck // best-effort cleanup on failure.

		return err
	}

	return nil
}

type segmentRange struct {
	index      int
	start, end int64
}

func buildRanges(total int64, segments int) []segmentRange {
	size := total / int64(segments)
	ranges := make([]segmentRange, segments)

	for i := range segments {
		start := int64(i) * size
		end := start + size - 1

		if i == segments-1 {
			end = total - 1
		}

		ranges[i] = segmentRange{index: i, start: start, end: end}
	}

	return ranges
}

func (d *Downloader) downloadSegmented(
	ctx context.Context, url, destPath string, total int64, onProgress ProgressFunc,
) error {
	ranges := buildRanges(total, d.segments)
	segPaths := make([]string, len(ranges))

	var (
		mu         sync.Mutex
		downloaded int64
		startTime  = time.Now()
		lastEmit   time.Time
		eg         errGroup
	)

	report := func(delta int64) {
		mu.Lock()
		downloaded += delta
		now := time.Now()

		shouldEmit := now.Sub(lastEmit) >= progressIntervalMS*time.Millisecond
		if shouldEmit {
			lastEmit = now
		}

		snapshot := downloaded
		mu.Unlock()

		if onProgress == nil || !shouldEmit {
			return
		}

		elapsed := now.Sub(startTime).Seconds()
		rate := 0.0

		if elapsed > 0 {
			rate = float64(snapshot) / elapsed
		}

		onProgress(Progress{Total: total, Downloaded: snapshot, BytesPerSecond: rate})
	}

	for _, rng := range ranges {
		rng := rng
		segPath := fmt.Sprintf("%s%s%d", destPath, constants.SegmentFilePrefix, rng.index)
		segPaths[rng.index] = segPath

		eg.Go(func() error {
			return d.fetchSegment(ctx, url, segPath, rng, report)
		})
	}

	if err := eg.Wait(); err != nil {
		cleanupSegments(segPaths)

		return err
	}

	if err := mergeSegments(destPath, segPaths); err != nil {
		cleanupSegments(segPaths)
		os.Remove(destPath) //nolint:errcheck // best-effort cleanup on failure.

		return err
	}

	cleanupSegments(segPaths)

	return nil
}

func (d *Downloader) fetchSegment(
	ctx context.Context, url, segPath string, rng segmentRange, report func(int64),
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("downloader: build segment request: %w", err)
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.start, rng.end))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloader: segment request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck // best effort.

	if resp.StatusCode != http.StatusPartialContent {
		if err = statusError(resp.StatusCode); err != nil {
			return err
		}

		return fmt.Errorf("%w: expected 206, got %d", ErrDownloadFailed, resp.StatusCode)
	}

	out, err := os.Create(segPath) //nolint:gosec // segPath is engine-constructed.
	if err != nil {
		return fmt.Errorf("downloader: create segment: %w", err)
	}

	defer out.Close() //nolint:errcheck // best effort.

	buf := make([]byte, readBufferBytes)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("downloader: write segment: %w", writeErr)
			}

			report(int64(n))
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			return fmt.Errorf("downloader: read segment: %w", readErr)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// mergeSegments concatenates segment files into dest in strictly
// increasing index order.
func mergeSegments(dest string, segPaths []string) error {
	out, err := os.Create(dest) //nolint:gosec // dest is engine-constructed.
	if err != nil {
		return fmt.Errorf("downloader: create merged destination: %w", err)
	}

	defer out.Close() //nolint:errcheck // best effort.

	indices := make([]int, len(segPaths))
	for i := range indices {
		indices[i] = i
	}

	sort.Ints(indices)

	for _, i := range indices {
		if err = appendSegment(out, segPaths[i]); err != nil {
			return err
		}
	}

	return nil
}

func appendSegment(out *os.File, segPath string) error {
	in, err := os.Open(segPath) //nolint:gosec // segPath is engine-constructed.
	if err != nil {
		return fmt.Errorf("downloader: open segment %s: %w", segPath, err)
	}

	defer in.Close() //nolint:errcheck // best effort.

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("downloader: append segment %s: %w", segPath, err)
	}

	return nil
}

func cleanupSegments(segPaths []string) {
	for _, path := range segPaths {
		if path != "" {
			os.Remove(path) //nolint:errcheck // best-effort cleanup.
		}
	}
}

func copyThrottled(ctx context.Context, out io.Writer, in io.Reader, total int64, onProgress ProgressFunc) error {
	buf := make([]byte, readBufferBytes)

	var (
		downloaded int64
		startTime  = time.Now()
		lastEmit   time.Time
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("downloader: write: %w", writeErr)
			}

			downloaded += int64(n)

			now := time.Now()
			if onProgress != nil && now.Sub(lastEmit) >= progressIntervalMS*time.Millisecond {
				lastEmit = now
				elapsed := now.Sub(startTime).Seconds()
				rate := 0.0

				if elapsed > 0 {
					rate = float64(downloaded) / elapsed
				}

				onProgress(Progress{Total: total, Downloaded: downloaded, BytesPerSecond: rate})
			}
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			return fmt.Errorf("downloader: read: %w", readErr)
		}
	}
}

func statusError(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", ErrRateLimited, status)
	case status >= 200 && status < 300:
		return nil
	default:
		return fmt.Errorf("%w: http %d", ErrDownloadFailed, status)
	}
}

// errGroup is a minimal first-error-wins fan-out. Unlike an errgroup
// built WithContext, it does not cancel sibling goroutines on the
// first error; Wait returns once every goroutine has finished.
type errGroup struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	firstErr error
}

func (g *errGroup) Go(fn func() error) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		if err := fn(); err != nil {
			g.mu.Lock()

			if g.firstErr == nil {
				g.firstErr = err
			}

			g.mu.Unlock()
		}
	}()
}

func (g *errGroup) Wait() error {
	g.wg.Wait()

	return g.firstErr
}
