package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/downloader"
	"github.com/musicgrab/engine/internal/fingerprint"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/model"
	"github.com/musicgrab/engine/internal/resolver"
	"github.com/musicgrab/engine/internal/tagger"
	"github.com/musicgrab/engine/internal/utils"
)

const defaultDispatchSpacing = 250 * time.Millisecond

// dispatchSpacing returns the configured inter-dispatch pause, falling
// back to the standard 250ms when the caller left it unset.
func (o *Orchestrator) dispatchSpacing() time.Duration {
	if o.cfg.RequestSpacing <= 0 {
		return defaultDispatchSpacing
	}

	return o.cfg.RequestSpacing
}

// Run starts the dispatch loop, ramp-up task, and watchdog as
// background goroutines, and runs crash recovery once up front. It
// returns immediately; call Shutdown to stop the background tasks.
// Under DryRun none of the loops start: batches extract and match,
// their tracks queue, and the engine goes no further.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.recoverFromCrash(ctx); err != nil {
		return fmt.Errorf("orchestrator: crash recovery: %w", err)
	}

	if o.cfg.DryRun {
		return nil
	}

	o.wg.Add(3)

	go func() {
		defer o.wg.Done()
		o.dispatchLoop(ctx)
	}()

	go func() {
		defer o.wg.Done()
		o.rampUpLoop(ctx)
	}()

	go func() {
		defer o.wg.Done()
		o.watchdogLoop(ctx)
	}()

	return nil
}

// dispatchLoop is the FIFO scheduler. Sleeps
// out any active rate-limit cooldown, respects the current concurrency
// ceiling, and otherwise pulls the oldest QUEUED track every
// dispatchSpacing, prefetching stream URLs for the upcoming lookahead
// window.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(o.dispatchSpacing())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
		}

		if wait := o.rateLimitWait(); wait > 0 {
			continue
		}

		if o.isRecovering.Load() || o.activeWorkerCount() >= o.maxConcurrent() {
			continue
		}

		queued, err := o.store.GetQueuedTracks(ctx)
		if err != nil {
			logger.Errorf(ctx, "orchestrator: list queued tracks: %v", err)

			continue
		}

		if len(queued) == 0 {
			continue
		}

		o.prefetchLookahead(queued)

		track := queued[0]
		if !o.transition(ctx, track, model.TrackDispatching) {
			continue
		}

		o.incActiveWorkers()

		o.wg.Add(1)

		go func(t *model.Track) {
			defer o.wg.Done()
			defer o.decActiveWorkers()

			o.runWorker(ctx, t)
		}(track)
	}
}

func (o *Orchestrator) prefetchLookahead(queued []*model.Track) {
	n := constants.PrefetchLookahead
	if n > len(queued) {
		n = len(queued)
	}

	for _, t := range queued[:n] {
		if t.SourceVideoID != "" {
			o.resolve.Prefetch(t.SourceVideoID)
		}
	}
}

func (o *Orchestrator) rateLimitWait() time.Duration {
	until := time.Unix(0, o.rateLimitUntil.Load())

	remaining := time.Until(until)
	if remaining <= 0 {
		return 0
	}

	return remaining
}

func (o *Orchestrator) activeWorkerCount() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.activeWorkers
}

func (o *Orchestrator) incActiveWorkers() {
	o.mu.Lock()
	o.activeWorkers++
	o.mu.Unlock()
}

func (o *Orchestrator) decActiveWorkers() {
	o.mu.Lock()
	o.activeWorkers--
	o.mu.Unlock()
}

func (o *Orchestrator) maxConcurrent() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.currentMaxConcurrent
}

// runWorker takes a DISPATCHING track through DOWNLOADING to a
// terminal status.
func (o *Orchestrator) runWorker(ctx context.Context, track *model.Track) {
	o.markWatchdog(track.ID)
	defer o.clearWatchdog(track.ID)

	if !o.transition(ctx, track, model.TrackDownloading) {
		return
	}

	streamURL, err := o.resolve.Resolve(ctx, track.SourceVideoID)
	if err != nil {
		o.handleWorkerFailure(ctx, track, err)

		return
	}

	destPath := o.destinationPath(track, streamURL)
	tmpPath := destPath + constants.TempFileSuffix

	progress := func(p downloader.Progress) {
		o.mu.Lock()
		track.BytesDownloaded = p.Downloaded
		track.TotalBytes = p.Total
		o.mu.Unlock()

		o.markWatchdog(track.ID)
	}

	if err = o.dl.Download(ctx, streamURL, tmpPath, progress); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup.
		o.handleWorkerFailure(ctx, track, err)

		return
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		logger.Errorf(ctx, "orchestrator: commit %s: %v", destPath, err)
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup.

		o.mu.Lock()
		track.ErrorCode = errCodeFatalIO
		o.mu.Unlock()

		o.transition(ctx, track, model.TrackFailed)

		return
	}

	if err = tagger.WriteTags(destPath, track.Title, track.Artist); err != nil {
		logger.Warnf(ctx, "orchestrator: tag %s: %v", destPath, err)
	}

	o.mu.Lock()
	track.OutputFilePath = destPath
	track.ErrorCode = ""

	// The progress callback is throttled, so the last snapshot may lag
	// the bytes actually on disk. The committed file is the source of
	// truth.
	if info, statErr := os.Stat(destPath); statErr == nil {
		track.BytesDownloaded = info.Size()
		track.TotalBytes = info.Size()
	}

	if o.currentMaxConcurrent < o.cfg.MaxConcurrent {
		o.currentMaxConcurrent++
	}

	o.lastSuccessTime.Store(time.Now().UnixNano())
	o.consecutiveRateLimits.Store(0)
	o.mu.Unlock()

	o.transition(ctx, track, model.TrackCompleted)
}

func (o *Orchestrator) destinationPath(track *model.Track, streamURL string) string {
	base := fingerprint.Sanitize(track.Artist) + " - " + fingerprint.Sanitize(track.Title)

	name := utils.SanitizeFilename(base)
	if len(name) > constants.MaxFilenameLength {
		name = name[:constants.MaxFilenameLength]
	}

	ext := constants.ExtensionOpus

	if parsed, err := url.Parse(streamURL); err == nil {
		if e := filepath.Ext(parsed.Path); e != "" {
			ext = e
		}
	}

	return filepath.Join(o.cfg.OutputDir, utils.SetFileExtension(name, ext, false))
}

// Worker failure codes surfaced through the track's error_code column.
const (
	errCodeRateLimited      = "RATE_LIMITED"
	errCodeStreamResolution = "STREAM_RESOLUTION_FAILED"
	errCodeDownloadFailed   = "DOWNLOAD_FAILED"
	errCodeFatalIO          = "FATAL_IO"
)

func workerErrorCode(err error) string {
	switch {
	case errors.Is(err, downloader.ErrRateLimited):
		return errCodeRateLimited
	case errors.Is(err, resolver.ErrAllMethodsFailed):
		return errCodeStreamResolution
	default:
		return errCodeDownloadFailed
	}
}

// handleWorkerFailure applies the worker failure policy:
// rate-limit responses also trigger a global cooldown and concurrency
// halving; every failure increments retry_count and requeues until
// the count exceeds MaxRetries, then fails terminally.
func (o *Orchestrator) handleWorkerFailure(ctx context.Context, track *model.Track, err error) {
	logger.Warnf(ctx, "orchestrator: worker failure for %s: %v", track.ID, err)

	if errIsRateLimited(err) {
		o.applyRateLimitCooldown()
	}

	o.mu.Lock()
	track.RetryCount++
	track.ErrorCode = workerErrorCode(err)
	retryCount := track.RetryCount
	o.mu.Unlock()

	if retryCount > o.maxRetries() {
		o.transition(ctx, track, model.TrackFailed)

		return
	}

	o.transition(ctx, track, model.TrackQueued)
}

// maxRetries returns the configured retry budget, falling back to
// model.MaxRetries when the caller left it unset.
func (o *Orchestrator) maxRetries() int {
	if o.cfg.MaxRetries <= 0 {
		return model.MaxRetries
	}

	return o.cfg.MaxRetries
}

func errIsRateLimited(err error) bool {
	return errors.Is(err, downloader.ErrRateLimited)
}

// applyRateLimitCooldown halves the concurrency ceiling (not below
// MinConcurrent) and sets a streak-scaled cooldown window.
func (o *Orchestrator) applyRateLimitCooldown() {
	streak := o.consecutiveRateLimits.Add(1)

	cooldown := constants.RateLimitCooldownLongSeconds

	switch {
	case streak == 1:
		cooldown = constants.RateLimitCooldownFirstSeconds
	case streak <= 3:
		cooldown = constants.RateLimitCooldownMidSeconds
	}

	o.rateLimitUntil.Store(time.Now().Add(time.Duration(cooldown) * time.Second).UnixNano())

	o.mu.Lock()
	half := o.currentMaxConcurrent / 2
	if half < o.cfg.MinConcurrent {
		half = o.cfg.MinConcurrent
	}

	o.currentMaxConcurrent = half
	o.mu.Unlock()
}

func (o *Orchestrator) markWatchdog(trackID string) {
	o.watchdogMu.Lock()
	o.watchdog[trackID] = time.Now()
	o.watchdogMu.Unlock()
}

func (o *Orchestrator) clearWatchdog(trackID string) {
	o.watchdogMu.Lock()
	delete(o.watchdog, trackID)
	o.watchdogMu.Unlock()
}
