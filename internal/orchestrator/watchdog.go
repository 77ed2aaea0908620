package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/model"
)

const defaultStalledTrackTimeout = 90 * time.Second

// stalledTrackTimeout returns the configured watchdog stall threshold,
// falling back to the standard 90s when the caller left it unset.
func (o *Orchestrator) stalledTrackTimeout() time.Duration {
	if o.cfg.WatchdogTimeout <= 0 {
		return defaultStalledTrackTimeout
	}

	return o.cfg.WatchdogTimeout
}

// watchdogLoop force-requeues tracks stuck past stalledTrackTimeout
// and flags an invariant breach: active
// workers present with no matching watchdog entry.
func (o *Orchestrator) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(constants.WatchdogSweepIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
		}

		o.sweepStalled(ctx)
	}
}

func (o *Orchestrator) sweepStalled(ctx context.Context) {
	now := time.Now()

	timeout := o.stalledTrackTimeout()

	o.watchdogMu.Lock()
	stalled := make([]string, 0)
	watched := len(o.watchdog)

	for trackID, last := range o.watchdog {
		if now.Sub(last) > timeout {
			stalled = append(stalled, trackID)
		}
	}
	o.watchdogMu.Unlock()

	if watched == 0 && o.activeWorkerCount() > 0 {
		logger.Errorf(ctx, "orchestrator: invariant breach: active workers present with an empty watchdog map")

		o.mu.Lock()
		o.activeWorkers = 0
		o.mu.Unlock()
	}

	for _, trackID := range stalled {
		track, err := o.store.GetTrack(ctx, trackID)
		if err != nil {
			logger.Warnf(ctx, "orchestrator: watchdog lookup %s: %v", trackID, err)

			continue
		}

		logger.Warnf(ctx, "orchestrator: force-requeuing stalled track %s", trackID)
		o.clearWatchdog(trackID)
		o.transition(ctx, track, model.TrackQueued)
	}
}

// rampUpLoop restores concurrency by one step every RampUp interval as
// long as the engine has seen a recent clean success and is not
// currently in a rate-limit cooldown.
func (o *Orchestrator) rampUpLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(constants.RampUpIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
		}

		o.maybeRampUp()
	}
}

func (o *Orchestrator) maybeRampUp() {
	if o.rateLimitWait() > 0 {
		return
	}

	lastSuccess := time.Unix(0, o.lastSuccessTime.Load())
	if lastSuccess.IsZero() || time.Since(lastSuccess) > time.Duration(constants.RampUpQuietPeriodSeconds)*time.Second {
		return
	}

	o.mu.Lock()
	if o.currentMaxConcurrent < o.cfg.MaxConcurrent {
		o.currentMaxConcurrent++
	}
	o.mu.Unlock()
}

// recoverFromCrash scans for tracks stranded in DISPATCHING or
// DOWNLOADING from a prior process lifetime, deletes their partial
// download artifacts, and requeues them.
func (o *Orchestrator) recoverFromCrash(ctx context.Context) error {
	o.isRecovering.Store(true)
	defer o.isRecovering.Store(false)

	stalled, err := o.store.GetStalledTracks(ctx)
	if err != nil {
		return fmt.Errorf("list stalled tracks: %w", err)
	}

	for _, track := range stalled {
		removePartialArtifacts(o.destinationGuess(track))
		logger.Infof(ctx, "orchestrator: recovering stalled track %s from prior run", track.ID)
		o.transition(ctx, track, model.TrackQueued)
	}

	o.mu.Lock()
	o.activeWorkers = 0
	o.mu.Unlock()

	return nil
}

// destinationGuess reconstructs the path a prior run would have
// written to, purely from the track's own fields (no network access),
// so recovery can clean up its temp and segment siblings.
func (o *Orchestrator) destinationGuess(track *model.Track) string {
	if track.OutputFilePath != "" {
		return track.OutputFilePath
	}

	return o.destinationPath(track, "")
}

func removePartialArtifacts(destPath string) {
	if destPath == "" {
		return
	}

	os.Remove(destPath)                            //nolint:errcheck // best effort, may not exist.
	os.Remove(destPath + constants.TempFileSuffix) //nolint:errcheck // best effort, may not exist.

	for i := 0; i < 8; i++ {
		os.Remove(fmt.Sprintf("%s%s%d", destPath, constants.SegmentFilePrefix, i)) //nolint:errcheck // best effort.
	}
}
