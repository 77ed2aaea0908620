package orchestrator

import (
	"context"
	"sync"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/model"
)

// runMatchingPhase walks every freshly extracted track through the
// matching pipeline with bounded concurrency.
func (o *Orchestrator) runMatchingPhase(ctx context.Context, batchID string, tracks []*model.Track) {
	sem := make(chan struct{}, constants.MatchingConcurrency)

	var wg sync.WaitGroup

	for _, track := range tracks {
		if track.SourceVideoID != "" {
			// Variant A's native fast path: skip the mapper entirely.
			o.fastPathQueue(ctx, track)

			continue
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(t *model.Track) {
			defer wg.Done()
			defer func() { <-sem }()

			o.matchOne(ctx, t)
		}(track)
	}

	wg.Wait()

	logger.Infof(ctx, "orchestrator: matching phase complete for batch %s", batchID)
}

// fastPathQueue moves a track with an already-known source id straight
// to MATCHED then QUEUED and warms the stream cache.
func (o *Orchestrator) fastPathQueue(ctx context.Context, track *model.Track) {
	if !o.transition(ctx, track, model.TrackMatched) {
		return
	}

	if !o.transition(ctx, track, model.TrackQueued) {
		return
	}

	o.resolve.Prefetch(track.SourceVideoID)
}

// matchOne runs the mapper's slow path on one track and routes the
// result to MATCHED, MATCHED_LOW_CONFIDENCE, or FAILED based on the
// confidence threshold.
func (o *Orchestrator) matchOne(ctx context.Context, track *model.Track) {
	if !o.transition(ctx, track, model.TrackMatching) {
		return
	}

	result, err := o.mapper.Map(ctx, track.Title, track.Artist, track.DurationSeconds)
	if err != nil {
		logger.Warnf(ctx, "orchestrator: mapping track %s: %v", track.ID, err)
		o.transition(ctx, track, model.TrackFailed)

		return
	}

	if result.SourceVideoID == "" {
		o.transition(ctx, track, model.TrackFailed)

		return
	}

	o.mu.Lock()
	track.SourceVideoID = result.SourceVideoID
	confidence := result.Confidence
	track.MatchConfidence = &confidence
	o.mu.Unlock()

	if result.Confidence >= constants.MatchConfidenceThreshold {
		if o.transition(ctx, track, model.TrackMatched) {
			if o.transition(ctx, track, model.TrackQueued) {
				o.resolve.Prefetch(track.SourceVideoID)
			}
		}

		return
	}

	o.transition(ctx, track, model.TrackMatchedLowConfidence)
}
