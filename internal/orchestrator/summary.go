package orchestrator

import (
	"context"
	"fmt"

	"github.com/musicgrab/engine/internal/model"
)

// Summary is a human-readable tally of one batch's outcome, printed by
// the CLI host after a run completes.
type Summary struct {
	BatchID        string
	State          model.BatchState
	TotalTracks    int
	CompletedCount int
	FailedCount    int
	AwaitingUser   int

	// MatchingCount tallies tracks still in extraction or matching;
	// QueuedCount tallies tracks matched and waiting on (or in) a
	// download worker.
	MatchingCount   int
	QueuedCount     int
	BytesDownloaded int64
	FailedTracks    []TrackFailure
}

// TrackFailure names one terminally failed track and why.
type TrackFailure struct {
	Title  string
	Artist string
	Reason string
}

// Summary reports a batch's current tally, computed from its
// persisted tracks rather than any in-memory counter, so it is
// accurate even across a process restart.
func (o *Orchestrator) Summary(ctx context.Context, batchID string) (Summary, error) {
	batch, tracks, err := o.store.GetBatchWithTracks(ctx, batchID)
	if err != nil {
		return Summary{}, fmt.Errorf("orchestrator: summary for %s: %w", batchID, err)
	}

	summary := Summary{
		BatchID:     batch.ID,
		State:       batch.State,
		TotalTracks: batch.TotalTracks,
	}

	for _, t := range tracks {
		summary.BytesDownloaded += t.BytesDownloaded

		switch t.Status {
		case model.TrackCompleted:
			summary.CompletedCount++
		case model.TrackFailed:
			summary.FailedCount++
			summary.FailedTracks = append(summary.FailedTracks, TrackFailure{
				Title: t.Title, Artist: t.Artist, Reason: t.ErrorCode,
			})
		case model.TrackMatchedLowConfidence, model.TrackMatchingManual:
			summary.AwaitingUser++
		case model.TrackExtracted, model.TrackMatching:
			summary.MatchingCount++
		case model.TrackMatched, model.TrackQueued, model.TrackDispatching, model.TrackDownloading:
			summary.QueuedCount++
		}
	}

	return summary, nil
}

// ListBatches returns every submitted batch, most recent first.
func (o *Orchestrator) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	return o.store.ListBatches(ctx)
}
