// Package orchestrator is the Batch Manager: a scheduling loop, state
// machine, adaptive concurrency governor, watchdog, and crash-recovery
// pass, coordinating the extractor, mapper, resolver, and downloader.
// A worker-pool-over-channel shape, scaled up with a persisted state
// machine.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/downloader"
	"github.com/musicgrab/engine/internal/extractor"
	"github.com/musicgrab/engine/internal/fingerprint"
	"github.com/musicgrab/engine/internal/gateway"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/mapper"
	"github.com/musicgrab/engine/internal/model"
	"github.com/musicgrab/engine/internal/resolver"
	"github.com/musicgrab/engine/internal/store"
)

// Config holds the engine's tunable knobs, sourced from
// config.Config's parsed fields.
type Config struct {
	OutputDir       string
	MaxConcurrent   int64
	MinConcurrent   int64
	MaxRetries      int
	WatchdogTimeout time.Duration
	RequestSpacing  time.Duration
	// DryRun stops the engine after the matching phase: tracks queue up
	// but the dispatch loop never starts, so nothing downloads.
	DryRun bool
}

// Orchestrator owns the batch lifecycle end to end: submission,
// matching, queueing, dispatch, download, and terminal-state
// bookkeeping, serialized through a single mutex.
type Orchestrator struct {
	store   *store.Store
	router  *extractor.Router
	mapper  *mapper.Mapper
	resolve *resolver.Resolver
	dl      *downloader.Downloader
	cfg     Config

	// mu serializes every state transition.
	mu sync.Mutex

	activeWorkers         int64
	currentMaxConcurrent  int64
	rateLimitUntil        atomic.Int64 // unix nanos
	consecutiveRateLimits atomic.Int64
	lastSuccessTime       atomic.Int64 // unix nanos
	isRecovering          atomic.Bool

	watchdogMu sync.Mutex
	watchdog   map[string]time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New wires an Orchestrator from its collaborators.
func New(
	st *store.Store,
	router *extractor.Router,
	mp *mapper.Mapper,
	rs *resolver.Resolver,
	dl *downloader.Downloader,
	cfg Config,
) *Orchestrator {
	o := &Orchestrator{
		store:                st,
		router:               router,
		mapper:               mp,
		resolve:              rs,
		dl:                   dl,
		cfg:                  cfg,
		currentMaxConcurrent: cfg.MaxConcurrent,
		watchdog:             make(map[string]time.Time),
		stopCh:               make(chan struct{}),
	}

	return o
}

// ImportResult summarizes a batch submission.
type ImportResult struct {
	Success    bool
	BatchID    string
	TrackCount int
	Error      string
}

// errCodeExtractionFailed and errCodeBatchTooLarge name the two
// submission failure modes.
const (
	errCodeExtractionFailed = "EXTRACTION_FAILED"
	errCodeBatchTooLarge    = "BATCH_TOO_LARGE"
)

// SubmitBatch runs the extractor for url, inserts Track rows, and
// kicks off the matching phase asynchronously.
func (o *Orchestrator) SubmitBatch(ctx context.Context, url string) (ImportResult, error) {
	now := time.Now()

	batch := &model.Batch{
		SourceURL: url,
		State:     model.BatchExtracting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.InsertBatch(ctx, batch); err != nil {
		return ImportResult{}, fmt.Errorf("orchestrator: insert batch: %w", err)
	}

	platform, candidates, _ := o.router.Extract(ctx, url)
	batch.SourcePlatform = string(platform)

	if len(candidates) == 0 {
		return o.failBatch(ctx, batch, errCodeExtractionFailed, "could not extract")
	}

	if len(candidates) > constants.MaxCandidatesPerBatch {
		return o.failBatch(ctx, batch, errCodeBatchTooLarge, "too large")
	}

	tracks := candidatesToTracks(batch.ID, string(platform), candidates, now)

	if err := o.store.InsertTracksBulk(ctx, tracks); err != nil {
		return ImportResult{}, fmt.Errorf("orchestrator: insert tracks: %w", err)
	}

	batch.State = model.BatchMatching
	batch.TotalTracks = len(tracks)
	batch.UpdatedAt = time.Now()

	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return ImportResult{}, fmt.Errorf("orchestrator: update batch: %w", err)
	}

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		o.runMatchingPhase(context.Background(), batch.ID, tracks)
	}()

	return ImportResult{Success: true, BatchID: batch.ID, TrackCount: len(tracks)}, nil
}

func (o *Orchestrator) failBatch(ctx context.Context, batch *model.Batch, code, message string) (ImportResult, error) {
	batch.State = model.BatchFailed
	batch.ErrorCode = code
	batch.UpdatedAt = time.Now()

	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return ImportResult{}, fmt.Errorf("orchestrator: fail batch: %w", err)
	}

	return ImportResult{Success: false, BatchID: batch.ID, Error: message}, nil
}

func candidatesToTracks(batchID, platform string, candidates []extractor.Candidate, now time.Time) []*model.Track {
	seen := make(map[string]struct{}, len(candidates))
	tracks := make([]*model.Track, 0, len(candidates))

	for _, c := range candidates {
		fp := fingerprint.Compute(c.Title, c.Artist, c.DurationSeconds)
		if _, dup := seen[fp]; dup {
			continue
		}

		seen[fp] = struct{}{}

		tracks = append(tracks, &model.Track{
			BatchID:         batchID,
			Fingerprint:     fp,
			Title:           c.Title,
			Artist:          c.Artist,
			DurationSeconds: c.DurationSeconds,
			ThumbnailURL:    c.ThumbnailURL,
			SourcePlatform:  platform,
			SourceVideoID:   c.SourceVideoID,
			Status:          model.TrackExtracted,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	return tracks
}

// transition applies a legal status edge to track and persists it
// under the orchestrator mutex, then recomputes the owning batch's
// derived state. Illegal edges are a silent no-op.
func (o *Orchestrator) transition(ctx context.Context, track *model.Track, to model.TrackStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	from := track.Status
	if !model.IsTransitionAllowed(from, to) {
		return false
	}

	// A worker whose track was force-requeued by the watchdog holds a
	// stale in-memory status; it discovers the rewrite here and abandons
	// its result.
	if stored, err := o.store.GetTrack(ctx, track.ID); err == nil && stored.Status != from {
		return false
	}

	track.Status = to
	track.UpdatedAt = time.Now()

	if to == model.TrackQueued && (from == model.TrackDispatching || from == model.TrackDownloading) {
		track.BytesDownloaded = 0
		track.TotalBytes = 0
	}

	if err := o.store.UpdateTrack(ctx, track); err != nil {
		logger.Errorf(ctx, "orchestrator: persist transition %s -> %s for %s: %v", from, to, track.ID, err)
		track.Status = from

		return false
	}

	o.recomputeBatchLocked(ctx, track.BatchID)

	return true
}

// recomputeBatchLocked must be called with o.mu held.
func (o *Orchestrator) recomputeBatchLocked(ctx context.Context, batchID string) {
	tracks, err := o.store.GetTracksForBatch(ctx, batchID)
	if err != nil {
		logger.Errorf(ctx, "orchestrator: load tracks for batch %s: %v", batchID, err)

		return
	}

	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		logger.Errorf(ctx, "orchestrator: load batch %s: %v", batchID, err)

		return
	}

	statuses := make([]model.TrackStatus, len(tracks))
	completed, failed := 0, 0

	for i, t := range tracks {
		statuses[i] = t.Status

		switch t.Status {
		case model.TrackCompleted:
			completed++
		case model.TrackFailed:
			failed++
		}
	}

	batch.State = model.DeriveBatchState(statuses)
	batch.CompletedCount = completed
	batch.FailedCount = failed
	batch.UpdatedAt = time.Now()

	if err = o.store.UpdateBatch(ctx, batch); err != nil {
		logger.Errorf(ctx, "orchestrator: persist derived batch state for %s: %v", batchID, err)
	}
}

// Action implements gateway.Gateway.
func (o *Orchestrator) Action(req gateway.Request) gateway.Response {
	ctx := context.Background()

	track, err := o.store.GetTrack(ctx, req.TrackID)
	if err != nil {
		return gateway.Response{Success: false, Error: err.Error()}
	}

	switch req.Kind {
	case gateway.KindAccept:
		return o.actionAccept(ctx, track, req.SourceVideoID)
	case gateway.KindRematch:
		return o.actionRematch(ctx, track)
	case gateway.KindManual:
		if o.transition(ctx, track, model.TrackMatchingManual) {
			return gateway.Response{Success: true}
		}

		return gateway.Response{Success: false, Error: "illegal transition"}
	default:
		return gateway.Response{Success: false, Error: "unknown action kind"}
	}
}

func (o *Orchestrator) actionAccept(ctx context.Context, track *model.Track, sourceVideoID string) gateway.Response {
	if sourceVideoID != "" {
		o.mu.Lock()
		track.SourceVideoID = sourceVideoID
		o.mu.Unlock()
	}

	if !o.transition(ctx, track, model.TrackMatched) {
		return gateway.Response{Success: false, Error: "illegal transition"}
	}

	if !o.transition(ctx, track, model.TrackQueued) {
		return gateway.Response{Success: false, Error: "illegal transition"}
	}

	if track.SourceVideoID != "" {
		o.resolve.Prefetch(track.SourceVideoID)
	}

	return gateway.Response{Success: true}
}

func (o *Orchestrator) actionRematch(_ context.Context, track *model.Track) gateway.Response {
	// matchOne performs the transition to MATCHING itself; only vet that
	// the edge is legal from the track's current status.
	if !model.IsTransitionAllowed(track.Status, model.TrackMatching) {
		return gateway.Response{Success: false, Error: "illegal transition"}
	}

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		o.matchOne(context.Background(), track)
	}()

	return gateway.Response{Success: true}
}

// Shutdown signals every background task to stop and waits for them.
func (o *Orchestrator) Shutdown() {
	close(o.stopCh)
	o.wg.Wait()
}
