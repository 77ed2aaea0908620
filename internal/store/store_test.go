package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/model"
	"github.com/musicgrab/engine/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func newBatch(url string) *model.Batch {
	return &model.Batch{
		SourceURL:      url,
		SourcePlatform: "spotify-like",
		State:          model.BatchExtracting,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func newTrack(batchID, fingerprint string, status model.TrackStatus) *model.Track {
	return &model.Track{
		BatchID:        batchID,
		Fingerprint:    fingerprint,
		Title:          "Midnight City",
		Artist:         "M83",
		SourcePlatform: "spotify-like",
		Status:         status,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestInsertAndGetBatch(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/1")
	require.NoError(t, s.InsertBatch(ctx, b))
	assert.NotEmpty(t, b.ID)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.SourceURL, got.SourceURL)
	assert.Equal(t, model.BatchExtracting, got.State)
}

func TestGetBatch_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.GetBatch(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateBatch(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/2")
	require.NoError(t, s.InsertBatch(ctx, b))

	b.State = model.BatchCompleted
	b.CompletedCount = 3
	b.TotalTracks = 3
	require.NoError(t, s.UpdateBatch(ctx, b))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, got.State)
	assert.Equal(t, 3, got.CompletedCount)
}

func TestUpdateBatch_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	err := s.UpdateBatch(context.Background(), &model.Batch{ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListBatches(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, newBatch("https://example.com/a")))
	require.NoError(t, s.InsertBatch(ctx, newBatch("https://example.com/b")))

	batches, err := s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, batches, 2)
}

func TestInsertTracksBulk_DedupsByFingerprint(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/3")
	require.NoError(t, s.InsertBatch(ctx, b))

	tracks := []*model.Track{
		newTrack(b.ID, "fp-1", model.TrackExtracted),
		newTrack(b.ID, "fp-1", model.TrackExtracted),
		newTrack(b.ID, "fp-2", model.TrackExtracted),
	}
	require.NoError(t, s.InsertTracksBulk(ctx, tracks))

	got, err := s.GetTracksForBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateTrack(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/4")
	require.NoError(t, s.InsertBatch(ctx, b))

	track := newTrack(b.ID, "fp-1", model.TrackExtracted)
	require.NoError(t, s.InsertTracksBulk(ctx, []*model.Track{track}))

	track.Status = model.TrackQueued
	track.BytesDownloaded = 100
	track.TotalBytes = 1000

	confidence := 0.9
	track.MatchConfidence = &confidence

	require.NoError(t, s.UpdateTrack(ctx, track))

	got, err := s.GetTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrackQueued, got.Status)
	assert.Equal(t, int64(100), got.BytesDownloaded)
	require.NotNil(t, got.MatchConfidence)
	assert.InDelta(t, 0.9, *got.MatchConfidence, 0.0001)
}

func TestGetQueuedTracks_FIFOByUpdatedAt(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/5")
	require.NoError(t, s.InsertBatch(ctx, b))

	first := newTrack(b.ID, "fp-1", model.TrackQueued)
	first.UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)

	second := newTrack(b.ID, "fp-2", model.TrackQueued)
	second.UpdatedAt = time.Now().UTC().Add(-1 * time.Minute)

	require.NoError(t, s.InsertTracksBulk(ctx, []*model.Track{second, first}))

	queued, err := s.GetQueuedTracks(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, first.ID, queued[0].ID)
	assert.Equal(t, second.ID, queued[1].ID)
}

func TestGetStalledTracks(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/6")
	require.NoError(t, s.InsertBatch(ctx, b))

	tracks := []*model.Track{
		newTrack(b.ID, "fp-1", model.TrackDownloading),
		newTrack(b.ID, "fp-2", model.TrackDispatching),
		newTrack(b.ID, "fp-3", model.TrackQueued),
		newTrack(b.ID, "fp-4", model.TrackCompleted),
	}
	require.NoError(t, s.InsertTracksBulk(ctx, tracks))

	stalled, err := s.GetStalledTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, stalled, 2)
}

func TestGetBatchWithTracks(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	b := newBatch("https://example.com/playlist/7")
	require.NoError(t, s.InsertBatch(ctx, b))
	require.NoError(t, s.InsertTracksBulk(ctx, []*model.Track{newTrack(b.ID, "fp-1", model.TrackExtracted)}))

	gotBatch, gotTracks, err := s.GetBatchWithTracks(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, gotBatch.ID)
	assert.Len(t, gotTracks, 1)
}
