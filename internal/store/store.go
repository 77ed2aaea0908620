// Package store persists Batch and Track rows to an embedded SQLite
// database and exposes the coarse reads the orchestrator needs to
// drive the dispatch loop, watchdog, and crash recovery.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered via side effect

	"github.com/musicgrab/engine/internal/model"
)

// ErrNotFound is returned when a row lookup by id finds nothing.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id              TEXT PRIMARY KEY,
	source_url      TEXT NOT NULL,
	source_platform TEXT NOT NULL,
	state           TEXT NOT NULL,
	total_tracks    INTEGER NOT NULL DEFAULT 0,
	completed_count INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	error_code      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracks (
	id                TEXT PRIMARY KEY,
	batch_id          TEXT NOT NULL,
	fingerprint       TEXT NOT NULL,
	title             TEXT NOT NULL,
	artist            TEXT NOT NULL,
	duration_seconds  INTEGER,
	thumbnail_url     TEXT NOT NULL DEFAULT '',
	source_platform   TEXT NOT NULL,
	source_video_id   TEXT NOT NULL DEFAULT '',
	match_confidence  REAL,
	status            TEXT NOT NULL,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	bytes_downloaded  INTEGER NOT NULL DEFAULT 0,
	total_bytes       INTEGER NOT NULL DEFAULT 0,
	output_file_path  TEXT NOT NULL DEFAULT '',
	error_code        TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	UNIQUE(batch_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_tracks_status ON tracks(status);
CREATE INDEX IF NOT EXISTS idx_tracks_batch_id ON tracks(batch_id);
CREATE INDEX IF NOT EXISTS idx_tracks_updated_at ON tracks(updated_at);
`

// Store wraps a SQLite connection and the engine's schema.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	// SQLite permits exactly one writer; serialize all access through a
	// single connection rather than fighting the driver over locks.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck // best effort on the failure path

		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertBatch inserts a new Batch row. If b.ID is empty a fresh id is
// generated and written back into b.
func (s *Store) InsertBatch(ctx context.Context, b *model.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, source_url, source_platform, state, total_tracks,
			completed_count, failed_count, error_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SourceURL, b.SourcePlatform, string(b.State), b.TotalTracks,
		b.CompletedCount, b.FailedCount, b.ErrorCode, timeToText(b.CreatedAt), timeToText(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert batch: %w", err)
	}

	return nil
}

// UpdateBatch overwrites every mutable column of an existing Batch row.
func (s *Store) UpdateBatch(ctx context.Context, b *model.Batch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batches SET state = ?, total_tracks = ?, completed_count = ?,
			failed_count = ?, error_code = ?, updated_at = ?
		WHERE id = ?`,
		string(b.State), b.TotalTracks, b.CompletedCount, b.FailedCount, b.ErrorCode, timeToText(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update batch %s: %w", b.ID, err)
	}

	return requireRowsAffected(res, b.ID)
}

// GetBatch fetches a single Batch row by id.
func (s *Store) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_url, source_platform, state, total_tracks, completed_count,
			failed_count, error_code, created_at, updated_at
		FROM batches WHERE id = ?`, id)

	return scanBatch(row)
}

// ListBatches returns every Batch row, most recently created first.
func (s *Store) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_url, source_platform, state, total_tracks, completed_count,
			failed_count, error_code, created_at, updated_at
		FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}

	defer rows.Close() //nolint:errcheck // read-only cursor

	var batches []*model.Batch

	for rows.Next() {
		b, err := scanBatchRow(rows)
		if err != nil {
			return nil, err
		}

		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// GetBatchWithTracks fetches a Batch and all of its Track rows together.
func (s *Store) GetBatchWithTracks(ctx context.Context, id string) (*model.Batch, []*model.Track, error) {
	b, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	tracks, err := s.GetTracksForBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return b, tracks, nil
}

// InsertTracksBulk inserts Track rows belonging to a single batch,
// silently skipping any whose (batch_id, fingerprint) pair already
// exists. Tracks missing an ID are assigned a fresh one.
func (s *Store) InsertTracksBulk(ctx context.Context, tracks []*model.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck // no-op once committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO tracks (id, batch_id, fingerprint, title, artist,
			duration_seconds, thumbnail_url, source_platform, source_video_id,
			match_confidence, status, retry_count, bytes_downloaded, total_bytes,
			output_file_path, error_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare bulk insert: %w", err)
	}

	defer stmt.Close() //nolint:errcheck // tied to tx lifetime

	for _, track := range tracks {
		if track.ID == "" {
			track.ID = uuid.NewString()
		}

		_, err = stmt.ExecContext(ctx,
			track.ID, track.BatchID, track.Fingerprint, track.Title, track.Artist,
			nullableInt(track.DurationSeconds), track.ThumbnailURL, track.SourcePlatform, track.SourceVideoID,
			nullableFloat(track.MatchConfidence), string(track.Status), track.RetryCount,
			track.BytesDownloaded, track.TotalBytes, track.OutputFilePath, track.ErrorCode,
			timeToText(track.CreatedAt), timeToText(track.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert track %s: %w", track.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit bulk insert: %w", err)
	}

	return nil
}

// UpdateTrack overwrites every mutable column of an existing Track row.
func (s *Store) UpdateTrack(ctx context.Context, t *model.Track) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracks SET source_video_id = ?, match_confidence = ?, status = ?,
			retry_count = ?, bytes_downloaded = ?, total_bytes = ?, output_file_path = ?,
			error_code = ?, updated_at = ?
		WHERE id = ?`,
		t.SourceVideoID, nullableFloat(t.MatchConfidence), string(t.Status), t.RetryCount,
		t.BytesDownloaded, t.TotalBytes, t.OutputFilePath, t.ErrorCode, timeToText(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update track %s: %w", t.ID, err)
	}

	return requireRowsAffected(res, t.ID)
}

// GetTrack fetches a single Track row by id.
func (s *Store) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	row := s.db.QueryRowContext(ctx, trackSelectColumns+` WHERE id = ?`, id)

	return scanTrack(row)
}

// GetTracksForBatch returns every Track row belonging to batchID.
func (s *Store) GetTracksForBatch(ctx context.Context, batchID string) ([]*model.Track, error) {
	return s.queryTracks(ctx, trackSelectColumns+` WHERE batch_id = ? ORDER BY created_at ASC`, batchID)
}

// GetQueuedTracks returns QUEUED tracks in FIFO order by updated_at.
func (s *Store) GetQueuedTracks(ctx context.Context) ([]*model.Track, error) {
	return s.queryTracks(ctx,
		trackSelectColumns+` WHERE status = ? ORDER BY updated_at ASC`, string(model.TrackQueued))
}

// GetStalledTracks returns tracks left in DISPATCHING or DOWNLOADING
// from a prior process lifetime, for crash recovery.
func (s *Store) GetStalledTracks(ctx context.Context) ([]*model.Track, error) {
	return s.queryTracks(ctx,
		trackSelectColumns+` WHERE status IN (?, ?)`,
		string(model.TrackDispatching), string(model.TrackDownloading))
}

func requireRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected for %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}
