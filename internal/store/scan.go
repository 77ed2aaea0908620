package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/musicgrab/engine/internal/model"
)

// sqliteTimeLayout is fixed-width (no trailing-zero trimming) so that
// lexical ORDER BY over the text column matches chronological order,
// which the FIFO queued-track read depends on.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const trackSelectColumns = `
	SELECT id, batch_id, fingerprint, title, artist, duration_seconds, thumbnail_url,
		source_platform, source_video_id, match_confidence, status, retry_count,
		bytes_downloaded, total_bytes, output_file_path, error_code, created_at, updated_at
	FROM tracks`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func timeToText(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}

	return t.Format(sqliteTimeLayout)
}

func textToTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}

func scanBatch(row *sql.Row) (*model.Batch, error) {
	b := &model.Batch{}

	var (
		state     string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&b.ID, &b.SourceURL, &b.SourcePlatform, &state, &b.TotalTracks,
		&b.CompletedCount, &b.FailedCount, &b.ErrorCode, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("store: scan batch: %w", err)
	}

	b.State = model.BatchState(state)
	b.CreatedAt = textToTime(createdAt)
	b.UpdatedAt = textToTime(updatedAt)

	return b, nil
}

func scanBatchRow(rows *sql.Rows) (*model.Batch, error) {
	b := &model.Batch{}

	var (
		state     string
		createdAt string
		updatedAt string
	)

	err := rows.Scan(&b.ID, &b.SourceURL, &b.SourcePlatform, &state, &b.TotalTracks,
		&b.CompletedCount, &b.FailedCount, &b.ErrorCode, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan batch row: %w", err)
	}

	b.State = model.BatchState(state)
	b.CreatedAt = textToTime(createdAt)
	b.UpdatedAt = textToTime(updatedAt)

	return b, nil
}

func scanTrack(row rowScanner) (*model.Track, error) {
	t := &model.Track{}

	var (
		duration        sql.NullInt64
		matchConfidence sql.NullFloat64
		status          string
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(&t.ID, &t.BatchID, &t.Fingerprint, &t.Title, &t.Artist, &duration,
		&t.ThumbnailURL, &t.SourcePlatform, &t.SourceVideoID, &matchConfidence, &status,
		&t.RetryCount, &t.BytesDownloaded, &t.TotalBytes, &t.OutputFilePath, &t.ErrorCode,
		&createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("store: scan track: %w", err)
	}

	if duration.Valid {
		d := int(duration.Int64)
		t.DurationSeconds = &d
	}

	if matchConfidence.Valid {
		c := matchConfidence.Float64
		t.MatchConfidence = &c
	}

	t.Status = model.TrackStatus(status)
	t.CreatedAt = textToTime(createdAt)
	t.UpdatedAt = textToTime(updatedAt)

	return t, nil
}

func (s *Store) queryTracks(ctx context.Context, query string, args ...any) ([]*model.Track, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query tracks: %w", err)
	}

	defer rows.Close() //nolint:errcheck // read-only cursor

	var tracks []*model.Track

	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}

		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}
