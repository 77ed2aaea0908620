// Package model defines the Batch and Track entities, their status
// enums, and the legal state-transition table that the orchestrator
// enforces under its mutex.
package model

import "time"

// BatchState is the lifecycle state of a Batch, derived purely from
// the multiset of its tracks' statuses (see DeriveBatchState).
type BatchState string

// Batch lifecycle states.
const (
	BatchExtracting   BatchState = "EXTRACTING"
	BatchMatching     BatchState = "MATCHING"
	BatchDownloading  BatchState = "DOWNLOADING"
	BatchAwaitingUser BatchState = "AWAITING_USER"
	BatchQueued       BatchState = "QUEUED"
	BatchCompleted    BatchState = "COMPLETED"
	BatchFailed       BatchState = "FAILED"
)

// TrackStatus is the lifecycle status of a single Track.
type TrackStatus string

// Track lifecycle statuses.
const (
	TrackExtracted            TrackStatus = "EXTRACTED"
	TrackMatching             TrackStatus = "MATCHING"
	TrackMatched              TrackStatus = "MATCHED"
	TrackMatchedLowConfidence TrackStatus = "MATCHED_LOW_CONFIDENCE"
	TrackMatchingManual       TrackStatus = "MATCHING_MANUAL"
	TrackQueued               TrackStatus = "QUEUED"
	TrackDispatching          TrackStatus = "DISPATCHING"
	TrackDownloading          TrackStatus = "DOWNLOADING"
	TrackCompleted            TrackStatus = "COMPLETED"
	TrackFailed               TrackStatus = "FAILED"
)

// MaxRetries bounds the number of times a track may be requeued after
// a download attempt fails before it is declared terminally FAILED.
const MaxRetries = 3

// transitions enumerates every legal (from, to) status edge. Anything
// not listed here is a silent no-op: the caller must not
// mutate the store on a rejected transition.
//
//nolint:gochecknoglobals // Immutable table, read-only after init.
var transitions = map[TrackStatus]map[TrackStatus]struct{}{
	TrackExtracted: {
		TrackMatching: {},
		TrackMatched:  {},
		TrackQueued:   {},
	},
	TrackMatching: {
		TrackMatched:              {},
		TrackMatchedLowConfidence: {},
		TrackFailed:               {},
	},
	TrackMatched: {
		TrackQueued: {},
	},
	TrackMatchedLowConfidence: {
		TrackMatched:        {},
		TrackMatching:       {},
		TrackMatchingManual: {},
	},
	TrackMatchingManual: {
		TrackMatched:              {},
		TrackMatchedLowConfidence: {},
		TrackFailed:               {},
	},
	TrackQueued: {
		TrackDispatching: {},
	},
	TrackDispatching: {
		TrackDownloading: {},
		TrackQueued:      {},
	},
	TrackDownloading: {
		TrackCompleted: {},
		TrackFailed:    {},
		TrackQueued:    {},
	},
	TrackFailed: {
		TrackQueued: {},
	},
	TrackCompleted: {},
}

// IsTransitionAllowed reports whether moving a track from "from" to
// "to" is a legal edge in the state machine.
func IsTransitionAllowed(from, to TrackStatus) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}

	_, ok = edges[to]

	return ok
}

// Batch is a submitted playlist/album import unit.
type Batch struct {
	ID             string
	SourceURL      string
	SourcePlatform string
	State          BatchState
	TotalTracks    int
	CompletedCount int
	FailedCount    int
	ErrorCode      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Track is a single song within a batch with its own lifecycle.
type Track struct {
	ID              string
	BatchID         string
	Fingerprint     string
	Title           string
	Artist          string
	DurationSeconds *int
	ThumbnailURL    string
	SourcePlatform  string
	SourceVideoID   string
	MatchConfidence *float64
	Status          TrackStatus
	RetryCount      int
	BytesDownloaded int64
	TotalBytes      int64
	OutputFilePath  string
	ErrorCode       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// statusCounts tallies a track multiset into the four buckets
// DeriveBatchState needs.
type statusCounts struct {
	completed int
	failed    int
	lowConf   int
	active    int
	total     int
}

func countStatuses(statuses []TrackStatus) statusCounts {
	var counts statusCounts

	counts.total = len(statuses)

	for _, status := range statuses {
		switch status {
		case TrackCompleted:
			counts.completed++
		case TrackFailed:
			counts.failed++
		case TrackMatchedLowConfidence:
			counts.lowConf++
		case TrackMatching, TrackQueued, TrackDispatching, TrackDownloading:
			counts.active++
		case TrackExtracted, TrackMatched, TrackMatchingManual:
			// Neither terminal nor "active" in the derivation formula;
			// these fall through to the QUEUED default below.
		}
	}

	return counts
}

// DeriveBatchState computes the Batch state that is implied by the
// current multiset of its tracks' statuses. It is a pure function:
// the same multiset always derives the same state.
func DeriveBatchState(statuses []TrackStatus) BatchState {
	counts := countStatuses(statuses)

	switch {
	case counts.total == 0:
		return BatchQueued
	case counts.failed == counts.total:
		return BatchFailed
	case counts.completed+counts.failed == counts.total && counts.lowConf == 0:
		return BatchCompleted
	case counts.lowConf > 0 && counts.active == 0:
		return BatchAwaitingUser
	case counts.active > 0:
		return BatchDownloading
	default:
		return BatchQueued
	}
}
