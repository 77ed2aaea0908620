package constants

import "os"

const (
	// DefaultFilePermissions sets the default permissions for regular files: (rw-r--r--).
	// Owner: read and write;
	// Group: read;
	// Others: read.
	DefaultFilePermissions os.FileMode = 0o644

	// DefaultFolderPermissions sets the default permissions for regular folders: (rwxr-xr-x).
	// Owner: read, write, and execute;
	// Group: read and execute;
	// Others: read and execute.
	DefaultFolderPermissions os.FileMode = 0o755
)

// File extension constants.
const (
	ExtensionMP3  = ".mp3"
	ExtensionOpus = ".opus"
	ExtensionOgg  = ".ogg"

	// TempFileSuffix marks an in-progress whole-file download.
	TempFileSuffix = ".tmp"

	// SegmentFilePrefix marks an in-progress segment of a split download;
	// the segment index is appended (".seg0", ".seg1", ...).
	SegmentFilePrefix = ".seg"
)

// Orchestrator and transport tuning constants.
const (
	// MaxCandidatesPerBatch bounds the number of track candidates a
	// catalog extractor may emit for a single submission.
	MaxCandidatesPerBatch = 500

	// MatchingConcurrency bounds how many tracks are matched at once
	// during a batch's matching phase.
	MatchingConcurrency = 3

	// MatchConfidenceThreshold is the cutoff below which a matched track
	// is flagged MATCHED_LOW_CONFIDENCE instead of MATCHED.
	MatchConfidenceThreshold = 0.75

	// MapperMaxDurationSeconds excludes video-platform search results
	// longer than this from consideration as a match.
	MapperMaxDurationSeconds = 900

	// PrefetchLookahead is how many upcoming queued tracks the dispatcher
	// asks the resolver to prefetch each cycle.
	PrefetchLookahead = 5

	// WatchdogSweepIntervalSeconds is how often the watchdog scans for
	// stalled tracks.
	WatchdogSweepIntervalSeconds = 60

	// RampUpIntervalSeconds is how often the ramp-up task considers
	// restoring concurrency after a clean run.
	RampUpIntervalSeconds = 30

	// RampUpQuietPeriodSeconds is how recently a success must have
	// occurred for ramp-up to act.
	RampUpQuietPeriodSeconds = 60

	// RateLimitCooldownFirstSeconds is the cooldown applied on the first
	// rate-limit hit in a streak.
	RateLimitCooldownFirstSeconds = 15

	// RateLimitCooldownMidSeconds is the cooldown applied on the
	// second/third rate-limit hit in a streak.
	RateLimitCooldownMidSeconds = 30

	// RateLimitCooldownLongSeconds is the cooldown applied on the fourth
	// and subsequent rate-limit hits in a streak.
	RateLimitCooldownLongSeconds = 60

	// DownloadReadBufferBytes is the buffer size used for segmented and
	// resumable download reads.
	DownloadReadBufferBytes = 256 * 1024

	// ProgressReportIntervalMS is the minimum spacing between progress
	// callback invocations during a download.
	ProgressReportIntervalMS = 300

	// MaxFilenameLength is the maximum length of a sanitized output filename.
	MaxFilenameLength = 80

	// VideoPlatformBaseURL is the video platform's public API host used by
	// Variant A extraction, search, and stream-metadata resolution.
	VideoPlatformBaseURL = "https://www.googleapis.com/youtube/v3"

	// CatalogAuthBaseURL is the authenticated catalog's client-credentials
	// token endpoint host used by the Variant B extractor.
	CatalogAuthBaseURL = "https://accounts.spotify.com"

	// CatalogAPIBaseURL is the authenticated catalog's REST host used by
	// the Variant B extractor.
	CatalogAPIBaseURL = "https://api.spotify.com/v1"

	// VideoClientRetryAttempts bounds how many times the video client
	// retries a 503 response before giving up.
	VideoClientRetryAttempts = 3

	// VideoClientRetryPauseMS is the pause between video client retries.
	VideoClientRetryPauseMS = 500
)
