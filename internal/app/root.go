package app

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap/zapcore"

	"github.com/musicgrab/engine/internal/config"
	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/downloader"
	"github.com/musicgrab/engine/internal/extractor"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/mapper"
	"github.com/musicgrab/engine/internal/model"
	"github.com/musicgrab/engine/internal/orchestrator"
	"github.com/musicgrab/engine/internal/resolver"
	"github.com/musicgrab/engine/internal/store"
	transporthttp "github.com/musicgrab/engine/internal/transport/http"
	"github.com/musicgrab/engine/internal/videoclient"
)

// ExecuteRootCommand wires the store, catalog extractors, track
// mapper, stream resolver, segmented downloader, and orchestrator
// from cfg, submits one batch per url in urls, and blocks until every
// submitted batch reaches a terminal state or ctx is canceled.
func ExecuteRootCommand(ctx context.Context, cfg *config.Config, urls []string) {
	if err := os.MkdirAll(cfg.OutputPath, constants.DefaultFolderPermissions); err != nil {
		logger.Fatalf(ctx, "Failed to create output directory: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf(ctx, "Failed to open store: %v", err)
	}

	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Errorf(ctx, "Failed to close store: %v", closeErr)
		}
	}()

	orch, scraper := buildOrchestrator(st, cfg)

	defer func() {
		if closeErr := scraper.Close(); closeErr != nil {
			logger.Debugf(ctx, "Failed to close browser scraper: %v", closeErr)
		}
	}()

	if err = orch.Run(ctx); err != nil {
		logger.Fatalf(ctx, "Failed to start orchestrator: %v", err)
	}

	defer orch.Shutdown()

	batchIDs, totalTracks := submitBatches(ctx, orch, urls)

	// Ensure summaries are always printed, even if ctx is canceled
	// mid-run: in-flight workers get a chance to reach a safe commit
	// point before we report final counts.
	defer printSummaries(ctx, orch, batchIDs)

	waitForBatches(ctx, orch, batchIDs, totalTracks, cfg.DryRun)
}

// buildOrchestrator wires every engine collaborator from cfg over one
// shared HTTP client and returns the orchestrator plus the browser
// scraper the caller is responsible for closing.
func buildOrchestrator(st *store.Store, cfg *config.Config) (*orchestrator.Orchestrator, *extractor.BrowserScraper) {
	httpClient := transporthttp.NewClient(config.DefaultMaxLogLength)

	videoClient := videoclient.New(
		constants.VideoPlatformBaseURL,
		httpClient,
		constants.VideoClientRetryAttempts,
		constants.VideoClientRetryPauseMS*time.Millisecond,
	)

	restyClient := resty.NewWithClient(httpClient)

	scraper := extractor.NewBrowserScraper()

	router := extractor.NewRouter(
		extractor.NewVideoPlaylistExtractor(videoClient),
		extractor.NewCatalogExtractor(
			restyClient,
			constants.CatalogAuthBaseURL,
			constants.CatalogAPIBaseURL,
			cfg.CatalogClientID,
			cfg.CatalogClientSecret,
			scraper,
		),
		extractor.NewScrapeExtractor(httpClient),
	)

	mp := mapper.New(videoClient, cfg.RejectTitlePatterns)
	rs := resolver.New(videoClient, cfg.MirrorInstances, httpClient, cfg.ParsedResolverCacheTTL)
	dl := downloader.New(httpClient, int(cfg.SegmentCount), cfg.ParsedMinSegmentSizeBytes)

	orch := orchestrator.New(st, router, mp, rs, dl, orchestrator.Config{
		OutputDir:       cfg.OutputPath,
		MaxConcurrent:   cfg.MaxConcurrent,
		MinConcurrent:   cfg.MinConcurrent,
		MaxRetries:      int(cfg.MaxRetries),
		WatchdogTimeout: cfg.ParsedWatchdogTimeout,
		RequestSpacing:  cfg.ParsedRequestSpacing,
		DryRun:          cfg.DryRun,
	})

	return orch, scraper
}

// submitBatches submits one batch per URL and returns the accepted
// batch ids plus their combined track count. A submission failure is
// logged and skipped; it does not abort the remaining URLs.
func submitBatches(ctx context.Context, orch *orchestrator.Orchestrator, urls []string) ([]string, int) {
	batchIDs := make([]string, 0, len(urls))
	totalTracks := 0

	for _, url := range urls {
		result, err := orch.SubmitBatch(ctx, url)
		if err != nil {
			logger.Errorf(ctx, "Failed to submit batch for %s: %v", url, err)

			continue
		}

		if !result.Success {
			logger.Errorf(ctx, "Batch submission for %s failed: %s", url, result.Error)

			continue
		}

		logger.Infof(ctx, "Submitted batch %s for %s: %d tracks", result.BatchID, url, result.TrackCount)
		batchIDs = append(batchIDs, result.BatchID)
		totalTracks += result.TrackCount
	}

	return batchIDs, totalTracks
}

// pollInterval is how often waitForBatches re-checks batch state
// while blocking the foreground process.
const pollInterval = 2 * time.Second

// waitForBatches blocks until every batch in batchIDs reaches a
// terminal state (COMPLETED, FAILED, or AWAITING_USER, which requires
// out-of-band human action via the Action Gateway) or ctx is
// canceled. A dry run settles as soon as matching finishes, since the
// dispatch loop never starts. A track-count progress bar renders while
// waiting; batch-level granularity keeps concurrent workers from
// fighting over the terminal.
func waitForBatches(
	ctx context.Context, orch *orchestrator.Orchestrator, batchIDs []string, totalTracks int, dryRun bool,
) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var bar *progressbar.ProgressBar
	if !dryRun && totalTracks > 0 && logger.Level() <= zapcore.InfoLevel {
		bar = progressbar.Default(int64(totalTracks), "Downloading")
		defer bar.Close() //nolint:errcheck // terminal cosmetics only.
	}

	for {
		if allBatchesSettled(ctx, orch, batchIDs, dryRun, bar) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func allBatchesSettled(
	ctx context.Context, orch *orchestrator.Orchestrator, batchIDs []string, dryRun bool, bar *progressbar.ProgressBar,
) bool {
	settledTracks := 0
	settled := true

	for _, id := range batchIDs {
		summary, err := orch.Summary(ctx, id)
		if err != nil {
			logger.Warnf(ctx, "Failed to read batch %s summary: %v", id, err)
			settled = false

			continue
		}

		settledTracks += summary.CompletedCount + summary.FailedCount

		if batchSettled(summary, dryRun) {
			continue
		}

		settled = false
	}

	if bar != nil {
		_ = bar.Set(settledTracks) //nolint:errcheck // terminal cosmetics only.
	}

	return settled
}

func batchSettled(summary orchestrator.Summary, dryRun bool) bool {
	switch summary.State {
	case model.BatchCompleted, model.BatchFailed, model.BatchAwaitingUser:
		return true
	default:
	}

	return dryRun && summary.MatchingCount == 0
}

// printSummaries reports each batch's final tally.
func printSummaries(ctx context.Context, orch *orchestrator.Orchestrator, batchIDs []string) {
	for _, id := range batchIDs {
		summary, err := orch.Summary(ctx, id)
		if err != nil {
			logger.Warnf(ctx, "Failed to read batch %s summary: %v", id, err)

			continue
		}

		logger.Infof(ctx, "Batch %s: %s, %d/%d completed, %d queued, %d failed, %d awaiting user, %s downloaded",
			summary.BatchID, summary.State, summary.CompletedCount, summary.TotalTracks,
			summary.QueuedCount, summary.FailedCount, summary.AwaitingUser,
			humanize.Bytes(uint64(summary.BytesDownloaded)))

		for _, failure := range summary.FailedTracks {
			logger.Warnf(ctx, "  failed: %s — %s (%s)", failure.Title, failure.Artist, failure.Reason)
		}
	}
}
