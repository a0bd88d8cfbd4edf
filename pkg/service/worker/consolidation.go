package worker

import (
	"context"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
)

// DefaultConsolidationInterval is the default period of the consolidation worker
const DefaultConsolidationInterval = time.Hour

// Consolidator is the consolidation engine as seen by the worker
type Consolidator interface {
	// Channels returns channels with pending working memory
	Channels() []string
	Consolidate(ctx context.Context, channelID string) *model.ConsolidationResult
}

// ConsolidationWorker periodically consolidates every channel with pending
// working memory, one channel at a time.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - A pass on a channel that is being consolidated manually is skipped by the
//   engine's per-channel lock
type ConsolidationWorker struct {
	consolidator Consolidator
	interval     time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewConsolidationWorker creates a new worker. A non-positive interval means
// DefaultConsolidationInterval.
func NewConsolidationWorker(consolidator Consolidator, interval time.Duration) *ConsolidationWorker {
	if interval <= 0 {
		interval = DefaultConsolidationInterval
	}
	return &ConsolidationWorker{
		consolidator: consolidator,
		interval:     interval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the background loop. The first pass runs after one interval.
func (w *ConsolidationWorker) Start(ctx context.Context) error {
	logging.Default().Info("Consolidation worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion. A channel being
// consolidated when Stop is called is aborted with its working memory kept.
func (w *ConsolidationWorker) Stop() {
	logging.Default().Info("Consolidation worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Consolidation worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *ConsolidationWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.consolidateAll(runCtx)

		case <-w.stopCh:
			logging.Default().Info("Consolidation worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Consolidation worker context cancelled")
			return
		}
	}
}

// consolidateAll performs a single cycle over every pending channel
func (w *ConsolidationWorker) consolidateAll(ctx context.Context) {
	channels := w.consolidator.Channels()
	if len(channels) == 0 {
		return
	}

	startTime := time.Now()
	logging.Default().Info("Starting scheduled consolidation", "channels", len(channels))

	done := 0
	for _, channelID := range channels {
		if ctx.Err() != nil {
			logging.Default().Info("Scheduled consolidation interrupted",
				"done", done,
				"remaining", len(channels)-done)
			return
		}

		result := w.consolidator.Consolidate(ctx, channelID)
		done++

		attrs := []any{
			"channel_id", channelID,
			"messages", result.MessagesProcessed,
			"episodic", result.EpisodicCreated,
			"facts", result.FactsExtracted,
			"elapsed", result.Elapsed.String(),
			"summary", result.Summary,
		}
		if len(result.Errors) > 0 {
			logging.Default().Warn("Channel consolidated with errors", append(attrs, "errors", result.Errors)...)
		} else {
			logging.Default().Info("Channel consolidated", attrs...)
		}
	}

	logging.Default().Info("Scheduled consolidation completed",
		"channels", done,
		"duration", time.Since(startTime).String())
}
