// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/civic-audit/harrier/internal/domain"
	"github.com/civic-audit/harrier/internal/pipeline"
)

// Worker processes ingested batches asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	pipe      *pipeline.Pipeline
	reportTTL time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// SourceIDs is the list of sources to process (empty = all via the
	// global subscription)
	SourceIDs []string

	// ReportTTL bounds how long processed reports stay cached.
	ReportTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, pipe *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		pipe:   pipe,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing batches for the given sources.
func (w *Worker) Start(cfg Config) error {
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = 15 * time.Minute
	}
	w.reportTTL = cfg.ReportTTL

	if len(cfg.SourceIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, sourceID := range cfg.SourceIDs {
		if err := w.startSourceWorker(sourceID); err != nil {
			slog.Error("failed to start worker for source",
				"source_id", sourceID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"source_count", len(cfg.SourceIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all sources (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.GlobalSource, domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startSourceWorker starts a worker for a specific source.
func (w *Worker) startSourceWorker(sourceID string) error {
	sub, err := w.bus.Subscribe(w.ctx, sourceID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, sourceID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("source worker started",
		"source_id", sourceID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.SourceID, msg)
}

// BatchMessage is the message payload for batch processing.
type BatchMessage struct {
	SourceID   string                 `json:"sourceId"`
	TraceID    string                 `json:"traceId"`
	Records    []domain.RawRecord     `json:"records"`
	Notices    []domain.GazetteNotice `json:"notices,omitempty"`
	PriorTotal float64                `json:"priorTotal,omitempty"`
}

// processBatch runs a batch through the full analysis pipeline.
func (w *Worker) processBatch(ctx context.Context, sourceID string, msg *domain.Message) error {
	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message source if provided
	if batchMsg.SourceID != "" {
		sourceID = batchMsg.SourceID
	}

	traceID := batchMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing batch",
		"source_id", sourceID,
		"records", len(batchMsg.Records),
		"trace_id", traceID,
	)

	batch := &domain.Batch{
		SourceID:   sourceID,
		Records:    batchMsg.Records,
		Notices:    batchMsg.Notices,
		PriorTotal: batchMsg.PriorTotal,
	}

	report := w.pipe.Run(ctx, batch, traceID)

	if w.repo != nil {
		if err := w.repo.SaveReport(ctx, sourceID, report); err != nil {
			slog.Error("failed to save report",
				"report_id", report.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveRunTotal(ctx, sourceID, report.ID, report.Stats.Total, report.Timestamp); err != nil {
			slog.Error("failed to save run total",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		if err := w.cache.SetReport(ctx, sourceID, report.ID, report, w.reportTTL); err != nil {
			slog.Warn("failed to cache report",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	// Publish the assembled report
	resultPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, sourceID, domain.TopicReportReady, resultPayload); err != nil {
		slog.Error("failed to publish report",
			"report_id", report.ID,
			"error", err,
		)
	}

	// Alerts get their own topic so downstream consumers can fan out
	if len(report.Alerts) > 0 {
		alertPayload, _ := json.Marshal(report.Alerts)
		if err := w.bus.Publish(ctx, sourceID, domain.TopicAlert, alertPayload); err != nil {
			slog.Error("failed to publish alerts",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	slog.Info("batch processed",
		"report_id", report.ID,
		"source_id", sourceID,
		"records", report.Stats.Count,
		"alerts", len(report.Alerts),
		"duration_ms", report.Metadata.TotalMs,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
