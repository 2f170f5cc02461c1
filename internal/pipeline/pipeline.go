// Package pipeline runs the full analysis over one batch: normalization,
// statistics, concentration, network, scoring, geographic rollups, and alert
// emission, in that order. Every stage consumes the immutable output of its
// predecessors.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/civic-audit/harrier/internal/alert"
	"github.com/civic-audit/harrier/internal/concentrate"
	"github.com/civic-audit/harrier/internal/domain"
	"github.com/civic-audit/harrier/internal/geo"
	"github.com/civic-audit/harrier/internal/network"
	"github.com/civic-audit/harrier/internal/normalize"
	"github.com/civic-audit/harrier/internal/rules"
	"github.com/civic-audit/harrier/internal/score"
	"github.com/civic-audit/harrier/internal/stats"
)

// EngineVersion identifies the analysis engine in report metadata.
const EngineVersion = "harrier-1.0"

var tracer = otel.Tracer("harrier-pipeline")

// Pipeline wires the analysis stages for one configuration. It is safe for
// concurrent use; each Run works on its own immutable collections.
type Pipeline struct {
	cfg         domain.AnalysisConfig
	normalizer  *normalize.Normalizer
	analyzer    *stats.Analyzer
	concentrate *concentrate.Detector
	network     *network.Detector
	scorer      *score.Scorer
	geo         *geo.Aggregator
	engine      *rules.Engine
	repo        domain.Repository
}

// New creates a pipeline. The repository is optional; without it the trend
// alert only sees an inline prior total, and runs are not persisted here
// (persistence happens in the caller).
func New(cfg *domain.Config, engine *rules.Engine, repo domain.Repository) *Pipeline {
	scorer := score.New(cfg.Scoring)
	return &Pipeline{
		cfg:         cfg.Analysis,
		normalizer:  normalize.New(cfg.Analysis),
		analyzer:    stats.New(cfg.Analysis),
		concentrate: concentrate.New(cfg.Analysis),
		network:     network.New(cfg.Analysis),
		scorer:      scorer,
		geo:         geo.New(cfg.Analysis, scorer),
		engine:      engine,
		repo:        repo,
	}
}

// Run executes the full pipeline over one batch and assembles the report.
// Empty input yields a well-formed zeroed report, never an error.
func (p *Pipeline) Run(ctx context.Context, batch *domain.Batch, traceID string) *domain.Report {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.String("source.id", batch.SourceID),
		attribute.Int("records.in", len(batch.Records)),
	)
	defer span.End()

	// Normalize
	normStart := time.Now()
	ds, dropped := p.normalizer.Normalize(batch.Records)
	normalizeMs := time.Since(normStart).Milliseconds()

	analyzeStart := time.Now()

	// Statistics and per-record classification
	_, spanStats := tracer.Start(ctx, "pipeline.stats")
	ds, signals := p.analyzer.Analyze(ds)
	spanStats.End()

	// Beneficiary reduction and concentration
	_, spanConc := tracer.Start(ctx, "pipeline.concentrate")
	profiles := p.concentrate.Profiles(ds, signals)
	summary := p.concentrate.Summary(profiles, ds.Stats.Total)
	spanConc.End()

	// Cross-funder network
	_, spanNet := tracer.Start(ctx, "pipeline.network")
	profiles = p.network.FlagProfiles(profiles)
	clusters := p.network.Clusters(profiles)
	spanNet.End()

	// Composite scoring
	profiles = p.scorer.ScoreProfiles(profiles)

	// Geographic rollups
	_, spanGeo := tracer.Start(ctx, "pipeline.geo")
	municipalities, provinces := p.geo.Aggregate(ds, signals)
	spanGeo.End()

	// Alerts
	emitter := alert.New(p.cfg, start.UTC())
	emitter.CollectOutliers(ds.Records, signals, ds.Stats)
	emitter.CollectConcentration(profiles, summary, ds.Stats.Total)
	emitter.CollectNetwork(profiles, clusters)
	emitter.CollectGeographic(municipalities)
	emitter.CollectTrend(ds.Stats.Total, p.priorTotals(ctx, batch))
	p.collectRuleAlerts(ctx, emitter, profiles, ds.Stats)
	alerts := emitter.Emit()

	analyzeMs := time.Since(analyzeStart).Milliseconds()

	report := &domain.Report{
		ID:             uuid.New().String(),
		SourceID:       batch.SourceID,
		Timestamp:      start.UTC(),
		Stats:          ds.Stats,
		Beneficiaries:  profiles,
		Clusters:       clusters,
		Concentration:  summary,
		Municipalities: municipalities,
		Provinces:      provinces,
		Alerts:         alerts,
		Notices:        categorizeNotices(batch.Notices),
		Metadata: domain.ReportMetadata{
			TraceID:        traceID,
			NormalizeMs:    normalizeMs,
			AnalyzeMs:      analyzeMs,
			TotalMs:        time.Since(start).Milliseconds(),
			RecordsIn:      len(batch.Records),
			RecordsDropped: dropped,
			EngineVersion:  EngineVersion,
		},
	}

	slog.Info("pipeline run complete",
		"source_id", batch.SourceID,
		"records", ds.Stats.Count,
		"degraded", ds.Stats.DegradedCount,
		"alerts", len(alerts),
		"duration_ms", report.Metadata.TotalMs,
	)

	return report
}

// priorTotals assembles the historical totals series for the trend alert:
// the inline prior total when supplied, otherwise the repository series.
func (p *Pipeline) priorTotals(ctx context.Context, batch *domain.Batch) []float64 {
	if batch.PriorTotal > 0 {
		return []float64{batch.PriorTotal}
	}
	if p.repo == nil {
		return nil
	}

	totals, err := p.repo.GetRunTotals(ctx, batch.SourceID, 12)
	if err != nil {
		slog.Warn("failed to load prior run totals", "source_id", batch.SourceID, "error", err)
		return nil
	}
	return totals
}

// collectRuleAlerts runs the custom CEL rules and queues their alerts.
func (p *Pipeline) collectRuleAlerts(ctx context.Context, emitter *alert.Emitter, profiles []domain.BeneficiaryProfile, st domain.DatasetStats) {
	if p.engine == nil || p.engine.RulesCount() == 0 {
		return
	}

	amounts := make(map[string]float64, len(profiles))
	for i := range profiles {
		amounts[profiles[i].Name] = profiles[i].TotalAmount
	}

	for _, r := range p.engine.EvaluateProfiles(ctx, profiles, st) {
		if r.Err != "" {
			slog.Warn("custom rule evaluation failed", "rule_id", r.RuleID, "beneficiary", r.Beneficiary, "error", r.Err)
			continue
		}
		emitter.Add(r.Severity, domain.CategoryCustomRule, r.Beneficiary,
			"Custom rule "+r.RuleID+" matched "+r.Beneficiary,
			r.Reason,
			amounts[r.Beneficiary])
	}
}

// noticeCategories maps title keywords to display categories, checked in
// order. Notices are contextual only; nothing here feeds the statistics.
var noticeCategories = []struct {
	keyword  string
	category string
}{
	{"subvencion", "grants"},
	{"subsidy", "grants"},
	{"contrato", "procurement"},
	{"contract", "procurement"},
	{"empleo", "employment"},
	{"nombramiento", "appointments"},
}

func categorizeNotices(notices []domain.GazetteNotice) []domain.GazetteNotice {
	if len(notices) == 0 {
		return nil
	}

	out := make([]domain.GazetteNotice, len(notices))
	copy(out, notices)

	for i := range out {
		if out[i].Category != "" {
			continue
		}
		out[i].Category = "general"
		title := strings.ToLower(out[i].Title)
		for _, nc := range noticeCategories {
			if strings.Contains(title, nc.keyword) {
				out[i].Category = nc.category
				break
			}
		}
	}

	return out
}
