package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/civic-audit/harrier/internal/domain"
	"github.com/civic-audit/harrier/internal/pipeline"
	"github.com/civic-audit/harrier/internal/repository"
	"github.com/civic-audit/harrier/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	pipe    *pipeline.Pipeline
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, pipe *pipeline.Pipeline, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		pipe:    pipe,
		version: version,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Records    []domain.RawRecord     `json:"records"`
	Notices    []domain.GazetteNotice `json:"notices,omitempty"`
	PriorTotal float64                `json:"priorTotal,omitempty"`

	// Async hands the batch to the worker via the event bus instead of
	// running the pipeline in the request.
	Async bool `json:"async,omitempty"`
}

// AnalyzeResponse is the synchronous response for POST /analyze.
type AnalyzeResponse struct {
	ReportID string         `json:"reportId"`
	Report   *domain.Report `json:"report,omitempty"`
	Queued   bool           `json:"queued,omitempty"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Analyze handles POST /analyze requests.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	sourceID := GetSourceID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records is required and must not be empty",
		})
		return
	}

	// Async mode: enqueue for the worker and return immediately
	if req.Async {
		payload, err := json.Marshal(map[string]any{
			"sourceId":   sourceID,
			"traceId":    traceID,
			"records":    req.Records,
			"notices":    req.Notices,
			"priorTotal": req.PriorTotal,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to encode batch",
			})
			return
		}
		if err := h.bus.Publish(ctx, sourceID, domain.TopicBatchIngested, payload); err != nil {
			slog.Error("failed to publish batch", "source_id", sourceID, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "failed to queue batch",
			})
			return
		}

		resp := AnalyzeResponse{Queued: true}
		resp.Metadata.TraceID = traceID
		resp.Metadata.TotalMs = time.Since(start).Milliseconds()
		resp.Metadata.Version = h.version
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	// Synchronous mode: run the full pipeline in the request
	batch := &domain.Batch{
		SourceID:   sourceID,
		Records:    req.Records,
		Notices:    req.Notices,
		PriorTotal: req.PriorTotal,
	}

	report := h.pipe.Run(ctx, batch, traceID)

	if h.repo != nil {
		if err := h.repo.SaveReport(ctx, sourceID, report); err != nil {
			slog.Error("failed to save report", "report_id", report.ID, "error", err)
		}
		if err := h.repo.SaveRunTotal(ctx, sourceID, report.ID, report.Stats.Total, report.Timestamp); err != nil {
			slog.Error("failed to save run total", "report_id", report.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, sourceID, report.ID, report, 15*time.Minute); err != nil {
			slog.Warn("failed to cache report", "report_id", report.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(report)
		if err := h.bus.Publish(ctx, sourceID, domain.TopicReportReady, payload); err != nil {
			slog.Warn("failed to publish report", "report_id", report.ID, "error", err)
		}
	}

	resp := AnalyzeResponse{
		ReportID: report.ID,
		Report:   report,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// getReport loads a report from cache first, then the repository.
func (h *Handler) getReport(r *http.Request, reportID string) (*domain.Report, error) {
	ctx := r.Context()
	sourceID := GetSourceID(ctx)

	if h.cache != nil {
		report, err := h.cache.GetReport(ctx, sourceID, reportID)
		if err == nil && report != nil {
			return report, nil
		}
	}

	if h.repo == nil {
		return nil, errors.New("repository not available")
	}

	report, err := h.repo.GetReport(ctx, sourceID, reportID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.SetReport(ctx, sourceID, reportID, report, 15*time.Minute)
	}

	return report, nil
}

// GetReport retrieves a report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "report id is required",
		})
		return
	}

	report, err := h.getReport(r, reportID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get report", "id", reportID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetReportAlerts retrieves only the alert list of a report.
func (h *Handler) GetReportAlerts(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "report id is required",
		})
		return
	}

	report, err := h.getReport(r, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reportId": report.ID,
		"alerts":   report.Alerts,
		"count":    len(report.Alerts),
	})
}

// ListReports returns recent reports for the source.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceID := GetSourceID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	reports, err := h.repo.ListReports(ctx, sourceID, since)
	if err != nil {
		slog.Error("failed to list reports", "source_id", sourceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	// Return rules currently loaded in the engine (sourced from database)
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	// Check rules loaded in the engine (from database)
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (source_id = "*") so they apply to all sources.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Create rule config (global source)
	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		SourceID:    GlobalSourceID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression without touching the loaded set.
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Disabled rules are persisted only; they stay out of the engine
	// until enabled and reloaded.
	if ruleConfig.Enabled {
		if err := h.engine.LoadRule(ruleConfig); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	// Persist to repository (global source ID)
	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalSourceID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// GlobalSourceID is used for rules that apply to all sources.
const GlobalSourceID = "*"

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	// Load rules from database (global rules)
	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalSourceID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Reload into engine
	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
