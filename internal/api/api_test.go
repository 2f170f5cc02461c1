package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civic-audit/harrier/internal/cache"
	"github.com/civic-audit/harrier/internal/domain"
	"github.com/civic-audit/harrier/internal/pipeline"
	"github.com/civic-audit/harrier/internal/rules"
)

// createTestServer creates a server with engine and pipeline for testing.
func createTestServer() *Server {
	serverCfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	engine, _ := rules.NewEngine(5)

	cfg := domain.DefaultConfig()
	pipe := pipeline.New(cfg, engine, nil)

	return NewServer(serverCfg, nil, nil, nil, engine, pipe, "test-v1")
}

func fixtureRecords() []domain.RawRecord {
	return []domain.RawRecord{
		{"id": "g1", "beneficiario": "Alpha SL", "importe": "5.000.000,00", "municipio": "Madrid", "provincia": "Madrid"},
		{"id": "g2", "beneficiario": "Beta SA", "importe": "5.000.000,00", "municipio": "Madrid", "provincia": "Madrid"},
		{"id": "g3", "beneficiario": "Gamma SL", "importe": "5.000.000,00", "municipio": "Sevilla", "provincia": "Sevilla"},
		{"id": "g4", "beneficiario": "Delta SL", "importe": "5.000.000,00", "municipio": "Sevilla", "provincia": "Sevilla"},
		{"id": "g5", "beneficiario": "Omega SA", "importe": "50.000.000,00", "municipio": "Madrid", "provincia": "Madrid"},
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("SuccessfulAnalysis", func(t *testing.T) {
		reqBody := AnalyzeRequest{
			Records: fixtureRecords(),
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AnalyzeResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.ReportID == "" {
			t.Error("expected reportId in response")
		}
		if resp.Report == nil {
			t.Fatal("expected report in response")
		}
		if resp.Report.Stats.Count != 5 {
			t.Errorf("expected 5 records, got %d", resp.Report.Stats.Count)
		}
		// The top beneficiaries hold the entire total, so the dataset-level
		// concentration alert always fires on this fixture.
		if len(resp.Report.Alerts) == 0 {
			t.Error("expected at least one alert for the concentrated fixture")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("MissingSourceID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Source-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyRecords", func(t *testing.T) {
		reqBody := AnalyzeRequest{Records: nil}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		reqBody := AnalyzeRequest{Records: fixtureRecords()}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer()

	t.Run("CreateAndGetRule", func(t *testing.T) {
		reqBody := CreateRuleRequest{
			ID:         "high-share",
			Name:       "High dataset share",
			Expression: "beneficiary.total_amount > dataset_mean * 3.0",
			Bands: []domain.RuleBand{
				{Severity: domain.SeverityWarning, Reason: "beneficiary dominates the dataset"},
			},
			Enabled: true,
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		getReq := httptest.NewRequest(http.MethodGet, "/rules/high-share", nil)
		getReq.Header.Set("X-Source-ID", "source-001")

		getRR := httptest.NewRecorder()
		server.Router().ServeHTTP(getRR, getReq)

		if getRR.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", getRR.Code)
		}
	})

	t.Run("RejectsInvalidExpression", func(t *testing.T) {
		reqBody := CreateRuleRequest{
			ID:         "broken",
			Name:       "Broken rule",
			Expression: "this is not CEL +++",
			Enabled:    true,
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", "source-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("SourceMiddlewareExtractsID", func(t *testing.T) {
		var capturedSourceID string

		handler := SourceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedSourceID = GetSourceID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Source-ID", "my-source-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedSourceID != "my-source-123" {
			t.Errorf("expected source ID 'my-source-123', got '%s'", capturedSourceID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

func TestAnalyzeRateLimit(t *testing.T) {
	serverCfg := domain.ServerConfig{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30,
		WriteTimeout:   30,
		RateLimit:      2,
		RateWindowSecs: 60,
	}

	engine, _ := rules.NewEngine(5)
	pipe := pipeline.New(domain.DefaultConfig(), engine, nil)
	server := NewServer(serverCfg, nil, cache.NewLRUCache(100), nil, engine, pipe, "test-v1")

	submit := func(sourceID string) int {
		body, _ := json.Marshal(AnalyzeRequest{Records: fixtureRecords()})
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Source-ID", sourceID)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := submit("rate-source"); code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, code)
		}
	}

	if code := submit("rate-source"); code != http.StatusTooManyRequests {
		t.Errorf("expected status 429 after window exhausted, got %d", code)
	}

	// The window is per source, so another source is unaffected.
	if code := submit("other-source"); code != http.StatusOK {
		t.Errorf("expected status 200 for a different source, got %d", code)
	}
}

func TestCreateDisabledRuleNotLoaded(t *testing.T) {
	serverCfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	engine, _ := rules.NewEngine(5)
	pipe := pipeline.New(domain.DefaultConfig(), engine, nil)
	server := NewServer(serverCfg, nil, nil, nil, engine, pipe, "test-v1")

	reqBody := CreateRuleRequest{
		ID:         "dormant",
		Name:       "Dormant rule",
		Expression: "total_amount > 1000000.0",
		Bands: []domain.RuleBand{
			{Severity: domain.SeverityWarning, Reason: "large total"},
		},
		Enabled: false,
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Source-ID", "source-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if count := engine.RulesCount(); count != 0 {
		t.Errorf("expected 0 loaded rules for a disabled rule, got %d", count)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/rules/dormant", nil)
	getReq.Header.Set("X-Source-ID", "source-001")

	getRR := httptest.NewRecorder()
	server.Router().ServeHTTP(getRR, getReq)

	if getRR.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a rule that is not loaded, got %d", getRR.Code)
	}
}
