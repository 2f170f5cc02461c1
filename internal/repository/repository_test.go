package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/civic-audit/harrier/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	sourceID := "source-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		report := &domain.Report{
			ID:        "report-001",
			SourceID:  sourceID,
			Timestamp: time.Now().UTC(),
			Stats: domain.DatasetStats{
				Count:      5,
				ValidCount: 5,
				Total:      70_000_000,
				Mean:       14_000_000,
			},
			Alerts: []domain.Alert{
				{
					ID:       "outlier:Alpha SL",
					Severity: domain.SeverityCritical,
					Category: domain.CategoryOutlier,
					Entity:   "Alpha SL",
					Impact:   50_000_000,
				},
			},
		}

		if err := repo.SaveReport(ctx, sourceID, report); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		retrieved, err := repo.GetReport(ctx, sourceID, report.ID)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}

		if retrieved.ID != report.ID {
			t.Errorf("expected ID %s, got %s", report.ID, retrieved.ID)
		}
		if retrieved.Stats.Total != report.Stats.Total {
			t.Errorf("expected Total %.2f, got %.2f", report.Stats.Total, retrieved.Stats.Total)
		}
		if len(retrieved.Alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(retrieved.Alerts))
		}
		if retrieved.Alerts[0].ID != "outlier:Alpha SL" {
			t.Errorf("expected alert ID outlier:Alpha SL, got %s", retrieved.Alerts[0].ID)
		}
	})

	t.Run("SourceIsolation", func(t *testing.T) {
		otherSource := "source-002"

		_, err := repo.GetReport(ctx, otherSource, "report-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different source, got: %v", err)
		}
	})

	t.Run("RequiresSourceID", func(t *testing.T) {
		report := &domain.Report{ID: "report-test"}

		err := repo.SaveReport(ctx, "", report)
		if err == nil {
			t.Error("expected error for empty sourceID")
		}

		_, err = repo.GetReport(ctx, "", "report-001")
		if err == nil {
			t.Error("expected error for empty sourceID")
		}
	})

	t.Run("ListReports", func(t *testing.T) {
		report2 := &domain.Report{
			ID:        "report-002",
			SourceID:  sourceID,
			Timestamp: time.Now().UTC(),
		}

		if err := repo.SaveReport(ctx, sourceID, report2); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		since := time.Now().Add(-1 * time.Hour)
		reports, err := repo.ListReports(ctx, sourceID, since)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}

		if len(reports) != 2 {
			t.Errorf("expected 2 reports, got %d", len(reports))
		}
	})

	t.Run("RunTotals", func(t *testing.T) {
		base := time.Now().UTC().Add(-3 * time.Hour)
		totals := []float64{10_000_000, 12_000_000, 20_000_000}
		for i, total := range totals {
			reportID := "run-report-" + string(rune('a'+i))
			at := base.Add(time.Duration(i) * time.Hour)
			if err := repo.SaveRunTotal(ctx, sourceID, reportID, total, at); err != nil {
				t.Fatalf("SaveRunTotal failed: %v", err)
			}
		}

		got, err := repo.GetRunTotals(ctx, sourceID, 2)
		if err != nil {
			t.Fatalf("GetRunTotals failed: %v", err)
		}

		if len(got) != 2 {
			t.Fatalf("expected 2 totals, got %d", len(got))
		}
		// Newest first
		if got[0] != 20_000_000 {
			t.Errorf("expected newest total 20000000, got %.0f", got[0])
		}
	})

	t.Run("SaveAndGetRuleConfig", func(t *testing.T) {
		lower := 1.0
		rule := &domain.RuleConfig{
			ID:         "rule-001",
			Name:       "large-share",
			Version:    "1.0",
			Expression: "beneficiary.total_amount / dataset_total",
			Bands: []domain.RuleBand{
				{LowerLimit: &lower, Severity: domain.SeverityWarning, Reason: "high share"},
			},
			Enabled: true,
		}

		if err := repo.SaveRuleConfig(ctx, sourceID, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		retrieved, err := repo.GetRuleConfig(ctx, sourceID, rule.ID)
		if err != nil {
			t.Fatalf("GetRuleConfig failed: %v", err)
		}

		if retrieved.Expression != rule.Expression {
			t.Errorf("expected expression %q, got %q", rule.Expression, retrieved.Expression)
		}
		if len(retrieved.Bands) != 1 || retrieved.Bands[0].Severity != domain.SeverityWarning {
			t.Errorf("bands not round-tripped: %+v", retrieved.Bands)
		}

		configs, err := repo.ListRuleConfigs(ctx, sourceID)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Errorf("expected 1 rule config, got %d", len(configs))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetReport(ctx, sourceID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetRuleConfig(ctx, sourceID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
