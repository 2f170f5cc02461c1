package rules

import (
	"context"
	"testing"

	"github.com/civic-audit/harrier/internal/domain"
)

func warningBand(reason string) []domain.RuleBand {
	lower := 0.5
	return []domain.RuleBand{
		{LowerLimit: &lower, Severity: domain.SeverityWarning, Reason: reason},
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)

	rule := &domain.RuleConfig{
		ID:         "big-total-001",
		Name:       "Big total",
		Expression: "total_amount > 1000000.0",
		Bands:      warningBand("large beneficiary total"),
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestValidateRuleDoesNotLoad(t *testing.T) {
	engine, _ := NewEngine(5)

	rule := &domain.RuleConfig{
		ID:         "validate-only",
		Name:       "Validate Only",
		Expression: "record_count > 3",
		Enabled:    true,
	}

	if err := engine.ValidateRule(rule); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("validation must not load rules, count = %d", engine.RulesCount())
	}
}

func TestEvaluateProfilesBooleanRule(t *testing.T) {
	engine, _ := NewEngine(5)

	rule := &domain.RuleConfig{
		ID:         "mean-multiple-001",
		Name:       "Mean multiple",
		Expression: "total_amount > dataset_mean * 3.0",
		Bands:      warningBand("far above the dataset mean"),
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	profiles := []domain.BeneficiaryProfile{
		{Name: "Alpha SL", TotalAmount: 5_000_000},
		{Name: "Omega SA", TotalAmount: 50_000_000},
	}
	stats := domain.DatasetStats{Mean: 14_000_000, Total: 70_000_000}

	results := engine.EvaluateProfiles(context.Background(), profiles, stats)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	r := results[0]
	if r.Beneficiary != "Omega SA" || r.RuleID != "mean-multiple-001" {
		t.Errorf("result = %+v", r)
	}
	if r.Score != 1.0 {
		t.Errorf("boolean rule score = %f, want 1.0", r.Score)
	}
	if r.Severity != domain.SeverityWarning || r.Reason != "far above the dataset mean" {
		t.Errorf("result = %+v", r)
	}
}

func TestEvaluateProfilesNumericBands(t *testing.T) {
	engine, _ := NewEngine(5)

	half := 0.5
	one := 1.0
	rule := &domain.RuleConfig{
		ID:         "share-of-total",
		Name:       "Share of total",
		Expression: "dataset_total > 0.0 ? total_amount / dataset_total : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &half, UpperLimit: &one, Severity: domain.SeverityWarning, Reason: "majority share"},
			{LowerLimit: &one, Severity: domain.SeverityCritical, Reason: "entire dataset"},
		},
		Enabled: true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	profiles := []domain.BeneficiaryProfile{
		{Name: "Minor", TotalAmount: 100},
		{Name: "Major", TotalAmount: 900},
	}
	stats := domain.DatasetStats{Total: 1000}

	results := engine.EvaluateProfiles(context.Background(), profiles, stats)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Beneficiary != "Major" || results[0].Severity != domain.SeverityWarning {
		t.Errorf("result = %+v", results[0])
	}
}

func TestEvaluateProfilesBeneficiaryMap(t *testing.T) {
	engine, _ := NewEngine(5)

	rule := &domain.RuleConfig{
		ID:         "funder-spread",
		Name:       "Funder spread",
		Expression: "beneficiary.funder_count >= 3",
		Bands:      warningBand("many funding bodies"),
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	profiles := []domain.BeneficiaryProfile{
		{Name: "Spread", Funders: []string{"A", "B", "C"}},
		{Name: "Narrow", Funders: []string{"A"}},
	}

	results := engine.EvaluateProfiles(context.Background(), profiles, domain.DatasetStats{})

	if len(results) != 1 || results[0].Beneficiary != "Spread" {
		t.Errorf("results = %+v", results)
	}
}

func TestEvaluateProfilesNoRules(t *testing.T) {
	engine, _ := NewEngine(5)

	results := engine.EvaluateProfiles(context.Background(),
		[]domain.BeneficiaryProfile{{Name: "Alpha"}}, domain.DatasetStats{})
	if results != nil {
		t.Errorf("expected nil results with no rules, got %+v", results)
	}
}

func TestReloadRulesReplacesSet(t *testing.T) {
	engine, _ := NewEngine(5)

	old := &domain.RuleConfig{
		ID: "old", Name: "Old", Expression: "true", Bands: warningBand("r"), Enabled: true,
	}
	if err := engine.LoadRule(old); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	replacement := []*domain.RuleConfig{
		{ID: "new-1", Name: "New 1", Expression: "record_count > 0", Bands: warningBand("r"), Enabled: true},
		{ID: "disabled", Name: "Disabled", Expression: "true", Bands: warningBand("r"), Enabled: false},
	}
	if err := engine.ReloadRules(replacement); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Fatalf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "new-1" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestReloadRulesRejectsBadRuleAtomically(t *testing.T) {
	engine, _ := NewEngine(5)

	good := &domain.RuleConfig{
		ID: "good", Name: "Good", Expression: "true", Bands: warningBand("r"), Enabled: true,
	}
	if err := engine.LoadRule(good); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	bad := []*domain.RuleConfig{
		{ID: "broken", Name: "Broken", Expression: "not valid !!!", Enabled: true},
	}
	if err := engine.ReloadRules(bad); err == nil {
		t.Fatal("expected reload error for invalid rule")
	}

	if engine.RulesCount() != 1 {
		t.Errorf("failed reload must keep the previous set, count = %d", engine.RulesCount())
	}
}

func TestMatchBand(t *testing.T) {
	half := 0.5
	one := 1.0
	bands := []domain.RuleBand{
		{LowerLimit: &half, UpperLimit: &one, Severity: domain.SeverityWarning, Reason: "mid"},
		{LowerLimit: &one, Severity: domain.SeverityCritical, Reason: "top"},
	}

	tests := []struct {
		score float64
		want  domain.Severity
	}{
		{0.0, domain.SeverityNone},
		{0.4, domain.SeverityNone},
		{0.5, domain.SeverityWarning},
		{0.99, domain.SeverityWarning},
		{1.0, domain.SeverityCritical},
		{7.5, domain.SeverityCritical},
	}

	for _, tt := range tests {
		got, _ := matchBand(tt.score, bands)
		if got != tt.want {
			t.Errorf("matchBand(%f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEvaluateProfilesStableRuleOrder(t *testing.T) {
	engine, _ := NewEngine(5)

	// Loaded out of order; evaluation and listing must come back by ID.
	for _, id := range []string{"rule-c", "rule-a", "rule-b"} {
		rule := &domain.RuleConfig{
			ID:         id,
			Name:       id,
			Expression: "total_amount > 100.0",
			Bands:      warningBand("matched " + id),
			Enabled:    true,
		}
		if err := engine.LoadRule(rule); err != nil {
			t.Fatalf("failed to load %s: %v", id, err)
		}
	}

	profiles := []domain.BeneficiaryProfile{{Name: "Alpha SL", TotalAmount: 500}}
	stats := domain.DatasetStats{Total: 500, Mean: 500}

	for run := 0; run < 50; run++ {
		results := engine.EvaluateProfiles(context.Background(), profiles, stats)
		if len(results) != 3 {
			t.Fatalf("run %d: expected 3 results, got %d", run, len(results))
		}
		for i, want := range []string{"rule-a", "rule-b", "rule-c"} {
			if results[i].RuleID != want {
				t.Fatalf("run %d: result %d = %s, want %s", run, i, results[i].RuleID, want)
			}
		}
	}

	loaded := engine.GetLoadedRules()
	for i, want := range []string{"rule-a", "rule-b", "rule-c"} {
		if loaded[i].ID != want {
			t.Errorf("loaded rule %d = %s, want %s", i, loaded[i].ID, want)
		}
	}
}
