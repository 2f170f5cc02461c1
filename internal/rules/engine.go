// Package rules provides the CEL-Go based custom detection rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/civic-audit/harrier/internal/domain"
)

// Engine is the CEL-based rule evaluation engine. Rules run over beneficiary
// profiles and supplement the built-in detectors with operator-defined
// conditions.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with beneficiary profile variables
	env, err := cel.NewEnv(
		cel.Variable("beneficiary", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("name", cel.StringType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("record_count", cel.IntType),
		cel.Variable("funder_count", cel.IntType),
		cel.Variable("outlier_records", cel.IntType),
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("dataset_total", cel.DoubleType),
		cel.Variable("dataset_mean", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateProfiles evaluates every loaded rule against every profile and
// returns the results that matched a non-empty severity band. Profiles are
// evaluated in parallel under a semaphore.
func (e *Engine) EvaluateProfiles(ctx context.Context, profiles []domain.BeneficiaryProfile, stats domain.DatasetStats) []domain.RuleResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	// Stable rule order keeps identical input producing identical results.
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	if len(rules) == 0 || len(profiles) == 0 {
		return nil
	}

	perProfile := make([][]domain.RuleResult, len(profiles))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i := range profiles {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			perProfile[idx] = e.evaluateProfile(rules, &profiles[idx], stats)
		}(i)
	}

	wg.Wait()

	var results []domain.RuleResult
	for _, rs := range perProfile {
		results = append(results, rs...)
	}
	return results
}

// evaluateProfile runs all rules against one profile.
func (e *Engine) evaluateProfile(rules []*CompiledRule, p *domain.BeneficiaryProfile, stats domain.DatasetStats) []domain.RuleResult {
	activation := map[string]any{
		"beneficiary": map[string]any{
			"name":         p.Name,
			"total_amount": p.TotalAmount,
			"record_count": p.RecordCount,
			"funder_count": p.FunderCount(),
			"affiliation":  p.Affiliation,
		},
		"name":            p.Name,
		"total_amount":    p.TotalAmount,
		"record_count":    p.RecordCount,
		"funder_count":    p.FunderCount(),
		"outlier_records": p.OutlierRecords,
		"risk_score":      p.Risk.Score,
		"dataset_total":   stats.Total,
		"dataset_mean":    stats.Mean,
	}

	var results []domain.RuleResult
	for _, rule := range rules {
		result := domain.RuleResult{
			RuleID:      rule.Config.ID,
			Beneficiary: p.Name,
		}

		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			result.Err = fmt.Sprintf("evaluation error: %v", err)
			results = append(results, result)
			continue
		}

		result.Score = toScore(out)
		result.Severity, result.Reason = matchBand(result.Score, rule.Config.Bands)
		if result.Severity != domain.SeverityNone {
			results = append(results, result)
		}
	}

	return results
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score. Bands are evaluated in
// order; lower bound inclusive, upper exclusive, nil upper means infinity.
func matchBand(score float64, bands []domain.RuleBand) (domain.Severity, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}

		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Severity, band.Reason
		}
	}

	return domain.SeverityNone, ""
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations,
// sorted by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
