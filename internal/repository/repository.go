// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/civic-audit/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a full analysis report with source isolation. The report
// document is stored as JSON alongside a few queryable summary columns.
func (r *SQLRepository) SaveReport(ctx context.Context, sourceID string, report *domain.Report) error {
	if sourceID == "" {
		return fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, source_id, created_at, record_count, total_amount, alert_count, body
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, sourceID, report.Timestamp,
		report.Stats.Count, report.Stats.Total, len(report.Alerts),
		string(body),
	)
	return err
}

// GetReport retrieves a report by ID with source isolation.
func (r *SQLRepository) GetReport(ctx context.Context, sourceID string, reportID string) (*domain.Report, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	query := `
		SELECT body
		FROM reports
		WHERE source_id = ? AND id = ?
	`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), sourceID, reportID).Scan(&body)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", reportID, err)
	}

	return &report, nil
}

// ListReports retrieves reports for a source created at or after since,
// most recent first.
func (r *SQLRepository) ListReports(ctx context.Context, sourceID string, since time.Time) ([]*domain.Report, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	query := `
		SELECT body
		FROM reports
		WHERE source_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), sourceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}

		var report domain.Report
		if err := json.Unmarshal([]byte(body), &report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// SaveRunTotal records the dataset total of one run for the trend series.
func (r *SQLRepository) SaveRunTotal(ctx context.Context, sourceID string, reportID string, total float64, at time.Time) error {
	if sourceID == "" {
		return fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO run_totals (report_id, source_id, total_amount, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), reportID, sourceID, total, at)
	return err
}

// GetRunTotals returns the most recent run totals for a source, newest first.
func (r *SQLRepository) GetRunTotals(ctx context.Context, sourceID string, limit int) ([]float64, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 12
	}

	query := `
		SELECT total_amount
		FROM run_totals
		WHERE source_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []float64
	for rows.Next() {
		var total float64
		if err := rows.Scan(&total); err != nil {
			return nil, err
		}
		totals = append(totals, total)
	}

	return totals, rows.Err()
}

// SaveRuleConfig stores a rule configuration with source isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, sourceID string, rule *domain.RuleConfig) error {
	if sourceID == "" {
		return fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, source_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, source_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, sourceID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a rule configuration with source isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, sourceID string, ruleID string) (*domain.RuleConfig, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, source_id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE source_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), sourceID, ruleID).Scan(
		&cfg.ID, &cfg.SourceID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a source.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, sourceID string) ([]*domain.RuleConfig, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: sourceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, source_id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE source_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.SourceID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
