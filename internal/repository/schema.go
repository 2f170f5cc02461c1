package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    record_count INTEGER NOT NULL,
    total_amount REAL NOT NULL,
    alert_count INTEGER NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_source ON reports(source_id);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(source_id, created_at);
`

const schemaRunTotals = `
CREATE TABLE IF NOT EXISTS run_totals (
    report_id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    total_amount REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_totals_source ON run_totals(source_id, created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, source_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_source ON rule_configs(source_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(source_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
		schemaRunTotals,
		schemaRuleConfigs,
	}
}
