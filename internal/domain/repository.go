package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods require
// sourceID, the identifier of the ingestion source a run belongs to, for
// strict isolation between sources.
type Repository interface {
	// Report operations
	SaveReport(ctx context.Context, sourceID string, report *Report) error
	GetReport(ctx context.Context, sourceID string, reportID string) (*Report, error)
	ListReports(ctx context.Context, sourceID string, since time.Time) ([]*Report, error)

	// Historical totals series, used only by the trend alert
	SaveRunTotal(ctx context.Context, sourceID string, reportID string, total float64, at time.Time) error
	GetRunTotals(ctx context.Context, sourceID string, limit int) ([]float64, error)

	// Detection rule operations
	SaveRuleConfig(ctx context.Context, sourceID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, sourceID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, sourceID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
