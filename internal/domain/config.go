package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier" yaml:"tier"`

	// Analysis holds the tunable detection thresholds
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Scoring holds the composite risk scoring policy
	Scoring ScoringPolicy `json:"scoring" yaml:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// AnalysisConfig holds every detection threshold as tunable configuration.
// The source material disagreed with itself on most of these constants, so
// none of them is hardwired.
type AnalysisConfig struct {
	// Locale profile for amount parsing
	ThousandsSep rune `json:"-" yaml:"-"`
	DecimalSep   rune `json:"-" yaml:"-"`

	// Outlier ratio cutoffs (z-like ratio over dataset stddev)
	BorderlineRatio float64 `json:"borderlineRatio" yaml:"borderlineRatio"`
	OutlierRatio    float64 `json:"outlierRatio" yaml:"outlierRatio"`

	// Beneficiary concentration: count > WarningCount is WARNING,
	// count > CriticalCount is CRITICAL. WarningCount < CriticalCount.
	WarningCount  int `json:"warningCount" yaml:"warningCount"`
	CriticalCount int `json:"criticalCount" yaml:"criticalCount"`

	// Global concentration: top-K share of the dataset total
	TopK               int     `json:"topK" yaml:"topK"`
	ConcentrationShare float64 `json:"concentrationShare" yaml:"concentrationShare"`

	// Cross-funder network
	MinFunders       int     `json:"minFunders" yaml:"minFunders"`
	ClusterMinAmount float64 `json:"clusterMinAmount" yaml:"clusterMinAmount"`
	ClusterMinSize   int     `json:"clusterMinSize" yaml:"clusterMinSize"`

	// Geographic unit volume threshold for the unit-level score
	GeoVolumeThreshold int `json:"geoVolumeThreshold" yaml:"geoVolumeThreshold"`

	// Trend: alert when the current total grows more than this fraction over
	// the historical mean of prior run totals
	TrendGrowth float64 `json:"trendGrowth" yaml:"trendGrowth"`

	// Alert list bound
	MaxAlerts int `json:"maxAlerts" yaml:"maxAlerts"`

	// Partitions for the parallel classification maps
	Partitions int `json:"partitions" yaml:"partitions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds

	// Submission rate window per source on /analyze. Zero disables limiting.
	RateLimit      int `json:"rateLimit" yaml:"rateLimit"`
	RateWindowSecs int `json:"rateWindowSecs" yaml:"rateWindowSecs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:     TierCommunity,
		Analysis: DefaultAnalysisConfig(),
		Scoring:  DefaultScoringPolicy(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// DefaultAnalysisConfig returns the documented default thresholds.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ThousandsSep:       '.',
		DecimalSep:         ',',
		BorderlineRatio:    2.0,
		OutlierRatio:       2.5,
		WarningCount:       4,
		CriticalCount:      6,
		TopK:               5,
		ConcentrationShare: 0.30,
		MinFunders:         3,
		ClusterMinAmount:   1_000_000,
		ClusterMinSize:     2,
		GeoVolumeThreshold: 10,
		TrendGrowth:        0.40,
		MaxAlerts:          20,
		Partitions:         4,
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
// Missing fields keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
