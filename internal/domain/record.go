// Package domain defines the core types and interfaces for Harrier.
package domain

import (
	"time"
)

// RawRecord is one record as supplied by an ingestion collaborator: a flat
// mapping from source field name to value. Field names are not guaranteed
// uniform across sources; the normalizer resolves them against a schema
// mapping. The only required field is a usable identifier.
type RawRecord map[string]any

// UnknownValue is the sentinel used for missing optional fields so that
// downstream grouping keys are always defined.
const UnknownValue = "unknown"

// GrantRecord is one normalized disbursement of public funds. Immutable once
// produced by the normalizer; no later stage mutates it.
type GrantRecord struct {
	ID           string    `json:"id"`
	Beneficiary  string    `json:"beneficiary"`
	Amount       float64   `json:"amount"`
	Concept      string    `json:"concept"`
	Municipality string    `json:"municipality"`
	Province     string    `json:"province"`
	Funder       string    `json:"funder"`
	GrantDate    time.Time `json:"grantDate,omitempty"`
	SourceRef    string    `json:"sourceRef,omitempty"`

	// Affiliation is an optional caller-supplied group identifier used by the
	// network detector. Never inferred from the beneficiary name.
	Affiliation string `json:"affiliation,omitempty"`

	// Degraded marks records whose amount could not be parsed. They carry
	// Amount = 0, are excluded from dataset statistics, and are retained for
	// data-quality reporting.
	Degraded bool `json:"degraded,omitempty"`
}

// Valid reports whether the record contributes to dataset statistics.
func (r *GrantRecord) Valid() bool {
	return !r.Degraded
}

// Dataset is the ordered collection of normalized records for one run plus
// the derived scalar statistics. Statistics cover valid records only.
type Dataset struct {
	Records []GrantRecord `json:"records"`
	Stats   DatasetStats  `json:"stats"`
}

// DatasetStats holds the dataset-wide numeric summary computed once per run.
type DatasetStats struct {
	Count         int     `json:"count"`
	ValidCount    int     `json:"validCount"`
	DegradedCount int     `json:"degradedCount"`
	Total         float64 `json:"total"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"stdDev"`
}

// RecordSignal is the per-record output of the statistical analyzer.
type RecordSignal struct {
	RecordID   string  `json:"recordId"`
	Ratio      float64 `json:"ratio"` // (amount - mean) / stddev, 0 when stddev = 0
	Borderline bool    `json:"borderline"`
	Outlier    bool    `json:"outlier"`
}

// GazetteNotice is an opaque legal-gazette document attached to a run for
// context. It is categorized by declared keyword mapping only, never analyzed
// statistically.
type GazetteNotice struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
	Category string `json:"category"`
}
