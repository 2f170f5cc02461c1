package domain

import (
	"time"
)

// Report is the single structured output document for one analysis run.
// Everything a rendering or storage collaborator needs, as plain serializable
// data; no analytical step has to be re-derived downstream.
type Report struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"sourceId"`
	Timestamp time.Time `json:"timestamp"`

	Stats          DatasetStats         `json:"stats"`
	Beneficiaries  []BeneficiaryProfile `json:"beneficiaries"`
	Clusters       []FundingCluster     `json:"clusters,omitempty"`
	Concentration  ConcentrationSummary `json:"concentration"`
	Municipalities []GeographicUnit     `json:"municipalities"`
	Provinces      []GeographicUnit     `json:"provinces"`
	Alerts         []Alert              `json:"alerts"`
	Notices        []GazetteNotice      `json:"notices,omitempty"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata carries processing information for one run.
type ReportMetadata struct {
	TraceID        string `json:"traceId"`
	NormalizeMs    int64  `json:"normalizeMs"`
	AnalyzeMs      int64  `json:"analyzeMs"`
	TotalMs        int64  `json:"totalMs"`
	RecordsIn      int    `json:"recordsIn"`
	RecordsDropped int    `json:"recordsDropped"`
	EngineVersion  string `json:"engineVersion"`
}

// Batch is the input contract for one run: an already-materialized raw record
// collection supplied by an external ingestion collaborator, plus optional
// context. The core never fetches, retries, or times out on its own.
type Batch struct {
	SourceID string          `json:"sourceId"`
	Records  []RawRecord     `json:"records"`
	Notices  []GazetteNotice `json:"notices,omitempty"`

	// PriorTotal is the prior run's aggregate total, used only for the trend
	// alert. Zero means no history supplied inline; the repository's totals
	// series is consulted instead when available.
	PriorTotal float64 `json:"priorTotal,omitempty"`
}
