package domain

import (
	"time"
)

// AlertCategory identifies which detector raised an alert.
type AlertCategory string

const (
	CategoryOutlier          AlertCategory = "outlier"
	CategoryConcentration    AlertCategory = "concentration"
	CategoryCrossFunder      AlertCategory = "cross-funder"
	CategoryGeoConcentration AlertCategory = "geographic-concentration"
	CategoryTrend            AlertCategory = "trend"
	CategoryCustomRule       AlertCategory = "custom-rule"
)

// Alert is one flagged condition. Alerts are deduplicated by
// (Category, Entity) within a run, keeping the highest severity.
type Alert struct {
	ID        string        `json:"id"`
	Severity  Severity      `json:"severity"`
	Category  AlertCategory `json:"category"`
	Message   string        `json:"message"`
	Rationale string        `json:"rationale"`
	Impact    float64       `json:"impact,omitempty"` // monetary impact when applicable
	Entity    string        `json:"entity"`           // beneficiary or geographic unit
	Timestamp time.Time     `json:"timestamp"`
}

// DedupeKey returns the (category, entity) pair alerts are deduplicated by.
func (a *Alert) DedupeKey() string {
	return string(a.Category) + "|" + a.Entity
}
