// Package alert turns flagged conditions into a deterministically ordered,
// bounded alert list.
package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/civic-audit/harrier/internal/domain"
)

// Emitter collects candidate alerts from every detector, deduplicates them,
// and emits the ranked, bounded list.
type Emitter struct {
	maxAlerts   int
	trendGrowth float64

	now        time.Time
	candidates []domain.Alert
}

// New creates an emitter for one run. The run timestamp is fixed up front so
// two runs over identical input produce identical alerts.
func New(cfg domain.AnalysisConfig, now time.Time) *Emitter {
	maxAlerts := cfg.MaxAlerts
	if maxAlerts <= 0 {
		maxAlerts = 20
	}
	return &Emitter{
		maxAlerts:   maxAlerts,
		trendGrowth: cfg.TrendGrowth,
		now:         now,
	}
}

// Add queues a candidate alert. The ID is derived from the dedupe key, not
// randomly generated, to keep runs reproducible.
func (e *Emitter) Add(severity domain.Severity, category domain.AlertCategory, entity, message, rationale string, impact float64) {
	e.candidates = append(e.candidates, domain.Alert{
		ID:        fmt.Sprintf("%s:%s", category, entity),
		Severity:  severity,
		Category:  category,
		Entity:    entity,
		Message:   message,
		Rationale: rationale,
		Impact:    impact,
		Timestamp: e.now,
	})
}

// CollectOutliers raises one alert per flagged outlier record.
func (e *Emitter) CollectOutliers(records []domain.GrantRecord, signals []domain.RecordSignal, stats domain.DatasetStats) {
	byID := make(map[string]*domain.GrantRecord, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	for _, sig := range signals {
		if !sig.Outlier {
			continue
		}
		rec := byID[sig.RecordID]
		if rec == nil {
			continue
		}
		e.Add(domain.SeverityCritical, domain.CategoryOutlier, rec.Beneficiary,
			fmt.Sprintf("Grant of %.2f to %s is a statistical outlier", rec.Amount, rec.Beneficiary),
			fmt.Sprintf("Amount is %.1f standard deviations above the dataset mean of %.2f", sig.Ratio, stats.Mean),
			rec.Amount)
	}
}

// CollectConcentration raises per-beneficiary and global concentration alerts.
func (e *Emitter) CollectConcentration(profiles []domain.BeneficiaryProfile, summary domain.ConcentrationSummary, total float64) {
	for i := range profiles {
		p := &profiles[i]
		if p.ConcentrationFlag == domain.SeverityNone {
			continue
		}
		e.Add(p.ConcentrationFlag, domain.CategoryConcentration, p.Name,
			fmt.Sprintf("%s received %d grants totalling %.2f", p.Name, p.RecordCount, p.TotalAmount),
			fmt.Sprintf("Record count %d exceeds the concentration threshold", p.RecordCount),
			p.TotalAmount)
	}

	if summary.Alerted {
		e.Add(domain.SeverityWarning, domain.CategoryConcentration, "dataset",
			fmt.Sprintf("Top %d beneficiaries hold %.1f%% of all funds", summary.TopK, summary.Ratio*100),
			fmt.Sprintf("Combined amount %.2f of a %.2f total exceeds the configured share", summary.TopAmount, total),
			summary.TopAmount)
	}
}

// CollectNetwork raises cross-funder and cluster alerts.
func (e *Emitter) CollectNetwork(profiles []domain.BeneficiaryProfile, clusters []domain.FundingCluster) {
	for i := range profiles {
		p := &profiles[i]
		if !p.CrossFunderFlag {
			continue
		}
		e.Add(domain.SeverityWarning, domain.CategoryCrossFunder, p.Name,
			fmt.Sprintf("%s received funds from %d distinct bodies", p.Name, p.FunderCount()),
			"Multiple funding sources for a single beneficiary within one run",
			p.TotalAmount)
	}

	for _, c := range clusters {
		if !c.Flagged {
			continue
		}
		e.Add(domain.SeverityCritical, domain.CategoryCrossFunder, c.Affiliation,
			fmt.Sprintf("Affiliated group %s received %.2f across %d beneficiaries", c.Affiliation, c.TotalAmount, len(c.Members)),
			"Combined cluster amount and size exceed the network thresholds",
			c.TotalAmount)
	}
}

// CollectGeographic raises alerts for administrative units scored CRITICAL.
func (e *Emitter) CollectGeographic(units []domain.GeographicUnit) {
	for _, u := range units {
		if u.Risk.Level != domain.LevelCritical {
			continue
		}
		e.Add(domain.SeverityCritical, domain.CategoryGeoConcentration, u.Name,
			fmt.Sprintf("%s %s concentrates %d records and %d outliers", u.Level, u.Name, u.RecordCount, u.OutlierCount),
			fmt.Sprintf("Unit risk score %d", u.Risk.Score),
			u.TotalAmount)
	}
}

// CollectTrend compares the current total against the historical mean of
// prior run totals and alerts on growth over the configured fraction.
func (e *Emitter) CollectTrend(currentTotal float64, priorTotals []float64) {
	if len(priorTotals) == 0 {
		return
	}

	var sum float64
	for _, t := range priorTotals {
		sum += t
	}
	mean := sum / float64(len(priorTotals))
	if mean <= 0 {
		return
	}

	growth := (currentTotal - mean) / mean
	if growth <= e.trendGrowth {
		return
	}

	e.Add(domain.SeverityWarning, domain.CategoryTrend, "dataset",
		fmt.Sprintf("Aggregate total grew %.1f%% over the historical mean", growth*100),
		fmt.Sprintf("Current total %.2f vs historical mean %.2f across %d prior runs", currentTotal, mean, len(priorTotals)),
		currentTotal)
}

// Emit deduplicates by (category, entity) keeping the highest severity and,
// at equal severity, the highest impact, then orders CRITICAL before WARNING,
// higher impact first within a severity, and entity name ascending on impact
// ties. The result is bounded.
func (e *Emitter) Emit() []domain.Alert {
	best := make(map[string]domain.Alert, len(e.candidates))
	for _, a := range e.candidates {
		key := a.DedupeKey()
		cur, ok := best[key]
		if !ok || rank(a.Severity) > rank(cur.Severity) ||
			(rank(a.Severity) == rank(cur.Severity) && a.Impact > cur.Impact) {
			best[key] = a
		}
	}

	alerts := make([]domain.Alert, 0, len(best))
	for _, a := range best {
		alerts = append(alerts, a)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return rank(alerts[i].Severity) > rank(alerts[j].Severity)
		}
		if alerts[i].Impact != alerts[j].Impact {
			return alerts[i].Impact > alerts[j].Impact
		}
		if alerts[i].Entity != alerts[j].Entity {
			return alerts[i].Entity < alerts[j].Entity
		}
		return alerts[i].Category < alerts[j].Category
	})

	if len(alerts) > e.maxAlerts {
		alerts = alerts[:e.maxAlerts]
	}

	return alerts
}

func rank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 2
	case domain.SeverityWarning:
		return 1
	default:
		return 0
	}
}
