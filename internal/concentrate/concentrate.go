// Package concentrate aggregates records by beneficiary to find
// overrepresented recipients.
package concentrate

import (
	"sort"

	"github.com/civic-audit/harrier/internal/domain"
)

// Detector builds beneficiary profiles and flags concentration.
type Detector struct {
	warningCount  int
	criticalCount int
	topK          int
	share         float64
}

// New creates a detector from the analysis configuration.
func New(cfg domain.AnalysisConfig) *Detector {
	return &Detector{
		warningCount:  cfg.WarningCount,
		criticalCount: cfg.CriticalCount,
		topK:          cfg.TopK,
		share:         cfg.ConcentrationShare,
	}
}

// Profiles reduces the dataset by beneficiary and flags each profile whose
// record count exceeds the thresholds: count > warning is WARNING, count >
// critical is CRITICAL. A count exactly at a threshold is not flagged.
// Profiles are returned sorted by name so runs are deterministic.
func (d *Detector) Profiles(ds domain.Dataset, signals []domain.RecordSignal) []domain.BeneficiaryProfile {
	outliers := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s.Outlier {
			outliers[s.RecordID] = true
		}
	}

	byName := make(map[string]*domain.BeneficiaryProfile)
	funders := make(map[string]map[string]struct{})

	for i := range ds.Records {
		rec := &ds.Records[i]
		p, ok := byName[rec.Beneficiary]
		if !ok {
			p = &domain.BeneficiaryProfile{Name: rec.Beneficiary}
			byName[rec.Beneficiary] = p
			funders[rec.Beneficiary] = make(map[string]struct{})
		}

		p.RecordCount++
		p.RecordIDs = append(p.RecordIDs, rec.ID)
		if rec.Valid() {
			p.TotalAmount += rec.Amount
		}
		if outliers[rec.ID] {
			p.OutlierRecords++
		}
		if rec.Affiliation != "" && p.Affiliation == "" {
			p.Affiliation = rec.Affiliation
		}
		funders[rec.Beneficiary][rec.Funder] = struct{}{}
	}

	profiles := make([]domain.BeneficiaryProfile, 0, len(byName))
	for name, p := range byName {
		fs := make([]string, 0, len(funders[name]))
		for f := range funders[name] {
			fs = append(fs, f)
		}
		sort.Strings(fs)
		p.Funders = fs

		switch {
		case p.RecordCount > d.criticalCount:
			p.ConcentrationFlag = domain.SeverityCritical
		case p.RecordCount > d.warningCount:
			p.ConcentrationFlag = domain.SeverityWarning
		}

		profiles = append(profiles, *p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})

	return profiles
}

// Summary computes the top-K concentration ratio against the dataset total.
// Ranking ties on total amount break by beneficiary name so the top-K set is
// deterministic.
func (d *Detector) Summary(profiles []domain.BeneficiaryProfile, total float64) domain.ConcentrationSummary {
	sum := domain.ConcentrationSummary{TopK: d.topK}

	ranked := make([]domain.BeneficiaryProfile, len(profiles))
	copy(ranked, profiles)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalAmount != ranked[j].TotalAmount {
			return ranked[i].TotalAmount > ranked[j].TotalAmount
		}
		return ranked[i].Name < ranked[j].Name
	})

	k := d.topK
	if k > len(ranked) {
		k = len(ranked)
	}

	for _, p := range ranked[:k] {
		sum.TopBeneficiaries = append(sum.TopBeneficiaries, p.Name)
		sum.TopAmount += p.TotalAmount
	}

	if total > 0 {
		sum.Ratio = sum.TopAmount / total
	}
	sum.Alerted = sum.Ratio > d.share

	return sum
}
