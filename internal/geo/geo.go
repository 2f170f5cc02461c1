// Package geo rolls per-record and per-beneficiary results up to
// administrative units.
package geo

import (
	"sort"

	"github.com/civic-audit/harrier/internal/domain"
	"github.com/civic-audit/harrier/internal/score"
)

// Aggregator builds municipality and province rollups. It produces exactly
// the structure a map-rendering consumer needs and renders nothing itself.
type Aggregator struct {
	volumeThreshold int
	dominantShare   float64
	scorer          *score.Scorer
}

// New creates an aggregator from the analysis configuration and the shared
// scoring policy.
func New(cfg domain.AnalysisConfig, scorer *score.Scorer) *Aggregator {
	share := cfg.ConcentrationShare
	if share <= 0 {
		share = 0.5
	}
	return &Aggregator{
		volumeThreshold: cfg.GeoVolumeThreshold,
		dominantShare:   share,
		scorer:          scorer,
	}
}

type unitAccum struct {
	amount        float64
	records       int
	outliers      int
	beneficiaries map[string]float64
	funders       map[string]struct{}
}

// Aggregate computes both rollups in one pass over the dataset.
func (a *Aggregator) Aggregate(ds domain.Dataset, signals []domain.RecordSignal) (municipalities, provinces []domain.GeographicUnit) {
	outliers := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s.Outlier {
			outliers[s.RecordID] = true
		}
	}

	muni := make(map[string]*unitAccum)
	prov := make(map[string]*unitAccum)

	for i := range ds.Records {
		rec := &ds.Records[i]
		a.accumulate(muni, rec.Municipality, rec, outliers[rec.ID])
		a.accumulate(prov, rec.Province, rec, outliers[rec.ID])
	}

	return a.finalize(muni, domain.GeoMunicipality), a.finalize(prov, domain.GeoProvince)
}

func (a *Aggregator) accumulate(units map[string]*unitAccum, key string, rec *domain.GrantRecord, outlier bool) {
	u, ok := units[key]
	if !ok {
		u = &unitAccum{
			beneficiaries: make(map[string]float64),
			funders:       make(map[string]struct{}),
		}
		units[key] = u
	}

	u.records++
	if rec.Valid() {
		u.amount += rec.Amount
		u.beneficiaries[rec.Beneficiary] += rec.Amount
	} else {
		u.beneficiaries[rec.Beneficiary] += 0
	}
	u.funders[rec.Funder] = struct{}{}
	if outlier {
		u.outliers++
	}
}

// finalize turns accumulators into sorted GeographicUnits with unit-level
// risk scores from the shared additive-capped policy.
func (a *Aggregator) finalize(units map[string]*unitAccum, level domain.GeoLevel) []domain.GeographicUnit {
	out := make([]domain.GeographicUnit, 0, len(units))

	for name, u := range units {
		unit := domain.GeographicUnit{
			Name:             name,
			Level:            level,
			TotalAmount:      u.amount,
			RecordCount:      u.records,
			BeneficiaryCount: len(u.beneficiaries),
			FunderCount:      len(u.funders),
			OutlierCount:     u.outliers,
		}

		var concentration domain.Severity
		if u.records > a.volumeThreshold {
			concentration = domain.SeverityWarning
		}

		unit.Risk = a.scorer.Score(score.Signals{
			Outlier:       u.outliers > 0,
			Concentration: concentration,
			CrossFunder:   a.dominated(u),
		})

		out = append(out, unit)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out
}

// dominated reports whether a single beneficiary takes more than the
// configured share of the unit's total.
func (a *Aggregator) dominated(u *unitAccum) bool {
	if u.amount <= 0 || len(u.beneficiaries) < 2 {
		return false
	}
	var top float64
	for _, amt := range u.beneficiaries {
		if amt > top {
			top = amt
		}
	}
	return top/u.amount > a.dominantShare
}
