// Package score merges independent detector signals into one bounded
// composite risk score per entity.
package score

import (
	"github.com/civic-audit/harrier/internal/domain"
)

// Scorer applies the additive, capped scoring policy. Weights and level cut
// points come from configuration so the policy is tunable and testable apart
// from the detectors.
type Scorer struct {
	policy domain.ScoringPolicy
}

// New creates a scorer with the given policy.
func New(policy domain.ScoringPolicy) *Scorer {
	return &Scorer{policy: policy}
}

// Policy returns the active scoring policy.
func (s *Scorer) Policy() domain.ScoringPolicy {
	return s.policy
}

// Signals is the per-entity input to the scorer.
type Signals struct {
	Outlier       bool
	Borderline    bool
	Concentration domain.Severity
	CrossFunder   bool
}

// Score computes the clamped composite score and its breakdown.
func (s *Scorer) Score(sig Signals) domain.RiskScore {
	var rs domain.RiskScore

	switch {
	case sig.Outlier:
		rs.OutlierPoints = s.policy.OutlierWeight
	case sig.Borderline:
		rs.OutlierPoints = s.policy.BorderlineWeight
	}

	switch sig.Concentration {
	case domain.SeverityCritical:
		rs.ConcentrationPoints = s.policy.ConcentrationCritical
	case domain.SeverityWarning:
		rs.ConcentrationPoints = s.policy.ConcentrationWarning
	}

	if sig.CrossFunder {
		rs.NetworkPoints = s.policy.CrossFunderWeight
	}

	rs.Score = domain.Clamp(rs.OutlierPoints + rs.ConcentrationPoints + rs.NetworkPoints)
	rs.Level = s.policy.Level(rs.Score)

	return rs
}

// ScoreBeneficiary scores one profile from its accumulated detector flags.
func (s *Scorer) ScoreBeneficiary(p *domain.BeneficiaryProfile) domain.RiskScore {
	return s.Score(Signals{
		Outlier:       p.OutlierRecords > 0,
		Concentration: p.ConcentrationFlag,
		CrossFunder:   p.CrossFunderFlag,
	})
}

// ScoreRecord scores one record: its own outlier signal plus the standing
// flags of the beneficiary it belongs to.
func (s *Scorer) ScoreRecord(sig domain.RecordSignal, p *domain.BeneficiaryProfile) domain.RiskScore {
	in := Signals{
		Outlier:    sig.Outlier,
		Borderline: sig.Borderline,
	}
	if p != nil {
		in.Concentration = p.ConcentrationFlag
		in.CrossFunder = p.CrossFunderFlag
	}
	return s.Score(in)
}

// ScoreProfiles fills in the risk score of every profile in place.
func (s *Scorer) ScoreProfiles(profiles []domain.BeneficiaryProfile) []domain.BeneficiaryProfile {
	for i := range profiles {
		profiles[i].Risk = s.ScoreBeneficiary(&profiles[i])
	}
	return profiles
}
