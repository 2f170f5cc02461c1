package domain

// RiskLevel is one of four ordered risk levels.
type RiskLevel string

const (
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// Severity grades a detector flag or an alert.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// RiskScore is a bounded composite score with its per-signal breakdown.
// Score is always within [0,100].
type RiskScore struct {
	Score int       `json:"score"`
	Level RiskLevel `json:"level"`

	// Contribution breakdown, pre-clamp.
	OutlierPoints       int `json:"outlierPoints"`
	ConcentrationPoints int `json:"concentrationPoints"`
	NetworkPoints       int `json:"networkPoints"`
}

// ScoringPolicy holds the additive weights and level cut points. Weights and
// cut points are configuration so the policy can be tuned and tested apart
// from the detectors.
type ScoringPolicy struct {
	OutlierWeight         int `json:"outlierWeight" yaml:"outlierWeight"`
	BorderlineWeight      int `json:"borderlineWeight" yaml:"borderlineWeight"`
	ConcentrationCritical int `json:"concentrationCritical" yaml:"concentrationCritical"`
	ConcentrationWarning  int `json:"concentrationWarning" yaml:"concentrationWarning"`
	CrossFunderWeight     int `json:"crossFunderWeight" yaml:"crossFunderWeight"`

	CriticalCut int `json:"criticalCut" yaml:"criticalCut"`
	HighCut     int `json:"highCut" yaml:"highCut"`
	MediumCut   int `json:"mediumCut" yaml:"mediumCut"`
}

// DefaultScoringPolicy returns the documented default weights and cut points.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		OutlierWeight:         40,
		BorderlineWeight:      20,
		ConcentrationCritical: 30,
		ConcentrationWarning:  15,
		CrossFunderWeight:     30,
		CriticalCut:           70,
		HighCut:               40,
		MediumCut:             20,
	}
}

// Level maps a clamped score to its risk level using the policy cut points.
func (p ScoringPolicy) Level(score int) RiskLevel {
	switch {
	case score >= p.CriticalCut:
		return LevelCritical
	case score >= p.HighCut:
		return LevelHigh
	case score >= p.MediumCut:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Clamp bounds a raw additive score to [0,100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
